// icustrat: ICU Diagnosis Stratification Pipeline
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package export

import (
	"context"
	"errors"

	"icustrat/config"
	"icustrat/fetch"

	"go.uber.org/zap"
)

// FromConfig builds the sinks enabled in the export configuration. The returned function releases the
// connections the sinks hold.
func FromConfig(ctx context.Context, cfg config.ExportConfig, logger *zap.Logger) (Multi, func() error, error) {
	var sinks Multi
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	if cfg.OutputDir != "" {
		sinks = append(sinks, CSVSink{Dir: cfg.OutputDir})
		logger.Info("export enabled", zap.String("sink", "csv"), zap.String("dir", cfg.OutputDir))
	}
	if cfg.PostgresDSN != "" {
		db, err := OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		closers = append(closers, sqlDB.Close)
		sink := NewPostgresSink(db)
		sinks = append(sinks, sink)
		logger.Info("export enabled", zap.String("sink", "postgres"), zap.Stringer("run_id", sink.RunID))
	}
	if cfg.S3Bucket != "" {
		client, err := fetch.NewS3Client(ctx)
		if err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		sinks = append(sinks, S3Sink{Client: client, Bucket: cfg.S3Bucket, Prefix: cfg.S3Prefix})
		logger.Info("export enabled", zap.String("sink", "s3"), zap.String("bucket", cfg.S3Bucket))
	}
	if len(cfg.KafkaBrokers) > 0 {
		writer := NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		closers = append(closers, writer.Close)
		sinks = append(sinks, KafkaSink{Writer: writer})
		logger.Info("export enabled", zap.String("sink", "kafka"), zap.String("topic", cfg.KafkaTopic))
	}
	return sinks, closeAll, nil
}
