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
	"fmt"
	"time"

	"icustrat/dataset"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const batchSize = 500

// StayFeature is one row of an exported table.
type StayFeature struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	RunID     uuid.UUID      `gorm:"type:uuid;index;not null"`
	Dataset   string         `gorm:"type:text;not null"`
	RowIndex  int            `gorm:"not null"`
	Row       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}

// OpenPostgres connects to a postgres database and migrates the stay_features table.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := db.AutoMigrate(&StayFeature{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// PostgresSink stores every row of a table as a JSON document. All rows written by one sink share its run id.
type PostgresSink struct {
	db    *gorm.DB
	RunID uuid.UUID
}

// NewPostgresSink creates a sink with a fresh run id.
func NewPostgresSink(db *gorm.DB) *PostgresSink {
	return &PostgresSink{db: db, RunID: uuid.New()}
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, name string, t *dataset.Table) error {
	rows, err := FeatureRows(s.RunID, name, t)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&rows, batchSize).Error; err != nil {
		return fmt.Errorf("insert %s: %w", name, err)
	}
	return nil
}

// FeatureRows converts a table into StayFeature records.
func FeatureRows(runID uuid.UUID, name string, t *dataset.Table) ([]StayFeature, error) {
	rows := make([]StayFeature, t.Rows())
	for i := range rows {
		data, err := rowJSON(t, i)
		if err != nil {
			return nil, err
		}
		rows[i] = StayFeature{RunID: runID, Dataset: name, RowIndex: i, Row: datatypes.JSON(data)}
	}
	return rows, nil
}
