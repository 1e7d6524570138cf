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

package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// S3API is the part of the S3 client used to mirror a bucket.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client creates an S3 client from the default AWS configuration. Path style addressing is used so that
// S3 compatible stores work too.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
		UsePathStyle: true,
	}), nil
}

// ParseS3URL splits an s3://bucket/prefix URL.
func ParseS3URL(rawURL string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(rawURL, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %q", rawURL)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("no bucket in %q", rawURL)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// S3Mirror copies the objects below a bucket prefix onto the local file system, with the same skip and continue
// rules as Mirror.
type S3Mirror struct {
	client S3API
	opts   Options
	logger *zap.Logger
}

// NewS3Mirror creates an S3Mirror.
func NewS3Mirror(client S3API, opts Options) *S3Mirror {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Mirror{client: client, opts: opts, logger: logger}
}

// Fetch mirrors s3://bucket/prefix into dir.
func (m *S3Mirror) Fetch(ctx context.Context, rawURL, dir string) (*Stats, error) {
	bucket, prefix, err := ParseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	stats := &Stats{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	paginator := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(gctx)
		if err != nil {
			_ = g.Wait()
			return stats, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, prefix)
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			local := filepath.Join(dir, filepath.FromSlash(rel))
			r := remote{size: aws.ToInt64(obj.Size), modified: aws.ToTime(obj.LastModified)}
			g.Go(func() error {
				s, err := m.download(gctx, bucket, key, local, r)
				if err != nil {
					return err
				}
				stats.add(s)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	m.logger.Info("mirrored",
		zap.String("url", rawURL),
		zap.Int64("downloaded", stats.Downloaded),
		zap.Int64("resumed", stats.Resumed),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("bytes", stats.Bytes))
	return stats, nil
}

func (m *S3Mirror) download(ctx context.Context, bucket, key, local string, r remote) (*Stats, error) {
	stats := &Stats{Files: 1}
	var offset int64
	if info, err := os.Stat(local); err == nil {
		switch {
		case upToDate(info, r.size, r.modified):
			stats.Skipped = 1
			return stats, nil
		case info.ModTime().Before(r.modified):
			// changed remotely, download again
		case info.Size() < r.size:
			offset = info.Size()
		}
	}
	input := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		stats.Resumed = 1
	}
	out, err := m.client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(local, flags, 0o644)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(file, out.Body)
	stats.Bytes = n
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	stats.Downloaded = 1
	return stats, touch(local, r.modified)
}
