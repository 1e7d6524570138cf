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

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// FetchFile downloads the single file at fileURL to local, continuing or skipping it like Fetch does.
func (m *Mirror) FetchFile(ctx context.Context, fileURL, local string) (*Stats, error) {
	stats, err := m.download(ctx, fileURL, local)
	if err != nil {
		return nil, err
	}
	m.logger.Info("fetched", zap.String("url", fileURL), zap.String("file", local), zap.Int64("bytes", stats.Bytes))
	return stats, nil
}

// Extract copies the entry member of the zip archive to local.
func Extract(archive, member, local string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open %s: %w", archive, err)
	}
	defer r.Close()
	for _, f := range r.File {
		if f.Name != member {
			continue
		}
		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s in %s: %w", member, archive, err)
		}
		defer src.Close()
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return err
		}
		dst, err := os.Create(local)
		if err != nil {
			return err
		}
		_, err = io.Copy(dst, src)
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("extract %s: %w", member, err)
		}
		return nil
	}
	return fmt.Errorf("%s has no entry %s", archive, member)
}
