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

package fetch_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"icustrat/fetch"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchFile(t *testing.T) {
	srv := newServer()
	srv.files["/mappings/icd9.txt"] = []byte("diagnosis_code\ticd10cm\n")
	ts := httptest.NewServer(srv)
	defer ts.Close()
	local := filepath.Join(t.TempDir(), "maps", "icd9.txt")

	stats, err := mirror(ts, "alice").FetchFile(context.Background(), ts.URL+"/mappings/icd9.txt", local)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Downloaded)
	content, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "diagnosis_code\ticd10cm\n", string(content))

	stats, err = mirror(ts, "alice").FetchFile(context.Background(), ts.URL+"/mappings/icd9.txt", local)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Skipped)

	_, err = mirror(ts, "alice").FetchFile(context.Background(), ts.URL+"/mappings/missing.txt", local)
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "ccsr.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{"README.txt": "readme", "DXCCSR.csv": "'A419','INF002'\n"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	local := filepath.Join(dir, "out", "DXCCSR.csv")
	require.NoError(t, fetch.Extract(archive, "DXCCSR.csv", local))
	content, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "'A419','INF002'\n", string(content))

	assert.ErrorContains(t, fetch.Extract(archive, "DXCCSR_v2024.csv", local), "no entry")
	assert.Error(t, fetch.Extract(filepath.Join(dir, "missing.zip"), "DXCCSR.csv", local))
}
