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

package utils_test

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"icustrat/utils"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCSVStripsByteOrderMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffitemid,label\n220045,Heart Rate\n"), 0o644))
	r, err := utils.OpenCSV(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []string{"itemid", "label"}, r.Header)
	idx, err := r.Require("itemid", "label")
	require.NoError(t, err)
	record, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "220045", record[idx[0]])
	assert.Equal(t, "Heart Rate", record[idx[1]])
	_, err = r.Read()
	assert.Equal(t, io.EOF, err)
}

func TestOpenCSVGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patient.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := gzip.NewWriter(f)
	_, err = w.Write([]byte("patientunitstayid,age\n10,> 89\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	r, err := utils.OpenCSV(path)
	require.NoError(t, err)
	defer r.Close()
	i, ok := r.Index("age")
	require.True(t, ok)
	record, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "> 89", utils.Field(record, i))
	assert.Equal(t, "", utils.Field(record, 5))
	assert.Equal(t, "", utils.Field(record, -1))

	_, err = r.Require("age", "gender")
	assert.ErrorContains(t, err, `"gender"`)
}

func TestStats(t *testing.T) {
	values := []float64{4, math.NaN(), 1, 3, 2}
	assert.Equal(t, 2.5, utils.Mean(values))
	assert.Equal(t, 2.5, utils.Median(values))
	assert.InDelta(t, math.Sqrt(1.25), utils.StdDev(values), 1e-12)
	lo, hi := utils.MinMax(values)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 4.0, hi)
	assert.Equal(t, 4.0, values[0])

	assert.True(t, math.IsNaN(utils.Mean([]float64{math.NaN()})))
	assert.True(t, math.IsNaN(utils.Median(nil)))
}
