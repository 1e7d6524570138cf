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

package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"icustrat/app"
	"icustrat/config"
	"icustrat/export"
	"icustrat/preprocess"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Data.MimicRoot = writeMimic(t)
	cfg.Data.EicuRoot = writeEicu(t)
	cfg.Data.MappingsDir = writeMappingDir(t)
	cfg.Data.CCSR = "DXCCSR.csv"
	cfg.Export.OutputDir = t.TempDir()
	return cfg
}

func TestRun(t *testing.T) {
	cfg := runConfig(t)
	out := cfg.Export.OutputDir
	r, err := app.Run(context.Background(), cfg, export.CSVSink{Dir: out}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{app.MimicName, app.EicuName}, r.Names)
	assert.Equal(t, r.Main.Names(), r.External.Names())
	assert.Equal(t, map[string]int{"CIR019": 0, "INF002": 1}, r.Data.ClassMap)
	assert.Equal(t, []string{
		"icu_age", "last_Heart Rate", "max_Heart Rate", "min_Heart Rate", "mean_Heart Rate", "median_Heart Rate",
		"gender", "race",
	}, r.Data.MainX.Names())
	assert.Equal(t, r.Data.MainX.Names(), r.Data.ExternalX.Names())

	assert.Equal(t, []float64{1, 0, 1}, numbers(t, r.Tables[app.MimicName], preprocess.Target))
	assert.Equal(t, []float64{1, 0, 0}, numbers(t, r.Tables[app.EicuName], preprocess.Target))
	assert.Equal(t, []float64{89, 45, 50}, numbers(t, r.Tables[app.EicuName], "icu_age"))
	// 90 from the periodic vitals and 88 from nurse charting are averaged.
	assert.Equal(t, []float64{89, 100, 95}, numbers(t, r.Tables[app.EicuName], "last_Heart Rate"))

	for _, name := range []string{
		"mimic.csv", "eicu.csv", "mimic_diagnoses.tab", "eicu_diagnoses.tab", "mimic_diagnoses.png",
		"mimic_overview.tab", "eicu_overview.tab",
	} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
	classes, err := os.ReadFile(filepath.Join(out, "classes.tab"))
	require.NoError(t, err)
	assert.Equal(t, "0\tCIR019\n1\tINF002\n", string(classes))
	diagnoses, err := os.ReadFile(filepath.Join(out, "eicu_diagnoses.tab"))
	require.NoError(t, err)
	assert.Equal(t, "CIR019\tHeart failure\t2\nINF002\tSepticemia\t1\n", string(diagnoses))
}

func TestRunSplit(t *testing.T) {
	cfg := runConfig(t)
	cfg.Preprocess.TestFraction = 0.5
	cfg.Preprocess.Seed = 1
	r, err := app.Run(context.Background(), cfg, export.Multi{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mimic_train", "mimic_test", app.EicuName}, r.Names)
	assert.Equal(t, 1, r.Tables["mimic_train"].Rows())
	assert.Equal(t, 2, r.Tables["mimic_test"].Rows())
}

func TestRunMissingColumnMap(t *testing.T) {
	cfg := runConfig(t)
	cfg.Data.ColumnMap = "missing.yaml"
	_, err := app.Run(context.Background(), cfg, export.Multi{}, nil)
	assert.Error(t, err)
}

func TestWriteResult(t *testing.T) {
	res, err := app.LoadEicu(context.Background(), writeEicu(t), writeMappings(t), app.DefaultOptions())
	require.NoError(t, err)
	out := t.TempDir()
	reports := filepath.Join(out, "reports")
	require.NoError(t, app.WriteResult(context.Background(), export.CSVSink{Dir: out}, app.EicuName, res, reports))
	_, err = os.Stat(filepath.Join(out, "eicu.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(reports, "eicu_diagnoses.png"))
	assert.NoError(t, err)
}
