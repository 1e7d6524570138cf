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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"PHYSIONET_USER", "PHYSIONET_PASSWORD", "ICUSTRAT_POSTGRES_DSN",
		"ICUSTRAT_S3_BUCKET", "ICUSTRAT_KAFKA_BROKERS", "ICUSTRAT_MIMIC_ROOT", "ICUSTRAT_EICU_ROOT"} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3.0, cfg.Pipeline.CutoffHours)
	assert.Equal(t, 0.5, cfg.Pipeline.MinLOSDays)
	assert.Equal(t, 10.0, cfg.Pipeline.MaxLOSDays)
	assert.Equal(t, 15, cfg.Pipeline.MinAge)
	assert.False(t, cfg.Pipeline.EicuLOSFilter)
	assert.Equal(t, "CCSR CATEGORY 1", cfg.Preprocess.Label)
	assert.Equal(t, 10.0, cfg.Preprocess.MaxNaNPercentage)
	require.Len(t, cfg.Fetch.Sources, 2)
	assert.Equal(t, "https://physionet.org/files/mimiciv/2.2/", cfg.Fetch.Sources[0].URL)
	assert.Equal(t, "https://physionet.org/files/eicu-crd/2.0/", cfg.Fetch.Sources[1].URL)
	require.Len(t, cfg.Fetch.Mappings, 2)
	assert.Equal(t, cfg.Data.ICD9ToICD10, cfg.Fetch.Mappings[0].File)
	assert.Contains(t, cfg.Fetch.Mappings[0].URL, "MIMIC-IV-Data-Pipeline")
	assert.Empty(t, cfg.Fetch.Mappings[0].Member)
	assert.Equal(t, cfg.Data.CCSR, cfg.Fetch.Mappings[1].File)
	assert.Equal(t, "https://hcup-us.ahrq.gov/toolssoftware/ccsr/DXCCSR-v2025-1.zip", cfg.Fetch.Mappings[1].URL)
	assert.Equal(t, cfg.Data.CCSR, cfg.Fetch.Mappings[1].Member)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "icustrat.yaml")

	cfg := DefaultConfig()
	cfg.Pipeline.CutoffHours = 6
	cfg.Pipeline.DiagnosisCodes = []string{"CIR019", "INF002"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6.0, loaded.Pipeline.CutoffHours)
	assert.Equal(t, []string{"CIR019", "INF002"}, loaded.Pipeline.DiagnosisCodes)
	assert.Equal(t, 15, loaded.Pipeline.MinAge)
}

func TestConfig_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "icustrat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  min_age: 18\n  eicu_los_filter: true\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 18, cfg.Pipeline.MinAge)
	assert.Equal(t, 3.0, cfg.Pipeline.CutoffHours)
	assert.True(t, cfg.Pipeline.EicuLOSFilter)
	assert.Equal(t, 0.5, cfg.Pipeline.MinLOSDays)
}

func TestConfig_MissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "icustrat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: [\n"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PHYSIONET_USER", "alice")
	t.Setenv("PHYSIONET_PASSWORD", "secret")
	t.Setenv("ICUSTRAT_POSTGRES_DSN", "host=db user=icu")
	t.Setenv("ICUSTRAT_S3_BUCKET", "icu-bucket")
	t.Setenv("ICUSTRAT_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ICUSTRAT_MIMIC_ROOT", "/data/mimic")
	t.Setenv("ICUSTRAT_EICU_ROOT", "/data/eicu")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Fetch.User)
	assert.Equal(t, "secret", cfg.Fetch.Password)
	assert.Equal(t, "host=db user=icu", cfg.Export.PostgresDSN)
	assert.Equal(t, "icu-bucket", cfg.Export.S3Bucket)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Export.KafkaBrokers)
	assert.Equal(t, "/data/mimic", cfg.Data.MimicRoot)
	assert.Equal(t, "/data/eicu", cfg.Data.EicuRoot)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"cutoff", func(c *Config) { c.Pipeline.CutoffHours = 0 }},
		{"los order", func(c *Config) { c.Pipeline.MinLOSDays = 11 }},
		{"negative los", func(c *Config) { c.Pipeline.MinLOSDays = -1 }},
		{"nan zero", func(c *Config) { c.Preprocess.MaxNaNPercentage = 0 }},
		{"nan above 100", func(c *Config) { c.Preprocess.MaxNaNPercentage = 101 }},
		{"test fraction", func(c *Config) { c.Preprocess.TestFraction = 1 }},
		{"label", func(c *Config) { c.Preprocess.Label = "" }},
		{"concurrency", func(c *Config) { c.Fetch.Concurrency = 0 }},
		{"backoff", func(c *Config) { c.Fetch.Backoff = "soon" }},
		{"mapping", func(c *Config) { c.Fetch.Mappings[0].File = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	logger, err := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = LoggingConfig{Level: "warn", Format: "console"}.NewLogger(true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = LoggingConfig{Level: "loud"}.NewLogger(false)
	assert.Error(t, err)
}
