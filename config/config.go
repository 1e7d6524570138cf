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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all icustrat configuration.
type Config struct {
	Data       DataConfig       `yaml:"data"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Export     ExportConfig     `yaml:"export"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DataConfig locates the datasets and the mapping files.
type DataConfig struct {
	MimicRoot   string `yaml:"mimic_root"`
	EicuRoot    string `yaml:"eicu_root"`
	MappingsDir string `yaml:"mappings_dir"`
	ICD9ToICD10 string `yaml:"icd9_to_icd10"` // file name inside MappingsDir
	CCSR        string `yaml:"ccsr"`
	ColumnMap   string `yaml:"column_map"`
}

// PipelineConfig controls the dataset loaders.
type PipelineConfig struct {
	DiagnosisCodes     []string `yaml:"diagnosis_codes"` // CCSR codes to keep, empty keeps all
	CutoffHours        float64  `yaml:"cutoff_hours"`
	MinLOSDays         float64  `yaml:"min_los_days"`
	MaxLOSDays         float64  `yaml:"max_los_days"`
	MinAge             int      `yaml:"min_age"`
	RemoveDeathsInStay bool     `yaml:"remove_deaths_in_stay"`
	EicuLOSFilter      bool     `yaml:"eicu_los_filter"`
	ChartItems         []string `yaml:"chart_items"` // MIMIC itemids to keep, empty keeps all
}

// PreprocessConfig controls feature encoding and filtering.
type PreprocessConfig struct {
	Label            string   `yaml:"label"`
	Categorical      []string `yaml:"categorical"`
	Important        []string `yaml:"important"`
	MaxNaNPercentage float64  `yaml:"max_nan_percentage"`
	TestFraction     float64  `yaml:"test_fraction"` // 0 disables the split
	Seed             int64    `yaml:"seed"`          // 0 draws a random split
}

// Source is one remote dataset tree and its local destination.
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Dir  string `yaml:"dir"`
}

// MappingSource is where a mapping file of DataConfig is published. File is the name inside MappingsDir. When
// the URL points to a zip archive, Member is the entry that is extracted as File.
type MappingSource struct {
	URL    string `yaml:"url"`
	File   string `yaml:"file"`
	Member string `yaml:"member,omitempty"`
}

// FetchConfig controls dataset acquisition.
type FetchConfig struct {
	Sources     []Source        `yaml:"sources"`
	Mappings    []MappingSource `yaml:"mappings"`
	User        string          `yaml:"user"`
	Password    string          `yaml:"password"`
	Concurrency int             `yaml:"concurrency"`
	Retries     int             `yaml:"retries"`
	Backoff     string          `yaml:"backoff"`
	Timeout     string          `yaml:"timeout"`
}

// ExportConfig selects the sinks the processed tables are written to. Empty settings disable a sink.
type ExportConfig struct {
	OutputDir    string   `yaml:"output_dir"`
	PostgresDSN  string   `yaml:"postgres_dsn"`
	S3Bucket     string   `yaml:"s3_bucket"`
	S3Prefix     string   `yaml:"s3_prefix"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			MimicRoot:   "data/mimic-iv",
			EicuRoot:    "data/eicu",
			MappingsDir: "mappings",
			ICD9ToICD10: "ICD9_to_ICD10_mapping.txt",
			CCSR:        "DXCCSR_v2025-1.csv",
			ColumnMap:   "mimic_to_eicu.yaml",
		},
		Pipeline: PipelineConfig{
			CutoffHours: 3,
			MinLOSDays:  0.5,
			MaxLOSDays:  10,
			MinAge:      15,
		},
		Preprocess: PreprocessConfig{
			Label:            "CCSR CATEGORY 1",
			Categorical:      []string{"gender", "race"},
			Important:        []string{"icu_age", "gender"},
			MaxNaNPercentage: 10,
		},
		Fetch: FetchConfig{
			Sources: []Source{
				{Name: "mimic", URL: "https://physionet.org/files/mimiciv/2.2/", Dir: "data/mimic-iv"},
				{Name: "eicu", URL: "https://physionet.org/files/eicu-crd/2.0/", Dir: "data/eicu"},
			},
			Mappings: []MappingSource{
				{
					URL:  "https://raw.githubusercontent.com/healthylaife/MIMIC-IV-Data-Pipeline/main/utils/mappings/ICD9_to_ICD10_mapping.txt",
					File: "ICD9_to_ICD10_mapping.txt",
				},
				{
					URL:    "https://hcup-us.ahrq.gov/toolssoftware/ccsr/DXCCSR-v2025-1.zip",
					File:   "DXCCSR_v2025-1.csv",
					Member: "DXCCSR_v2025-1.csv",
				},
			},
			Concurrency: 4,
			Retries:     5,
			Backoff:     "2s",
			Timeout:     "0s",
		},
		Export: ExportConfig{
			OutputDir:  "output",
			S3Prefix:   "icustrat/",
			KafkaTopic: "icustrat-features",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the defaults. Environment overrides are applied
// last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// PhysioNet credentials
	if user := os.Getenv("PHYSIONET_USER"); user != "" {
		c.Fetch.User = user
	}
	if password := os.Getenv("PHYSIONET_PASSWORD"); password != "" {
		c.Fetch.Password = password
	}

	if dsn := os.Getenv("ICUSTRAT_POSTGRES_DSN"); dsn != "" {
		c.Export.PostgresDSN = dsn
	}
	if bucket := os.Getenv("ICUSTRAT_S3_BUCKET"); bucket != "" {
		c.Export.S3Bucket = bucket
	}
	if brokers := os.Getenv("ICUSTRAT_KAFKA_BROKERS"); brokers != "" {
		c.Export.KafkaBrokers = splitList(brokers)
	}

	if root := os.Getenv("ICUSTRAT_MIMIC_ROOT"); root != "" {
		c.Data.MimicRoot = root
	}
	if root := os.Getenv("ICUSTRAT_EICU_ROOT"); root != "" {
		c.Data.EicuRoot = root
	}
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// Validate checks the numeric settings for consistency.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.CutoffHours <= 0 {
		return fmt.Errorf("pipeline.cutoff_hours must be positive, got %v", p.CutoffHours)
	}
	if p.MinLOSDays < 0 || p.MinLOSDays > p.MaxLOSDays {
		return fmt.Errorf("pipeline: need 0 <= min_los_days <= max_los_days, got %v and %v", p.MinLOSDays, p.MaxLOSDays)
	}
	if m := c.Preprocess.MaxNaNPercentage; m <= 0 || m > 100 {
		return fmt.Errorf("preprocess.max_nan_percentage must be in (0, 100], got %v", m)
	}
	if f := c.Preprocess.TestFraction; f < 0 || f >= 1 {
		return fmt.Errorf("preprocess.test_fraction must be in [0, 1), got %v", f)
	}
	if c.Preprocess.Label == "" {
		return fmt.Errorf("preprocess.label must be set")
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be at least 1, got %d", c.Fetch.Concurrency)
	}
	for i, m := range c.Fetch.Mappings {
		if m.URL == "" || m.File == "" {
			return fmt.Errorf("fetch.mappings[%d] needs a url and a file", i)
		}
	}
	if _, err := time.ParseDuration(c.Fetch.Backoff); err != nil {
		return fmt.Errorf("fetch.backoff: %w", err)
	}
	if _, err := time.ParseDuration(c.Fetch.Timeout); err != nil {
		return fmt.Errorf("fetch.timeout: %w", err)
	}
	return nil
}

// GetBackoff returns the fetch retry backoff as a duration.
func (c *Config) GetBackoff() time.Duration {
	d, err := time.ParseDuration(c.Fetch.Backoff)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetFetchTimeout returns the per request timeout of the fetcher; zero means no timeout.
func (c *Config) GetFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Fetch.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// MappingPath returns the path of a file in the mappings directory.
func (c *Config) MappingPath(name string) string {
	return filepath.Join(c.Data.MappingsDir, name)
}
