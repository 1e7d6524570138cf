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

package app

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"icustrat/charts"
	"icustrat/config"
	"icustrat/dataset"
	"icustrat/mapping"
	"icustrat/stay"

	"go.uber.org/zap"
)

// Target is the name of the diagnosis column both loaders produce.
const Target = mapping.Category1Column

// checkEvery is the number of csv rows between two context checks while streaming large files.
const checkEvery = 1 << 16

// Options controls the dataset loaders.
type Options struct {
	DiagnosisCodes     []string //CCSR category 1 codes to keep, empty keeps all
	CutoffHours        float64  //chart events later than this are ignored
	MinLOSDays         float64
	MaxLOSDays         float64
	MinAge             int
	RemoveDeathsInStay bool
	EicuLOSFilter      bool
	ChartItems         []string //MIMIC itemids to keep, empty keeps all
	Logger             *zap.Logger
}

// DefaultOptions returns the loader options of the default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig(), nil)
}

// OptionsFromConfig derives loader options from the pipeline configuration.
func OptionsFromConfig(cfg *config.Config, logger *zap.Logger) Options {
	p := cfg.Pipeline
	return Options{
		DiagnosisCodes:     p.DiagnosisCodes,
		CutoffHours:        p.CutoffHours,
		MinLOSDays:         p.MinLOSDays,
		MaxLOSDays:         p.MaxLOSDays,
		MinAge:             p.MinAge,
		RemoveDeathsInStay: p.RemoveDeathsInStay,
		EicuLOSFilter:      p.EicuLOSFilter,
		ChartItems:         p.ChartItems,
		Logger:             logger,
	}
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Mappings bundles the code mappings the loaders need.
type Mappings struct {
	ICD9 *mapping.ICD9ToICD10
	CCSR *mapping.CCSR
}

// LoadMappings reads the ICD9 to ICD10 and the ICD10 to CCSR mappings named in the configuration.
func LoadMappings(cfg *config.Config) (Mappings, error) {
	icd9, err := mapping.ReadICD9ToICD10(cfg.MappingPath(cfg.Data.ICD9ToICD10))
	if err != nil {
		return Mappings{}, fmt.Errorf("icd9 to icd10 mapping: %w", err)
	}
	ccsr, err := mapping.ReadCCSR(cfg.MappingPath(cfg.Data.CCSR))
	if err != nil {
		return Mappings{}, fmt.Errorf("ccsr mapping: %w", err)
	}
	return Mappings{ICD9: icd9, CCSR: ccsr}, nil
}

// Result is a loaded dataset.
type Result struct {
	Table   *dataset.Table          //one row per stay
	Summary []stay.DiagnosisSummary //admissions per diagnosis, most frequent first
	Target  string                  //name of the diagnosis column
	Stays   *stay.StayMap           //the retained stays
}

// column describes how a table column is filled from a stay.
type column struct {
	name   string
	kind   dataset.Kind
	number func(s *stay.Stay) float64
	text   func(s *stay.Stay) string
}

func numericColumn(name string, f func(s *stay.Stay) float64) column {
	return column{name: name, kind: dataset.Numeric, number: f}
}

func categoricalColumn(name string, f func(s *stay.Stay) string) column {
	return column{name: name, kind: dataset.Categorical, text: f}
}

// attribute reads a numeric attribute stored on the stay, NaN when absent.
func attribute(name string) column {
	return numericColumn(name, func(s *stay.Stay) float64 {
		if v, ok := s.Numeric[name]; ok {
			return v
		}
		return math.NaN()
	})
}

// category reads a categorical attribute stored on the stay.
func category(name string) column {
	return categoricalColumn(name, func(s *stay.Stay) string {
		return s.Categorical[name]
	})
}

// diagnosisColumns are the CCSR columns attached to every stay.
func diagnosisColumns() []column {
	return []column{
		categoricalColumn(mapping.Category1Column, func(s *stay.Stay) string { return s.CCSR }),
		categoricalColumn(mapping.Category1DescColumn, func(s *stay.Stay) string { return s.CCSRDescription }),
		categoricalColumn(mapping.Category2Column, func(s *stay.Stay) string { return s.CCSR2 }),
		categoricalColumn(mapping.Category2DescColumn, func(s *stay.Stay) string { return s.CCSR2Description }),
	}
}

// buildTable lays out the stays as a table with the given columns followed by the chart feature columns.
func buildTable(m *stay.StayMap, columns []column, features []string) (*dataset.Table, error) {
	stays := m.Slice()
	t := dataset.NewTable(len(stays))
	for _, c := range columns {
		var err error
		if c.kind == dataset.Numeric {
			values := make([]float64, len(stays))
			for i, s := range stays {
				values[i] = c.number(s)
			}
			err = t.AddNumeric(c.name, values)
		} else {
			values := make([]string, len(stays))
			for i, s := range stays {
				values[i] = c.text(s)
			}
			err = t.AddCategorical(c.name, values)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, f := range features {
		if t.Has(f) {
			continue
		}
		values := make([]float64, len(stays))
		for i, s := range stays {
			v, ok := s.Features[f]
			if !ok {
				v = math.NaN()
			}
			values[i] = v
		}
		if err := t.AddNumeric(f, values); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// joinFeatures attaches aggregated chart features to the stays and returns the feature column names. Stays
// without events keep an empty feature map.
func joinFeatures(m *stay.StayMap, agg *charts.Aggregation) []string {
	for id, features := range agg.Stays {
		s, ok := m.Get(id)
		if !ok {
			continue
		}
		for name, v := range features {
			if _, exists := s.Features[name]; !exists {
				s.Features[name] = v
			}
		}
	}
	return agg.Columns
}

// assignDiagnosis maps the ICD10 code of a stay onto its CCSR categories. Stays without a mapped category keep an
// empty one.
func assignDiagnosis(m *stay.StayMap, ccsr *mapping.CCSR) {
	for _, s := range m.Slice() {
		if s.ICD10 == "" {
			continue
		}
		code, desc, ok := ccsr.Category1(s.ICD10)
		if !ok {
			continue
		}
		s.CCSR, s.CCSRDescription = code, desc
		if cat, ok := ccsr.Lookup(s.ICD10); ok {
			s.CCSR2, s.CCSR2Description = cat.Category2, cat.Category2Description
		}
	}
}

// ctxCheck returns the context error on the first row and every checkEvery rows after it. Rows count from 1.
func ctxCheck(ctx context.Context, row int) error {
	if (row-1)%checkEvery == 0 {
		return ctx.Err()
	}
	return nil
}

func parseInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v, err == nil
}

// parseFloat parses a finite number, reporting false for empty or non-numeric text and for infinities.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), false
	}
	return v, true
}

// floatOrNaN parses a number, NaN when missing.
func floatOrNaN(s string) float64 {
	v, _ := parseFloat(s)
	return v
}

func stayCount(logger *zap.Logger, msg string, m *stay.StayMap) {
	logger.Info(msg, zap.Int("stays", m.Len()))
}
