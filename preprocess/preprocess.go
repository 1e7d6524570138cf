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

// Package preprocess turns the loaded main and external tables into encoded feature and target tables.
package preprocess

import (
	"fmt"

	"icustrat/dataset"

	"go.uber.org/zap"
)

// Target is the name of the target column after preprocessing.
const Target = "Target"

// Options controls preprocessing.
type Options struct {
	// Label is the target column of both tables.
	Label string
	// Categorical columns are ordinal encoded and appended after the other features.
	Categorical []string
	// Important columns are never dropped by the missing value filter.
	Important []string
	// MaxNaNPercentage is the percentage of missing values at which a column is dropped, when it is reached in
	// both tables.
	MaxNaNPercentage float64
	Logger           *zap.Logger
}

// Data holds the preprocessed tables and the encoders fitted on the main table.
type Data struct {
	MainX, MainY         *dataset.Table
	ExternalX, ExternalY *dataset.Table
	Label                *LabelEncoder
	Encoders             map[string]*OrdinalEncoder
	ClassMap             map[string]int
	Dropped              []string
}

// New splits both tables into features and target, encodes the target and the categorical columns, and drops
// the columns that have too many missing values in both tables. The input tables are not modified.
func New(main, external *dataset.Table, opts Options) (*Data, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mainLabel, err := main.MustColumn(opts.Label)
	if err != nil {
		return nil, fmt.Errorf("main table: %w", err)
	}
	externalLabel, err := external.MustColumn(opts.Label)
	if err != nil {
		return nil, fmt.Errorf("external table: %w", err)
	}

	d := &Data{Encoders: map[string]*OrdinalEncoder{}}
	d.Label = FitLabelEncoder(texts(mainLabel))
	d.ClassMap = d.Label.ClassMap()
	mainY, err := d.Label.Transform(texts(mainLabel))
	if err != nil {
		return nil, err
	}
	externalY, err := d.Label.Transform(texts(externalLabel))
	if err != nil {
		return nil, fmt.Errorf("external table: %w", err)
	}
	d.MainY = dataset.NewTable(main.Rows())
	if err := d.MainY.AddNumeric(Target, mainY); err != nil {
		return nil, err
	}
	d.ExternalY = dataset.NewTable(external.Rows())
	if err := d.ExternalY.AddNumeric(Target, externalY); err != nil {
		return nil, err
	}

	categorical := map[string]bool{}
	var mainCat, externalCat []*dataset.Column
	for _, name := range opts.Categorical {
		if categorical[name] {
			continue
		}
		categorical[name] = true
		mc, err := main.MustColumn(name)
		if err != nil {
			return nil, fmt.Errorf("main table: %w", err)
		}
		ec, err := external.MustColumn(name)
		if err != nil {
			return nil, fmt.Errorf("external table: %w", err)
		}
		mainValues, externalValues := fillUnknown(mc), fillUnknown(ec)
		enc := FitOrdinalEncoder(mainValues)
		d.Encoders[name] = enc
		mainCat = append(mainCat, &dataset.Column{Name: name, Kind: dataset.Numeric, Numbers: enc.Transform(mainValues)})
		externalCat = append(externalCat, &dataset.Column{Name: name, Kind: dataset.Numeric, Numbers: enc.Transform(externalValues)})
	}

	important := map[string]bool{}
	for _, name := range opts.Important {
		important[name] = true
	}
	var keep []string
	for _, name := range main.Names() {
		if name == opts.Label || categorical[name] {
			continue
		}
		mc, _ := main.Column(name)
		ec, err := external.MustColumn(name)
		if err != nil {
			return nil, fmt.Errorf("external table: %w", err)
		}
		if !important[name] &&
			mc.MissingPercentage() >= opts.MaxNaNPercentage &&
			ec.MissingPercentage() >= opts.MaxNaNPercentage {
			d.Dropped = append(d.Dropped, name)
			continue
		}
		keep = append(keep, name)
	}
	if d.MainX, err = main.Select(keep); err != nil {
		return nil, err
	}
	if d.ExternalX, err = external.Select(keep); err != nil {
		return nil, err
	}
	for i := range mainCat {
		if err := d.MainX.Add(mainCat[i]); err != nil {
			return nil, err
		}
		if err := d.ExternalX.Add(externalCat[i]); err != nil {
			return nil, err
		}
	}
	logger.Info("preprocessed",
		zap.Int("classes", len(d.Label.Classes)),
		zap.Int("features", len(d.MainX.Columns())),
		zap.Strings("dropped", d.Dropped))
	return d, nil
}

func texts(c *dataset.Column) []string {
	values := make([]string, c.Len())
	for i := range values {
		values[i] = c.String(i)
	}
	return values
}

func fillUnknown(c *dataset.Column) []string {
	values := texts(c)
	for i, v := range values {
		if v == "" {
			values[i] = Unknown
		}
	}
	return values
}

// MainTable returns the main features with the encoded target as the last column.
// It fails when a feature is itself named Target.
func (d *Data) MainTable() (*dataset.Table, error) {
	return join(d.MainX, d.MainY)
}

// ExternalTable returns the external features with the encoded target as the last column.
func (d *Data) ExternalTable() (*dataset.Table, error) {
	return join(d.ExternalX, d.ExternalY)
}

func join(x, y *dataset.Table) (*dataset.Table, error) {
	t := dataset.NewTable(x.Rows())
	for _, c := range x.Columns() {
		if err := t.Add(c); err != nil {
			return nil, err
		}
	}
	for _, c := range y.Columns() {
		if t.Has(c.Name) {
			return nil, fmt.Errorf("feature %q collides with the target column", c.Name)
		}
		if err := t.Add(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}
