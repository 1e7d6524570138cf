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
	"io"
	"os"
	"path/filepath"
	"sort"

	"icustrat/config"
	"icustrat/dataset"
	"icustrat/export"
	"icustrat/mapping"
	"icustrat/preprocess"
	"icustrat/report"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Dataset names used for sinks and report files.
const (
	MimicName = "mimic"
	EicuName  = "eicu"
)

// topDiagnoses is the number of diagnoses shown in the diagnosis bar charts.
const topDiagnoses = 40

// RunResult holds everything a full pipeline run produced.
type RunResult struct {
	Mimic, Eicu *Result
	// Main and External are the tables after column equating.
	Main, External *dataset.Table
	Data           *preprocess.Data
	// Tables are the tables handed to the sinks, by name, and Names their order.
	Tables map[string]*dataset.Table
	Names  []string
}

// WriteResult hands a loaded dataset to the sink and, when reportDir is set, writes its diagnosis summary as a tab
// file and a bar chart.
func WriteResult(ctx context.Context, sink export.Sink, name string, res *Result, reportDir string) error {
	if err := sink.Write(ctx, name, res.Table); err != nil {
		return err
	}
	if reportDir == "" {
		return nil
	}
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return err
	}
	return saveSummary(reportDir, name, res)
}

func saveSummary(dir, name string, res *Result) error {
	if err := report.SaveDiagnosisSummary(filepath.Join(dir, name+"_diagnoses.tab"), res.Summary); err != nil {
		return err
	}
	if len(res.Summary) == 0 {
		return nil
	}
	return report.SaveDiagnosisPlot(res.Summary, name, filepath.Join(dir, name+"_diagnoses.png"), topDiagnoses)
}

// Run loads both datasets, equates the external columns to the main ones, preprocesses them, optionally splits
// the main table into train and test parts, and writes all tables to the sink. Reports go to the output
// directory of the export configuration, if any.
func Run(ctx context.Context, cfg *config.Config, sink export.Sink, logger *zap.Logger) (*RunResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	maps, err := LoadMappings(cfg)
	if err != nil {
		return nil, err
	}
	columnMap, err := mapping.ReadColumnMap(cfg.MappingPath(cfg.Data.ColumnMap))
	if err != nil {
		return nil, fmt.Errorf("column map: %w", err)
	}
	opts := OptionsFromConfig(cfg, logger)
	reportDir := cfg.Export.OutputDir

	//1. Load the datasets
	r := &RunResult{Tables: map[string]*dataset.Table{}}
	if r.Mimic, err = LoadMimic(ctx, cfg.Data.MimicRoot, maps, opts); err != nil {
		return nil, err
	}
	if r.Eicu, err = LoadEicu(ctx, cfg.Data.EicuRoot, maps, opts); err != nil {
		return nil, err
	}

	//2. Equate columns
	if r.Main, r.External, err = mapping.EquateColumns(r.Mimic.Table, r.Eicu.Table, columnMap); err != nil {
		return nil, err
	}
	logger.Info("equated columns", zap.Int("columns", len(r.Main.Columns())))

	//3. Preprocess
	p := cfg.Preprocess
	r.Data, err = preprocess.New(r.Main, r.External, preprocess.Options{
		Label:            p.Label,
		Categorical:      p.Categorical,
		Important:        p.Important,
		MaxNaNPercentage: p.MaxNaNPercentage,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	//4. Split
	add := func(name string, t *dataset.Table) {
		r.Tables[name] = t
		r.Names = append(r.Names, name)
	}
	mainTable, err := r.Data.MainTable()
	if err != nil {
		return nil, err
	}
	externalTable, err := r.Data.ExternalTable()
	if err != nil {
		return nil, err
	}
	if p.TestFraction > 0 {
		train, test, err := preprocess.StratifiedSplit(mainTable, preprocess.Target, p.TestFraction, p.Seed)
		if err != nil {
			return nil, err
		}
		logger.Info("split", zap.Int("train", train.Rows()), zap.Int("test", test.Rows()))
		add(MimicName+"_train", train)
		add(MimicName+"_test", test)
	} else {
		add(MimicName, mainTable)
	}
	add(EicuName, externalTable)

	//5. Export
	for _, name := range r.Names {
		if err := sink.Write(ctx, name, r.Tables[name]); err != nil {
			return nil, err
		}
		logger.Info("exported", zap.String("table", name), zap.Int("rows", r.Tables[name].Rows()))
	}

	//6. Reports
	if reportDir != "" {
		if err := writeReports(reportDir, r); err != nil {
			return nil, err
		}
		logger.Info("reports written", zap.String("dir", reportDir))
	}
	return r, nil
}

func writeReports(dir string, r *RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, d := range []struct {
		name  string
		res   *Result
		table *dataset.Table
	}{{MimicName, r.Mimic, r.Main}, {EicuName, r.Eicu, r.External}} {
		if err := saveSummary(dir, d.name, d.res); err != nil {
			return err
		}
		if err := report.SaveOverview(filepath.Join(dir, d.name+"_overview.tab"), d.table); err != nil {
			return err
		}
	}
	return saveClassMap(filepath.Join(dir, "classes.tab"), r.Data.ClassMap)
}

// saveClassMap writes one line per class: encoded value tab class.
func saveClassMap(path string, classes map[string]int) error {
	names := lo.Keys(classes)
	sort.Slice(names, func(i, j int) bool { return classes[names[i]] < classes[names[j]] })
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeClassMap(file, names, classes); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

func writeClassMap(w io.Writer, names []string, classes map[string]int) error {
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%d\t%s\n", classes[name], name); err != nil {
			return err
		}
	}
	return nil
}
