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

package main

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"icustrat/app"
	"icustrat/config"
	"icustrat/export"
	"icustrat/fetch"
	"icustrat/report"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Pipeline flags
	cutoff       float64
	diagnoses    []string
	removeDeaths bool
	output       string
	split        float64
	seed         int64

	// Star flags
	gear     bool
	balanced bool
	logScale bool
	title    string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [source...]",
	Short: "Mirror the MIMIC-IV and eICU sources and the mapping files onto the local disk",
	RunE:  runFetch,
}

var mimicCmd = &cobra.Command{
	Use:   "mimic",
	Short: "Load the MIMIC-IV stays and export them",
	Args:  cobra.NoArgs,
	RunE:  loadCommand(app.MimicName),
}

var eicuCmd = &cobra.Command{
	Use:   "eicu",
	Short: "Load the eICU stays and export them",
	Args:  cobra.NoArgs,
	RunE:  loadCommand(app.EicuName),
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load, equate, preprocess and export both datasets",
	Args:  cobra.NoArgs,
	RunE:  runPipeline,
}

var starCmd = &cobra.Command{
	Use:   "star matrix.csv plot.png",
	Short: "Draw a confusion star or gear of a confusion matrix",
	Args:  cobra.ExactArgs(2),
	RunE:  runStar,
}

func init() {
	for _, cmd := range []*cobra.Command{mimicCmd, eicuCmd, runCmd} {
		flags := cmd.Flags()
		flags.Float64Var(&cutoff, "cutoff", 3, "hours after ICU admission that chart events are used for")
		flags.StringSliceVar(&diagnoses, "diagnoses", nil, "CCSR categories to keep")
		flags.BoolVar(&removeDeaths, "remove-deaths", false, "drop stays with a death during the stay")
		flags.StringVar(&output, "output", "", "directory for csv files and reports")
	}
	runCmd.Flags().Float64Var(&split, "split", 0, "fraction of MIMIC-IV stays used as test set")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "seed of the train/test split")

	starCmd.Flags().BoolVar(&gear, "gear", false, "draw a confusion gear instead of a star")
	starCmd.Flags().BoolVar(&balanced, "balanced", false, "give every class the same angle")
	starCmd.Flags().BoolVar(&logScale, "log", false, "use a logarithmic radial scale")
	starCmd.Flags().StringVar(&title, "title", "", "plot title")
}

// applyPipelineFlags copies the flags that were set on the command line into the configuration and validates it.
func applyPipelineFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("cutoff") {
		c.Pipeline.CutoffHours = cutoff
	}
	if flags.Changed("diagnoses") {
		c.Pipeline.DiagnosisCodes = diagnoses
	}
	if flags.Changed("remove-deaths") {
		c.Pipeline.RemoveDeathsInStay = removeDeaths
	}
	if flags.Changed("output") {
		c.Export.OutputDir = output
	}
	if flags.Changed("split") {
		c.Preprocess.TestFraction = split
	}
	if flags.Changed("seed") {
		c.Preprocess.Seed = seed
	}
	return c.Validate()
}

func runFetch(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	known := map[string]bool{mappingsSource: true}
	for _, src := range cfg.Fetch.Sources {
		known[src.Name] = true
	}
	selected := map[string]bool{}
	for _, name := range args {
		if !known[name] {
			return fmt.Errorf("unknown source %q", name)
		}
		selected[name] = true
	}
	opts := fetch.Options{
		User:        cfg.Fetch.User,
		Password:    cfg.Fetch.Password,
		Concurrency: cfg.Fetch.Concurrency,
		Retries:     cfg.Fetch.Retries,
		Backoff:     cfg.GetBackoff(),
		Timeout:     cfg.GetFetchTimeout(),
		Logger:      logger,
	}
	for _, src := range cfg.Fetch.Sources {
		if len(args) > 0 && !selected[src.Name] {
			continue
		}
		if opts.User == "" && !strings.HasPrefix(src.URL, "s3://") {
			logger.Warn("no PhysioNet user configured, credentialed files will fail", zap.String("source", src.Name))
		}
		logger.Info("fetching", zap.String("source", src.Name), zap.String("url", src.URL), zap.String("dir", src.Dir))
		if _, err := fetchSource(cmd.Context(), src, opts); err != nil {
			return fmt.Errorf("fetch %s: %w", src.Name, err)
		}
	}
	if len(args) == 0 || selected[mappingsSource] {
		// The mapping files are public, the PhysioNet credentials stay with PhysioNet.
		opts.User, opts.Password = "", ""
		if err := fetchMappings(cmd.Context(), cfg.Fetch.Mappings, cfg.Data.MappingsDir, opts); err != nil {
			return fmt.Errorf("fetch %s: %w", mappingsSource, err)
		}
	}
	return nil
}

// mappingsSource is the fetch argument that selects the mapping files.
const mappingsSource = "mappings"

// fetchMappings downloads the mapping files into dir. Zip archives are kept next to the member extracted from them.
func fetchMappings(ctx context.Context, sources []config.MappingSource, dir string, opts fetch.Options) error {
	m, err := fetch.NewMirror(opts)
	if err != nil {
		return err
	}
	for _, src := range sources {
		local := filepath.Join(dir, src.File)
		if src.Member == "" {
			if _, err := m.FetchFile(ctx, src.URL, local); err != nil {
				return err
			}
			continue
		}
		u, err := url.Parse(src.URL)
		if err != nil {
			return fmt.Errorf("parse %s: %w", src.URL, err)
		}
		archive := filepath.Join(dir, path.Base(u.Path))
		if _, err := m.FetchFile(ctx, src.URL, archive); err != nil {
			return err
		}
		if err := fetch.Extract(archive, src.Member, local); err != nil {
			return err
		}
		logger.Info("extracted", zap.String("archive", archive), zap.String("file", local))
	}
	return nil
}

func fetchSource(ctx context.Context, src config.Source, opts fetch.Options) (*fetch.Stats, error) {
	if strings.HasPrefix(src.URL, "s3://") {
		client, err := fetch.NewS3Client(ctx)
		if err != nil {
			return nil, err
		}
		return fetch.NewS3Mirror(client, opts).Fetch(ctx, src.URL, src.Dir)
	}
	m, err := fetch.NewMirror(opts)
	if err != nil {
		return nil, err
	}
	return m.Fetch(ctx, src.URL, src.Dir)
}

func loadCommand(name string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := applyPipelineFlags(cmd, cfg); err != nil {
			return err
		}
		ctx := cmd.Context()
		maps, err := app.LoadMappings(cfg)
		if err != nil {
			return err
		}
		opts := app.OptionsFromConfig(cfg, logger)
		var res *app.Result
		if name == app.MimicName {
			res, err = app.LoadMimic(ctx, cfg.Data.MimicRoot, maps, opts)
		} else {
			res, err = app.LoadEicu(ctx, cfg.Data.EicuRoot, maps, opts)
		}
		if err != nil {
			return err
		}
		sinks, closeSinks, err := export.FromConfig(ctx, cfg.Export, logger)
		if err != nil {
			return err
		}
		defer closeSinks()
		return app.WriteResult(ctx, sinks, name, res, cfg.Export.OutputDir)
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if err := applyPipelineFlags(cmd, cfg); err != nil {
		return err
	}
	ctx := cmd.Context()
	sinks, closeSinks, err := export.FromConfig(ctx, cfg.Export, logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	_, err = app.Run(ctx, cfg, sinks, logger)
	return err
}

func runStar(cmd *cobra.Command, args []string) error {
	classes, cm, err := report.ReadConfusionMatrix(args[0])
	if err != nil {
		return err
	}
	s, err := report.NewStar(cm, classes, report.StarOptions{Gear: gear, Balanced: balanced, Log: logScale})
	if err != nil {
		return err
	}
	if err := report.SaveStar(s, title, args[1]); err != nil {
		return err
	}
	logger.Info("plot written", zap.String("file", args[1]), zap.Int("classes", len(classes)))
	return nil
}
