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

/*
Icustrat prepares ICU stays of MIMIC-IV and eICU for diagnosis stratification with external validation.

Usage:

	icustrat [command] [flags]

Example:

	icustrat fetch --config icustrat.yaml
	icustrat run --config icustrat.yaml --cutoff 6 --output results --split 0.2 --seed 7
	icustrat star confusion.csv star.png --balanced --log

The commands are:

fetch [source...]
	Mirrors the dataset sources of the configuration onto the local disk. Sources are https index trees, such as the
	PhysioNet file servers, or s3://bucket/prefix trees. Files that are complete and up to date are skipped, partial
	files are continued. PhysioNet credentials are read from the configuration or from PHYSIONET_USER and
	PHYSIONET_PASSWORD. The source "mappings" downloads the mapping files into the mappings directory: the ICD-9 to
	ICD-10 table of the MIMIC-IV-Data-Pipeline project and the HCUP DXCCSR archive, from which the CCSR csv file is
	extracted. Their URLs are listed under fetch.mappings in the configuration. Without arguments, all sources and
	the mapping files are fetched.
mimic
	Loads the MIMIC-IV 2.2 stays, their primary CCSR diagnosis and the chart features of the first hours of the stay,
	and writes the table to the configured sinks, together with a diagnosis summary.
eicu
	Loads the eICU 2.0 stays in the same way.
run
	Loads both datasets, equates the eICU columns to the MIMIC-IV ones, encodes the target and the categorical
	variables, drops the variables with too many missing values in both datasets, optionally splits MIMIC-IV in a
	train and a test part, and writes the tables to the configured sinks: csv files in the output directory, a
	postgres table, an s3 bucket and a kafka topic. Reports are written to the output directory.
star matrix.csv plot.png
	Draws a confusion star, or a confusion gear, of a confusion matrix. The csv file holds the class labels in its
	header and one line of counts per actual class. The image format follows the file extension (png, svg, pdf).

The global flags are:

--config file
	The YAML configuration file. A missing file means the default configuration.
--verbose
	Log at debug level.

The pipeline flags, accepted by mimic, eicu and run, override the configuration:

--cutoff hours
	Only chart events of the first hours of a stay are used for features.
--diagnoses codes
	A comma separated list of CCSR categories to keep. Stays with another diagnosis are dropped.
--remove-deaths
	Drop stays with a death during the stay instead of reporting the time to death.
--output dir
	The directory for csv files and reports.
--split fraction
	The fraction of MIMIC-IV stays set apart as a stratified test set (run only).
--seed nr
	The seed of the split. 0 draws a different split every run (run only).
*/
package main

import (
	"fmt"
	"os"
	"runtime"

	"icustrat/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	programVersion = "0.1"
	programName    = "icustrat"
)

func programMessage() string {
	return fmt.Sprint(programName, " version ", programVersion, " compiled with ", runtime.Version())
}

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           programName,
	Short:         "ICU diagnosis stratification data pipeline",
	Version:       programVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = cfg.Logging.NewLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.Info(programMessage(), zap.Strings("args", os.Args))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "icustrat.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	rootCmd.AddCommand(fetchCmd, mimicCmd, eicuCmd, runCmd, starCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
