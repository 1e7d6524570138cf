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

// Package report writes the human-readable outputs of a pipeline run: tab files with diagnosis summaries and
// dataset overviews, and confusion star and diagnosis plots.
package report

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"icustrat/dataset"
	"icustrat/stay"
	"icustrat/utils"
)

// writeFile creates a file and hands a buffered writer for it to write.
func writeFile(path string, write func(w io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	if err := write(w); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

// WriteDiagnosisSummary prints one line per diagnosis: code tab description tab count.
func WriteDiagnosisSummary(w io.Writer, summary []stay.DiagnosisSummary) error {
	for _, d := range summary {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d\n", d.Code, d.Description, d.Count); err != nil {
			return err
		}
	}
	return nil
}

// SaveDiagnosisSummary writes the diagnosis summary to a tab file.
func SaveDiagnosisSummary(path string, summary []stay.DiagnosisSummary) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteDiagnosisSummary(w, summary)
	})
}

// WriteOverview prints the number of rows, followed by one line per column: name tab kind tab missing percentage.
func WriteOverview(w io.Writer, o dataset.Overview) error {
	if _, err := fmt.Fprintf(w, "rows\t%d\n", o.Rows); err != nil {
		return err
	}
	for _, c := range o.Columns {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Kind, strconv.FormatFloat(c.MissingPercentage, 'f', 2, 64)); err != nil {
			return err
		}
	}
	return nil
}

// SaveOverview writes the overview of a table to a tab file.
func SaveOverview(path string, t *dataset.Table) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteOverview(w, dataset.Describe(t))
	})
}

// ReadConfusionMatrix reads a csv confusion matrix. The header holds the class labels, every following line the
// counts of one actual class per predicted class.
func ReadConfusionMatrix(path string) ([]string, [][]float64, error) {
	r, err := utils.OpenCSV(path)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()
	classes := append([]string(nil), r.Header...)
	var cm [][]float64
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil || math.IsNaN(v) || v < 0 {
				return nil, nil, fmt.Errorf("%s: line %d: invalid count %q", path, len(cm)+2, field)
			}
			row[j] = v
		}
		cm = append(cm, row)
	}
	if err := checkMatrix(cm); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(classes) != len(cm) {
		return nil, nil, fmt.Errorf("%s: %w: %d labels for %d classes", path, ErrMatrixShape, len(classes), len(cm))
	}
	return classes, cm, nil
}
