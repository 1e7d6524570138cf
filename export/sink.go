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

// Package export writes processed tables to files, databases, object stores and message brokers.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"icustrat/dataset"
)

// Sink receives named tables.
type Sink interface {
	Write(ctx context.Context, name string, t *dataset.Table) error
}

// Multi writes every table to all of its sinks, in order, and stops at the first error.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, name string, t *dataset.Table) error {
	for _, s := range m {
		if err := s.Write(ctx, name, t); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes a table as csv with a header line. Missing values are empty fields.
func WriteCSV(w io.Writer, t *dataset.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Names()); err != nil {
		return err
	}
	for i := 0; i < t.Rows(); i++ {
		if err := writer.Write(t.Record(i)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// rowJSON encodes row i of a table as a JSON object. Missing values and infinities are null.
func rowJSON(t *dataset.Table, i int) ([]byte, error) {
	row := t.Row(i)
	for name, v := range row {
		if f, ok := v.(float64); ok && math.IsInf(f, 0) {
			row[name] = nil
		}
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encode row %d: %w", i, err)
	}
	return data, nil
}
