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

package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrMissingColumn is returned when a table lacks a column that an operation needs.
var ErrMissingColumn = errors.New("missing column")

// Kind distinguishes numeric from categorical columns.
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "categorical"
}

// Column is a named column of a table. Numeric columns store NaN for missing values, categorical columns store
// the empty string.
type Column struct {
	Name    string
	Kind    Kind
	Numbers []float64
	Strings []string
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Numbers)
	}
	return len(c.Strings)
}

// IsMissing reports whether the value at row i is missing.
func (c *Column) IsMissing(i int) bool {
	if c.Kind == Numeric {
		return math.IsNaN(c.Numbers[i])
	}
	return c.Strings[i] == ""
}

// MissingPercentage returns the percentage of missing values, in [0, 100]. An empty column has 0% missing values.
func (c *Column) MissingPercentage() float64 {
	n := c.Len()
	if n == 0 {
		return 0
	}
	ctr := 0
	for i := 0; i < n; i++ {
		if c.IsMissing(i) {
			ctr++
		}
	}
	return float64(ctr) / float64(n) * 100
}

// String returns the value at row i as text. Missing values are the empty string.
func (c *Column) String(i int) string {
	if c.Kind == Categorical {
		return c.Strings[i]
	}
	v := c.Numbers[i]
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Value returns the value at row i as a float64 or string, or nil when missing.
func (c *Column) Value(i int) interface{} {
	if c.IsMissing(i) {
		return nil
	}
	if c.Kind == Numeric {
		return c.Numbers[i]
	}
	return c.Strings[i]
}

// Float returns the value at row i as a number. Categorical values that do not parse as numbers are NaN.
func (c *Column) Float(i int) float64 {
	if c.Kind == Numeric {
		return c.Numbers[i]
	}
	v, err := strconv.ParseFloat(c.Strings[i], 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func (c *Column) take(rows []int) *Column {
	nc := &Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Numeric {
		nc.Numbers = make([]float64, len(rows))
		for i, r := range rows {
			nc.Numbers[i] = c.Numbers[r]
		}
	} else {
		nc.Strings = make([]string, len(rows))
		for i, r := range rows {
			nc.Strings[i] = c.Strings[r]
		}
	}
	return nc
}

// Table is an ordered set of named columns of equal length.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// NewTable creates an empty table with the given number of rows.
func NewTable(rows int) *Table {
	return &Table{index: map[string]int{}, rows: rows}
}

// Rows returns the number of rows.
func (t *Table) Rows() int {
	return t.rows
}

// Columns returns the columns in order.
func (t *Table) Columns() []*Column {
	return t.columns
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the table has a column with the given name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// MustColumn returns the column with the given name, or an error wrapping ErrMissingColumn.
func (t *Table) MustColumn(name string) (*Column, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
	}
	return c, nil
}

// Add appends a column, or replaces the column with the same name in place.
func (t *Table) Add(c *Column) error {
	if c.Len() != t.rows {
		return fmt.Errorf("column %q has %d values, table has %d rows", c.Name, c.Len(), t.rows)
	}
	if i, ok := t.index[c.Name]; ok {
		t.columns[i] = c
		return nil
	}
	t.index[c.Name] = len(t.columns)
	t.columns = append(t.columns, c)
	return nil
}

// AddNumeric appends a numeric column.
func (t *Table) AddNumeric(name string, values []float64) error {
	return t.Add(&Column{Name: name, Kind: Numeric, Numbers: values})
}

// AddCategorical appends a categorical column.
func (t *Table) AddCategorical(name string, values []string) error {
	return t.Add(&Column{Name: name, Kind: Categorical, Strings: values})
}

// AddMissing appends a column of the given kind with every value missing.
func (t *Table) AddMissing(name string, kind Kind) error {
	if kind == Numeric {
		return t.AddNumeric(name, NaNs(t.rows))
	}
	return t.AddCategorical(name, make([]string, t.rows))
}

// Drop removes the named columns. Unknown names are ignored.
func (t *Table) Drop(names ...string) {
	drop := map[string]bool{}
	for _, n := range names {
		drop[n] = true
	}
	columns := t.columns[:0]
	for _, c := range t.columns {
		if !drop[c.Name] {
			columns = append(columns, c)
		}
	}
	t.columns = columns
	t.reindex()
}

// Rename changes the name of a column. The column is copied first, so tables that share it through Select keep
// the old name.
func (t *Table) Rename(old, new string) error {
	i, ok := t.index[old]
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingColumn, old)
	}
	if old == new {
		return nil
	}
	if _, ok := t.index[new]; ok {
		return fmt.Errorf("cannot rename %q: column %q already exists", old, new)
	}
	c := *t.columns[i]
	c.Name = new
	t.columns[i] = &c
	t.reindex()
	return nil
}

// Select returns a new table with the named columns in the given order. Columns are shared with t.
func (t *Table) Select(names []string) (*Table, error) {
	nt := NewTable(t.rows)
	for _, n := range names {
		c, err := t.MustColumn(n)
		if err != nil {
			return nil, err
		}
		if err := nt.Add(c); err != nil {
			return nil, err
		}
	}
	return nt, nil
}

// Take returns a new table with the given rows, in the given order.
func (t *Table) Take(rows []int) *Table {
	nt := NewTable(len(rows))
	for _, c := range t.columns {
		nt.index[c.Name] = len(nt.columns)
		nt.columns = append(nt.columns, c.take(rows))
	}
	return nt
}

// Row returns row i as a map from column name to value, with nil for missing values.
func (t *Table) Row(i int) map[string]interface{} {
	row := make(map[string]interface{}, len(t.columns))
	for _, c := range t.columns {
		row[c.Name] = c.Value(i)
	}
	return row
}

// Record returns row i as text fields in column order.
func (t *Table) Record(i int) []string {
	rec := make([]string, len(t.columns))
	for j, c := range t.columns {
		rec[j] = c.String(i)
	}
	return rec
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c.Name] = i
	}
}

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	return values
}
