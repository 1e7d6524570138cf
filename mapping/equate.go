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

package mapping

import (
	"fmt"
	"math"
	"os"

	"icustrat/dataset"

	"gopkg.in/yaml.v3"
)

// Prefixes are the chart metric prefixes a column mapping entry is expanded with.
var Prefixes = []string{"last_", "mean_", "median_", "max_", "min_"}

// ColumnMap maps a main dataset column onto the external dataset columns that hold the same variable. Keys keeps
// the order of the mapping file.
type ColumnMap struct {
	Keys    []string
	Columns map[string][]string
}

// NewColumnMap creates an empty column map.
func NewColumnMap() *ColumnMap {
	return &ColumnMap{Columns: map[string][]string{}}
}

// Set adds or replaces an entry.
func (m *ColumnMap) Set(key string, columns []string) {
	if _, ok := m.Columns[key]; !ok {
		m.Keys = append(m.Keys, key)
	}
	m.Columns[key] = columns
}

// Has reports whether a main column is mapped.
func (m *ColumnMap) Has(key string) bool {
	_, ok := m.Columns[key]
	return ok
}

// Expand returns a column map that also contains, for every entry, one entry per metric prefix with the prefix
// applied to the key and to all its columns.
func (m *ColumnMap) Expand() *ColumnMap {
	expanded := NewColumnMap()
	for _, key := range m.Keys {
		columns := m.Columns[key]
		expanded.Set(key, columns)
		for _, prefix := range Prefixes {
			prefixed := make([]string, len(columns))
			for i, c := range columns {
				prefixed[i] = prefix + c
			}
			expanded.Set(prefix+key, prefixed)
		}
	}
	return expanded
}

// reverse maps every external column onto its main column. A column listed under several keys belongs to the last
// of them.
func (m *ColumnMap) reverse() map[string]string {
	rev := map[string]string{}
	for _, key := range m.Keys {
		for _, c := range m.Columns[key] {
			rev[c] = key
		}
	}
	return rev
}

// ParseColumnMap parses a yaml document mapping main columns onto lists of external columns. Entry order is kept.
func ParseColumnMap(data []byte) (*ColumnMap, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse column map: %w", err)
	}
	m := NewColumnMap()
	if len(doc.Content) == 0 {
		return m, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse column map: line %d: expected a mapping", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		var columns []string
		switch value.Kind {
		case yaml.SequenceNode:
			if err := value.Decode(&columns); err != nil {
				return nil, fmt.Errorf("parse column map: %q: %w", key.Value, err)
			}
		case yaml.ScalarNode:
			if value.Tag != "!!null" {
				columns = []string{value.Value}
			}
		default:
			return nil, fmt.Errorf("parse column map: line %d: %q must map to a list of columns", value.Line, key.Value)
		}
		m.Set(key.Value, columns)
	}
	return m, nil
}

// ReadColumnMap reads a column mapping file and expands it with the chart metric prefixes.
func ReadColumnMap(path string) (*ColumnMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read column map: %w", err)
	}
	m, err := ParseColumnMap(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m.Expand(), nil
}

// EquateColumns gives the external table the columns of the main table. Main columns that are not mapped are
// dropped. External columns are renamed to their main column and unmapped ones are dropped; several external
// columns that map onto the same main column are merged by their row-wise mean. Main columns without external
// counterpart are added as missing values. The external table ends up with the main table's columns in the same
// order, each with the kind of its main column.
func EquateColumns(main, external *dataset.Table, columnMap *ColumnMap) (*dataset.Table, *dataset.Table, error) {
	var keep []string
	for _, name := range main.Names() {
		if columnMap.Has(name) {
			keep = append(keep, name)
		}
	}
	newMain, err := main.Select(keep)
	if err != nil {
		return nil, nil, err
	}

	rev := columnMap.reverse()
	groups := map[string][]*dataset.Column{}
	for _, c := range external.Columns() {
		if key, ok := rev[c.Name]; ok {
			groups[key] = append(groups[key], c)
		}
	}

	newExternal := dataset.NewTable(external.Rows())
	for _, c := range newMain.Columns() {
		group := groups[c.Name]
		var col *dataset.Column
		switch len(group) {
		case 0:
			if err := newExternal.AddMissing(c.Name, c.Kind); err != nil {
				return nil, nil, err
			}
			continue
		case 1:
			col = group[0]
		default:
			col = mergeMean(group, external.Rows())
		}
		if err := newExternal.Add(convert(col, c.Name, c.Kind)); err != nil {
			return nil, nil, err
		}
	}
	return newMain, newExternal, nil
}

// mergeMean averages the numeric values of several columns row by row, ignoring missing values.
func mergeMean(columns []*dataset.Column, rows int) *dataset.Column {
	values := make([]float64, rows)
	for i := 0; i < rows; i++ {
		sum, ctr := 0.0, 0
		for _, c := range columns {
			v := c.Float(i)
			if math.IsNaN(v) {
				continue
			}
			sum += v
			ctr++
		}
		if ctr == 0 {
			values[i] = math.NaN()
		} else {
			values[i] = sum / float64(ctr)
		}
	}
	return &dataset.Column{Kind: dataset.Numeric, Numbers: values}
}

// convert copies a column under a new name and kind.
func convert(c *dataset.Column, name string, kind dataset.Kind) *dataset.Column {
	nc := &dataset.Column{Name: name, Kind: kind}
	n := c.Len()
	if kind == dataset.Numeric {
		nc.Numbers = make([]float64, n)
		for i := 0; i < n; i++ {
			nc.Numbers[i] = c.Float(i)
		}
	} else {
		nc.Strings = make([]string, n)
		for i := 0; i < n; i++ {
			nc.Strings[i] = c.String(i)
		}
	}
	return nc
}
