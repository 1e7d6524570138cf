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

// ColumnOverview describes one column of a table.
type ColumnOverview struct {
	Name              string
	Kind              Kind
	MissingPercentage float64
}

// Overview describes the shape of a table and the share of missing values per column.
type Overview struct {
	Rows    int
	Columns []ColumnOverview
}

// Describe computes the overview of a table.
func Describe(t *Table) Overview {
	o := Overview{Rows: t.Rows()}
	for _, c := range t.Columns() {
		o.Columns = append(o.Columns, ColumnOverview{Name: c.Name, Kind: c.Kind, MissingPercentage: c.MissingPercentage()})
	}
	return o
}
