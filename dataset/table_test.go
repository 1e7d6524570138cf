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

package dataset_test

import (
	"errors"
	"math"
	"testing"

	"icustrat/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *dataset.Table {
	tab := dataset.NewTable(4)
	require.NoError(t, tab.AddNumeric("age", []float64{20, math.NaN(), 40, 50}))
	require.NoError(t, tab.AddCategorical("gender", []string{"M", "F", "", "F"}))
	require.NoError(t, tab.AddNumeric("weight", dataset.NaNs(4)))
	return tab
}

func TestTableBasics(t *testing.T) {
	tab := sample(t)
	assert.Equal(t, 4, tab.Rows())
	assert.Equal(t, []string{"age", "gender", "weight"}, tab.Names())
	assert.Error(t, tab.AddNumeric("short", []float64{1}))

	age, ok := tab.Column("age")
	require.True(t, ok)
	assert.Equal(t, 25.0, age.MissingPercentage())
	assert.Equal(t, "", age.String(1))
	assert.Equal(t, "20", age.String(0))
	assert.Nil(t, age.Value(1))

	gender, _ := tab.Column("gender")
	assert.Equal(t, 25.0, gender.MissingPercentage())
	assert.True(t, math.IsNaN(gender.Float(0)))

	_, err := tab.MustColumn("nope")
	assert.True(t, errors.Is(err, dataset.ErrMissingColumn))
}

func TestTableDropRenameSelect(t *testing.T) {
	tab := sample(t)
	tab.Drop("gender", "unknown")
	assert.Equal(t, []string{"age", "weight"}, tab.Names())

	require.NoError(t, tab.Rename("age", "Age"))
	assert.True(t, tab.Has("Age"))
	assert.False(t, tab.Has("age"))
	assert.Error(t, tab.Rename("Age", "weight"))

	sel, err := tab.Select([]string{"weight", "Age"})
	require.NoError(t, err)
	assert.Equal(t, []string{"weight", "Age"}, sel.Names())
	_, err = tab.Select([]string{"gender"})
	assert.ErrorIs(t, err, dataset.ErrMissingColumn)
}

func TestRenameKeepsSharedColumns(t *testing.T) {
	tab := sample(t)
	sel, err := tab.Select([]string{"age", "gender"})
	require.NoError(t, err)
	require.NoError(t, sel.Rename("age", "icu_age"))
	assert.Equal(t, []string{"icu_age", "gender"}, sel.Names())

	assert.Equal(t, []string{"age", "gender", "weight"}, tab.Names())
	age, ok := tab.Column("age")
	require.True(t, ok)
	assert.Equal(t, "age", age.Name)
	_, err = tab.Select([]string{"age"})
	assert.NoError(t, err)
	assert.False(t, tab.Has("icu_age"))
}

func TestTableTakeAndRows(t *testing.T) {
	tab := sample(t)
	sub := tab.Take([]int{3, 0})
	assert.Equal(t, 2, sub.Rows())
	assert.Equal(t, []string{"50", "F", ""}, sub.Record(0))
	row := sub.Row(1)
	assert.Equal(t, 20.0, row["age"])
	assert.Equal(t, "M", row["gender"])
	assert.Nil(t, row["weight"])
}

func TestDescribe(t *testing.T) {
	o := dataset.Describe(sample(t))
	assert.Equal(t, 4, o.Rows)
	require.Len(t, o.Columns, 3)
	assert.Equal(t, dataset.ColumnOverview{Name: "weight", Kind: dataset.Numeric, MissingPercentage: 100}, o.Columns[2])
}
