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

package charts_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"icustrat/charts"
	"icustrat/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	events := []charts.Event{
		{StayID: 2, Variable: "220045", Offset: 30, Value: 80},
		{StayID: 1, Variable: "220045", Offset: 60, Value: 90},
		{StayID: 1, Variable: "220045", Offset: 10, Value: 100},
		{StayID: 1, Variable: "220045", Offset: 20, Value: 70},
		{StayID: 1, Variable: "220045", Offset: 5, Value: 60},
		{StayID: 1, Variable: "220210", Offset: 5, Value: 18},
		{StayID: 1, Variable: "220210", Offset: 5, Value: 20},
		{StayID: 1, Variable: "220210", Offset: 1, Value: math.NaN()},
	}
	agg := charts.Aggregate(events)
	require.Len(t, agg.Stays, 2)

	s1 := agg.Stays[1]
	assert.Equal(t, 90.0, s1["last_220045"])
	assert.Equal(t, 100.0, s1["max_220045"])
	assert.Equal(t, 60.0, s1["min_220045"])
	assert.Equal(t, 80.0, s1["mean_220045"])
	assert.Equal(t, 80.0, s1["median_220045"])
	// equal offsets keep input order, so the last event wins
	assert.Equal(t, 20.0, s1["last_220210"])
	assert.Equal(t, 19.0, s1["median_220210"])

	s2 := agg.Stays[2]
	assert.Equal(t, 80.0, s2["last_220045"])
	_, ok := s2["last_220210"]
	assert.False(t, ok)

	assert.Equal(t, []string{
		"last_220045", "last_220210",
		"max_220045", "max_220210",
		"min_220045", "min_220210",
		"mean_220045", "mean_220210",
		"median_220045", "median_220210",
	}, agg.Columns)
}

func TestAggregateNumericVariableOrder(t *testing.T) {
	agg := charts.Aggregate([]charts.Event{
		{StayID: 1, Variable: "1000", Value: 1},
		{StayID: 1, Variable: "999", Value: 1},
	})
	assert.Equal(t, "last_999", agg.Columns[0])
	assert.Equal(t, "last_1000", agg.Columns[1])
}

func TestAggregateEmpty(t *testing.T) {
	agg := charts.Aggregate(nil)
	assert.Empty(t, agg.Stays)
	assert.Empty(t, agg.Columns)
}

func TestRenameItem(t *testing.T) {
	labels := map[string]string{"220045": "Heart Rate"}
	assert.Equal(t, "last_Heart Rate", charts.RenameItem("last_220045", labels))
	assert.Equal(t, "non_itemid_col", charts.RenameItem("non_itemid_col", labels))
	assert.Equal(t, "stayid", charts.RenameItem("stayid", labels))
	assert.Equal(t, "mean_non_220045", charts.RenameItem("mean_non_220045", map[string]string{"non": "x"}))
}

func TestRenameItems(t *testing.T) {
	tab := dataset.NewTable(1)
	require.NoError(t, tab.AddNumeric("last_220045", []float64{1}))
	require.NoError(t, tab.AddNumeric("last_220046", []float64{2}))
	require.NoError(t, tab.AddNumeric("stay_id", []float64{3}))
	labels := map[string]string{"220045": "Heart Rate", "220046": "Heart Rate"}
	require.NoError(t, charts.RenameItems(tab, labels))
	assert.Equal(t, []string{"last_Heart Rate", "last_220046", "stay_id"}, tab.Names())
}

func TestReadItemLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d_items.csv")
	content := "itemid,label,abbreviation\n220045,Heart Rate,HR\n220210,Respiratory Rate,RR\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	labels, err := charts.ReadItemLabels(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"220045": "Heart Rate", "220210": "Respiratory Rate"}, labels)
}
