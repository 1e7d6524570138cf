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

package charts

import (
	"math"
	"sort"
	"strconv"

	"icustrat/utils"

	"github.com/exascience/pargo/parallel"
	"github.com/samber/lo"
)

// Metrics lists the aggregates computed per stay and variable, in output column order.
var Metrics = []string{"last", "max", "min", "mean", "median"}

// Event is one charted measurement of a variable during an ICU stay.
type Event struct {
	StayID   int64
	Variable string
	Offset   float64 //time since ICU admission
	Value    float64
}

// Aggregation holds the chart features per stay. Columns lists every feature name, grouped by metric and then by
// variable.
type Aggregation struct {
	Stays   map[int64]map[string]float64
	Columns []string
}

// FeatureName builds the column name of a metric for a variable.
func FeatureName(metric, variable string) string {
	return metric + "_" + variable
}

// sortEvents orders events by stay, variable and offset. Events that compare equal keep their input order.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		ei, ej := events[i], events[j]
		if ei.StayID != ej.StayID {
			return ei.StayID < ej.StayID
		}
		if ei.Variable != ej.Variable {
			return ei.Variable < ej.Variable
		}
		return ei.Offset < ej.Offset
	})
}

// Aggregate computes last, max, min, mean and median per stay and variable. The last value is the value with the
// greatest offset; for equal offsets the event that came last in the input wins. Events with a NaN value are
// ignored. The events slice is sorted in place.
func Aggregate(events []Event) *Aggregation {
	filtered := events[:0]
	for _, e := range events {
		if !math.IsNaN(e.Value) {
			filtered = append(filtered, e)
		}
	}
	events = filtered
	sortEvents(events)

	// boundaries of the events of each stay
	var bounds []int
	for i := range events {
		if i == 0 || events[i].StayID != events[i-1].StayID {
			bounds = append(bounds, i)
		}
	}
	bounds = append(bounds, len(events))
	nofStays := len(bounds) - 1

	features := make([]map[string]float64, nofStays)
	variables := make([]map[string]bool, nofStays)
	parallel.Range(0, nofStays, 0, func(low, high int) {
		for s := low; s < high; s++ {
			features[s], variables[s] = aggregateStay(events[bounds[s]:bounds[s+1]])
		}
	})

	agg := &Aggregation{Stays: make(map[int64]map[string]float64, nofStays)}
	allVariables := map[string]bool{}
	for s := 0; s < nofStays; s++ {
		agg.Stays[events[bounds[s]].StayID] = features[s]
		for v := range variables[s] {
			allVariables[v] = true
		}
	}
	agg.Columns = columnNames(allVariables)
	return agg
}

// aggregateStay computes the features of one stay from its sorted events.
func aggregateStay(events []Event) (map[string]float64, map[string]bool) {
	features := map[string]float64{}
	variables := map[string]bool{}
	start := 0
	for i := 1; i <= len(events); i++ {
		if i < len(events) && events[i].Variable == events[start].Variable {
			continue
		}
		group := events[start:i]
		variable := group[0].Variable
		values := make([]float64, len(group))
		for j, e := range group {
			values[j] = e.Value
		}
		lo, hi := utils.MinMax(values)
		features[FeatureName("last", variable)] = values[len(values)-1]
		features[FeatureName("max", variable)] = hi
		features[FeatureName("min", variable)] = lo
		features[FeatureName("mean", variable)] = utils.Mean(values)
		features[FeatureName("median", variable)] = utils.Median(values)
		variables[variable] = true
		start = i
	}
	return features, variables
}

// columnNames orders features by metric, then by variable. Variables that are all integers, such as MIMIC item ids,
// are ordered numerically.
func columnNames(variables map[string]bool) []string {
	vars := lo.Keys(variables)
	sort.Slice(vars, func(i, j int) bool {
		return variableLess(vars[i], vars[j])
	})
	columns := make([]string, 0, len(vars)*len(Metrics))
	for _, m := range Metrics {
		for _, v := range vars {
			columns = append(columns, FeatureName(m, v))
		}
	}
	return columns
}

func variableLess(a, b string) bool {
	ia, errA := strconv.ParseInt(a, 10, 64)
	ib, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return ia < ib
	}
	return a < b
}
