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

package utils

import (
	"math"
	"sort"
)

// Mean computes the arithmetic mean of the values that are not NaN. It returns NaN when no such value exists.
func Mean(values []float64) float64 {
	sum := 0.0
	ctr := 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		ctr++
	}
	if ctr == 0 {
		return math.NaN()
	}
	return sum / float64(ctr)
}

// StdDev computes the population standard deviation of the values that are not NaN.
func StdDev(values []float64) float64 {
	mean := Mean(values)
	if math.IsNaN(mean) {
		return math.NaN()
	}
	sum := 0.0
	ctr := 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += (v - mean) * (v - mean)
		ctr++
	}
	return math.Sqrt(sum / float64(ctr))
}

// Median computes the median of the values that are not NaN. For an even number of values it is the mean of the two
// middle values. The input slice is not modified.
func Median(values []float64) float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// MinMax returns the smallest and largest values that are not NaN.
func MinMax(values []float64) (float64, float64) {
	min, max := math.NaN(), math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(min) || v < min {
			min = v
		}
		if math.IsNaN(max) || v > max {
			max = v
		}
	}
	return min, max
}
