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

package preprocess

import (
	"math"
	"math/rand"
	"sort"

	"icustrat/dataset"

	"github.com/valyala/fastrand"
)

// StratifiedSplit splits a table into a train and a test table. Within every class of the target column, a
// fraction of the rows, rounded to the nearest integer, is drawn at random for the test table. With a seed of 0
// the draw is not reproducible. Both tables keep the original row order.
func StratifiedSplit(t *dataset.Table, target string, fraction float64, seed int64) (train, test *dataset.Table, err error) {
	c, err := t.MustColumn(target)
	if err != nil {
		return nil, nil, err
	}
	intn := func(n int) int { return int(fastrand.Uint32n(uint32(n))) }
	if seed != 0 {
		intn = rand.New(rand.NewSource(seed)).Intn
	}
	var classes []string
	rows := map[string][]int{}
	for i := 0; i < t.Rows(); i++ {
		class := c.String(i)
		if _, ok := rows[class]; !ok {
			classes = append(classes, class)
		}
		rows[class] = append(rows[class], i)
	}
	var trainRows, testRows []int
	for _, class := range classes {
		members := rows[class]
		for i := len(members) - 1; i > 0; i-- {
			j := intn(i + 1)
			members[i], members[j] = members[j], members[i]
		}
		n := int(math.Round(fraction * float64(len(members))))
		testRows = append(testRows, members[:n]...)
		trainRows = append(trainRows, members[n:]...)
	}
	sort.Ints(trainRows)
	sort.Ints(testRows)
	return t.Take(trainRows), t.Take(testRows), nil
}
