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

package stay

import (
	"sort"

	"icustrat/utils"

	"go.uber.org/zap"
)

// Summary collects descriptive statistics for a set of stays.
type Summary struct {
	Stays     int
	Males     int
	Females   int
	MeanAge   float64
	StdDevAge float64
	MedianAge float64
	Deaths    int
}

// Summarize computes the gender counts, the mean, standard deviation and median age, and the number of stays with a
// recorded death.
func Summarize(m *StayMap) Summary {
	ages := make([]float64, 0, m.Len())
	sum := Summary{Stays: m.Len(), Males: m.MaleCtr, Females: m.FemaleCtr}
	for _, id := range m.Order {
		s := m.Stays[id]
		ages = append(ages, float64(s.Age))
		if s.DeathTime != nil {
			sum.Deaths++
		}
	}
	sum.MeanAge = utils.Mean(ages)
	sum.StdDevAge = utils.StdDev(ages)
	sum.MedianAge = utils.Median(ages)
	return sum
}

// Log writes the summary as one structured log entry.
func (s Summary) Log(logger *zap.Logger, dataset string) {
	logger.Info("stay summary",
		zap.String("dataset", dataset),
		zap.Int("stays", s.Stays),
		zap.Int("males", s.Males),
		zap.Int("females", s.Females),
		zap.Float64("meanAge", s.MeanAge),
		zap.Float64("sdAge", s.StdDevAge),
		zap.Float64("medianAge", s.MedianAge),
		zap.Int("deaths", s.Deaths))
}

// DiagnosisSummary counts the admissions of one CCSR category.
type DiagnosisSummary struct {
	Code        string
	Description string //description of the first stay with this category
	Count       int
}

// SummarizeDiagnoses counts the stays per CCSR category, sorted by count descending and by code for equal counts.
func SummarizeDiagnoses(m *StayMap) []DiagnosisSummary {
	index := map[string]int{}
	var summary []DiagnosisSummary
	for _, id := range m.Order {
		s := m.Stays[id]
		i, ok := index[s.CCSR]
		if !ok {
			i = len(summary)
			index[s.CCSR] = i
			summary = append(summary, DiagnosisSummary{Code: s.CCSR, Description: s.CCSRDescription})
		}
		summary[i].Count++
	}
	sort.SliceStable(summary, func(i, j int) bool {
		if summary[i].Count != summary[j].Count {
			return summary[i].Count > summary[j].Count
		}
		return summary[i].Code < summary[j].Code
	})
	return summary
}
