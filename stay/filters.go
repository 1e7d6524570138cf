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
	"math"
	"strconv"

	"github.com/samber/lo"
)

// StayFilter prescribes a function type for implementing filters on ICU stays. A filter returns true for the stays
// that are kept. Filters may also update the stay they inspect.
type StayFilter func(s *Stay) bool

// ApplyStayFilter returns a new stay map containing the stays that pass the filter.
func ApplyStayFilter(filter StayFilter, m *StayMap) *StayMap {
	return ApplyStayFilters([]StayFilter{filter}, m)
}

// ApplyStayFilters returns a new stay map containing the stays that pass all filters. Filters are evaluated in order
// and evaluation stops at the first filter that rejects a stay.
func ApplyStayFilters(filters []StayFilter, m *StayMap) *StayMap {
	newM := NewStayMap()
	for _, id := range m.Order {
		s := m.Stays[id]
		res := true
		for _, filter := range filters {
			res = filter(s) && res
			if !res {
				break
			}
		}
		if res {
			newM.Add(s)
		}
	}
	return newM
}

// FilterInvalidStays keeps stays whose length of stay in days lies in [minLOS, maxLOS].
func FilterInvalidStays(minLOS, maxLOS float64) StayFilter {
	return func(s *Stay) bool {
		return s.LOS >= minLOS && s.LOS <= maxLOS
	}
}

// AgeFilter keeps stays of patients that are at least minAge years old at ICU admission.
func AgeFilter(minAge int) StayFilter {
	return func(s *Stay) bool {
		return s.Age >= minAge
	}
}

// DeathDuringStayFilter removes stays of patients that died between ICU admission and discharge, bounds included.
func DeathDuringStayFilter() StayFilter {
	return func(s *Stay) bool {
		if s.DeathTime == nil {
			return true
		}
		d := *s.DeathTime
		return d.Before(s.InTime) || d.After(s.OutTime)
	}
}

// DiagnosisFilter removes stays without a CCSR category, and stays whose category is not in the allow-list when
// one is given.
func DiagnosisFilter(allowed []string) StayFilter {
	allow := lo.SliceToMap(allowed, func(code string) (string, bool) {
		return code, true
	})
	return func(s *Stay) bool {
		if !s.HasDiagnosis() {
			return false
		}
		return len(allow) == 0 || allow[s.CCSR]
	}
}

// MimicAge computes the age at ICU admission from the MIMIC anchor age and anchor year.
func MimicAge(anchorAge, anchorYear, icuYear int) int {
	return anchorAge + (icuYear - anchorYear)
}

// SingleStayPerAdmission removes every stay belonging to a hospital admission with more than one ICU stay.
func SingleStayPerAdmission(m *StayMap) *StayMap {
	stays := map[int64]map[int64]bool{}
	for _, id := range m.Order {
		s := m.Stays[id]
		if stays[s.AdmissionID] == nil {
			stays[s.AdmissionID] = map[int64]bool{}
		}
		stays[s.AdmissionID][s.StayID] = true
	}
	return ApplyStayFilter(func(s *Stay) bool {
		return len(stays[s.AdmissionID]) == 1
	}, m)
}

// TimeToDeath removes stays with a death time before ICU admission and sets the hours from admission to death for
// the others.
func TimeToDeath(m *StayMap) *StayMap {
	return ApplyStayFilter(func(s *Stay) bool {
		if s.DeathTime == nil {
			s.HoursToDeath = math.NaN()
			return true
		}
		hours := s.DeathTime.Sub(s.InTime).Hours()
		if hours < 0 {
			return false
		}
		s.HoursToDeath = hours
		return true
	}, m)
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}
