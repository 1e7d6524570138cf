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

package stay_test

import (
	"math"
	"testing"
	"time"

	"icustrat/stay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStay(id, hadm int64, los float64) *stay.Stay {
	s := stay.NewStay(id)
	s.AdmissionID = hadm
	s.LOS = los
	return s
}

func ids(m *stay.StayMap) []int64 {
	return append([]int64{}, m.Order...)
}

func TestFilterInvalidStays(t *testing.T) {
	m := stay.NewStayMap()
	for i, los := range []float64{0.2, 0.5, 3, 10, 10.5} {
		m.Add(newStay(int64(i+1), int64(i+1), los))
	}
	res := stay.ApplyStayFilter(stay.FilterInvalidStays(0.5, 10), m)
	assert.Equal(t, []int64{2, 3, 4}, ids(res))
}

func TestAgeFilter(t *testing.T) {
	m := stay.NewStayMap()
	for i, icuYear := range []int{2004, 2020, 2030} {
		s := newStay(int64(i+1), int64(i+1), 1)
		s.Year = icuYear
		s.Age = stay.MimicAge((i+1)*10, 2000, icuYear)
		m.Add(s)
	}
	res := stay.ApplyStayFilter(stay.AgeFilter(15), m)
	require.Equal(t, 2, res.Len())
	ages := []int{}
	for _, s := range res.Slice() {
		ages = append(ages, s.Age)
	}
	assert.Equal(t, []int{40, 60}, ages)
}

func TestSingleStayPerAdmission(t *testing.T) {
	m := stay.NewStayMap()
	adm := map[int64][]int64{1: {10, 11}, 2: {20}, 3: {30, 31}}
	for _, hadm := range []int64{1, 2, 3} {
		for _, id := range adm[hadm] {
			m.Add(newStay(id, hadm, 1))
		}
	}
	res := stay.SingleStayPerAdmission(m)
	assert.Equal(t, []int64{20}, ids(res))
}

func TestDeathDuringStayFilter(t *testing.T) {
	in := time.Date(2150, 1, 1, 8, 0, 0, 0, time.UTC)
	out := in.Add(48 * time.Hour)
	deaths := []*time.Time{nil, ptr(in.Add(-time.Hour)), ptr(in), ptr(in.Add(24 * time.Hour)), ptr(out), ptr(out.Add(time.Hour))}
	m := stay.NewStayMap()
	for i, d := range deaths {
		s := newStay(int64(i+1), int64(i+1), 2)
		s.InTime, s.OutTime, s.DeathTime = in, out, d
		m.Add(s)
	}
	res := stay.ApplyStayFilter(stay.DeathDuringStayFilter(), m)
	assert.Equal(t, []int64{1, 2, 6}, ids(res))
}

func TestTimeToDeath(t *testing.T) {
	in := time.Date(2150, 1, 1, 8, 0, 0, 0, time.UTC)
	m := stay.NewStayMap()
	s1 := newStay(1, 1, 1)
	s1.InTime = in
	s2 := newStay(2, 2, 1)
	s2.InTime, s2.DeathTime = in, ptr(in.Add(-2*time.Hour))
	s3 := newStay(3, 3, 1)
	s3.InTime, s3.DeathTime = in, ptr(in.Add(30*time.Hour))
	m.Add(s1)
	m.Add(s2)
	m.Add(s3)
	res := stay.TimeToDeath(m)
	require.Equal(t, []int64{1, 3}, ids(res))
	assert.True(t, math.IsNaN(s1.HoursToDeath))
	assert.Equal(t, stay.NoDeath, s1.TimeToDeath())
	assert.Equal(t, 30.0, s3.HoursToDeath)
	assert.Equal(t, "30", s3.TimeToDeath())
}

func TestDiagnosisFilter(t *testing.T) {
	m := stay.NewStayMap()
	for i, code := range []string{"", "CIR007", "INF002"} {
		s := newStay(int64(i+1), int64(i+1), 1)
		s.CCSR = code
		m.Add(s)
	}
	assert.Equal(t, []int64{2, 3}, ids(stay.ApplyStayFilter(stay.DiagnosisFilter(nil), m)))
	assert.Equal(t, []int64{3}, ids(stay.ApplyStayFilter(stay.DiagnosisFilter([]string{"INF002"}), m)))
}

func TestSummarize(t *testing.T) {
	m := stay.NewStayMap()
	for i, age := range []int{20, 40, 60, 80} {
		s := newStay(int64(i+1), int64(i+1), 1)
		s.Age = age
		if i%2 == 1 {
			s.Sex = stay.Female
		}
		m.Add(s)
	}
	m.Stays[4].DeathTime = ptr(time.Now())
	sum := stay.Summarize(m)
	assert.Equal(t, 4, sum.Stays)
	assert.Equal(t, 2, sum.Males)
	assert.Equal(t, 2, sum.Females)
	assert.Equal(t, 50.0, sum.MeanAge)
	assert.Equal(t, 50.0, sum.MedianAge)
	assert.InDelta(t, 22.36, sum.StdDevAge, 0.01)
	assert.Equal(t, 1, sum.Deaths)
}

func TestStayMapReplace(t *testing.T) {
	m := stay.NewStayMap()
	m.Add(newStay(1, 1, 1))
	f := newStay(1, 1, 2)
	f.Sex = stay.Female
	m.Add(f)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 0, m.MaleCtr)
	assert.Equal(t, 1, m.FemaleCtr)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func TestSummarizeDiagnoses(t *testing.T) {
	m := stay.NewStayMap()
	codes := []string{"INF002", "CIR007", "INF002", "RSP002", "CIR007", "INF002"}
	for i, code := range codes {
		s := newStay(int64(i+1), int64(i+1), 1)
		s.CCSR = code
		s.CCSRDescription = code + " description"
		m.Add(s)
	}
	sum := stay.SummarizeDiagnoses(m)
	require.Len(t, sum, 3)
	assert.Equal(t, stay.DiagnosisSummary{Code: "INF002", Description: "INF002 description", Count: 3}, sum[0])
	assert.Equal(t, "CIR007", sum[1].Code)
	assert.Equal(t, 2, sum[1].Count)
	assert.Equal(t, "RSP002", sum[2].Code)
}
