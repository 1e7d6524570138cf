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
	"time"
)

const (
	Male   = 0
	Female = 1
)

// NoDeath is the time to death reported for stays without a recorded death.
const NoDeath = "No death"

// Stay represents one ICU stay, with the demographic, administrative and diagnosis information attached to it by
// the loaders.
type Stay struct {
	StayID           int64 //icu stay id (MIMIC stay_id, eICU patientunitstayid)
	SubjectID        int64 //patient id
	AdmissionID      int64 //hospital admission (MIMIC hadm_id, eICU patienthealthsystemstayid)
	InTime           time.Time
	OutTime          time.Time
	LOS              float64 //length of stay in days
	Year             int     //year of ICU admission
	Age              int     //age at ICU admission
	Sex              int     //0 = male, 1 = female
	DeathTime        *time.Time
	HoursToDeath     float64            //NaN when there is no death
	ICD10            string             //primary diagnosis
	SeqNum           int                //sequence number of the primary diagnosis
	CCSR             string             //CCSR category 1 of the primary diagnosis
	CCSRDescription  string             //description of the CCSR category
	CCSR2            string             //CCSR category 2, may be empty
	CCSR2Description string             //description of CCSR category 2
	Categorical      map[string]string  //e.g. marital status, race, unit type
	Numeric          map[string]float64 //e.g. admission weight
	Features         map[string]float64 //aggregated chart features keyed by metric_variable
}

// NewStay creates a stay with empty attribute maps.
func NewStay(stayID int64) *Stay {
	return &Stay{
		StayID:       stayID,
		HoursToDeath: math.NaN(),
		Categorical:  map[string]string{},
		Numeric:      map[string]float64{},
		Features:     map[string]float64{},
	}
}

// TimeToDeath returns the hours from ICU admission to death as text, or NoDeath.
func (s *Stay) TimeToDeath() string {
	if math.IsNaN(s.HoursToDeath) {
		return NoDeath
	}
	return formatHours(s.HoursToDeath)
}

// HasDiagnosis reports whether a CCSR category is attached to the stay.
func (s *Stay) HasDiagnosis() bool {
	return s.CCSR != ""
}

// StayMap contains all stays of a dataset. Iteration order is the order in which stays were added.
type StayMap struct {
	Order []int64
	Stays map[int64]*Stay
	// optional info for logging
	MaleCtr   int
	FemaleCtr int
}

// NewStayMap creates an empty stay map.
func NewStayMap() *StayMap {
	return &StayMap{Stays: map[int64]*Stay{}}
}

// Add inserts a stay. Adding a stay id twice replaces the earlier stay but keeps its position.
func (m *StayMap) Add(s *Stay) {
	if old, ok := m.Stays[s.StayID]; ok {
		m.uncount(old)
	} else {
		m.Order = append(m.Order, s.StayID)
	}
	m.Stays[s.StayID] = s
	if s.Sex == Male {
		m.MaleCtr++
	} else {
		m.FemaleCtr++
	}
}

func (m *StayMap) uncount(s *Stay) {
	if s.Sex == Male {
		m.MaleCtr--
	} else {
		m.FemaleCtr--
	}
}

// Get retrieves the stay with the given id.
func (m *StayMap) Get(stayID int64) (*Stay, bool) {
	s, ok := m.Stays[stayID]
	return s, ok
}

// Len returns the number of stays.
func (m *StayMap) Len() int {
	return len(m.Order)
}

// Slice returns the stays in insertion order.
func (m *StayMap) Slice() []*Stay {
	stays := make([]*Stay, 0, len(m.Order))
	for _, id := range m.Order {
		stays = append(stays, m.Stays[id])
	}
	return stays
}
