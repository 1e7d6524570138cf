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

package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"icustrat/charts"
	"icustrat/dataset"
	"icustrat/stay"
	"icustrat/utils"

	"go.uber.org/zap"
)

// eICU 2.0 files, relative to the dataset root.
const (
	EicuPatients       = "patient.csv.gz"
	EicuDiagnoses      = "diagnosis.csv.gz"
	EicuRespiratory    = "respiratoryCharting.csv.gz"
	EicuNurse          = "nurseCharting.csv.gz"
	EicuVitalPeriodic  = "vitalPeriodic.csv.gz"
	EicuVitalAperiodic = "vitalAperiodic.csv.gz"
)

// eICU reports ages above 89 as "> 89".
const eicuOldestAge = 89

// VitalPeriodicColumns are the vitalPeriodic measurements turned into chart events.
var VitalPeriodicColumns = []string{
	"temperature", "sao2", "heartrate", "respiration", "cvp", "etco2",
	"systemicsystolic", "systemicdiastolic", "systemicmean", "pasystolic", "padiastolic", "pamean",
}

// VitalAperiodicColumns are the vitalAperiodic measurements turned into chart events.
var VitalAperiodicColumns = []string{
	"noninvasivesystolic", "noninvasivediastolic", "noninvasivemean", "paop",
	"cardiacoutput", "cardiacinput", "svr", "svri", "pvr", "pvri",
}

// patient table attributes kept on every stay
var (
	eicuPatientCategorical = []string{"ethnicity", "unitadmittime24", "unitdischargetime24"}
	eicuPatientNumeric     = []string{"admissionweight", "hospitaladmitoffset", "hospitaldischargeoffset"}
)

// labelledChart describes a chart table with one row per measurement: a label column names the variable.
type labelledChart struct {
	file, offset, label, value string
}

var (
	eicuRespiratoryChart = labelledChart{file: EicuRespiratory, offset: "respchartoffset", label: "respchartvaluelabel", value: "respchartvalue"}
	eicuNurseChart       = labelledChart{file: EicuNurse, offset: "nursingchartoffset", label: "nursingchartcelltypevallabel", value: "nursingchartvalue"}
)

// LoadEicu runs the eICU 2.0 pipeline:
//  1. load all icu stays, keep patients old enough and, when enabled, stays with a valid length of stay
//  2. attach the primary diagnosis charted within the cutoff as a CCSR category
//  3. summarize the diagnoses
//  4. add respiratory and nurse chart features
//  5. add periodic and aperiodic vital sign features
func LoadEicu(ctx context.Context, root string, maps Mappings, opts Options) (*Result, error) {
	logger := opts.logger().With(zap.String("dataset", "eicu"))
	path := func(name string) string { return filepath.Join(root, name) }
	cutoffMinutes := opts.CutoffHours * 60
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stays, err := readEicuPatients(ctx, path(EicuPatients))
	if err != nil {
		return nil, err
	}
	stayCount(logger, "loaded icu stays", stays)
	stays = stay.ApplyStayFilter(stay.AgeFilter(opts.MinAge), stays)
	stayCount(logger, "filtered patients under minimum age", stays)
	if opts.EicuLOSFilter {
		stays = stay.ApplyStayFilter(stay.FilterInvalidStays(opts.MinLOSDays, opts.MaxLOSDays), stays)
		stayCount(logger, "filtered invalid stays", stays)
	}

	if err := addEicuDiagnoses(ctx, path(EicuDiagnoses), stays, maps, cutoffMinutes); err != nil {
		return nil, err
	}
	stays = stay.ApplyStayFilter(stay.DiagnosisFilter(opts.DiagnosisCodes), stays)
	stayCount(logger, "loaded diagnosis", stays)
	summary := stay.SummarizeDiagnoses(stays)

	var features []string
	for _, chart := range []labelledChart{eicuRespiratoryChart, eicuNurseChart} {
		events, err := readLabelledChart(ctx, path(chart.file), chart, stays, cutoffMinutes)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded chart events", zap.String("file", chart.file), zap.Int("events", len(events)))
		features = append(features, joinFeatures(stays, charts.Aggregate(events))...)
	}
	for _, vital := range []struct {
		file    string
		columns []string
	}{
		{EicuVitalPeriodic, VitalPeriodicColumns},
		{EicuVitalAperiodic, VitalAperiodicColumns},
	} {
		events, err := readWideChart(ctx, path(vital.file), vital.columns, stays, cutoffMinutes)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded chart events", zap.String("file", vital.file), zap.Int("events", len(events)))
		features = append(features, joinFeatures(stays, charts.Aggregate(events))...)
	}

	columns := []column{
		numericColumn("patientunitstayid", func(s *stay.Stay) float64 { return float64(s.StayID) }),
		numericColumn("patienthealthsystemstayid", func(s *stay.Stay) float64 { return float64(s.AdmissionID) }),
		category("gender"),
		numericColumn("age", func(s *stay.Stay) float64 { return float64(s.Age) }),
		category("ethnicity"),
	}
	for _, name := range eicuPatientNumeric {
		columns = append(columns, attribute(name))
	}
	columns = append(columns, category("unitadmittime24"), category("unitdischargetime24"))
	columns = append(columns, numericColumn("los", func(s *stay.Stay) float64 { return s.LOS }))
	columns = append(columns, diagnosisColumns()...)
	table, err := buildTable(stays, columns, features)
	if err != nil {
		return nil, err
	}

	stay.Summarize(stays).Log(logger, "eicu")
	return &Result{Table: table, Summary: summary, Target: Target, Stays: stays}, nil
}

// eicuGender maps the eICU gender onto F or M. Everything that is not Female counts as male.
func eicuGender(gender string) (string, int) {
	if gender == "Female" {
		return "F", stay.Female
	}
	return "M", stay.Male
}

// eicuAge parses an eICU age. Ages above 89 are capped.
func eicuAge(age string) (int, bool) {
	age = strings.TrimSpace(age)
	if age == "> 89" {
		return eicuOldestAge, true
	}
	v, ok := parseInt(age)
	return int(v), ok
}

// readEicuPatients reads the patient table. The length of stay is the unit discharge offset in days. Stays with an
// unknown age get age -1 so the age filter drops them.
func readEicuPatients(ctx context.Context, file string) (*stay.StayMap, error) {
	r, err := utils.OpenCSV(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	idx, err := r.Require("patientunitstayid", "patienthealthsystemstayid", "uniquepid", "gender", "age", "unitdischargeoffset")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	catIdx, err := r.Require(eicuPatientCategorical...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	numIdx, err := r.Require(eicuPatientNumeric...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	stays := stay.NewStayMap()
	subjects := map[string]int64{}
	for row := 1; ; row++ {
		if err := ctxCheck(ctx, row); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		stayID, ok := parseInt(record[idx[0]])
		if !ok {
			return nil, fmt.Errorf("%s row %d: invalid patientunitstayid %q", file, row, record[idx[0]])
		}
		s := stay.NewStay(stayID)
		s.AdmissionID, _ = parseInt(record[idx[1]])
		pid := record[idx[2]]
		if _, ok := subjects[pid]; !ok {
			subjects[pid] = int64(len(subjects) + 1)
		}
		s.SubjectID = subjects[pid]
		var gender string
		gender, s.Sex = eicuGender(record[idx[3]])
		s.Categorical["gender"] = gender
		if age, ok := eicuAge(record[idx[4]]); ok {
			s.Age = age
		} else {
			s.Age = -1
		}
		s.LOS = floatOrNaN(record[idx[5]]) / (24 * 60)
		for i, name := range eicuPatientCategorical {
			s.Categorical[name] = record[catIdx[i]]
		}
		for i, name := range eicuPatientNumeric {
			s.Numeric[name] = floatOrNaN(record[numIdx[i]])
		}
		stays.Add(s)
	}
	return stays, nil
}

// addEicuDiagnoses attaches to every stay its primary diagnosis with the greatest offset within the cutoff. The
// first ICD9 code of the diagnosis is converted to ICD10 and then to its CCSR categories.
func addEicuDiagnoses(ctx context.Context, file string, stays *stay.StayMap, maps Mappings, cutoffMinutes float64) error {
	r, err := utils.OpenCSV(file)
	if err != nil {
		return err
	}
	defer r.Close()
	idx, err := r.Require("patientunitstayid", "icd9code", "diagnosisoffset", "diagnosispriority")
	if err != nil {
		return fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	type primary struct {
		offset float64
		icd9   string
	}
	latest := map[int64]primary{}
	for row := 1; ; row++ {
		if err := ctxCheck(ctx, row); err != nil {
			return err
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		if record[idx[3]] != "Primary" {
			continue
		}
		offset, ok := parseFloat(record[idx[2]])
		if !ok || offset > cutoffMinutes {
			continue
		}
		stayID, ok := parseInt(record[idx[0]])
		if !ok {
			continue
		}
		if _, ok := stays.Get(stayID); !ok {
			continue
		}
		if p, ok := latest[stayID]; !ok || offset > p.offset {
			latest[stayID] = primary{offset: offset, icd9: firstCode(record[idx[1]])}
		}
	}
	for _, s := range stays.Slice() {
		p, ok := latest[s.StayID]
		if !ok || p.icd9 == "" {
			continue
		}
		if icd10, ok := maps.ICD9.Convert(p.icd9); ok {
			s.ICD10 = icd10
		}
	}
	assignDiagnosis(stays, maps.CCSR)
	return nil
}

// firstCode returns the first code of a comma separated code list.
func firstCode(codes string) string {
	return strings.TrimSpace(strings.SplitN(codes, ",", 2)[0])
}

// readLabelledChart streams a chart table with one measurement per row. Values that are not numbers are dropped.
// Offsets are in minutes.
func readLabelledChart(ctx context.Context, file string, chart labelledChart, stays *stay.StayMap, cutoffMinutes float64) ([]charts.Event, error) {
	r, err := utils.OpenCSV(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	idx, err := r.Require("patientunitstayid", chart.offset, chart.label, chart.value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	var events []charts.Event
	for row := 1; ; row++ {
		if err := ctxCheck(ctx, row); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		stayID, offset, ok := eicuEventTime(record, idx[0], idx[1], stays, cutoffMinutes)
		if !ok {
			continue
		}
		value, ok := parseFloat(record[idx[3]])
		if !ok {
			continue
		}
		events = append(events, charts.Event{StayID: stayID, Variable: record[idx[2]], Offset: offset, Value: value})
	}
	return events, nil
}

// readWideChart streams a chart table with one column per measurement and turns every non-empty value into an
// event named after its column. Offsets are in minutes.
func readWideChart(ctx context.Context, file string, columns []string, stays *stay.StayMap, cutoffMinutes float64) ([]charts.Event, error) {
	r, err := utils.OpenCSV(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	idx, err := r.Require("patientunitstayid", "observationoffset")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	valueIdx := make([]int, len(columns))
	for i, c := range columns {
		j, ok := r.Index(c)
		if !ok {
			j = -1
		}
		valueIdx[i] = j
	}
	var events []charts.Event
	for row := 1; ; row++ {
		if err := ctxCheck(ctx, row); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		stayID, offset, ok := eicuEventTime(record, idx[0], idx[1], stays, cutoffMinutes)
		if !ok {
			continue
		}
		for i, c := range columns {
			value, ok := parseFloat(utils.Field(record, valueIdx[i]))
			if !ok {
				continue
			}
			events = append(events, charts.Event{StayID: stayID, Variable: c, Offset: offset, Value: value})
		}
	}
	return events, nil
}

// eicuEventTime parses the stay and offset of a chart row and reports whether the row belongs to a retained stay
// and lies within the cutoff.
func eicuEventTime(record []string, stayIdx, offsetIdx int, stays *stay.StayMap, cutoffMinutes float64) (int64, float64, bool) {
	stayID, ok := parseInt(record[stayIdx])
	if !ok {
		return 0, 0, false
	}
	if _, ok := stays.Get(stayID); !ok {
		return 0, 0, false
	}
	offset, ok := parseFloat(record[offsetIdx])
	if !ok || offset > cutoffMinutes {
		return 0, 0, false
	}
	return stayID, offset, true
}
