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
	"time"

	"icustrat/charts"
	"icustrat/dataset"
	"icustrat/stay"
	"icustrat/utils"

	"go.uber.org/zap"
)

// MIMIC-IV 2.2 files, relative to the dataset root.
const (
	MimicICUStays    = "icu/icustays.csv.gz"
	MimicPatients    = "hosp/patients.csv.gz"
	MimicAdmissions  = "hosp/admissions.csv.gz"
	MimicDiagnoses   = "hosp/diagnoses_icd.csv.gz"
	MimicChartEvents = "icu/chartevents.csv.gz"
	MimicItems       = "icu/d_items.csv.gz"
)

const mimicTimeLayout = "2006-01-02 15:04:05"

// TimeToDeathColumn holds the hours from ICU admission to death, or stay.NoDeath.
const TimeToDeathColumn = "Time_to_death_(h)"

func parseMimicTime(s string) (time.Time, error) {
	return time.Parse(mimicTimeLayout, s)
}

// LoadMimic runs the MIMIC-IV 2.2 pipeline:
//  1. load all icu stays and keep those with a valid length of stay
//  2. add patient features and keep patients old enough at ICU admission
//  3. add admission features
//  4. either drop deaths during the stay, or compute the time to death, and drop admissions with more than one ICU
//     stay
//  5. attach the primary diagnosis of the admission as a CCSR category
//  6. summarize the diagnoses
//  7. add chart features from the events within the cutoff
//  8. rename feature columns from item ids to item labels
func LoadMimic(ctx context.Context, root string, maps Mappings, opts Options) (*Result, error) {
	logger := opts.logger().With(zap.String("dataset", "mimic"))
	path := func(name string) string { return filepath.Join(root, name) }
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stays, err := readMimicStays(ctx, path(MimicICUStays))
	if err != nil {
		return nil, err
	}
	stayCount(logger, "loaded icu stays", stays)
	stays = stay.ApplyStayFilter(stay.FilterInvalidStays(opts.MinLOSDays, opts.MaxLOSDays), stays)
	stayCount(logger, "filtered invalid stays", stays)

	if err := addMimicPatients(ctx, path(MimicPatients), stays); err != nil {
		return nil, err
	}
	stays = stay.ApplyStayFilter(stay.AgeFilter(opts.MinAge), stays)
	stayCount(logger, "filtered patients under minimum age", stays)

	if err := addMimicAdmissions(ctx, path(MimicAdmissions), stays); err != nil {
		return nil, err
	}

	if opts.RemoveDeathsInStay {
		stays = stay.ApplyStayFilter(stay.DeathDuringStayFilter(), stays)
		stayCount(logger, "filtered deaths during stay", stays)
		stays = stay.SingleStayPerAdmission(stays)
		stayCount(logger, "filtered admissions with more than one icu stay", stays)
	} else {
		stays = stay.SingleStayPerAdmission(stays)
		stayCount(logger, "filtered admissions with more than one icu stay", stays)
		stays = stay.TimeToDeath(stays)
		sum := stay.Summarize(stays)
		logger.Info("computed time to death", zap.Int("stays", stays.Len()), zap.Int("survivors", sum.Stays-sum.Deaths))
	}

	if err := addMimicDiagnoses(ctx, path(MimicDiagnoses), stays, maps); err != nil {
		return nil, err
	}
	stays = stay.ApplyStayFilter(stay.DiagnosisFilter(opts.DiagnosisCodes), stays)
	stayCount(logger, "loaded diagnosis", stays)
	summary := stay.SummarizeDiagnoses(stays)

	events, err := readMimicCharts(ctx, path(MimicChartEvents), stays, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded chart events", zap.Int("events", len(events)))
	features := joinFeatures(stays, charts.Aggregate(events))

	columns := []column{
		numericColumn("subject_id", func(s *stay.Stay) float64 { return float64(s.SubjectID) }),
		numericColumn("hadm_id", func(s *stay.Stay) float64 { return float64(s.AdmissionID) }),
		numericColumn("stay_id", func(s *stay.Stay) float64 { return float64(s.StayID) }),
		category("first_careunit"),
		category("last_careunit"),
		categoricalColumn("intime", func(s *stay.Stay) string { return s.InTime.Format(mimicTimeLayout) }),
		numericColumn("los", func(s *stay.Stay) float64 { return s.LOS }),
		category("gender"),
		numericColumn("icu_age", func(s *stay.Stay) float64 { return float64(s.Age) }),
		category("marital_status"),
		category("race"),
	}
	if !opts.RemoveDeathsInStay {
		columns = append(columns, categoricalColumn(TimeToDeathColumn, func(s *stay.Stay) string { return s.TimeToDeath() }))
	}
	columns = append(columns, diagnosisColumns()...)
	table, err := buildTable(stays, columns, features)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	labels, err := charts.ReadItemLabels(path(MimicItems))
	if err != nil {
		return nil, err
	}
	if err := charts.RenameItems(table, labels); err != nil {
		return nil, err
	}

	stay.Summarize(stays).Log(logger, "mimic")
	return &Result{Table: table, Summary: summary, Target: Target, Stays: stays}, nil
}

// readMimicStays reads icustays, with times parsed and the ICU admission year derived from intime.
func readMimicStays(ctx context.Context, file string) (*stay.StayMap, error) {
	r, err := utils.OpenCSV(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	idx, err := r.Require("subject_id", "hadm_id", "stay_id", "first_careunit", "last_careunit", "intime", "outtime", "los")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	stays := stay.NewStayMap()
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
		stayID, ok := parseInt(record[idx[2]])
		if !ok {
			return nil, fmt.Errorf("%s row %d: invalid stay_id %q", file, row, record[idx[2]])
		}
		s := stay.NewStay(stayID)
		s.SubjectID, _ = parseInt(record[idx[0]])
		s.AdmissionID, _ = parseInt(record[idx[1]])
		s.Categorical["first_careunit"] = record[idx[3]]
		s.Categorical["last_careunit"] = record[idx[4]]
		if s.InTime, err = parseMimicTime(record[idx[5]]); err != nil {
			return nil, fmt.Errorf("%s row %d: intime: %w", file, row, err)
		}
		if s.OutTime, err = parseMimicTime(record[idx[6]]); err != nil {
			return nil, fmt.Errorf("%s row %d: outtime: %w", file, row, err)
		}
		s.Year = s.InTime.Year()
		s.LOS = floatOrNaN(record[idx[7]])
		stays.Add(s)
	}
	return stays, nil
}

type mimicPatient struct {
	gender                string
	anchorAge, anchorYear int
}

// addMimicPatients sets gender and age at ICU admission. Stays of unknown patients get age -1 so the age filter
// drops them.
func addMimicPatients(ctx context.Context, file string, stays *stay.StayMap) error {
	r, err := utils.OpenCSV(file)
	if err != nil {
		return err
	}
	defer r.Close()
	idx, err := r.Require("subject_id", "gender", "anchor_age", "anchor_year")
	if err != nil {
		return fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	patients := map[int64]mimicPatient{}
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
		id, ok := parseInt(record[idx[0]])
		if !ok {
			continue
		}
		age, okAge := parseInt(record[idx[2]])
		year, okYear := parseInt(record[idx[3]])
		if !okAge || !okYear {
			continue
		}
		patients[id] = mimicPatient{gender: record[idx[1]], anchorAge: int(age), anchorYear: int(year)}
	}
	// rebuild the map so the gender counters are right
	updated := stay.NewStayMap()
	for _, s := range stays.Slice() {
		p, ok := patients[s.SubjectID]
		if !ok {
			s.Age = -1
		} else {
			s.Age = stay.MimicAge(p.anchorAge, p.anchorYear, s.Year)
			s.Categorical["gender"] = p.gender
			if p.gender == "F" {
				s.Sex = stay.Female
			} else {
				s.Sex = stay.Male
			}
		}
		updated.Add(s)
	}
	*stays = *updated
	return nil
}

// addMimicAdmissions sets the death time, marital status and race of the admission of every stay.
func addMimicAdmissions(ctx context.Context, file string, stays *stay.StayMap) error {
	r, err := utils.OpenCSV(file)
	if err != nil {
		return err
	}
	defer r.Close()
	idx, err := r.Require("hadm_id", "deathtime", "marital_status", "race")
	if err != nil {
		return fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	byAdmission := map[int64][]*stay.Stay{}
	for _, s := range stays.Slice() {
		byAdmission[s.AdmissionID] = append(byAdmission[s.AdmissionID], s)
	}
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
		hadm, ok := parseInt(record[idx[0]])
		if !ok {
			continue
		}
		for _, s := range byAdmission[hadm] {
			if d := record[idx[1]]; d != "" {
				t, err := parseMimicTime(d)
				if err != nil {
					return fmt.Errorf("%s row %d: deathtime: %w", file, row, err)
				}
				s.DeathTime = &t
			}
			s.Categorical["marital_status"] = record[idx[2]]
			s.Categorical["race"] = record[idx[3]]
		}
	}
	return nil
}

// addMimicDiagnoses attaches to every stay the diagnosis of its admission with the lowest sequence number, as an
// ICD10 code and its CCSR categories. ICD9 codes are converted first; codes without ICD10 equivalent are ignored.
func addMimicDiagnoses(ctx context.Context, file string, stays *stay.StayMap, maps Mappings) error {
	r, err := utils.OpenCSV(file)
	if err != nil {
		return err
	}
	defer r.Close()
	idx, err := r.Require("hadm_id", "seq_num", "icd_code", "icd_version")
	if err != nil {
		return fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	admissions := map[int64]bool{}
	for _, s := range stays.Slice() {
		admissions[s.AdmissionID] = true
	}
	type primary struct {
		seqNum int64
		icd10  string
	}
	best := map[int64]primary{}
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
		hadm, ok := parseInt(record[idx[0]])
		if !ok || !admissions[hadm] {
			continue
		}
		seqNum, ok := parseInt(record[idx[1]])
		if !ok {
			continue
		}
		code := record[idx[2]]
		if record[idx[3]] == "9" {
			if code, ok = maps.ICD9.Convert(code); !ok {
				continue
			}
		}
		if code == "" {
			continue
		}
		if b, ok := best[hadm]; !ok || seqNum < b.seqNum {
			best[hadm] = primary{seqNum: seqNum, icd10: code}
		}
	}
	for _, s := range stays.Slice() {
		if b, ok := best[s.AdmissionID]; ok {
			s.ICD10, s.SeqNum = b.icd10, int(b.seqNum)
		}
	}
	assignDiagnosis(stays, maps.CCSR)
	return nil
}

// mimicEventKey identifies duplicate chart events.
type mimicEventKey struct {
	stayID int64
	itemID string
	offset float64
	value  float64
	uom    string
}

// readMimicCharts streams chartevents and keeps the numeric events of retained stays charted less than the cutoff
// after ICU admission. Exact duplicates are dropped. Offsets are in hours.
func readMimicCharts(ctx context.Context, file string, stays *stay.StayMap, opts Options) ([]charts.Event, error) {
	r, err := utils.OpenCSV(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	idx, err := r.Require("stay_id", "charttime", "itemid", "valuenum")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	uomIdx, ok := r.Index("valueuom")
	if !ok {
		uomIdx = -1
	}
	items := map[string]bool{}
	for _, item := range opts.ChartItems {
		items[item] = true
	}
	seen := map[mimicEventKey]bool{}
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
		value, ok := parseFloat(record[idx[3]])
		if !ok {
			continue
		}
		itemID := record[idx[2]]
		if len(items) > 0 && !items[itemID] {
			continue
		}
		stayID, ok := parseInt(record[idx[0]])
		if !ok {
			continue
		}
		s, ok := stays.Get(stayID)
		if !ok {
			continue
		}
		chartTime, err := parseMimicTime(record[idx[1]])
		if err != nil {
			continue
		}
		offset := chartTime.Sub(s.InTime).Hours()
		if offset >= opts.CutoffHours {
			continue
		}
		key := mimicEventKey{stayID: stayID, itemID: itemID, offset: offset, value: value, uom: utils.Field(record, uomIdx)}
		if seen[key] {
			continue
		}
		seen[key] = true
		events = append(events, charts.Event{StayID: stayID, Variable: itemID, Offset: offset, Value: value})
	}
	return events, nil
}
