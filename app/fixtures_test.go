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

package app_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"icustrat/app"
	"icustrat/mapping"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

// writeGz writes the given lines as a gzip compressed file.
func writeGz(t *testing.T, path string, lines ...string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	w := gzip.NewWriter(f)
	_, err = w.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// writeMappingDir writes the code mappings and the shipped column map into a fresh directory.
func writeMappingDir(t *testing.T) string {
	dir := t.TempDir()
	icd9 := filepath.Join(dir, "ICD9_to_ICD10_mapping.txt")
	require.NoError(t, os.WriteFile(icd9, []byte("diagnosis_code\ticd10cm\tdiagnosis_description\n"+
		"038\tA419\tSepticemia\n"+
		"428\tI509\tHeart Failure\n"), 0o644))
	ccsr := filepath.Join(dir, "DXCCSR.csv")
	require.NoError(t, os.WriteFile(ccsr, []byte("'ICD-10-CM CODE','ICD-10-CM CODE DESCRIPTION','CCSR CATEGORY 1','CCSR CATEGORY 1 DESCRIPTION','CCSR CATEGORY 2','CCSR CATEGORY 2 DESCRIPTION'\n"+
		"'A419',\"Sepsis, unspecified organism\",'INF002','Septicemia',' ',' '\n"+
		"'I509',\"Heart failure, unspecified\",'CIR019','Heart failure','CIR020','Other heart disease'\n"), 0o644))
	columnMap, err := os.ReadFile(filepath.Join("..", "mappings", "mimic_to_eicu.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mimic_to_eicu.yaml"), columnMap, 0o644))
	return dir
}

func writeMappings(t *testing.T) app.Mappings {
	dir := writeMappingDir(t)
	icd9Map, err := mapping.ReadICD9ToICD10(filepath.Join(dir, "ICD9_to_ICD10_mapping.txt"))
	require.NoError(t, err)
	ccsrMap, err := mapping.ReadCCSR(filepath.Join(dir, "DXCCSR.csv"))
	require.NoError(t, err)
	return app.Mappings{ICD9: icd9Map, CCSR: ccsrMap}
}

// writeMimic writes a small MIMIC-IV tree. Stays 1000, 5000 and 6000 survive all filters.
func writeMimic(t *testing.T) string {
	root := t.TempDir()
	writeGz(t, filepath.Join(root, app.MimicICUStays),
		"subject_id,hadm_id,stay_id,first_careunit,last_careunit,intime,outtime,los",
		"1,100,1000,MICU,MICU,2150-01-01 08:00:00,2150-01-03 08:00:00,2.0",
		"2,200,2000,SICU,SICU,2150-01-01 08:00:00,2150-01-01 10:00:00,0.0833",
		"3,300,3000,CCU,CCU,2150-01-01 08:00:00,2150-01-02 08:00:00,1.0",
		"4,400,4000,MICU,MICU,2150-01-01 08:00:00,2150-01-02 08:00:00,1.0",
		"4,400,4001,MICU,SICU,2150-01-03 08:00:00,2150-01-04 08:00:00,1.0",
		"5,500,5000,CVICU,CVICU,2150-01-01 08:00:00,2150-01-04 08:00:00,3.0",
		"6,600,6000,MICU,MICU,2150-01-01 08:00:00,2150-01-02 20:00:00,1.5",
		"7,700,7000,MICU,MICU,2150-01-01 08:00:00,2150-01-02 20:00:00,1.5")
	writeGz(t, filepath.Join(root, app.MimicPatients),
		"subject_id,gender,anchor_age,anchor_year,anchor_year_group,dod",
		"1,M,50,2150,2017 - 2019,",
		"2,F,50,2150,2017 - 2019,",
		"3,F,10,2150,2017 - 2019,",
		"4,M,60,2150,2017 - 2019,",
		"5,F,70,2148,2017 - 2019,2150-01-02",
		"6,M,40,2150,2017 - 2019,",
		"7,F,30,2150,2017 - 2019,")
	writeGz(t, filepath.Join(root, app.MimicAdmissions),
		"subject_id,hadm_id,admittime,dischtime,deathtime,admission_type,marital_status,race",
		"1,100,2150-01-01 07:00:00,2150-01-05 07:00:00,,URGENT,MARRIED,WHITE",
		"5,500,2150-01-01 07:00:00,2150-01-02 08:00:00,2150-01-02 08:00:00,URGENT,WIDOWED,BLACK/AFRICAN AMERICAN",
		"6,600,2150-01-01 07:00:00,2150-01-05 07:00:00,,ELECTIVE,SINGLE,ASIAN",
		"7,700,2150-01-01 07:00:00,2150-01-05 07:00:00,,ELECTIVE,,OTHER")
	writeGz(t, filepath.Join(root, app.MimicDiagnoses),
		"subject_id,hadm_id,seq_num,icd_code,icd_version",
		"1,100,2,I509,10",
		"1,100,1,A419,10",
		"5,500,1,I509,10",
		"6,600,2,I509,10",
		"6,600,1,0389,9",
		"7,700,1,Z999,10")
	writeGz(t, filepath.Join(root, app.MimicChartEvents),
		"subject_id,hadm_id,stay_id,caregiver_id,charttime,storetime,itemid,value,valuenum,valueuom,warning",
		"1,100,1000,1,2150-01-01 08:30:00,,220045,80,80,bpm,0",
		"1,100,1000,1,2150-01-01 09:30:00,,220045,90,90,bpm,0",
		"1,100,1000,1,2150-01-01 09:30:00,,220045,90,90,bpm,0",
		"1,100,1000,1,2150-01-01 11:00:00,,220045,200,200,bpm,0",
		"1,100,1000,1,2150-01-01 07:00:00,,220045,70,70,bpm,0",
		"1,100,1000,1,2150-01-01 08:45:00,,220048,SR (Sinus Rhythm),,,0",
		"5,500,5000,1,2150-01-01 08:00:00,,220210,20,20,insp/min,0",
		"2,200,2000,1,2150-01-01 08:10:00,,220045,120,120,bpm,0")
	writeGz(t, filepath.Join(root, app.MimicItems),
		"itemid,label,abbreviation,linksto,category,unitname,param_type,lownormalvalue,highnormalvalue",
		"220045,Heart Rate,HR,chartevents,Routine Vital Signs,bpm,Numeric,,",
		"220210,Respiratory Rate,RR,chartevents,Respiratory,insp/min,Numeric,,",
		"220048,Heart Rhythm,Heart Rhythm,chartevents,Routine Vital Signs,,Text,,")
	return root
}

// writeEicu writes a small eICU tree. Stays 10, 11 and 13 survive the default filters; stay 13 is shorter than
// the minimum length of stay.
func writeEicu(t *testing.T) string {
	root := t.TempDir()
	writeGz(t, filepath.Join(root, app.EicuPatients),
		"patientunitstayid,patienthealthsystemstayid,uniquepid,gender,age,ethnicity,admissionweight,hospitaladmitoffset,hospitaldischargeoffset,unitadmittime24,unitdischargetime24,unitdischargeoffset",
		"10,1,002-1,Female,> 89,Caucasian,70.5,-60,3000,08:00:00,08:00:00,2880",
		"11,2,002-2,Male,45,African American,,0,2000,09:00:00,09:00:00,1440",
		"12,3,002-3,Male,12,Caucasian,40,0,2000,09:00:00,09:00:00,1440",
		"13,4,002-4,Unknown,50,Caucasian,80,0,2000,09:00:00,14:00:00,300",
		"14,5,002-5,Female,,Caucasian,80,0,2000,09:00:00,09:00:00,1440",
		"15,6,002-6,Male,60,Hispanic,80,0,2000,09:00:00,09:00:00,1440")
	writeGz(t, filepath.Join(root, app.EicuDiagnoses),
		"diagnosisid,patientunitstayid,activeupondischarge,diagnosisoffset,diagnosisstring,icd9code,diagnosispriority",
		`1,10,True,30,infectious diseases|sepsis,"038.9, A41.9",Primary`,
		`2,10,True,60,cardiovascular|chf,"428.0, I50.9",Other`,
		`3,11,True,10,infectious diseases|sepsis,"038.9, A41.9",Primary`,
		`4,11,True,120,cardiovascular|chf,"428.0, I50.9",Primary`,
		`5,15,True,200,cardiovascular|chf,428.0,Primary`,
		`6,13,True,20,cardiovascular|chf,428.0,Primary`)
	writeGz(t, filepath.Join(root, app.EicuRespiratory),
		"respchartid,patientunitstayid,respchartoffset,respchartentryoffset,respcharttypecat,respchartvaluelabel,respchartvalue",
		"1,10,30,30,respFlowSettings,FiO2,40",
		"2,10,200,200,respFlowSettings,FiO2,60",
		"3,10,60,60,respFlowSettings,FiO2,50",
		"4,11,10,10,respFlowSettings,Vent Mode,CPAP")
	writeGz(t, filepath.Join(root, app.EicuNurse),
		"nursingchartid,patientunitstayid,nursingchartoffset,nursingchartentryoffset,nursingchartcelltypecat,nursingchartcelltypevallabel,nursingchartcelltypevalname,nursingchartvalue",
		"1,10,15,15,Vital Signs,Heart Rate,Heart Rate,88",
		"2,11,180,180,Vital Signs,Heart Rate,Heart Rate,100",
		"3,12,10,10,Vital Signs,Heart Rate,Heart Rate,130",
		"4,13,30,30,Vital Signs,Heart Rate,Heart Rate,95")
	writeGz(t, filepath.Join(root, app.EicuVitalPeriodic),
		"vitalperiodicid,patientunitstayid,observationoffset,temperature,sao2,heartrate,respiration,cvp,etco2,systemicsystolic,systemicdiastolic,systemicmean,pasystolic,padiastolic,pamean,st1,st2,st3,icp",
		"1,10,5,37.0,98,90,,,,,,,,,,,,,",
		"2,10,10,,97,,,,,,,,,,,,,,",
		"3,10,500,39.0,90,120,,,,,,,,,,,,,")
	writeGz(t, filepath.Join(root, app.EicuVitalAperiodic),
		"vitalaperiodicid,patientunitstayid,observationoffset,noninvasivesystolic,noninvasivediastolic,noninvasivemean,paop,cardiacoutput,cardiacinput,svr,svri,pvr,pvri",
		"1,11,20,120,80,93,,,,,,,")
	return root
}
