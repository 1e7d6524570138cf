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

package mapping

import (
	"fmt"
	"io"

	"icustrat/dataset"
	"icustrat/utils"
)

// ICD9ToICD10 maps three character ICD9 codes onto ICD10 codes. Many ICD9 codes have no one to one mapping; the
// first row of the mapping table for a code is used.
type ICD9ToICD10 struct {
	entries map[string]string
}

// ReadICD9ToICD10 reads a tab separated mapping table with the columns diagnosis_code and icd10cm. Other columns,
// such as diagnosis_description, are ignored.
func ReadICD9ToICD10(path string) (*ICD9ToICD10, error) {
	r, err := utils.OpenDelimited(path, '\t')
	if err != nil {
		return nil, err
	}
	defer r.Close()
	idx, err := r.Require("diagnosis_code", "icd10cm")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	m := &ICD9ToICD10{entries: map[string]string{}}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		code := record[idx[0]]
		if _, ok := m.entries[code]; ok {
			continue
		}
		m.entries[code] = record[idx[1]]
	}
	return m, nil
}

// Convert returns the ICD10 code for an ICD9 code, looked up by its first three characters.
func (m *ICD9ToICD10) Convert(icd9 string) (string, bool) {
	key := icd9
	if len(key) > 3 {
		key = key[:3]
	}
	icd10, ok := m.entries[key]
	if !ok || icd10 == "" {
		return "", false
	}
	return icd10, true
}

// Len returns the number of distinct ICD9 codes in the mapping.
func (m *ICD9ToICD10) Len() int {
	return len(m.entries)
}
