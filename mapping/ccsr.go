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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"icustrat/dataset"
)

// CCSR header names after normalization.
const (
	ICD10Column         = "ICD-10-CM CODE"
	Category1Column     = "CCSR CATEGORY 1"
	Category1DescColumn = "CCSR CATEGORY 1 DESCRIPTION"
	Category2Column     = "CCSR CATEGORY 2"
	Category2DescColumn = "CCSR CATEGORY 2 DESCRIPTION"
)

// CCSRCategory holds the first two CCSR categories an ICD10 code is mapped to. Empty fields are missing.
type CCSRCategory struct {
	Category1, Category1Description string
	Category2, Category2Description string
}

// CCSR maps ICD10-CM codes onto their CCSR categories.
type CCSR struct {
	table map[string]CCSRCategory
}

// normalizeHeader trims a CCSR header name, removes its quotes and upper-cases it.
func normalizeHeader(h string) string {
	return strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(h), "'", "")))
}

// normalizeValue strips the single quotes the DXCCSR file puts around every value. A value that is blank after
// stripping is missing.
func normalizeValue(v string) string {
	v = strings.Trim(v, "'")
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return v
}

// ReadCCSR reads the DXCCSR csv file.
func ReadCCSR(path string) (*CCSR, error) {
	csvFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer csvFile.Close()
	reader := csv.NewReader(csvFile)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	columns := map[string]int{}
	for i, h := range header {
		columns[normalizeHeader(h)] = i
	}
	idx := make([]int, 5)
	for i, name := range []string{ICD10Column, Category1Column, Category1DescColumn, Category2Column, Category2DescColumn} {
		j, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w: %q", path, dataset.ErrMissingColumn, name)
		}
		idx[i] = j
	}
	ccsr := &CCSR{table: map[string]CCSRCategory{}}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		field := func(i int) string {
			if idx[i] >= len(record) {
				return ""
			}
			return normalizeValue(record[idx[i]])
		}
		code := field(0)
		if code == "" {
			continue
		}
		if _, ok := ccsr.table[code]; ok {
			continue
		}
		ccsr.table[code] = CCSRCategory{
			Category1:            field(1),
			Category1Description: field(2),
			Category2:            field(3),
			Category2Description: field(4),
		}
	}
	return ccsr, nil
}

// Lookup returns all mapped categories of an ICD10 code.
func (c *CCSR) Lookup(icd10 string) (CCSRCategory, bool) {
	cat, ok := c.table[icd10]
	return cat, ok
}

// Category1 returns the CCSR category 1 code and description of an ICD10 code. The result is missing when the code
// is unknown or its category is blank.
func (c *CCSR) Category1(icd10 string) (string, string, bool) {
	cat, ok := c.table[icd10]
	if !ok || cat.Category1 == "" {
		return "", "", false
	}
	return cat.Category1, cat.Category1Description, true
}

// Len returns the number of ICD10 codes in the mapping.
func (c *CCSR) Len() int {
	return len(c.table)
}
