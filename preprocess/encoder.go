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
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// ErrUnknownClass is returned when a label encoder is asked to encode a class it was not fitted on.
var ErrUnknownClass = errors.New("unknown class")

// Unknown is the category that replaces missing categorical values before ordinal encoding.
const Unknown = "UNKNOWN"

// LabelEncoder maps target classes onto 0..n-1 in sorted class order.
type LabelEncoder struct {
	Classes []string
	index   map[string]int
}

// FitLabelEncoder fits a label encoder on the distinct values of a column.
func FitLabelEncoder(values []string) *LabelEncoder {
	e := &LabelEncoder{Classes: sortedDistinct(values)}
	e.index = e.ClassMap()
	return e
}

// Transform encodes values. A value outside the fitted classes is an error wrapping ErrUnknownClass.
func (e *LabelEncoder) Transform(values []string) ([]float64, error) {
	encoded := make([]float64, len(values))
	for i, v := range values {
		code, ok := e.index[v]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownClass, v)
		}
		encoded[i] = float64(code)
	}
	return encoded, nil
}

// Inverse returns the class of an encoded value.
func (e *LabelEncoder) Inverse(code int) (string, bool) {
	if code < 0 || code >= len(e.Classes) {
		return "", false
	}
	return e.Classes[code], true
}

// ClassMap returns the mapping from class to encoded value.
func (e *LabelEncoder) ClassMap() map[string]int {
	m := make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		m[c] = i
	}
	return m
}

// OrdinalEncoder maps categories onto 0..n-1 in sorted order. Categories it was not fitted on encode as -1.
type OrdinalEncoder struct {
	Categories []string
	index      map[string]int
}

// FitOrdinalEncoder fits an ordinal encoder on the distinct values of a column.
func FitOrdinalEncoder(values []string) *OrdinalEncoder {
	e := &OrdinalEncoder{Categories: sortedDistinct(values)}
	e.index = make(map[string]int, len(e.Categories))
	for i, c := range e.Categories {
		e.index[c] = i
	}
	return e
}

// Transform encodes values.
func (e *OrdinalEncoder) Transform(values []string) []float64 {
	encoded := make([]float64, len(values))
	for i, v := range values {
		if code, ok := e.index[v]; ok {
			encoded[i] = float64(code)
		} else {
			encoded[i] = -1
		}
	}
	return encoded
}

func sortedDistinct(values []string) []string {
	distinct := lo.Uniq(values)
	sort.Strings(distinct)
	return distinct
}
