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

package charts

import (
	"fmt"
	"io"
	"strings"

	"icustrat/dataset"
	"icustrat/utils"
)

// ReadItemLabels reads the itemid to label mapping from MIMIC d_items.
func ReadItemLabels(path string) (map[string]string, error) {
	r, err := utils.OpenCSV(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	idx, err := r.Require("itemid", "label")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrMissingColumn, err)
	}
	labels := map[string]string{}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		labels[record[idx[0]]] = record[idx[1]]
	}
	return labels, nil
}

// RenameItem translates a feature name from metric_itemid to metric_label. Names without an underscore, or whose
// part after the last underscore is not a known item id, are returned unchanged.
func RenameItem(name string, labels map[string]string) string {
	i := strings.LastIndex(name, "_")
	if i < 0 {
		return name
	}
	label, ok := labels[name[i+1:]]
	if !ok {
		return name
	}
	return name[:i] + "_" + label
}

// RenameItems renames the feature columns of a table from item ids to item labels. When two items share a label,
// only the first column takes the label and the other keeps its item id.
func RenameItems(t *dataset.Table, labels map[string]string) error {
	for _, name := range t.Names() {
		newName := RenameItem(name, labels)
		if newName == name || t.Has(newName) {
			continue
		}
		if err := t.Rename(name, newName); err != nil {
			return err
		}
	}
	return nil
}
