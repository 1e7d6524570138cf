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

package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// CSVReader reads a csv file, gzip compressed or not, and gives access to the fields of each record by column name.
// Large files such as chart events are read record by record so they never need to fit in memory.
type CSVReader struct {
	file   *os.File
	gz     *gzip.Reader
	reader *csv.Reader
	header map[string]int
	Header []string
}

// OpenCSV opens a csv file and parses its header. Files ending in .gz are decompressed on the fly.
func OpenCSV(path string) (*CSVReader, error) {
	return OpenDelimited(path, ',')
}

// OpenDelimited opens a file with fields separated by the given rune and parses its header.
func OpenDelimited(path string, comma rune) (*CSVReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r := &CSVReader{file: file}
	var in io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		r.gz, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		in = r.gz
	}
	r.reader = csv.NewReader(in)
	r.reader.Comma = comma
	r.reader.FieldsPerRecord = -1
	r.reader.ReuseRecord = true
	r.reader.LazyQuotes = true
	header, err := r.reader.Read()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	r.Header = make([]string, len(header))
	r.header = map[string]int{}
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		r.Header[i] = h
		r.header[h] = i
	}
	return r, nil
}

// Index returns the position of a column in the header.
func (r *CSVReader) Index(column string) (int, bool) {
	i, ok := r.header[column]
	return i, ok
}

// Require returns the positions of the given columns, or an error naming the first column that is missing.
func (r *CSVReader) Require(columns ...string) ([]int, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		j, ok := r.header[c]
		if !ok {
			return nil, fmt.Errorf("%s: missing column %q", r.file.Name(), c)
		}
		idx[i] = j
	}
	return idx, nil
}

// Read returns the next record, or io.EOF. The returned slice is reused by the next call.
func (r *CSVReader) Read() ([]string, error) {
	return r.reader.Read()
}

// Close closes the underlying file.
func (r *CSVReader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	return r.file.Close()
}

// Field returns the field at index i of a record, or the empty string when the record is too short.
func Field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}
