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

package report

import (
	"errors"
	"fmt"
	"math"
)

// ErrMatrixShape is returned for a confusion matrix that is not square, has fewer than two classes, or does not
// match its labels.
var ErrMatrixShape = errors.New("invalid confusion matrix")

const (
	logFloor = 0.01
	// arcPoints is the number of points shared by all arcs of a star.
	arcPoints = 3600
)

// StarOptions selects the kind of confusion plot.
type StarOptions struct {
	// Gear draws 100 minus the error percentage instead of the error percentage.
	Gear bool
	// Balanced gives every class the same angle instead of an angle proportional to its number of instances.
	Balanced bool
	// Log uses a logarithmic radial scale. It applies to stars only.
	Log bool
}

// Star is the geometry of a confusion star or gear. Every actual class i owns the angular range
// [Beta[i], Beta[i+1]), split into C-1 sectors, one per wrongly predicted class.
type Star struct {
	Classes []string
	// Error is the C x (C-1) matrix of row percentages without the diagonal.
	Error [][]float64
	// Beta holds the start angle of every class plus 2*pi.
	Beta []float64
	// Theta holds the start angle of every sector.
	Theta []float64
	// Radii holds the plotted radius of every sector.
	Radii []float64
	RMax  float64
	// Grid holds the radii of the grid circles and GridLabels their values.
	Grid       []float64
	GridLabels []string
}

// Sector is one arc of a star with the radial line that connects its end to the start of the next arc.
type Sector struct {
	Actual, Predicted int
	X, Y              []float64
	LineX, LineY      [2]float64
}

func checkMatrix(cm [][]float64) error {
	c := len(cm)
	if c < 2 {
		return fmt.Errorf("%w: %d classes", ErrMatrixShape, c)
	}
	for i, row := range cm {
		if len(row) != c {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrMatrixShape, i, len(row), c)
		}
	}
	return nil
}

// UnitMatrix converts a confusion matrix into row percentages. A class without instances gets a row of zeros.
func UnitMatrix(cm [][]float64) [][]float64 {
	um := make([][]float64, len(cm))
	for i, row := range cm {
		um[i] = make([]float64, len(row))
		var m float64
		for _, v := range row {
			m += v
		}
		if m == 0 {
			continue
		}
		for j, v := range row {
			um[i][j] = v / m * 100
		}
	}
	return um
}

// ErrorMatrix removes the diagonal of a square matrix.
func ErrorMatrix(um [][]float64) [][]float64 {
	em := make([][]float64, len(um))
	for i, row := range um {
		em[i] = make([]float64, 0, len(row)-1)
		em[i] = append(em[i], row[:i]...)
		em[i] = append(em[i], row[i+1:]...)
	}
	return em
}

// NewStar computes the geometry of a confusion star or gear. Rows of cm are actual classes, columns predicted ones.
func NewStar(cm [][]float64, classes []string, opts StarOptions) (*Star, error) {
	if err := checkMatrix(cm); err != nil {
		return nil, err
	}
	c := len(cm)
	if len(classes) != c {
		return nil, fmt.Errorf("%w: %d labels for %d classes", ErrMatrixShape, len(classes), c)
	}
	s := &Star{Classes: classes, Error: ErrorMatrix(UnitMatrix(cm))}

	s.Beta = make([]float64, c+1)
	if opts.Balanced {
		for i := 1; i <= c; i++ {
			s.Beta[i] = s.Beta[i-1] + 2*math.Pi/float64(c)
		}
	} else {
		m := make([]float64, c)
		var total float64
		for i, row := range cm {
			for _, v := range row {
				m[i] += v
			}
			total += m[i]
		}
		if total == 0 {
			return nil, fmt.Errorf("%w: no instances", ErrMatrixShape)
		}
		for i := 1; i <= c; i++ {
			s.Beta[i] = s.Beta[i-1] + 2*math.Pi*m[i-1]/total
		}
	}

	n := c * (c - 1)
	s.Theta = make([]float64, n)
	for k := range s.Theta {
		i := k / (c - 1)
		j := k - i*(c-1)
		s.Theta[k] = s.Beta[i] + float64(j)*(s.Beta[i+1]-s.Beta[i])/float64(c-1)
	}

	s.Radii = make([]float64, 0, n)
	for _, row := range s.Error {
		s.Radii = append(s.Radii, row...)
	}
	switch {
	case opts.Gear:
		for k, r := range s.Radii {
			s.Radii[k] = 100 - r
		}
		s.RMax = 100
		s.GridLabels = []string{"25", "50", "75", "100"}
		s.Grid = []float64{25, 50, 75, 100}
	case opts.Log:
		for k, r := range s.Radii {
			s.Radii[k] = logRadius(r)
		}
		s.RMax = 4
		s.GridLabels = []string{"0.1", "1", "10", "100"}
		s.Grid = []float64{logRadius(0.1), logRadius(1), logRadius(10), logRadius(100)}
	default:
		var maxR float64
		for _, r := range s.Radii {
			maxR = math.Max(maxR, r)
		}
		s.RMax = 4 * math.Ceil(maxR/4)
		if s.RMax == 0 {
			s.RMax = 4
		}
		for i := 1; i <= 4; i++ {
			g := s.RMax / 4 * float64(i)
			s.Grid = append(s.Grid, g)
			s.GridLabels = append(s.GridLabels, fmt.Sprintf("%.0f", g))
		}
	}
	return s, nil
}

func logRadius(r float64) float64 {
	return math.Log10(math.Max(logFloor, r)) - math.Log10(logFloor)
}

// Sectors returns the arcs of the star.
func (s *Star) Sectors() []Sector {
	c := len(s.Classes)
	n := len(s.Theta)
	points := arcPoints / n
	if points < 2 {
		points = 2
	}
	sectors := make([]Sector, n)
	for k := range sectors {
		i := k / (c - 1)
		j := k - i*(c-1)
		predicted := j
		if j >= i {
			predicted++
		}
		dth := (s.Beta[i+1] - s.Beta[i]) / float64(c-1)
		sec := Sector{Actual: i, Predicted: predicted, X: make([]float64, points), Y: make([]float64, points)}
		r := s.Radii[k]
		for p := 0; p < points; p++ {
			fi := s.Theta[k] + dth*float64(p)/float64(points-1)
			sec.X[p] = r * math.Cos(fi)
			sec.Y[p] = r * math.Sin(fi)
		}
		next := s.Radii[0]
		if k < n-1 {
			next = s.Radii[k+1]
		}
		end := s.Theta[k] + dth
		sec.LineX = [2]float64{r * math.Cos(end), next * math.Cos(end)}
		sec.LineY = [2]float64{r * math.Sin(end), next * math.Sin(end)}
		sectors[k] = sec
	}
	return sectors
}

// LabelAngle returns the angle at the middle of the range of actual class i.
func (s *Star) LabelAngle(i int) float64 {
	return (s.Beta[i] + s.Beta[i+1]) / 2
}
