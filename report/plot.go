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
	"fmt"
	"image/color"
	"math"

	"icustrat/stay"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var gridColor = color.Gray{Y: 211}

// circlePoints is the number of points of a grid circle.
const circlePoints = 100

func line(xs, ys []float64, c color.Color) (*plotter.Line, error) {
	xys := make(plotter.XYs, len(xs))
	for i := range xs {
		xys[i] = plotter.XY{X: xs[i], Y: ys[i]}
	}
	l, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	l.LineStyle.Color = c
	return l, nil
}

func translucent(c color.Color) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 26}
}

// StarPlot draws a confusion star or gear.
func StarPlot(s *Star, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	c := len(s.Classes)
	lim := 1.3 * s.RMax
	p.X.Min, p.X.Max = -lim, lim
	p.Y.Min, p.Y.Max = -lim, lim

	for i := 0; i < c; i++ {
		th := s.Beta[i]
		l, err := line([]float64{0, s.RMax * math.Cos(th)}, []float64{0, s.RMax * math.Sin(th)}, gridColor)
		if err != nil {
			return nil, err
		}
		p.Add(l)
	}
	gridLabels := plotter.XYLabels{}
	for k, r := range s.Grid {
		xs, ys := make([]float64, circlePoints), make([]float64, circlePoints)
		for j := range xs {
			alpha := 2 * math.Pi * float64(j) / float64(circlePoints-1)
			xs[j], ys[j] = r*math.Cos(alpha), r*math.Sin(alpha)
		}
		l, err := line(xs, ys, gridColor)
		if err != nil {
			return nil, err
		}
		p.Add(l)
		rt := r - 0.15*s.RMax
		gridLabels.XYs = append(gridLabels.XYs, plotter.XY{X: rt * math.Cos(0.7), Y: rt * math.Sin(0.7)})
		gridLabels.Labels = append(gridLabels.Labels, s.GridLabels[k])
	}

	for _, sec := range s.Sectors() {
		col := plotutil.Color(sec.Actual)
		wedge := make(plotter.XYs, 0, len(sec.X)+1)
		wedge = append(wedge, plotter.XY{})
		for j := range sec.X {
			wedge = append(wedge, plotter.XY{X: sec.X[j], Y: sec.Y[j]})
		}
		poly, err := plotter.NewPolygon(wedge)
		if err != nil {
			return nil, err
		}
		poly.Color = translucent(col)
		poly.LineStyle.Width = 0
		p.Add(poly)
		arc, err := line(sec.X, sec.Y, col)
		if err != nil {
			return nil, err
		}
		conn, err := line(sec.LineX[:], sec.LineY[:], col)
		if err != nil {
			return nil, err
		}
		p.Add(arc, conn)
	}

	classLabels := plotter.XYLabels{}
	for i, name := range s.Classes {
		th := s.LabelAngle(i)
		x := 1.15 * s.RMax * math.Cos(th)
		if math.Cos(th) >= 0 {
			x += 0.05 * s.RMax
		} else {
			x -= 0.05 * s.RMax
		}
		classLabels.XYs = append(classLabels.XYs, plotter.XY{X: x, Y: 1.15 * s.RMax * math.Sin(th)})
		classLabels.Labels = append(classLabels.Labels, name)
	}
	for _, xyl := range []plotter.XYLabels{gridLabels, classLabels} {
		labels, err := plotter.NewLabels(xyl)
		if err != nil {
			return nil, err
		}
		p.Add(labels)
	}
	return p, nil
}

// SaveStar renders a star to a file. The format follows the file extension.
func SaveStar(s *Star, title, path string) error {
	p, err := StarPlot(s, title)
	if err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// DiagnosisPlot draws the number of stays of the top most frequent diagnoses as a bar chart. A top of 0 or less
// draws every diagnosis.
func DiagnosisPlot(summary []stay.DiagnosisSummary, title string, top int) (*plot.Plot, error) {
	if top <= 0 || top > len(summary) {
		top = len(summary)
	}
	if top == 0 {
		return nil, fmt.Errorf("no diagnoses to plot")
	}
	values := make(plotter.Values, top)
	names := make([]string, top)
	for i, d := range summary[:top] {
		values[i] = float64(d.Count)
		names[i] = d.Code
	}
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "stays"
	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return nil, err
	}
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.Y.Min = 0
	return p, nil
}

// SaveDiagnosisPlot renders the diagnosis bar chart to a file.
func SaveDiagnosisPlot(summary []stay.DiagnosisSummary, title, path string, top int) error {
	p, err := DiagnosisPlot(summary, title, top)
	if err != nil {
		return err
	}
	n := len(summary)
	if top > 0 && top < n {
		n = top
	}
	width := vg.Length(math.Max(6, float64(n)/3)) * vg.Inch
	if err := p.Save(width, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
