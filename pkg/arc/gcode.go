// G2/G3 serialization for fitted arcs.
//
// Copyright (C) 2026  Arc Welder Go Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package arc

import (
	"math"
	"strconv"
	"strings"
)

// GcodeRelative renders the candidate as a single G2/G3 line with a relative
// E word (the sum of the absorbed extrusion increments). A feedrate word is
// appended when f is positive.
func (f *Fitter) GcodeRelative(feedrate float64) string {
	e := 0.0
	for i := 1; i < len(f.points); i++ {
		e += f.points[i].ERelative
	}
	return f.gcode(e, feedrate)
}

// GcodeAbsolute renders the candidate with the caller-supplied absolute end
// E value.
func (f *Fitter) GcodeAbsolute(endE, feedrate float64) string {
	return f.gcode(endE, feedrate)
}

func (f *Fitter) gcode(e, feedrate float64) string {
	var sb strings.Builder
	if f.direction == Clockwise {
		sb.WriteString("G2")
	} else {
		sb.WriteString("G3")
	}

	first := f.points[0]
	last := f.points[len(f.points)-1]

	sb.WriteString(" X")
	sb.WriteString(formatFloat(last.X, f.xyzPrecision))
	sb.WriteString(" Y")
	sb.WriteString(formatFloat(last.Y, f.xyzPrecision))
	if f.opts.Allow3DArcs && math.Abs(last.Z-first.Z) > zEqualityEpsilon {
		sb.WriteString(" Z")
		sb.WriteString(formatFloat(last.Z, f.xyzPrecision))
	}
	sb.WriteString(" I")
	sb.WriteString(formatFloat(f.fitted.CenterX-first.X, f.xyzPrecision))
	sb.WriteString(" J")
	sb.WriteString(formatFloat(f.fitted.CenterY-first.Y, f.xyzPrecision))
	sb.WriteString(" E")
	sb.WriteString(formatFloat(e, f.ePrecision))
	if feedrate > 0 {
		sb.WriteString(" F")
		sb.WriteString(formatFloat(feedrate, 0))
	}
	return sb.String()
}

// formatFloat renders v at the given decimal precision with trailing zeros
// trimmed, the way slicers emit coordinates.
func formatFloat(v float64, precision int) string {
	s := strconv.FormatFloat(v, 'f', precision, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}
