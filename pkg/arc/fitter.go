// Incremental circular-arc fitting.
//
// The Fitter accumulates successive toolhead points and maintains the circle
// through them, rejecting any point that would push the candidate outside the
// configured tolerances. Rejection leaves the candidate untouched so the
// caller can commit or abort the accumulated arc.
//
// Copyright (C) 2026  Arc Welder Go Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package arc

import "math"

// Direction selects the emitted command: clockwise arcs become G2,
// counterclockwise arcs G3.
type Direction int

const (
	DirectionUnknown Direction = iota
	Clockwise
	CounterClockwise
)

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "clockwise"
	case CounterClockwise:
		return "counterclockwise"
	default:
		return "unknown"
	}
}

// Default fitter limits.
const (
	DefaultMinSegments     = 3
	DefaultXYZPrecision    = 3
	DefaultEPrecision      = 5
	maxTrackedPrecision    = 6
	zEqualityEpsilon       = 1e-6
	duplicatePointEpsilon  = 1e-8
	collinearSweepEpsilon  = 1e-10
)

// Options configures a Fitter.
type Options struct {
	MinSegments int
	MaxSegments int

	// ResolutionMM is the half-width of the circle-fit tolerance band.
	ResolutionMM float64

	// PathToleranceFraction bounds the deviation of each original chord
	// midpoint from the fitted arc, as a fraction of chord length.
	PathToleranceFraction float64

	MaxRadiusMM float64

	// MinArcSegments/MMPerArcSegment model the firmware's own arc
	// re-segmentation; when both are positive, arcs the firmware would
	// render with fewer than MinArcSegments segments are rejected.
	MinArcSegments  int
	MMPerArcSegment float64

	Allow3DArcs bool

	XYZPrecision int
	EPrecision   int
}

// Fitter is the incremental candidate arc.
type Fitter struct {
	opts Options

	points []Point

	fitted    circle
	isArc     bool
	direction Direction

	// shapeLength is the emitted arc's length, maintained while isArc.
	shapeLength float64

	xyzPrecision int
	ePrecision   int

	numFirmwareCompensations int
}

// NewFitter creates an empty fitter.
func NewFitter(opts Options) *Fitter {
	if opts.MinSegments <= 0 {
		opts.MinSegments = DefaultMinSegments
	}
	if opts.XYZPrecision <= 0 {
		opts.XYZPrecision = DefaultXYZPrecision
	}
	if opts.EPrecision <= 0 {
		opts.EPrecision = DefaultEPrecision
	}
	return &Fitter{
		opts:         opts,
		points:       make([]Point, 0, opts.MaxSegments),
		xyzPrecision: opts.XYZPrecision,
		ePrecision:   opts.EPrecision,
	}
}

// NumSegments returns the number of accepted points.
func (f *Fitter) NumSegments() int { return len(f.points) }

// MinSegments returns the configured lower point bound.
func (f *Fitter) MinSegments() int { return f.opts.MinSegments }

// Direction returns the arc direction fixed on the third accepted point.
func (f *Fitter) Direction() Direction { return f.direction }

// Radius returns the fitted circle radius, 0 until a circle is determined.
func (f *Fitter) Radius() float64 {
	if !f.isArc {
		return 0
	}
	return f.fitted.Radius
}

// ShapeLength returns the candidate arc's length along the arc.
func (f *Fitter) ShapeLength() float64 { return f.shapeLength }

// NumFirmwareCompensations counts arcs rejected only by the firmware
// segmentation floor.
func (f *Fitter) NumFirmwareCompensations() int { return f.numFirmwareCompensations }

// XYZPrecision returns the current coordinate output precision.
func (f *Fitter) XYZPrecision() int { return f.xyzPrecision }

// EPrecision returns the current extrusion output precision.
func (f *Fitter) EPrecision() int { return f.ePrecision }

// UpdateXYZPrecision raises the coordinate precision; it never lowers it.
func (f *Fitter) UpdateXYZPrecision(p int) {
	if p > f.xyzPrecision && p <= maxTrackedPrecision {
		f.xyzPrecision = p
	}
}

// UpdateEPrecision raises the extrusion precision; it never lowers it.
func (f *Fitter) UpdateEPrecision(p int) {
	if p > f.ePrecision && p <= maxTrackedPrecision {
		f.ePrecision = p
	}
}

// Clear resets the candidate. Precision and the firmware-compensation
// counter survive: both are stream-scoped, not arc-scoped.
func (f *Fitter) Clear() {
	f.points = f.points[:0]
	f.fitted = circle{}
	f.isArc = false
	f.direction = DirectionUnknown
	f.shapeLength = 0
}

// IsShape reports whether the candidate is committable as a G2/G3.
func (f *Fitter) IsShape() bool {
	if !f.isArc || len(f.points) < f.opts.MinSegments {
		return false
	}
	if f.firmwareCompensationActive() && len(f.points) < f.opts.MinArcSegments {
		return false
	}
	return true
}

func (f *Fitter) firmwareCompensationActive() bool {
	return f.opts.MinArcSegments > 0 && f.opts.MMPerArcSegment > 0
}

// TryAddPoint appends p to the candidate if every validity condition still
// holds. On rejection the candidate is left exactly as it was; only the
// firmware-compensation counter may advance.
func (f *Fitter) TryAddPoint(p Point) bool {
	if f.opts.MaxSegments > 0 && len(f.points) >= f.opts.MaxSegments {
		return false
	}
	if len(f.points) > 0 {
		last := f.points[len(f.points)-1]
		var d float64
		if f.opts.Allow3DArcs {
			d = distance3D(last, p)
		} else {
			d = distanceXY(last, p)
		}
		if d <= duplicatePointEpsilon {
			return false
		}
	}

	f.points = append(f.points, p)
	if len(f.points) < 3 {
		return true
	}

	saved := f.fitted
	savedArc := f.isArc
	savedDir := f.direction
	savedLen := f.shapeLength

	if f.tryFit() {
		return true
	}

	f.points = f.points[:len(f.points)-1]
	f.fitted = saved
	f.isArc = savedArc
	f.direction = savedDir
	f.shapeLength = savedLen
	return false
}

// tryFit recomputes the candidate circle over the current point list and
// validates every condition. It returns false leaving derived state dirty;
// the caller restores it.
func (f *Fitter) tryFit() bool {
	if !f.zAxisOK() {
		return false
	}

	n := len(f.points)
	c, ok := circleFrom3Points(f.points[0], f.points[n/2], f.points[n-1])
	if ok && !f.allWithinBand(c) {
		ok = false
	}
	if !ok {
		// Refinement fallback: a previously determined circle may still
		// hold every point including the new one.
		if !f.isArc || !f.allWithinBand(f.fitted) {
			return false
		}
		c = f.fitted
	}

	if c.Radius > f.opts.MaxRadiusMM {
		return false
	}

	dir, sweep, ok := f.sweepOf(c)
	if !ok {
		return false
	}
	if f.direction != DirectionUnknown && dir != f.direction {
		return false
	}

	if !f.pathToleranceOK(c) {
		return false
	}

	length := c.Radius * sweep
	if f.opts.Allow3DArcs {
		dz := f.points[n-1].Z - f.points[0].Z
		if dz != 0 {
			length = math.Hypot(length, dz)
		}
	}

	if f.firmwareCompensationActive() {
		if length/f.opts.MMPerArcSegment < float64(f.opts.MinArcSegments) {
			f.numFirmwareCompensations++
			return false
		}
	}

	f.fitted = c
	f.isArc = true
	f.direction = dir
	f.shapeLength = length
	return true
}

func (f *Fitter) zAxisOK() bool {
	if !f.opts.Allow3DArcs {
		z := f.points[0].Z
		for i := 1; i < len(f.points); i++ {
			if math.Abs(f.points[i].Z-z) > zEqualityEpsilon {
				return false
			}
		}
		return true
	}
	// Helical arcs interpolate Z linearly, so Z must advance one way only.
	sign := 0.0
	for i := 1; i < len(f.points); i++ {
		dz := f.points[i].Z - f.points[i-1].Z
		if math.Abs(dz) <= zEqualityEpsilon {
			continue
		}
		if sign == 0 {
			sign = dz
		} else if sign*dz < 0 {
			return false
		}
	}
	return true
}

func (f *Fitter) allWithinBand(c circle) bool {
	for i := range f.points {
		if !c.withinBand(f.points[i], f.opts.ResolutionMM) {
			return false
		}
	}
	return true
}

// sweepOf verifies monotone angular travel and returns the arc direction and
// the total unsigned sweep.
func (f *Fitter) sweepOf(c circle) (Direction, float64, bool) {
	total := 0.0
	sign := 0.0
	prev := c.angleOf(f.points[0])
	for i := 1; i < len(f.points); i++ {
		cur := c.angleOf(f.points[i])
		d := angleDelta(prev, cur)
		if math.Abs(d) <= collinearSweepEpsilon {
			return DirectionUnknown, 0, false
		}
		if sign == 0 {
			sign = d
		} else if sign*d < 0 {
			return DirectionUnknown, 0, false
		}
		total += math.Abs(d)
		prev = cur
	}
	if total >= 2*math.Pi {
		return DirectionUnknown, 0, false
	}
	dir := CounterClockwise
	if sign < 0 {
		dir = Clockwise
	}
	return dir, total, true
}

// pathToleranceOK bounds the bulge between the fitted arc and every original
// chord: the chord midpoint may deviate from the arc by at most the
// configured fraction of the chord length.
func (f *Fitter) pathToleranceOK(c circle) bool {
	for i := 1; i < len(f.points); i++ {
		a := f.points[i-1]
		b := f.points[i]
		chord := distanceXY(a, b)
		if chord <= duplicatePointEpsilon {
			continue
		}
		mid := Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
		deviation := math.Abs(c.Radius - c.distanceToCenter(mid))
		if deviation > f.opts.PathToleranceFraction*chord {
			return false
		}
	}
	return true
}
