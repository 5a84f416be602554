// Toolhead position state for the arc welder pipeline.
//
// A State is one snapshot of the modal G-code machine: coordinates, offsets,
// axis modes, feedrate and the extruder view derived from the last move.
//
// Copyright (C) 2026  Arc Welder Go Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package position

// Extruder is the extrusion view of one state transition.
type Extruder struct {
	// E is the absolute extruder position, offsets applied.
	E float64

	// ERelative is the extrusion increment of the move that produced this
	// state.
	ERelative float64

	IsExtruding  bool
	IsRetracting bool
}

// State is one position snapshot. Fields mirror what the welder's
// eligibility test compares between consecutive snapshots.
type State struct {
	X, Y, Z float64
	E       float64
	F       float64

	// G92 workspace offsets.
	XOffset, YOffset, ZOffset, EOffset float64

	// M218 firmware hotend offsets.
	XFirmwareOffset, YFirmwareOffset, ZFirmwareOffset float64

	IsRelative         bool
	IsExtruderRelative bool
	IsMetric           bool

	// FeatureTag is the sticky slicer feature marker (";TYPE:..."), empty
	// until one is seen.
	FeatureTag string

	// HasXYChanged is true when the update that produced this state moved
	// the toolhead in X or Y.
	HasXYChanged bool

	Extruder Extruder
}

// GcodeX returns the X coordinate as it would appear in a G-code word.
func (s *State) GcodeX() float64 { return s.X - s.XOffset - s.XFirmwareOffset }

// GcodeY returns the Y coordinate as it would appear in a G-code word.
func (s *State) GcodeY() float64 { return s.Y - s.YOffset - s.YFirmwareOffset }

// GcodeZ returns the Z coordinate as it would appear in a G-code word.
func (s *State) GcodeZ() float64 { return s.Z - s.ZOffset - s.ZFirmwareOffset }

// GcodeE returns the extruder position as it would appear in a G-code word.
func (s *State) GcodeE() float64 { return s.E - s.EOffset }

func newInitialState() State {
	return State{
		IsMetric: true,
		F:        -1,
	}
}
