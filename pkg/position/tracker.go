// Modal G-code position tracking.
//
// The Tracker applies each parsed command to a snapshot ring so the welder
// can compare the previous and current machine state, and roll back exactly
// one step when a committed arc forces the triggering command to be
// reprocessed.
//
// Copyright (C) 2026  Arc Welder Go Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package position

import (
	"strings"

	"arc-welder-go/pkg/gcode"
)

const (
	inchesToMM = 25.4

	// coordinateEpsilon matches the printing resolution of the densest
	// slicers; coordinate comparisons below this are equality.
	coordinateEpsilon = 1e-8
)

// Tracker maintains a bounded history of position snapshots.
type Tracker struct {
	g90InfluencesExtruder bool

	states  []State
	maxSize int
}

// NewTracker creates a tracker with the given snapshot buffer size.
func NewTracker(g90InfluencesExtruder bool, bufferSize int) *Tracker {
	if bufferSize < 2 {
		bufferSize = 2
	}
	t := &Tracker{
		g90InfluencesExtruder: g90InfluencesExtruder,
		maxSize:               bufferSize,
	}
	initial := newInitialState()
	t.states = append(t.states, initial, initial)
	return t
}

// Current returns the most recent snapshot.
func (t *Tracker) Current() *State { return &t.states[len(t.states)-1] }

// Previous returns the snapshot before the most recent update.
func (t *Tracker) Previous() *State { return &t.states[len(t.states)-2] }

// UndoUpdate discards the most recent snapshot. Only one level of undo is
// ever needed: the welder rolls back the command that triggered an arc
// commit before reprocessing it.
func (t *Tracker) UndoUpdate() {
	if len(t.states) > 2 {
		t.states = t.states[:len(t.states)-1]
	}
}

// Update applies one parsed command, pushing a new current snapshot.
func (t *Tracker) Update(cmd *gcode.Command) {
	next := *t.Current()
	next.HasXYChanged = false
	next.Extruder.ERelative = 0
	next.Extruder.IsExtruding = false
	next.Extruder.IsRetracting = false

	if tag, ok := featureTag(cmd.Comment); ok {
		next.FeatureTag = tag
	}

	if !cmd.IsEmpty && cmd.IsKnown {
		t.apply(cmd, &next)
	}

	prev := t.Current()
	next.Extruder.E = next.GcodeE()
	next.Extruder.ERelative = next.E - prev.E
	next.Extruder.IsExtruding = next.Extruder.ERelative > coordinateEpsilon
	next.Extruder.IsRetracting = next.Extruder.ERelative < -coordinateEpsilon
	next.HasXYChanged = !isEqual(next.X, prev.X) || !isEqual(next.Y, prev.Y)

	t.states = append(t.states, next)
	if len(t.states) > t.maxSize {
		copy(t.states, t.states[1:])
		t.states = t.states[:len(t.states)-1]
	}
}

func (t *Tracker) apply(cmd *gcode.Command, next *State) {
	switch cmd.Name {
	case "G0", "G1", "G2", "G3":
		t.applyMove(cmd, next)
	case "G20":
		next.IsMetric = false
	case "G21":
		next.IsMetric = true
	case "G28":
		applyHome(cmd, next)
	case "G90":
		next.IsRelative = false
		if t.g90InfluencesExtruder {
			next.IsExtruderRelative = false
		}
	case "G91":
		next.IsRelative = true
		if t.g90InfluencesExtruder {
			next.IsExtruderRelative = true
		}
	case "G92":
		applySetPosition(cmd, next)
	case "M82":
		next.IsExtruderRelative = false
	case "M83":
		next.IsExtruderRelative = true
	case "M218":
		applyFirmwareOffset(cmd, next)
	}
}

// applyMove handles G0/G1 axis words; G2/G3 endpoints follow the same rules,
// which keeps the tracker correct when run over already-welded output.
func (t *Tracker) applyMove(cmd *gcode.Command, next *State) {
	scale := 1.0
	if !next.IsMetric {
		scale = inchesToMM
	}
	for i := range cmd.Params {
		p := &cmd.Params[i]
		v := p.Value * scale
		switch p.Letter {
		case 'X':
			if next.IsRelative {
				next.X += v
			} else {
				next.X = v + next.XOffset + next.XFirmwareOffset
			}
		case 'Y':
			if next.IsRelative {
				next.Y += v
			} else {
				next.Y = v + next.YOffset + next.YFirmwareOffset
			}
		case 'Z':
			if next.IsRelative {
				next.Z += v
			} else {
				next.Z = v + next.ZOffset + next.ZFirmwareOffset
			}
		case 'E':
			if next.IsExtruderRelative {
				next.E += v
			} else {
				next.E = v + next.EOffset
			}
		case 'F':
			if v > 0 {
				next.F = v
			}
		}
	}
}

func applyHome(cmd *gcode.Command, next *State) {
	homeX := cmd.Has('X')
	homeY := cmd.Has('Y')
	homeZ := cmd.Has('Z')
	if !homeX && !homeY && !homeZ {
		homeX, homeY, homeZ = true, true, true
	}
	if homeX {
		next.X = next.XOffset + next.XFirmwareOffset
	}
	if homeY {
		next.Y = next.YOffset + next.YFirmwareOffset
	}
	if homeZ {
		next.Z = next.ZOffset + next.ZFirmwareOffset
	}
}

// applySetPosition adjusts offsets so the gcode-visible coordinate becomes
// the commanded value without moving the toolhead.
func applySetPosition(cmd *gcode.Command, next *State) {
	scale := 1.0
	if !next.IsMetric {
		scale = inchesToMM
	}
	anySet := false
	for i := range cmd.Params {
		p := &cmd.Params[i]
		v := p.Value * scale
		switch p.Letter {
		case 'X':
			next.XOffset = next.X - next.XFirmwareOffset - v
			anySet = true
		case 'Y':
			next.YOffset = next.Y - next.YFirmwareOffset - v
			anySet = true
		case 'Z':
			next.ZOffset = next.Z - next.ZFirmwareOffset - v
			anySet = true
		case 'E':
			next.EOffset = next.E - v
			anySet = true
		}
	}
	if !anySet {
		next.XOffset = next.X - next.XFirmwareOffset
		next.YOffset = next.Y - next.YFirmwareOffset
		next.ZOffset = next.Z - next.ZFirmwareOffset
		next.EOffset = next.E
	}
}

func applyFirmwareOffset(cmd *gcode.Command, next *State) {
	if v, ok := cmd.Float('X'); ok {
		next.XFirmwareOffset = v
	}
	if v, ok := cmd.Float('Y'); ok {
		next.YFirmwareOffset = v
	}
	if v, ok := cmd.Float('Z'); ok {
		next.ZFirmwareOffset = v
	}
}

// featureTag recognizes slicer feature markers in comments. Both the
// ";TYPE:Outer wall" (Cura, PrusaSlicer) and "; feature outer perimeter"
// (Simplify3D) forms are tracked.
func featureTag(comment string) (string, bool) {
	if comment == "" {
		return "", false
	}
	if strings.HasPrefix(comment, "TYPE:") {
		return strings.TrimSpace(comment[len("TYPE:"):]), true
	}
	if strings.HasPrefix(comment, "feature ") {
		return strings.TrimSpace(comment[len("feature "):]), true
	}
	return "", false
}

func isEqual(a, b float64) bool {
	d := a - b
	return d < coordinateEpsilon && d > -coordinateEpsilon
}
