// Arc welder controller.
//
// Streams a G-code file through the position tracker and the arc fitter,
// replacing runs of short linear moves with single G2/G3 commands while
// preserving every line it cannot convert, byte for byte.
//
// Copyright (C) 2026  Arc Welder Go Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package welder

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"arc-welder-go/pkg/arc"
	"arc-welder-go/pkg/errors"
	"arc-welder-go/pkg/gcode"
	"arc-welder-go/pkg/log"
	"arc-welder-go/pkg/pool"
	"arc-welder-go/pkg/position"
)

// Default engine settings.
const (
	DefaultResolutionMM         = 0.05
	DefaultPathTolerancePercent = 0.05
	DefaultMaxRadiusMM          = 1000000.0
	DefaultBufferSize           = 1000

	// The fitter and the position tracker share the command buffer; a
	// few slots are reserved so neither can starve the other.
	bufferReserve = 5

	// Progress updates are throttled: the clock is only consulted every
	// readLinesBeforeClockCheck lines.
	readLinesBeforeClockCheck = 1000

	notificationPeriod = time.Second
)

// Options configures one conversion run.
type Options struct {
	SourcePath string
	TargetPath string

	// ResolutionMM is the half-width of the circle-fit tolerance band.
	ResolutionMM float64

	// PathTolerancePercent is the allowed chord-midpoint deviation as a
	// fraction of chord length (0.05 = 5%).
	PathTolerancePercent float64

	MaxRadiusMM float64

	// Firmware compensation: when both are positive, arcs the firmware
	// would render with fewer than MinArcSegments straight segments are
	// not emitted.
	MinArcSegments  int
	MMPerArcSegment float64

	G90G91InfluencesExtruder bool
	Allow3DArcs              bool
	AllowDynamicPrecision    bool

	DefaultXYZPrecision int
	DefaultEPrecision   int

	// BufferSize bounds both the unwritten-command queue and the arc
	// length in points.
	BufferSize int

	OnProgress ProgressCallback

	Logger *log.Logger
}

// DefaultOptions returns the standard engine settings for a source/target
// pair.
func DefaultOptions(sourcePath, targetPath string) Options {
	return Options{
		SourcePath:           sourcePath,
		TargetPath:           targetPath,
		ResolutionMM:         DefaultResolutionMM,
		PathTolerancePercent: DefaultPathTolerancePercent,
		MaxRadiusMM:          DefaultMaxRadiusMM,
		DefaultXYZPrecision:  arc.DefaultXYZPrecision,
		DefaultEPrecision:    arc.DefaultEPrecision,
		BufferSize:           DefaultBufferSize,
	}
}

// Validate checks option ranges before a run.
func (o *Options) Validate() error {
	if o.SourcePath == "" {
		return errors.OptionValidationError("source", "path is required")
	}
	if o.TargetPath == "" {
		return errors.OptionValidationError("target", "path is required")
	}
	if o.SourcePath == o.TargetPath {
		return errors.OptionValidationError("target", "must differ from the source path")
	}
	if o.ResolutionMM <= 0 {
		return errors.OptionValidationError("resolution-mm", "must be positive")
	}
	if o.PathTolerancePercent <= 0 || o.PathTolerancePercent >= 1 {
		return errors.OptionValidationError("path-tolerance-percent", "must be a fraction between 0 and 1")
	}
	if o.MaxRadiusMM <= 0 {
		return errors.OptionValidationError("max-radius-mm", "must be positive")
	}
	if o.MinArcSegments < 0 {
		return errors.OptionValidationError("min-arc-segments", "must not be negative")
	}
	if o.MMPerArcSegment < 0 {
		return errors.OptionValidationError("mm-per-arc-segment", "must not be negative")
	}
	if o.BufferSize < 10 {
		return errors.OptionValidationError("buffer-size", "must be at least 10")
	}
	if o.DefaultXYZPrecision < 0 || o.DefaultXYZPrecision > 6 {
		return errors.OptionValidationError("default-xyz-precision", "must be between 0 and 6")
	}
	if o.DefaultEPrecision < 0 || o.DefaultEPrecision > 6 {
		return errors.OptionValidationError("default-e-precision", "must be between 0 and 6")
	}
	return nil
}

// Welder converts one source file into one target file.
type Welder struct {
	opts   Options
	logger *log.Logger

	tracker   *position.Tracker
	fitter    *arc.Fitter
	unwritten *commandBuffer
	stats     *SegmentStatistics

	out         *bufio.Writer
	targetBytes int64
	writeErr    error

	linesProcessed   int64
	gcodesProcessed  int64
	pointsCompressed int64
	arcsCreated      int64

	waitingForArc              bool
	previousFeedrate           float64
	previousIsExtruderRelative bool

	debugEnabled   bool
	verboseEnabled bool
}

// New creates a Welder. Options are validated in Process.
func New(opts Options) *Welder {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger("welder")
	}
	return &Welder{
		opts:   opts,
		logger: logger,
	}
}

// Process runs the conversion. All file handles are released on every exit
// path; the returned Results carries the final progress snapshot.
func (w *Welder) Process() Results {
	var results Results

	if err := w.opts.Validate(); err != nil {
		results.Message = err.Error()
		return results
	}

	w.debugEnabled = w.logger.IsLevelEnabled(log.DEBUG)
	w.verboseEnabled = w.logger.IsLevelEnabled(log.VERBOSE)

	w.tracker = position.NewTracker(w.opts.G90G91InfluencesExtruder, w.opts.BufferSize)
	w.fitter = arc.NewFitter(arc.Options{
		MinSegments:           arc.DefaultMinSegments,
		MaxSegments:           w.opts.BufferSize - bufferReserve,
		ResolutionMM:          w.opts.ResolutionMM,
		PathToleranceFraction: w.opts.PathTolerancePercent,
		MaxRadiusMM:           w.opts.MaxRadiusMM,
		MinArcSegments:        w.opts.MinArcSegments,
		MMPerArcSegment:       w.opts.MMPerArcSegment,
		Allow3DArcs:           w.opts.Allow3DArcs,
		XYZPrecision:          w.opts.DefaultXYZPrecision,
		EPrecision:            w.opts.DefaultEPrecision,
	})
	w.unwritten = newCommandBuffer(w.opts.BufferSize)
	w.stats = NewSegmentStatistics()
	w.targetBytes = 0
	w.writeErr = nil
	w.linesProcessed = 0
	w.gcodesProcessed = 0
	w.pointsCompressed = 0
	w.arcsCreated = 0
	w.waitingForArc = false
	w.previousFeedrate = -1
	w.previousIsExtruderRelative = false

	w.logger.InfoFields("Starting arc conversion", log.Fields{
		"source":          w.opts.SourcePath,
		"target":          w.opts.TargetPath,
		"resolution_mm":   w.opts.ResolutionMM,
		"path_tolerance":  w.opts.PathTolerancePercent,
		"max_radius_mm":   w.opts.MaxRadiusMM,
		"allow_3d_arcs":   w.opts.Allow3DArcs,
		"min_arc_segments": w.opts.MinArcSegments,
	})

	source, err := os.Open(w.opts.SourcePath)
	if err != nil {
		werr := errors.SourceOpenError(w.opts.SourcePath, err)
		w.logger.Error(werr.Error())
		results.Message = werr.Message
		return results
	}
	defer source.Close()

	var sourceSize int64
	if info, err := source.Stat(); err == nil {
		sourceSize = info.Size()
	}

	target, err := os.Create(w.opts.TargetPath)
	if err != nil {
		werr := errors.TargetOpenError(w.opts.TargetPath, err)
		w.logger.Error(werr.Error())
		results.Message = werr.Message
		return results
	}
	defer target.Close()

	w.out = bufio.NewWriter(target)
	w.writeHeader()

	start := time.Now()
	nextUpdate := start.Add(notificationPeriod)
	var sourcePosition int64

	continueProcessing := true
	if w.opts.OnProgress != nil {
		continueProcessing = w.opts.OnProgress(w.progress(sourcePosition, sourceSize, start))
	}

	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for continueProcessing && scanner.Scan() {
		line := scanner.Text()
		sourcePosition += int64(len(scanner.Bytes())) + 1
		w.linesProcessed++

		cmd := gcode.Parse(line)
		if w.verboseEnabled {
			w.logger.Verbose("Parsing: %s", line)
		}
		hasGcode := cmd.Name != ""
		if hasGcode {
			w.gcodesProcessed++
		}

		w.processCommand(&cmd, false)
		if w.writeErr != nil {
			break
		}

		if hasGcode && w.opts.OnProgress != nil &&
			w.linesProcessed%readLinesBeforeClockCheck == 0 && time.Now().After(nextUpdate) {
			continueProcessing = w.opts.OnProgress(w.progress(sourcePosition, sourceSize, start))
			nextUpdate = time.Now().Add(notificationPeriod)
		}
	}

	cancelled := !continueProcessing

	if w.writeErr == nil {
		if cancelled {
			// Cooperative cancel: no final arc is committed, pending
			// lines are flushed verbatim so nothing is lost.
			if w.waitingForArc {
				w.fitter.Clear()
				w.waitingForArc = false
			}
		} else {
			w.finish()
		}
		w.writeUnwritten()
	}

	flushErr := w.out.Flush()
	if w.writeErr == nil && flushErr != nil {
		w.writeErr = flushErr
	}

	finalPos := sourcePosition
	if !cancelled && w.writeErr == nil {
		finalPos = sourceSize
	}
	results.Progress = w.progress(finalPos, sourceSize, start)
	if w.opts.OnProgress != nil {
		w.opts.OnProgress(results.Progress)
	}

	switch {
	case w.writeErr != nil:
		werr := errors.TargetWriteError(w.opts.TargetPath, w.writeErr)
		w.logger.Error(werr.Error())
		results.Message = werr.Message
	case scanner.Err() != nil:
		results.Message = fmt.Sprintf("Error reading the source file: %v", scanner.Err())
	case cancelled:
		results.Cancelled = true
		results.Message = "Processing cancelled."
	default:
		results.Success = true
	}

	w.logger.InfoFields("Arc conversion finished", log.Fields{
		"success":           results.Success,
		"cancelled":         results.Cancelled,
		"arcs_created":      w.arcsCreated,
		"points_compressed": w.pointsCompressed,
	})
	return results
}

// finish commits the trailing candidate at end of stream.
func (w *Welder) finish() {
	if !w.waitingForArc {
		return
	}
	if w.fitter.IsShape() {
		w.logger.Debug("Processing final shape.")
		cur := w.tracker.Current()
		w.pointsCompressed += int64(w.fitter.NumSegments() - 1)
		w.arcsCreated++
		w.writeArcGcodes(cur.F, cur.IsExtruderRelative, cur.GcodeE(), false)
	} else {
		w.fitter.Clear()
		w.waitingForArc = false
	}
}

// processCommand pushes one parsed command through the eligibility test and
// the fitter. isReprocess marks the single re-entry after an arc commit.
func (w *Welder) processCommand(cmd *gcode.Command, isReprocess bool) {
	w.tracker.Update(cmd)
	cur := w.tracker.Current()
	prev := w.tracker.Previous()

	isG0G1 := cmd.Name == "G0" || cmd.Name == "G1"

	if w.opts.AllowDynamicPrecision && isG0G1 {
		for i := range cmd.Params {
			switch cmd.Params[i].Letter {
			case 'X', 'Y', 'Z':
				w.fitter.UpdateXYZPrecision(cmd.Params[i].Precision)
			case 'E':
				w.fitter.UpdateEPrecision(cmd.Params[i].Precision)
			}
		}
	}

	// Movement length of this step, for statistics and for the fitter.
	var movementLength float64
	eChanged := cur.Extruder.IsExtruding || cur.Extruder.IsRetracting
	if cur.HasXYChanged && eChanged {
		if w.opts.Allow3DArcs {
			movementLength = cartesianDistance3D(prev, cur)
		} else {
			movementLength = cartesianDistance2D(prev, cur)
		}
		if movementLength > 0 && !isReprocess {
			w.stats.UpdateSource(movementLength)
		}
	}

	arcAdded := false
	if w.isEligible(cmd, prev, cur, isG0G1) {
		p := arc.Point{
			X:          cur.GcodeX(),
			Y:          cur.GcodeY(),
			Z:          cur.GcodeZ(),
			ERelative:  cur.Extruder.ERelative,
			DistanceMM: movementLength,
		}
		if !w.waitingForArc {
			w.previousIsExtruderRelative = prev.IsExtruderRelative
			if w.debugEnabled {
				w.logger.Debug("Starting new arc from Gcode: %s", cmd.Gcode)
			}
			w.writeUnwritten()
			// The previous position seeds the arc; its extrusion is
			// never re-emitted.
			w.fitter.TryAddPoint(arc.Point{
				X:         prev.GcodeX(),
				Y:         prev.GcodeY(),
				Z:         prev.GcodeZ(),
				ERelative: prev.Extruder.ERelative,
			})
		}
		numPoints := w.fitter.NumSegments()
		arcAdded = w.fitter.TryAddPoint(p)
		if arcAdded {
			if !w.waitingForArc {
				w.waitingForArc = true
				w.previousFeedrate = prev.F
			} else if w.debugEnabled && numPoints+1 == w.fitter.NumSegments() {
				w.logger.Debug("Adding point to arc from Gcode: %s", cmd.Gcode)
			}
		}
	} else if w.debugEnabled {
		w.logRejection(cmd, prev, cur, isG0G1)
	}

	blankLine := cmd.IsEmpty && cmd.Comment == ""
	if !arcAdded && (!blankLine || w.waitingForArc) {
		if w.fitter.NumSegments() < w.fitter.MinSegments() {
			if w.debugEnabled && !cmd.IsEmpty && w.fitter.NumSegments() != 0 {
				w.logger.Debug("Not enough segments, resetting. Gcode: %s", cmd.Gcode)
			}
			w.waitingForArc = false
			w.fitter.Clear()
		} else if w.waitingForArc {
			if w.fitter.IsShape() {
				w.pointsCompressed += int64(w.fitter.NumSegments() - 1)
				w.arcsCreated++
				w.writeArcGcodes(prev.F, prev.IsExtruderRelative, prev.GcodeE(), true)

				// The triggering command was rolled back with the
				// tracker; run it through the pipeline once more. The
				// engine is idle now, so this cannot recurse again.
				w.processCommand(cmd, true)
				return
			}
			if w.debugEnabled {
				w.logger.Debug("The current arc is not a valid arc, resetting.")
			}
			w.fitter.Clear()
			w.waitingForArc = false
		} else if w.debugEnabled && !cmd.IsEmpty {
			w.logger.Debug("Could not add point to arc from Gcode: %s", cmd.Gcode)
		}
	}

	if w.waitingForArc || !arcAdded {
		extrusionLength := 0.0
		if eChanged {
			extrusionLength = movementLength
		}
		w.unwritten.PushBack(unwrittenCommand{
			Text:            cmd.Gcode,
			Comment:         cmd.Comment,
			ExtrusionLength: extrusionLength,
		})
	}
	if !w.waitingForArc {
		w.writeUnwritten()
	}
}

// isEligible applies the arc-eligibility test from the conversion rules.
func (w *Welder) isEligible(cmd *gcode.Command, prev, cur *position.State, isG0G1 bool) bool {
	if cmd.IsEmpty || !cmd.IsKnown || !isG0G1 {
		return false
	}
	if !w.opts.Allow3DArcs && !floatsEqual(cur.Z, prev.Z) {
		return false
	}
	if cur.IsRelative {
		return false
	}
	if !floatsEqual(cur.XOffset, prev.XOffset) ||
		!floatsEqual(cur.YOffset, prev.YOffset) ||
		!floatsEqual(cur.ZOffset, prev.ZOffset) ||
		!floatsEqual(cur.XFirmwareOffset, prev.XFirmwareOffset) ||
		!floatsEqual(cur.YFirmwareOffset, prev.YFirmwareOffset) ||
		!floatsEqual(cur.ZFirmwareOffset, prev.ZFirmwareOffset) {
		return false
	}
	if cur.IsExtruderRelative != prev.IsExtruderRelative {
		return false
	}
	if w.waitingForArc {
		if !cur.Extruder.IsExtruding &&
			!(prev.Extruder.IsRetracting && cur.Extruder.IsRetracting) {
			return false
		}
		if prev.F != cur.F {
			return false
		}
		if prev.FeatureTag != cur.FeatureTag {
			return false
		}
	}
	return true
}

// logRejection explains at DEBUG/VERBOSE why a line was not arc-eligible,
// one distinct message per reason.
func (w *Welder) logRejection(cmd *gcode.Command, prev, cur *position.State, isG0G1 bool) {
	switch {
	case cmd.IsEmpty:
		// Comments and blank lines are just buffered.
	case !cmd.IsKnown:
		w.logger.Debug("Command '%s' is unknown. Gcode: %s", cmd.Name, cmd.Gcode)
	case !isG0G1:
		w.logger.Debug("Command '%s' is not G0/G1, skipping. Gcode: %s", cmd.Name, cmd.Gcode)
	case !w.opts.Allow3DArcs && !floatsEqual(cur.Z, prev.Z):
		w.logger.Debug("Z axis position changed, cannot convert: %s", cmd.Gcode)
	case cur.IsRelative:
		w.logger.Debug("XYZ axis is in relative mode, cannot convert: %s", cmd.Gcode)
	case !floatsEqual(cur.XOffset, prev.XOffset) ||
		!floatsEqual(cur.YOffset, prev.YOffset) ||
		!floatsEqual(cur.ZOffset, prev.ZOffset) ||
		!floatsEqual(cur.XFirmwareOffset, prev.XFirmwareOffset) ||
		!floatsEqual(cur.YFirmwareOffset, prev.YFirmwareOffset) ||
		!floatsEqual(cur.ZFirmwareOffset, prev.ZFirmwareOffset):
		w.logger.Debug("Coordinate offsets changed, cannot convert: %s", cmd.Gcode)
	case w.waitingForArc && !cur.Extruder.IsExtruding &&
		!(prev.Extruder.IsRetracting && cur.Extruder.IsRetracting):
		if w.verboseEnabled {
			w.logger.VerboseFields("Extruding or retracting state changed, cannot add point to current arc: "+cmd.Gcode, log.Fields{
				"current_e":          cur.Extruder.E,
				"current_e_relative": cur.Extruder.ERelative,
				"current_extruding":  cur.Extruder.IsExtruding,
				"current_retracting": cur.Extruder.IsRetracting,
				"previous_e":          prev.Extruder.E,
				"previous_extruding":  prev.Extruder.IsExtruding,
				"previous_retracting": prev.Extruder.IsRetracting,
			})
		} else {
			w.logger.Debug("Extruding or retracting state changed, cannot add point to current arc: %s", cmd.Gcode)
		}
	case cur.IsExtruderRelative != prev.IsExtruderRelative:
		w.logger.Debug("Extruder axis mode changed, cannot add point to current arc: %s", cmd.Gcode)
	case w.waitingForArc && prev.F != cur.F:
		w.logger.Debug("Feedrate changed, cannot add point to current arc: %s", cmd.Gcode)
	case w.waitingForArc && prev.FeatureTag != cur.FeatureTag:
		w.logger.Debug("Feature type changed, cannot add point to current arc: %s", cmd.Gcode)
	default:
		w.logger.Debug("There was an unknown issue preventing the current point from being added to the arc: %s", cmd.Gcode)
	}
}

// writeArcGcodes emits the committed candidate: absorbed entries leave the
// buffer, anything older is flushed first, then the single G2/G3 line.
func (w *Welder) writeArcGcodes(currentFeedrate float64, isExtruderRelative bool, endE float64, undo bool) {
	comment := w.commentForArc()

	// The first accepted point is the arc's start, not a movement of its
	// own; every later point came from one buffered command.
	for i := 0; i < w.fitter.NumSegments()-1; i++ {
		w.unwritten.PopBack()
	}

	if undo {
		// The triggering command is not part of the arc; roll it back so
		// reprocessing applies its effects exactly once.
		w.tracker.UndoUpdate()
	}

	if w.previousFeedrate > 0 && w.previousFeedrate == currentFeedrate {
		currentFeedrate = 0
	}

	var line string
	if w.previousIsExtruderRelative {
		line = w.fitter.GcodeRelative(currentFeedrate)
	} else {
		line = w.fitter.GcodeAbsolute(endE, currentFeedrate)
	}
	if comment != "" {
		line += ";" + comment
	}

	if w.debugEnabled {
		w.logger.Debug("Arc created with %d segments: %s", w.fitter.NumSegments(), line)
	}

	w.writeUnwritten()
	w.stats.UpdateTarget(w.fitter.ShapeLength())
	w.writeLine(line)

	w.waitingForArc = false
	w.fitter.Clear()
}

// commentForArc merges the distinct trailing comments of the absorbed
// commands into one.
func (w *Welder) commentForArc() string {
	start := w.unwritten.Count() - (w.fitter.NumSegments() - 1)
	if start < 0 {
		start = 0
	}
	var merged string
	seen := make(map[string]bool)
	for i := start; i < w.unwritten.Count(); i++ {
		c := w.unwritten.At(i).Comment
		if c != "" && !seen[c] {
			seen[c] = true
			if merged != "" {
				merged += " - "
			}
			merged += c
		}
	}
	return merged
}

// writeUnwritten drains the deferred-output buffer to the target file.
func (w *Welder) writeUnwritten() {
	n := w.unwritten.Count()
	if n == 0 {
		return
	}
	sb := pool.GetBuilder()
	defer pool.PutBuilder(sb)
	for i := 0; i < n; i++ {
		c := w.unwritten.PopFront()
		if c.ExtrusionLength > 0 {
			w.stats.UpdateTarget(c.ExtrusionLength)
		}
		sb.WriteString(c.Text)
		sb.WriteByte('\n')
	}
	w.writeString(sb.String())
}

func (w *Welder) writeLine(line string) {
	w.writeString(line + "\n")
}

func (w *Welder) writeString(s string) {
	if w.writeErr != nil {
		return
	}
	n, err := w.out.WriteString(s)
	w.targetBytes += int64(n)
	if err != nil {
		w.writeErr = err
	}
}

// writeHeader emits the deterministic configuration block at the top of the
// target file.
func (w *Welder) writeHeader() {
	var sb strings.Builder
	sb.WriteString("; Postprocessed by arc-welder-go: G0/G1 runs compressed into G2/G3 arcs\n")
	sb.WriteString("; Copyright (C) 2026 Arc Welder Go Team\n")
	sb.WriteString(fmt.Sprintf("; resolution=%.2fmm\n", w.opts.ResolutionMM))
	sb.WriteString(fmt.Sprintf("; path_tolerance=%.0f%%\n", w.opts.PathTolerancePercent*100))
	sb.WriteString(fmt.Sprintf("; max_radius=%.2fmm\n", w.opts.MaxRadiusMM))
	if w.opts.G90G91InfluencesExtruder {
		sb.WriteString("; g90_influences_extruder=True\n")
	}
	if w.opts.MMPerArcSegment > 0 && w.opts.MinArcSegments > 0 {
		sb.WriteString("; firmware_compensation=True\n")
		sb.WriteString(fmt.Sprintf("; mm_per_arc_segment=%.2fmm\n", w.opts.MMPerArcSegment))
		sb.WriteString(fmt.Sprintf("; min_arc_segments=%d\n", w.opts.MinArcSegments))
	}
	if w.opts.Allow3DArcs {
		sb.WriteString("; allow_3d_arcs=True\n")
	}
	if w.opts.AllowDynamicPrecision {
		sb.WriteString("; allow_dynamic_precision=True\n")
	}
	sb.WriteString(fmt.Sprintf("; default_xyz_precision=%d\n", w.fitterXYZPrecision()))
	sb.WriteString(fmt.Sprintf("; default_e_precision=%d\n", w.fitterEPrecision()))
	sb.WriteString("\n")
	w.writeString(sb.String())
}

func (w *Welder) fitterXYZPrecision() int {
	if w.opts.DefaultXYZPrecision > 0 {
		return w.opts.DefaultXYZPrecision
	}
	return arc.DefaultXYZPrecision
}

func (w *Welder) fitterEPrecision() int {
	if w.opts.DefaultEPrecision > 0 {
		return w.opts.DefaultEPrecision
	}
	return arc.DefaultEPrecision
}

func (w *Welder) progress(sourcePosition, sourceSize int64, start time.Time) Progress {
	p := Progress{
		LinesProcessed:           w.linesProcessed,
		GcodesProcessed:          w.gcodesProcessed,
		PointsCompressed:         w.pointsCompressed,
		ArcsCreated:              w.arcsCreated,
		SourceFilePosition:       sourcePosition,
		SourceFileSize:           sourceSize,
		TargetFileSize:           w.targetBytes,
		SecondsElapsed:           time.Since(start).Seconds(),
		NumFirmwareCompensations: w.fitter.NumFirmwareCompensations(),
		SegmentStatistics:        w.stats,
	}
	if sourceSize > 0 {
		p.PercentComplete = float64(sourcePosition) / float64(sourceSize) * 100
	}
	if p.SecondsElapsed > 0 && sourcePosition > 0 {
		bytesPerSecond := float64(sourcePosition) / p.SecondsElapsed
		p.SecondsRemaining = float64(sourceSize-sourcePosition) / bytesPerSecond
	}
	if sourcePosition > 0 && w.targetBytes > 0 {
		p.CompressionRatio = float64(sourcePosition) / float64(w.targetBytes)
		p.CompressionPercent = (1 - float64(w.targetBytes)/float64(sourcePosition)) * 100
	}
	return p
}

func cartesianDistance2D(a, b *position.State) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func cartesianDistance3D(a, b *position.State) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	dz := b.Z - a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func floatsEqual(a, b float64) bool {
	d := a - b
	return d < 1e-8 && d > -1e-8
}
