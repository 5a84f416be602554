// arc-welder converts dense runs of G0/G1 moves in a G-code file into
// G2/G3 arcs, shrinking the file and the command rate the printer has to
// keep up with, while staying inside a configured geometric tolerance.
//
// Usage:
//
//	arc-welder [options] source.gcode target.gcode
//
// Options:
//
//	-resolution-mm float      Circle-fit tolerance band half-width (default 0.05)
//	-path-tolerance float     Allowed chord-midpoint deviation as a fraction
//	                          of chord length (default 0.05)
//	-max-radius-mm float      Largest arc radius to emit (default 1000000)
//	-min-arc-segments int     Firmware compensation: minimum segments the
//	                          firmware must render per arc (0 disables)
//	-mm-per-arc-segment float Firmware compensation: firmware segment length
//	-allow-3d-arcs            Permit helical arcs with linear Z motion
//	-allow-dynamic-precision  Raise output precision to match the input
//	-xyz-precision int        Decimal digits for X/Y/Z/I/J words (default 3)
//	-e-precision int          Decimal digits for E words (default 5)
//	-g90-influences-extruder  G90/G91 also switch the extruder axis mode
//	-buffer-size int          Command buffer size (default 1000)
//	-monitor string           Serve live progress on this address (e.g. :8888)
//	-logfile string           Log to a rotating file instead of stderr
//	-loglevel string          VERBOSE, DEBUG, INFO, WARN or ERROR
//
// Examples:
//
//	# Default tolerances
//	arc-welder print.gcode print.aw.gcode
//
//	# Firmware compensation for Marlin-style arc interpolation
//	arc-welder -min-arc-segments 14 -mm-per-arc-segment 1 print.gcode out.gcode
package main

import (
	"flag"
	"fmt"
	"os"

	"arc-welder-go/pkg/log"
	"arc-welder-go/pkg/monitor"
	"arc-welder-go/pkg/term"
	"arc-welder-go/pkg/welder"
)

func main() {
	resolutionMM := flag.Float64("resolution-mm", welder.DefaultResolutionMM, "circle-fit tolerance band half-width in mm")
	pathTolerance := flag.Float64("path-tolerance", welder.DefaultPathTolerancePercent, "allowed chord-midpoint deviation as a fraction of chord length")
	maxRadiusMM := flag.Float64("max-radius-mm", welder.DefaultMaxRadiusMM, "largest arc radius to emit in mm")
	minArcSegments := flag.Int("min-arc-segments", 0, "minimum segments the firmware must render per arc (0 disables firmware compensation)")
	mmPerArcSegment := flag.Float64("mm-per-arc-segment", 0, "firmware arc segment length in mm")
	allow3DArcs := flag.Bool("allow-3d-arcs", false, "permit helical arcs with linear Z motion")
	allowDynamicPrecision := flag.Bool("allow-dynamic-precision", false, "raise output precision to match the input")
	xyzPrecision := flag.Int("xyz-precision", 3, "decimal digits for X/Y/Z/I/J words")
	ePrecision := flag.Int("e-precision", 5, "decimal digits for E words")
	g90Influences := flag.Bool("g90-influences-extruder", false, "G90/G91 also switch the extruder axis mode")
	bufferSize := flag.Int("buffer-size", welder.DefaultBufferSize, "command buffer size")
	monitorAddr := flag.String("monitor", "", "serve live progress on this address (e.g. :8888)")
	logFile := flag.String("logfile", "", "log to a rotating file instead of stderr")
	logLevel := flag.String("loglevel", "", "VERBOSE, DEBUG, INFO, WARN or ERROR")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] source.gcode target.gcode\n", os.Args[0])
		flag.Usage()
		os.Exit(2)
	}
	sourcePath := flag.Arg(0)
	targetPath := flag.Arg(1)

	logger := log.GetLogger("")
	if *logLevel != "" {
		logger.SetLevel(log.ParseLevel(*logLevel))
	}
	if *logFile != "" {
		w, err := log.NewRotatingFileWriter(log.RotationConfig{Filename: *logFile})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer w.Close()
		logger.SetWriter(w)
		logger.SetColorize(false)
	}

	opts := welder.DefaultOptions(sourcePath, targetPath)
	opts.ResolutionMM = *resolutionMM
	opts.PathTolerancePercent = *pathTolerance
	opts.MaxRadiusMM = *maxRadiusMM
	opts.MinArcSegments = *minArcSegments
	opts.MMPerArcSegment = *mmPerArcSegment
	opts.Allow3DArcs = *allow3DArcs
	opts.AllowDynamicPrecision = *allowDynamicPrecision
	opts.DefaultXYZPrecision = *xyzPrecision
	opts.DefaultEPrecision = *ePrecision
	opts.G90G91InfluencesExtruder = *g90Influences
	opts.BufferSize = *bufferSize
	opts.Logger = logger

	var mon *monitor.Server
	if *monitorAddr != "" {
		mon = monitor.New(*monitorAddr, logger.WithPrefix("monitor"))
		if err := mon.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer mon.Stop()
	}

	interactive := *logFile == "" && term.IsTerminal(os.Stderr)
	opts.OnProgress = func(p welder.Progress) bool {
		if mon != nil {
			mon.Publish(p)
		}
		if interactive {
			fmt.Fprintf(os.Stderr, "\r%-100s", p.String())
		} else {
			logger.Info("%s", p.String())
		}
		return true
	}

	results := welder.New(opts).Process()
	if interactive {
		fmt.Fprintln(os.Stderr)
	}

	if !results.Success {
		if results.Message != "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", results.Message)
		}
		os.Exit(1)
	}

	p := results.Progress
	fmt.Printf("Converted %s -> %s\n", sourcePath, targetPath)
	fmt.Printf("  lines: %d, gcodes: %d, arcs created: %d, points compressed: %d\n",
		p.LinesProcessed, p.GcodesProcessed, p.ArcsCreated, p.PointsCompressed)
	fmt.Printf("  size: %d -> %d bytes (%.1f%% smaller)\n",
		p.SourceFileSize, p.TargetFileSize, p.CompressionPercent)
	if p.NumFirmwareCompensations > 0 {
		fmt.Printf("  arcs rejected by firmware compensation: %d\n", p.NumFirmwareCompensations)
	}
	if p.SegmentStatistics != nil {
		fmt.Printf("Segment length distribution:\n%s", p.SegmentStatistics.String())
	}
}
