package welder

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"arc-welder-go/pkg/gcode"
	"arc-welder-go/pkg/log"
	"arc-welder-go/pkg/position"
)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetLevel(log.ERROR)
	return l
}

// runWelder writes the fixture lines to a temp file, runs a conversion and
// returns the results plus the output split into lines.
func runWelder(t *testing.T, lines []string, mutate func(*Options)) (Results, []string) {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.gcode")
	target := filepath.Join(dir, "target.gcode")
	if err := os.WriteFile(source, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions(source, target)
	opts.Logger = quietLogger()
	if mutate != nil {
		mutate(&opts)
	}
	results := New(opts).Process()

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	out := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	return results, out
}

func arcCommands(out []string) []string {
	var arcs []string
	for _, ln := range out {
		if strings.HasPrefix(ln, "G2 ") || strings.HasPrefix(ln, "G3 ") {
			arcs = append(arcs, ln)
		}
	}
	return arcs
}

func containsLine(out []string, line string) bool {
	for _, ln := range out {
		if ln == line {
			return true
		}
	}
	return false
}

func paramValue(t *testing.T, line string, letter byte) float64 {
	t.Helper()
	cmd := gcode.Parse(line)
	v, ok := cmd.Float(letter)
	if !ok {
		t.Fatalf("missing %c in %q", letter, line)
	}
	return v
}

// quarterCircleLines samples a radius-10 XY quarter arc from (10,0) to
// (0,10) with absolute E increments of 0.01 per move.
func quarterCircleLines(n int) []string {
	lines := []string{"G90", "M82", "G92 X10 Y0"}
	for i := 1; i <= n; i++ {
		a := float64(i) * (math.Pi / 2) / float64(n)
		lines = append(lines, fmt.Sprintf("G1 X%.3f Y%.3f E%.2f",
			10*math.Cos(a), 10*math.Sin(a), float64(i)*0.01))
	}
	return lines
}

// finalExtrusion replays a file through a fresh tracker and returns the
// absolute extruder position at end of stream.
func finalExtrusion(lines []string) float64 {
	tr := position.NewTracker(false, 100)
	for _, ln := range lines {
		cmd := gcode.Parse(ln)
		tr.Update(&cmd)
	}
	return tr.Current().E
}

func TestPerfectQuarterCircle(t *testing.T) {
	input := quarterCircleLines(36)
	results, out := runWelder(t, input, nil)

	if !results.Success {
		t.Fatalf("process failed: %s", results.Message)
	}
	arcs := arcCommands(out)
	if len(arcs) != 1 {
		t.Fatalf("expected exactly 1 arc, got %d: %v", len(arcs), arcs)
	}
	if !strings.HasPrefix(arcs[0], "G3 ") {
		t.Errorf("counterclockwise quarter circle should be G3: %q", arcs[0])
	}

	if got := paramValue(t, arcs[0], 'X'); math.Abs(got-0) > 0.01 {
		t.Errorf("endpoint X: expected 0, got %v", got)
	}
	if got := paramValue(t, arcs[0], 'Y'); math.Abs(got-10) > 0.01 {
		t.Errorf("endpoint Y: expected 10, got %v", got)
	}
	if got := paramValue(t, arcs[0], 'I'); math.Abs(got-(-10)) > 0.01 {
		t.Errorf("I offset: expected -10, got %v", got)
	}
	if got := paramValue(t, arcs[0], 'J'); math.Abs(got-0) > 0.01 {
		t.Errorf("J offset: expected 0, got %v", got)
	}
	if got := paramValue(t, arcs[0], 'E'); math.Abs(got-0.36) > 1e-9 {
		t.Errorf("E: expected 0.36, got %v", got)
	}

	// The modal preamble passes through verbatim; every G1 is absorbed.
	for _, want := range []string{"G90", "M82", "G92 X10 Y0"} {
		if !containsLine(out, want) {
			t.Errorf("missing verbatim line %q", want)
		}
	}
	for _, ln := range out {
		if strings.HasPrefix(ln, "G1 ") {
			t.Errorf("unexpected surviving move: %q", ln)
		}
	}

	if results.Progress.ArcsCreated != 1 {
		t.Errorf("arcs_created = %d, want 1", results.Progress.ArcsCreated)
	}
	if results.Progress.PointsCompressed != 36 {
		t.Errorf("points_compressed = %d, want 36", results.Progress.PointsCompressed)
	}
	if stats := results.Progress.SegmentStatistics; stats == nil || stats.SourceTotal != 36 || stats.TargetTotal != 1 {
		t.Errorf("unexpected segment statistics: %+v", stats)
	}

	// Extrusion conservation.
	srcE := finalExtrusion(input)
	outE := finalExtrusion(out)
	if math.Abs(srcE-outE) > 1e-5 {
		t.Errorf("extrusion not conserved: source %v, output %v", srcE, outE)
	}
}

func TestStraightLinePassesThrough(t *testing.T) {
	lines := []string{"G90", "M82"}
	for i := 1; i <= 20; i++ {
		lines = append(lines, fmt.Sprintf("G1 X%d Y0 E%.2f", i, float64(i)*0.05))
	}
	results, out := runWelder(t, lines, nil)

	if !results.Success {
		t.Fatalf("process failed: %s", results.Message)
	}
	if arcs := arcCommands(out); len(arcs) != 0 {
		t.Fatalf("straight lines must not become arcs: %v", arcs)
	}
	for _, ln := range lines {
		if !containsLine(out, ln) {
			t.Errorf("missing verbatim line %q", ln)
		}
	}
	if results.Progress.ArcsCreated != 0 || results.Progress.PointsCompressed != 0 {
		t.Errorf("no compression expected, got arcs=%d points=%d",
			results.Progress.ArcsCreated, results.Progress.PointsCompressed)
	}
}

func TestArcTravelArc(t *testing.T) {
	lines := []string{"G90", "M82", "G92 X10 Y0"}
	e := 0.0
	// First arc: radius 10 around the origin, quarter sweep.
	for i := 1; i <= 20; i++ {
		a := float64(i) * (math.Pi / 2) / 20
		e += 0.01
		lines = append(lines, fmt.Sprintf("G1 X%.3f Y%.3f E%.2f",
			10*math.Cos(a), 10*math.Sin(a), e))
	}
	// Z-lifted travel between the shapes.
	lines = append(lines, "G0 X0 Y20 Z1")
	// Second arc: radius 10 around (0,10), swept the other way.
	for i := 1; i <= 20; i++ {
		a := (90 - float64(i)*4.5) * math.Pi / 180
		e += 0.01
		lines = append(lines, fmt.Sprintf("G1 X%.3f Y%.3f E%.2f",
			10*math.Cos(a), 10+10*math.Sin(a), e))
	}

	results, out := runWelder(t, lines, nil)
	if !results.Success {
		t.Fatalf("process failed: %s", results.Message)
	}

	arcs := arcCommands(out)
	if len(arcs) != 2 {
		t.Fatalf("expected 2 arcs, got %d: %v", len(arcs), arcs)
	}
	if !strings.HasPrefix(arcs[0], "G3 ") || !strings.HasPrefix(arcs[1], "G2 ") {
		t.Errorf("expected G3 then G2, got %q and %q", arcs[0], arcs[1])
	}

	travelIdx, firstArcIdx, secondArcIdx := -1, -1, -1
	for i, ln := range out {
		switch {
		case ln == "G0 X0 Y20 Z1":
			travelIdx = i
		case strings.HasPrefix(ln, "G3 "):
			firstArcIdx = i
		case strings.HasPrefix(ln, "G2 "):
			secondArcIdx = i
		}
	}
	if travelIdx < 0 {
		t.Fatal("travel move must pass through verbatim")
	}
	if !(firstArcIdx < travelIdx && travelIdx < secondArcIdx) {
		t.Errorf("output order broken: arc1=%d travel=%d arc2=%d", firstArcIdx, travelIdx, secondArcIdx)
	}
	if results.Progress.PointsCompressed != 40 {
		t.Errorf("points_compressed = %d, want 40", results.Progress.PointsCompressed)
	}
}

func TestFeedrateChangeSplitsArc(t *testing.T) {
	lines := []string{"G90", "M82", "G92 X10 Y0"}
	for i := 1; i <= 20; i++ {
		a := float64(i) * (math.Pi / 2) / 20
		f := ""
		if i == 1 {
			f = " F1500"
		} else if i == 11 {
			f = " F3000"
		}
		lines = append(lines, fmt.Sprintf("G1 X%.3f Y%.3f E%.2f%s",
			10*math.Cos(a), 10*math.Sin(a), float64(i)*0.01, f))
	}

	results, out := runWelder(t, lines, nil)
	if !results.Success {
		t.Fatalf("process failed: %s", results.Message)
	}
	arcs := arcCommands(out)
	if len(arcs) != 2 {
		t.Fatalf("expected 2 arcs split at the feedrate change, got %d: %v", len(arcs), arcs)
	}
	if got := paramValue(t, arcs[0], 'F'); got != 1500 {
		t.Errorf("first arc feedrate: expected 1500, got %v", got)
	}
	if got := paramValue(t, arcs[1], 'F'); got != 3000 {
		t.Errorf("second arc feedrate: expected 3000, got %v", got)
	}
}

func TestHelicalArc(t *testing.T) {
	lines := []string{"G90", "M82", "G92 X10 Y0 Z0"}
	for i := 1; i <= 30; i++ {
		a := float64(i) * 3 * math.Pi / 180
		lines = append(lines, fmt.Sprintf("G1 X%.3f Y%.3f Z%.3f E%.2f",
			10*math.Cos(a), 10*math.Sin(a), 0.01*float64(i), float64(i)*0.01))
	}

	results, out := runWelder(t, lines, func(o *Options) {
		o.Allow3DArcs = true
	})
	if !results.Success {
		t.Fatalf("process failed: %s", results.Message)
	}
	arcs := arcCommands(out)
	if len(arcs) != 1 {
		t.Fatalf("expected 1 helical arc, got %d: %v", len(arcs), arcs)
	}
	if !strings.HasPrefix(arcs[0], "G3 ") {
		t.Errorf("expected G3, got %q", arcs[0])
	}
	if got := paramValue(t, arcs[0], 'Z'); math.Abs(got-0.3) > 0.001 {
		t.Errorf("helical Z endpoint: expected 0.3, got %v", got)
	}
	if got := paramValue(t, arcs[0], 'I'); math.Abs(got-(-10)) > 0.01 {
		t.Errorf("I offset: expected -10, got %v", got)
	}
}

func TestRadiusCapBlocksGentleCurves(t *testing.T) {
	lines := []string{"G90", "M82", "G92 X2000 Y0"}
	for i := 1; i <= 20; i++ {
		a := float64(i) * 2 * math.Pi / 180 / 20
		lines = append(lines, fmt.Sprintf("G1 X%.3f Y%.3f E%.2f",
			2000*math.Cos(a), 2000*math.Sin(a), float64(i)*0.01))
	}

	results, out := runWelder(t, lines, func(o *Options) {
		o.MaxRadiusMM = 100
	})
	if !results.Success {
		t.Fatalf("process failed: %s", results.Message)
	}
	if arcs := arcCommands(out); len(arcs) != 0 {
		t.Fatalf("radius cap should prevent arcs, got %v", arcs)
	}
	for _, ln := range lines {
		if !containsLine(out, ln) {
			t.Errorf("missing verbatim line %q", ln)
		}
	}
}

func TestCommentsMergeOntoArc(t *testing.T) {
	lines := []string{"G90", "M82", "G92 X10 Y0"}
	for i := 1; i <= 6; i++ {
		a := float64(i) * (math.Pi / 2) / 6
		comment := ""
		if i == 2 {
			comment = " ; note one"
		} else if i == 4 {
			comment = " ; note two"
		}
		lines = append(lines, fmt.Sprintf("G1 X%.3f Y%.3f E%.2f%s",
			10*math.Cos(a), 10*math.Sin(a), float64(i)*0.01, comment))
	}

	results, out := runWelder(t, lines, nil)
	if !results.Success {
		t.Fatalf("process failed: %s", results.Message)
	}
	arcs := arcCommands(out)
	if len(arcs) != 1 {
		t.Fatalf("expected 1 arc, got %v", arcs)
	}
	if !strings.HasSuffix(arcs[0], ";note one - note two") {
		t.Errorf("expected merged comment suffix, got %q", arcs[0])
	}
}

func TestOutputIsStableOnSecondPass(t *testing.T) {
	_, firstOut := runWelder(t, quarterCircleLines(36), nil)

	results, secondOut := runWelder(t, firstOut, nil)
	if !results.Success {
		t.Fatalf("second pass failed: %s", results.Message)
	}
	if results.Progress.ArcsCreated != 0 {
		t.Errorf("second pass must not create further arcs, got %d", results.Progress.ArcsCreated)
	}
	for _, ln := range firstOut {
		if !containsLine(secondOut, ln) {
			t.Errorf("second pass lost line %q", ln)
		}
	}
}

func TestCancellation(t *testing.T) {
	results, _ := runWelder(t, quarterCircleLines(36), func(o *Options) {
		o.OnProgress = func(Progress) bool { return false }
	})
	if results.Success {
		t.Error("cancelled runs must not report success")
	}
	if !results.Cancelled {
		t.Error("expected cancelled=true")
	}
}

func TestMissingSourceFile(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions(filepath.Join(dir, "missing.gcode"), filepath.Join(dir, "out.gcode"))
	opts.Logger = quietLogger()
	results := New(opts).Process()
	if results.Success || results.Cancelled {
		t.Error("missing source must fail without being cancelled")
	}
	if results.Message != "Unable to open the source file." {
		t.Errorf("unexpected message %q", results.Message)
	}
}

func TestUnwritableTargetFile(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.gcode")
	if err := os.WriteFile(source, []byte("G1 X1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions(source, filepath.Join(dir, "no-such-dir", "out.gcode"))
	opts.Logger = quietLogger()
	results := New(opts).Process()
	if results.Success {
		t.Error("unwritable target must fail")
	}
	if results.Message != "Unable to open the target file." {
		t.Errorf("unexpected message %q", results.Message)
	}
}

func TestHeaderIsDeterministic(t *testing.T) {
	_, out1 := runWelder(t, quarterCircleLines(12), nil)
	_, out2 := runWelder(t, quarterCircleLines(12), nil)
	if strings.Join(out1, "\n") != strings.Join(out2, "\n") {
		t.Error("two identical runs must produce identical output")
	}
	if !strings.HasPrefix(out1[0], "; Postprocessed by arc-welder-go") {
		t.Errorf("unexpected header first line %q", out1[0])
	}
	if !containsLine(out1, "; resolution=0.05mm") {
		t.Error("header should record the resolution")
	}
}

func TestOptionValidation(t *testing.T) {
	opts := DefaultOptions("a.gcode", "a.gcode")
	if err := opts.Validate(); err == nil {
		t.Error("source == target must be rejected")
	}

	opts = DefaultOptions("a.gcode", "b.gcode")
	opts.ResolutionMM = 0
	if err := opts.Validate(); err == nil {
		t.Error("zero resolution must be rejected")
	}

	opts = DefaultOptions("a.gcode", "b.gcode")
	opts.BufferSize = 2
	if err := opts.Validate(); err == nil {
		t.Error("tiny buffer must be rejected")
	}

	opts = DefaultOptions("a.gcode", "b.gcode")
	if err := opts.Validate(); err != nil {
		t.Errorf("default options should validate: %v", err)
	}
}
