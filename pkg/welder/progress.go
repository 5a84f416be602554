// Progress reporting structures for the arc welder.
//
// Copyright (C) 2026  Arc Welder Go Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package welder

import "fmt"

// Progress is one snapshot of a running (or finished) conversion. A copy is
// handed to the progress callback roughly once per second and once more at
// end of stream.
type Progress struct {
	LinesProcessed   int64 `json:"lines_processed"`
	GcodesProcessed  int64 `json:"gcodes_processed"`
	PointsCompressed int64 `json:"points_compressed"`
	ArcsCreated      int64 `json:"arcs_created"`

	SourceFilePosition int64 `json:"source_file_position"`
	SourceFileSize     int64 `json:"source_file_size"`
	TargetFileSize     int64 `json:"target_file_size"`

	PercentComplete  float64 `json:"percent_complete"`
	SecondsElapsed   float64 `json:"seconds_elapsed"`
	SecondsRemaining float64 `json:"seconds_remaining"`

	CompressionRatio   float64 `json:"compression_ratio"`
	CompressionPercent float64 `json:"compression_percent"`

	NumFirmwareCompensations int `json:"num_firmware_compensations"`

	SegmentStatistics *SegmentStatistics `json:"-"`
}

// String renders a single status line suitable for a terminal.
func (p Progress) String() string {
	return fmt.Sprintf(
		"%.1f%% complete in %.0fs (ETR %.0fs): lines=%d gcodes=%d points_compressed=%d arcs_created=%d compression=%.1f%%",
		p.PercentComplete, p.SecondsElapsed, p.SecondsRemaining,
		p.LinesProcessed, p.GcodesProcessed, p.PointsCompressed, p.ArcsCreated,
		p.CompressionPercent,
	)
}

// ProgressCallback receives periodic progress updates. Returning false
// requests cooperative cancellation, honored between source lines.
type ProgressCallback func(Progress) bool

// Results is the structured outcome of one Process call.
type Results struct {
	Success   bool
	Cancelled bool
	Message   string
	Progress  Progress
}
