// Move-length statistics for source and converted output.
//
// A histogram over fixed length buckets records every extruding move before
// and after conversion; the counts feed the progress report.
//
// Copyright (C) 2026  Arc Welder Go Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package welder

import (
	"fmt"
	"strings"
)

// defaultSegmentBoundaries are the histogram bucket edges in millimeters.
var defaultSegmentBoundaries = []float64{
	0.002, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 20, 50, 100,
}

// SegmentStatistics tracks move-length distributions for the source stream
// and the converted output.
type SegmentStatistics struct {
	boundaries []float64

	// sourceCounts/targetCounts have len(boundaries)+1 entries: below the
	// first edge, between consecutive edges, and at or above the last.
	sourceCounts []int64
	targetCounts []int64

	SourceTotal int64
	TargetTotal int64

	SourceLengthMM float64
	TargetLengthMM float64
}

// NewSegmentStatistics creates statistics over the default buckets.
func NewSegmentStatistics() *SegmentStatistics {
	return NewSegmentStatisticsWithBoundaries(defaultSegmentBoundaries)
}

// NewSegmentStatisticsWithBoundaries creates statistics over custom bucket
// edges, which must be sorted ascending.
func NewSegmentStatisticsWithBoundaries(boundaries []float64) *SegmentStatistics {
	b := make([]float64, len(boundaries))
	copy(b, boundaries)
	return &SegmentStatistics{
		boundaries:   b,
		sourceCounts: make([]int64, len(b)+1),
		targetCounts: make([]int64, len(b)+1),
	}
}

// UpdateSource records one move length from the source stream.
func (s *SegmentStatistics) UpdateSource(lengthMM float64) {
	s.sourceCounts[s.bucket(lengthMM)]++
	s.SourceTotal++
	s.SourceLengthMM += lengthMM
}

// UpdateTarget records one move length written to the output.
func (s *SegmentStatistics) UpdateTarget(lengthMM float64) {
	s.targetCounts[s.bucket(lengthMM)]++
	s.TargetTotal++
	s.TargetLengthMM += lengthMM
}

func (s *SegmentStatistics) bucket(lengthMM float64) int {
	for i, edge := range s.boundaries {
		if lengthMM < edge {
			return i
		}
	}
	return len(s.boundaries)
}

// String renders the histogram as an aligned text table.
func (s *SegmentStatistics) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%16s %10s %10s %8s\n", "length (mm)", "source", "target", "change"))
	for i := 0; i <= len(s.boundaries); i++ {
		var label string
		switch {
		case i == 0:
			label = fmt.Sprintf("< %g", s.boundaries[0])
		case i == len(s.boundaries):
			label = fmt.Sprintf(">= %g", s.boundaries[len(s.boundaries)-1])
		default:
			label = fmt.Sprintf("%g to %g", s.boundaries[i-1], s.boundaries[i])
		}
		src := s.sourceCounts[i]
		tgt := s.targetCounts[i]
		change := "-"
		if src > 0 {
			change = fmt.Sprintf("%.1f%%", (float64(tgt)-float64(src))/float64(src)*100)
		} else if tgt > 0 {
			change = "new"
		}
		sb.WriteString(fmt.Sprintf("%16s %10d %10d %8s\n", label, src, tgt, change))
	}
	sb.WriteString(fmt.Sprintf("%16s %10d %10d\n", "total", s.SourceTotal, s.TargetTotal))
	return sb.String()
}
