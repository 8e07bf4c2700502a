package silence

import (
	"errors"
	"sort"
)

// Span is a non-silent chunk interval in seconds.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the span length in seconds.
func (s Span) Duration() float64 {
	return s.End - s.Start
}

// AssemblerParams configures merging and chunk derivation.
type AssemblerParams struct {
	// MergeGapThreshold is the maximum gap, in seconds, between two silence
	// intervals for them to be merged into one segment.
	MergeGapThreshold float64
	// KeepSilence is the silence retained at chunk boundaries, in seconds.
	KeepSilence float64
	// MinChunkDuration drops interior chunks shorter than this, in seconds.
	MinChunkDuration float64
}

// Assembler turns raw per-window silence intervals into chunk spans.
type Assembler struct {
	params AssemblerParams
}

// NewAssembler validates params and returns an Assembler.
func NewAssembler(params AssemblerParams) (*Assembler, error) {
	if params.MergeGapThreshold < 0 {
		return nil, errors.New("merge gap threshold must be >= 0")
	}
	if params.KeepSilence < 0 {
		return nil, errors.New("keep silence must be >= 0")
	}
	if params.MinChunkDuration <= 0 {
		return nil, errors.New("min chunk duration must be positive")
	}
	return &Assembler{params: params}, nil
}

// Merge sorts intervals by start time and coalesces any pair whose gap is at
// most MergeGapThreshold. This bridges intervals split at window boundaries.
// The input slice is not modified.
func (a *Assembler) Merge(segments []Segment) []Segment {
	if len(segments) == 0 {
		return nil
	}

	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []Segment{sorted[0]}
	for _, next := range sorted[1:] {
		running := &merged[len(merged)-1]
		if next.Start <= running.End+a.params.MergeGapThreshold {
			if next.End > running.End {
				running.End = next.End
			}
			if next.Confidence > running.Confidence {
				running.Confidence = next.Confidence
			}
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

// FilterMinDuration drops segments shorter than minDuration seconds. It is
// applied after Merge so intervals split at window boundaries are judged by
// their full merged length.
func FilterMinDuration(segments []Segment, minDuration float64) []Segment {
	var kept []Segment
	for _, segment := range segments {
		if segment.Duration() >= minDuration {
			kept = append(kept, segment)
		}
	}
	return kept
}

// Chunks derives the non-silent spans between merged silence segments. Each
// chunk closes at silence start plus KeepSilence and the next opens at
// silence end minus KeepSilence; chunks shorter than MinChunkDuration are
// dropped. With no silence segments the whole file is one chunk regardless
// of the minimum.
func (a *Assembler) Chunks(merged []Segment, totalDuration float64) []Span {
	if totalDuration <= 0 {
		return nil
	}
	if len(merged) == 0 {
		return []Span{{Start: 0, End: totalDuration}}
	}

	var spans []Span
	cursor := 0.0
	for _, segment := range merged {
		closeAt := clamp(segment.Start+a.params.KeepSilence, cursor, totalDuration)
		if closeAt-cursor >= a.params.MinChunkDuration {
			spans = append(spans, Span{Start: cursor, End: closeAt})
		}
		openAt := segment.End - a.params.KeepSilence
		// A silence shorter than twice the buffer cannot hold overlapping
		// boundaries; resume directly at the close point.
		if openAt < closeAt {
			openAt = closeAt
		}
		cursor = openAt
	}
	if totalDuration-cursor >= a.params.MinChunkDuration {
		spans = append(spans, Span{Start: cursor, End: totalDuration})
	}
	return spans
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
