package silence

import (
	"math"
	"testing"
)

func defaultAssembler(t *testing.T) *Assembler {
	t.Helper()
	assembler, err := NewAssembler(AssemblerParams{
		MergeGapThreshold: 1.0,
		KeepSilence:       0.25,
		MinChunkDuration:  5.0,
	})
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	return assembler
}

func TestNewAssemblerValidation(t *testing.T) {
	cases := []AssemblerParams{
		{MergeGapThreshold: -1, KeepSilence: 0.25, MinChunkDuration: 5},
		{MergeGapThreshold: 1, KeepSilence: -0.1, MinChunkDuration: 5},
		{MergeGapThreshold: 1, KeepSilence: 0.25, MinChunkDuration: 0},
	}
	for i, params := range cases {
		if _, err := NewAssembler(params); err == nil {
			t.Errorf("case %d: expected validation error for %+v", i, params)
		}
	}
}

func TestMergeBridgesWindowBoundary(t *testing.T) {
	assembler := defaultAssembler(t)
	// One real silence reported as two adjacent intervals by per-window
	// detection.
	segments := []Segment{
		{Start: 10.0, End: 14.98, Confidence: 0.9},
		{Start: 15.0, End: 20.0, Confidence: 0.95},
	}

	merged := assembler.Merge(segments)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged segment, got %v", merged)
	}
	if merged[0].Start != 10.0 || merged[0].End != 20.0 {
		t.Fatalf("merged bounds = [%v, %v], want [10, 20]", merged[0].Start, merged[0].End)
	}
	if merged[0].Confidence != 0.95 {
		t.Fatalf("merged confidence = %v, want max of inputs", merged[0].Confidence)
	}
}

func TestMergeRespectsGapThreshold(t *testing.T) {
	assembler := defaultAssembler(t)

	within := assembler.Merge([]Segment{
		{Start: 1.0, End: 2.0},
		{Start: 2.8, End: 4.0}, // gap 0.8 <= 1.0
	})
	if len(within) != 1 {
		t.Fatalf("gap within threshold should merge, got %v", within)
	}

	beyond := assembler.Merge([]Segment{
		{Start: 1.0, End: 2.0},
		{Start: 3.5, End: 4.5}, // gap 1.5 > 1.0
	})
	if len(beyond) != 2 {
		t.Fatalf("gap beyond threshold should stay distinct, got %v", beyond)
	}
}

func TestMergeSortsInput(t *testing.T) {
	assembler := defaultAssembler(t)
	segments := []Segment{
		{Start: 30.0, End: 35.0},
		{Start: 5.0, End: 8.0},
		{Start: 7.5, End: 10.0},
	}
	merged := assembler.Merge(segments)
	if len(merged) != 2 {
		t.Fatalf("expected 2 segments, got %v", merged)
	}
	if merged[0].Start != 5.0 || merged[0].End != 10.0 {
		t.Fatalf("first merged = %+v, want [5, 10]", merged[0])
	}
	// Input order is untouched.
	if segments[0].Start != 30.0 {
		t.Fatal("Merge mutated its input slice")
	}
}

func TestFilterMinDuration(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 0.5},
		{Start: 10, End: 13},
		{Start: 20, End: 21.9},
	}
	kept := FilterMinDuration(segments, 2.0)
	if len(kept) != 1 {
		t.Fatalf("expected 1 surviving segment, got %v", kept)
	}
	if kept[0].Start != 10 {
		t.Fatalf("wrong survivor: %+v", kept[0])
	}
	if FilterMinDuration(nil, 2.0) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestChunksDerivation(t *testing.T) {
	assembler := defaultAssembler(t)
	merged := []Segment{{Start: 10.0, End: 20.0}}

	spans := assembler.Chunks(merged, 30.0)
	if len(spans) != 2 {
		t.Fatalf("expected 2 chunks, got %v", spans)
	}
	if spans[0].Start != 0 || math.Abs(spans[0].End-10.25) > 1e-9 {
		t.Errorf("chunk 0 = %+v, want [0, 10.25]", spans[0])
	}
	if math.Abs(spans[1].Start-19.75) > 1e-9 || spans[1].End != 30.0 {
		t.Errorf("chunk 1 = %+v, want [19.75, 30]", spans[1])
	}
}

func TestChunksZeroSilence(t *testing.T) {
	assembler := defaultAssembler(t)
	spans := assembler.Chunks(nil, 10.0)
	if len(spans) != 1 {
		t.Fatalf("expected single full-file chunk, got %v", spans)
	}
	if spans[0].Start != 0 || spans[0].End != 10.0 {
		t.Fatalf("full-file chunk = %+v, want [0, 10]", spans[0])
	}
}

func TestChunksDropsShortChunks(t *testing.T) {
	assembler := defaultAssembler(t)
	// First speech region is only 3s, below the 5s minimum.
	merged := []Segment{{Start: 3.0, End: 10.0}}

	spans := assembler.Chunks(merged, 30.0)
	if len(spans) != 1 {
		t.Fatalf("expected short leading chunk to be dropped, got %v", spans)
	}
	if math.Abs(spans[0].Start-9.75) > 1e-9 {
		t.Fatalf("surviving chunk = %+v, want start 9.75", spans[0])
	}
}

func TestChunksShortTrailingDropped(t *testing.T) {
	assembler := defaultAssembler(t)
	merged := []Segment{{Start: 10.0, End: 28.0}}

	spans := assembler.Chunks(merged, 30.0)
	if len(spans) != 1 {
		t.Fatalf("expected trailing 2.25s chunk to be dropped, got %v", spans)
	}
	if spans[0].Start != 0 {
		t.Fatalf("got %+v, want leading chunk", spans[0])
	}
}

func TestChunksNarrowSilenceKeepsOrder(t *testing.T) {
	// keep_silence larger than half the silence span must not produce
	// overlapping chunks.
	assembler, err := NewAssembler(AssemblerParams{
		MergeGapThreshold: 1.0,
		KeepSilence:       2.0,
		MinChunkDuration:  1.0,
	})
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	merged := []Segment{{Start: 10.0, End: 12.0}}

	spans := assembler.Chunks(merged, 20.0)
	for i := 1; i < len(spans); i++ {
		if spans[i].Start < spans[i-1].End {
			t.Fatalf("chunks overlap: %v", spans)
		}
	}
	for _, span := range spans {
		if span.End <= span.Start {
			t.Fatalf("empty or inverted span: %+v", span)
		}
	}
}

func TestChunksDeterministic(t *testing.T) {
	assembler := defaultAssembler(t)
	segments := []Segment{
		{Start: 20.3, End: 48.7},
		{Start: 70.1, End: 98.6},
	}

	first := assembler.Chunks(assembler.Merge(segments), 120)
	second := assembler.Chunks(assembler.Merge(segments), 120)
	if len(first) != len(second) {
		t.Fatalf("non-deterministic chunk count")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("chunk %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}
