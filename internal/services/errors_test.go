package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"neuravox/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrProcessing, "splitting", "export chunk", "chunk 3", base)
	if !errors.Is(err, services.ErrProcessing) {
		t.Fatalf("expected processing marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "splitting: export chunk: chunk 3") {
		t.Fatalf("unexpected detail: %v", err)
	}
}

func TestWrapNilMarkerDefaultsToProcessing(t *testing.T) {
	err := services.Wrap(nil, "stage", "", "", nil)
	if !errors.Is(err, services.ErrProcessing) {
		t.Fatalf("expected processing default, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		marker error
		want   bool
	}{
		{services.ErrTimeout, true},
		{services.ErrExternalService, true},
		{services.ErrValidation, false},
		{services.ErrConflict, false},
		{services.ErrConfiguration, false},
	}
	for _, tc := range cases {
		err := services.Wrap(tc.marker, "stage", "op", "", nil)
		if got := services.Retryable(err); got != tc.want {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.marker, got, tc.want)
		}
	}
}

func TestClassifyTimeout(t *testing.T) {
	err := services.ClassifyTimeout(context.DeadlineExceeded, "transcribing", "transcribe chunk")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
	other := errors.New("connection refused")
	if got := services.ClassifyTimeout(other, "transcribing", "transcribe chunk"); got != other {
		t.Fatalf("expected passthrough, got %v", got)
	}
	if services.ClassifyTimeout(nil, "", "") != nil {
		t.Fatal("expected nil passthrough")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithFileID(ctx, "ab12cd34")
	ctx = services.WithStage(ctx, "processing")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.FileIDFromContext(ctx); !ok || id != "ab12cd34" {
		t.Fatalf("unexpected file id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "processing" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
