package export

import (
	"context"
	"fmt"

	"neuravox/internal/fileutil"
	"neuravox/internal/media/wavio"
)

// WAVExporter encodes chunks as 16-bit PCM WAV without external tools.
type WAVExporter struct {
	channels int
}

// NewWAVExporter returns the native WAV exporter writing the given channel
// layout. A count below one falls back to mono.
func NewWAVExporter(channels int) *WAVExporter {
	if channels < 1 {
		channels = 1
	}
	return &WAVExporter{channels: channels}
}

// Extension returns "wav".
func (e *WAVExporter) Extension() string { return "wav" }

// ExportChunk encodes mono samples into dest with the configured channel
// layout.
func (e *WAVExporter) ExportChunk(ctx context.Context, samples []float64, sampleRate int, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wavio.Write(dest, samples, sampleRate, e.channels)
}

// ExportFullFile copies source to dest byte-for-byte, verifying integrity.
// Callers must ensure source already matches the target layout.
func (e *WAVExporter) ExportFullFile(ctx context.Context, source, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fileutil.CopyVerified(source, dest); err != nil {
		return fmt.Errorf("copy %s: %w", source, err)
	}
	return nil
}
