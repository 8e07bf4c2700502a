// Package export persists chunk samples as audio files.
package export

import (
	"context"
	"fmt"
	"strings"
)

// Exporter writes chunk samples and whole-file copies to disk. Codec and
// container choice live entirely behind this interface.
type Exporter interface {
	// ExportChunk encodes mono samples at the given rate into dest.
	ExportChunk(ctx context.Context, samples []float64, sampleRate int, dest string) error
	// ExportFullFile copies or transcodes an existing file into dest.
	ExportFullFile(ctx context.Context, source, dest string) error
	// Extension returns the output filename extension without the dot.
	Extension() string
}

// ForFormat selects the exporter for an output format and channel layout.
// WAV is encoded natively; compressed formats go through ffmpeg.
func ForFormat(format, ffmpegBinary string, channels int) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "wav":
		return NewWAVExporter(channels), nil
	case "flac", "ogg":
		return NewFFmpegExporter(strings.ToLower(strings.TrimSpace(format)), ffmpegBinary, channels), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}
