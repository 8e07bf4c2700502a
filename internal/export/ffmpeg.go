package export

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"neuravox/internal/media/wavio"
)

// FFmpegExporter transcodes chunks into compressed containers via ffmpeg.
// Samples are first encoded to a temporary WAV next to the destination, then
// handed to ffmpeg, so a failed transcode leaves no output behind.
type FFmpegExporter struct {
	format        string
	binary        string
	channels      int
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewFFmpegExporter returns an exporter for the given format ("flac" or
// "ogg") writing the given channel layout. A count below one falls back to
// mono.
func NewFFmpegExporter(format, binary string, channels int) *FFmpegExporter {
	if binary == "" {
		binary = "ffmpeg"
	}
	if channels < 1 {
		channels = 1
	}
	return &FFmpegExporter{format: format, binary: binary, channels: channels}
}

// WithCommandRunner sets a custom command runner (for testing).
func (e *FFmpegExporter) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	e.commandRunner = runner
}

// Extension returns the configured format.
func (e *FFmpegExporter) Extension() string { return e.format }

// ExportChunk encodes samples to a temp WAV and transcodes it into dest.
func (e *FFmpegExporter) ExportChunk(ctx context.Context, samples []float64, sampleRate int, dest string) error {
	tmp := dest + ".pcm.wav"
	if err := wavio.WriteMono(tmp, samples, sampleRate); err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := e.run(ctx, e.transcodeArgs(tmp, dest)...); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

// ExportFullFile transcodes source into dest.
func (e *FFmpegExporter) ExportFullFile(ctx context.Context, source, dest string) error {
	if err := e.run(ctx, e.transcodeArgs(source, dest)...); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

func (e *FFmpegExporter) transcodeArgs(source, dest string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", source}
	switch e.format {
	case "ogg":
		args = append(args, "-c:a", "libvorbis")
	default:
		args = append(args, "-c:a", e.format)
	}
	args = append(args, "-ac", strconv.Itoa(e.channels))
	return append(args, dest)
}

func (e *FFmpegExporter) run(ctx context.Context, args ...string) error {
	if e.commandRunner != nil {
		return e.commandRunner(ctx, e.binary, args...)
	}
	cmd := exec.CommandContext(ctx, e.binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", e.binary, err, strings.TrimSpace(string(output)))
	}
	return nil
}
