// Package splitter drives silence detection over whole files and exports
// the resulting chunks.
//
// Processing streams fixed-duration windows through the detector so memory
// stays bounded regardless of file length, assembles chunk spans once per
// file, and writes every output into a staging directory that is renamed
// into place only after the last chunk and both metadata documents are on
// disk. A failed attempt leaves nothing behind.
package splitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"neuravox/internal/config"
	"neuravox/internal/export"
	"neuravox/internal/logging"
	"neuravox/internal/media/ffprobe"
	"neuravox/internal/media/wavio"
	"neuravox/internal/services"
	"neuravox/internal/silence"
)

const stage = "processing"

// Splitter orchestrates detection, assembly, and chunk export for one file
// at a time. It is safe for concurrent use across distinct files.
type Splitter struct {
	cfg       *config.Config
	exporter  export.Exporter
	detector  *silence.Detector
	assembler *silence.Assembler
	logger    *slog.Logger

	commandRunner func(ctx context.Context, name string, args ...string) error
}

// New builds a Splitter from configuration.
func New(cfg *config.Config, exporter export.Exporter, logger *slog.Logger) (*Splitter, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, stage, "new", "configuration is required", nil)
	}
	if exporter == nil {
		return nil, services.Wrap(services.ErrConfiguration, stage, "new", "exporter is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	detector, err := silence.NewDetector(silence.DetectorParams{
		SilenceThreshold:   cfg.Detection.SilenceThreshold,
		MinSilenceDuration: cfg.Detection.MinSilenceDuration,
		FrameLength:        cfg.Detection.FrameLength,
		HopLength:          cfg.Detection.HopLength,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stage, "new", "invalid detection parameters", err)
	}

	assembler, err := silence.NewAssembler(silence.AssemblerParams{
		MergeGapThreshold: cfg.Chunking.MergeGapThreshold,
		KeepSilence:       cfg.Chunking.KeepSilence,
		MinChunkDuration:  cfg.Chunking.MinChunkDuration,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stage, "new", "invalid chunking parameters", err)
	}

	return &Splitter{
		cfg:       cfg,
		exporter:  exporter,
		detector:  detector,
		assembler: assembler,
		logger:    logger.With(logging.String(logging.FieldComponent, "splitter")),
	}, nil
}

// WithCommandRunner sets a custom runner for ffmpeg invocations (for testing).
func (s *Splitter) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Process splits one file into chunks under <output_dir>/<fileID> and
// returns the persisted metadata. On any failure no output directory exists
// for this attempt.
func (s *Splitter) Process(ctx context.Context, sourcePath, fileID string) (*Metadata, error) {
	started := time.Now()
	log := s.logger.With(logging.String(logging.FieldFileID, fileID))

	workPath, info, cleanup, err := s.prepareInput(ctx, sourcePath, fileID)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	segments, duration, sampleRate, err := s.detect(ctx, workPath)
	if err != nil {
		return nil, services.Wrap(services.ErrProcessing, stage, "detect", "silence detection failed", err)
	}
	info.DurationSeconds = duration

	merged := silence.FilterMinDuration(s.assembler.Merge(segments), s.cfg.Detection.MinSilenceDuration)
	spans := s.assembler.Chunks(merged, duration)
	log.Info("silence analysis complete",
		logging.Int("raw_intervals", len(segments)),
		logging.Int("merged_segments", len(merged)),
		logging.Int("chunks", len(spans)),
		logging.Float64("duration_seconds", duration))

	finalDir := filepath.Join(s.cfg.Paths.OutputDir, fileID)
	stagingDir := filepath.Join(s.cfg.Paths.OutputDir, fmt.Sprintf(".staging-%s-%s", fileID, uuid.NewString()[:8]))
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrProcessing, stage, "stage", "create staging directory", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(stagingDir)
		}
	}()

	chunks, err := s.exportChunks(ctx, workPath, sourcePath, spans, sampleRate, duration, stagingDir, finalDir)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		FileID:         fileID,
		OriginalFile:   sourcePath,
		ProcessedAt:    time.Now().UTC(),
		ProcessingTime: time.Since(started).Seconds(),
		Chunks:         chunks,
		AudioInfo:      info,
		Params: Params{
			SilenceThreshold:   s.cfg.Detection.SilenceThreshold,
			MinSilenceDuration: s.cfg.Detection.MinSilenceDuration,
			FrameLength:        s.cfg.Detection.FrameLength,
			HopLength:          s.cfg.Detection.HopLength,
			WindowSeconds:      s.cfg.Detection.WindowSeconds,
			MergeGapThreshold:  s.cfg.Chunking.MergeGapThreshold,
			KeepSilence:        s.cfg.Chunking.KeepSilence,
			MinChunkDuration:   s.cfg.Chunking.MinChunkDuration,
			OutputFormat:       s.cfg.Chunking.OutputFormat,
			TargetSampleRate:   s.cfg.Chunking.TargetSampleRate,
			TargetChannels:     s.cfg.Chunking.TargetChannels,
		},
	}
	if err := writeJSON(filepath.Join(stagingDir, MetadataFileName), meta); err != nil {
		return nil, services.Wrap(services.ErrProcessing, stage, "metadata", "persist metadata", err)
	}

	manifest := Manifest{
		FileID:       fileID,
		OutputFormat: s.cfg.Chunking.OutputFormat,
		SampleRate:   s.cfg.Chunking.TargetSampleRate,
	}
	for _, chunk := range chunks {
		manifest.ChunkPaths = append(manifest.ChunkPaths, chunk.OutputPath)
	}
	if err := writeJSON(filepath.Join(stagingDir, ManifestFileName), manifest); err != nil {
		return nil, services.Wrap(services.ErrProcessing, stage, "metadata", "persist manifest", err)
	}

	// Commit: everything for this attempt becomes visible in one rename.
	if err := os.RemoveAll(finalDir); err != nil {
		return nil, services.Wrap(services.ErrProcessing, stage, "commit", "clear previous output", err)
	}
	if err := os.Rename(stagingDir, finalDir); err != nil {
		return nil, services.Wrap(services.ErrProcessing, stage, "commit", "publish output directory", err)
	}
	committed = true

	log.Info("file split complete",
		logging.Int("chunks", len(chunks)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String("output_dir", finalDir))
	return meta, nil
}

// prepareInput returns a WAV path ready for streaming detection. Non-WAV
// containers are decoded to a mono working copy at the target rate.
func (s *Splitter) prepareInput(ctx context.Context, sourcePath, fileID string) (string, AudioInfo, func(), error) {
	noop := func() {}

	stat, err := os.Stat(sourcePath)
	if err != nil {
		return "", AudioInfo{}, noop, services.Wrap(services.ErrValidation, stage, "prepare", "source file not accessible", err)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(sourcePath), "."))
	info := AudioInfo{SizeBytes: stat.Size(), Format: ext}

	if ext == "wav" {
		reader, err := wavio.Open(sourcePath)
		if err != nil {
			return "", AudioInfo{}, noop, services.Wrap(services.ErrValidation, stage, "prepare", "invalid wav input", err)
		}
		info.SampleRate = reader.SampleRate()
		info.Channels = reader.Channels()
		reader.Close()
		return sourcePath, info, noop, nil
	}

	probe, err := ffprobe.Inspect(ctx, s.cfg.FFprobeBinary(), sourcePath)
	if err != nil {
		return "", AudioInfo{}, noop, services.Wrap(services.ErrProcessing, stage, "prepare", "probe input", err)
	}
	if probe.AudioStreamCount() == 0 {
		return "", AudioInfo{}, noop, services.Wrap(services.ErrValidation, stage, "prepare", "input has no audio stream", nil)
	}
	info.SampleRate = probe.SampleRate()
	info.Channels = probe.Channels()

	if err := os.MkdirAll(s.cfg.Paths.WorkDir, 0o755); err != nil {
		return "", AudioInfo{}, noop, services.Wrap(services.ErrProcessing, stage, "prepare", "create work directory", err)
	}
	decoded := filepath.Join(s.cfg.Paths.WorkDir, fileID+".wav")
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", sourcePath,
		"-ar", fmt.Sprint(s.cfg.Chunking.TargetSampleRate),
		"-ac", "1",
		decoded,
	}
	if err := s.runFFmpeg(ctx, args...); err != nil {
		os.Remove(decoded)
		return "", AudioInfo{}, noop, services.Wrap(services.ErrProcessing, stage, "prepare", "decode input to wav", err)
	}
	return decoded, info, func() { os.Remove(decoded) }, nil
}

// detect streams the file through the detector one window at a time.
func (s *Splitter) detect(ctx context.Context, wavPath string) ([]silence.Segment, float64, int, error) {
	reader, err := wavio.Open(wavPath)
	if err != nil {
		return nil, 0, 0, err
	}
	defer reader.Close()

	sampleRate := reader.SampleRate()
	windowFrames := int(s.cfg.Detection.WindowSeconds * float64(sampleRate))
	if windowFrames < 1 {
		windowFrames = sampleRate
	}
	window := make([]float64, windowFrames)

	var segments []silence.Segment
	var totalFrames int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, 0, err
		}
		n, err := reader.ReadMono(window)
		if n > 0 {
			offset := float64(totalFrames) / float64(sampleRate)
			found, detectErr := s.detector.Detect(window[:n], sampleRate, offset)
			if detectErr != nil {
				return nil, 0, 0, detectErr
			}
			segments = append(segments, found...)
			totalFrames += int64(n)
		}
		if errors.Is(err, io.EOF) || n == 0 {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
	}

	return segments, float64(totalFrames) / float64(sampleRate), sampleRate, nil
}

// exportChunks extracts each span, resamples to the target rate, and writes
// chunk files into the staging directory. Metadata records the final paths.
// A lone span covering the whole file at the target layout is exported as a
// verified copy instead of being re-encoded.
func (s *Splitter) exportChunks(ctx context.Context, wavPath, sourcePath string, spans []silence.Span, sampleRate int, duration float64, stagingDir, finalDir string) ([]Chunk, error) {
	target := s.cfg.Chunking.TargetSampleRate

	if len(spans) == 1 && s.coversWholeFile(spans[0], duration) && s.matchesTargetLayout(wavPath) {
		name := fmt.Sprintf("chunk_000.%s", s.exporter.Extension())
		if err := s.exporter.ExportFullFile(ctx, wavPath, filepath.Join(stagingDir, name)); err != nil {
			return nil, services.Wrap(services.ErrProcessing, stage, "export", "export whole file", err)
		}
		return []Chunk{{
			Index:       0,
			TotalChunks: 1,
			Start:       spans[0].Start,
			End:         spans[0].End,
			Duration:    spans[0].Duration(),
			OutputPath:  filepath.Join(finalDir, name),
			SourcePath:  sourcePath,
		}}, nil
	}

	chunks := make([]Chunk, 0, len(spans))
	for i, span := range spans {
		startFrame := int64(math.Round(span.Start * float64(sampleRate)))
		endFrame := int64(math.Round(span.End * float64(sampleRate)))
		samples, _, err := wavio.ReadSpan(wavPath, startFrame, endFrame)
		if err != nil {
			return nil, services.Wrap(services.ErrProcessing, stage, "extract", fmt.Sprintf("read chunk %d", i), err)
		}
		samples, err = wavio.Resample(samples, sampleRate, target)
		if err != nil {
			return nil, services.Wrap(services.ErrProcessing, stage, "extract", fmt.Sprintf("resample chunk %d", i), err)
		}

		name := fmt.Sprintf("chunk_%03d.%s", i, s.exporter.Extension())
		if err := s.exporter.ExportChunk(ctx, samples, target, filepath.Join(stagingDir, name)); err != nil {
			return nil, services.Wrap(services.ErrProcessing, stage, "export", fmt.Sprintf("export chunk %d", i), err)
		}

		chunks = append(chunks, Chunk{
			Index:       i,
			TotalChunks: len(spans),
			Start:       span.Start,
			End:         span.End,
			Duration:    span.Duration(),
			OutputPath:  filepath.Join(finalDir, name),
			SourcePath:  sourcePath,
		})
	}
	return chunks, nil
}

// coversWholeFile reports whether a span starts at zero and runs to the end
// of the file, within frame rounding.
func (s *Splitter) coversWholeFile(span silence.Span, duration float64) bool {
	const epsilon = 1e-6
	return span.Start <= epsilon && math.Abs(span.End-duration) <= epsilon
}

// matchesTargetLayout reports whether the working WAV already has the
// configured sample rate and channel count, so a copy preserves them.
func (s *Splitter) matchesTargetLayout(wavPath string) bool {
	reader, err := wavio.Open(wavPath)
	if err != nil {
		return false
	}
	defer reader.Close()
	return reader.SampleRate() == s.cfg.Chunking.TargetSampleRate &&
		reader.Channels() == s.cfg.Chunking.TargetChannels
}

func (s *Splitter) runFFmpeg(ctx context.Context, args ...string) error {
	binary := s.cfg.FFmpegBinary()
	if s.commandRunner != nil {
		return s.commandRunner(ctx, binary, args...)
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(string(output)))
	}
	return nil
}
