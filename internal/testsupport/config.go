package testsupport

import (
	"path/filepath"
	"testing"

	"neuravox/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Transcription.Enabled = false

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithTranscription enables transcription with the given provider.
func WithTranscription(provider string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Transcription.Enabled = true
		cfg.Transcription.Provider = provider
	}
}

// WithMaxConcurrent sets the batch concurrency ceiling.
func WithMaxConcurrent(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.MaxConcurrent = n
	}
}

// WithTargetChannels sets the exported chunk channel layout.
func WithTargetChannels(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Chunking.TargetChannels = n
	}
}

// WithDetection overrides the silence detection thresholds.
func WithDetection(threshold, minSilence float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Detection.SilenceThreshold = threshold
		cfg.Detection.MinSilenceDuration = minSilence
	}
}

// WithChunking overrides chunk assembly parameters.
func WithChunking(mergeGap, keepSilence, minChunk float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Chunking.MergeGapThreshold = mergeGap
		cfg.Chunking.KeepSilence = keepSilence
		cfg.Chunking.MinChunkDuration = minChunk
	}
}
