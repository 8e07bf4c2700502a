package preflight

import (
	"context"

	"neuravox/internal/config"
	"neuravox/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}

	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, Result{
			Name:   status.Name,
			Passed: status.Available || status.Optional,
			Detail: depDetail(ctx, status),
		})
	}

	if cfg.Transcription.Enabled && cfg.Transcription.Provider == "api" {
		results = append(results, CheckTranscriptionAPI(ctx, cfg.Transcription.BaseURL, cfg.Transcription.APIKey))
	}

	return results
}

// CheckSystemDeps evaluates the external binaries the configured pipeline
// needs. ffmpeg is required whenever non-WAV inputs or outputs are possible,
// which in practice is every realistic extension list, so it is never
// optional; uvx only matters for the whisper-cli provider.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for decoding non-WAV inputs and flac/ogg export",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for media inspection",
		},
	}
	if cfg.Transcription.Enabled && cfg.Transcription.Provider == "whisper-cli" {
		requirements = append(requirements, deps.Requirement{
			Name:        "uvx",
			Command:     "uvx",
			Description: "Required for whisper-cli transcription",
		})
	}
	return deps.CheckBinaries(requirements)
}

func depDetail(ctx context.Context, status deps.Status) string {
	if !status.Available {
		detail := status.Detail
		if status.Optional {
			detail += " (optional)"
		}
		return detail
	}
	if version := deps.Version(ctx, status.Command); version != "" {
		return version
	}
	return status.Command
}
