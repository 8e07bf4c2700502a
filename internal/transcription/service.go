// Package transcription adapts external speech-to-text providers.
//
// A Service is an opaque, potentially slow, potentially failing dependency:
// the pipeline only relies on the capability surface here. Concrete
// providers are selected by the configured provider tag.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"neuravox/internal/config"
	"neuravox/internal/services"
	"neuravox/internal/splitter"
)

// Service is the capability surface the pipeline consumes.
type Service interface {
	// Available reports whether the provider can accept work right now.
	Available(ctx context.Context) bool
	// Transcribe returns the text for a single chunk file.
	Transcribe(ctx context.Context, chunkPath string) (string, error)
	// Model returns the model tag this service was built for.
	Model() string
}

// ChunkTranscript pairs one chunk with its text.
type ChunkTranscript struct {
	Index     int    `json:"index"`
	ChunkPath string `json:"chunk_path"`
	Text      string `json:"text"`
}

// Result is the combined outcome of transcribing a file's chunks.
type Result struct {
	Model          string            `json:"model"`
	Chunks         []ChunkTranscript `json:"chunks"`
	CombinedText   string            `json:"combined_text"`
	TranscriptPath string            `json:"transcript_path"`
}

// New selects a provider implementation from configuration.
func New(cfg *config.Config, model string, logger *slog.Logger) (Service, error) {
	if model == "" {
		model = cfg.Transcription.Model
	}
	switch cfg.Transcription.Provider {
	case "whisper-cli":
		return NewWhisperCLI(model, logger), nil
	case "api":
		return NewAPIClient(cfg, model, logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "transcribing", "new",
			fmt.Sprintf("unknown transcription provider %q", cfg.Transcription.Provider), nil)
	}
}

// TranscriptsDirName is the directory written under a file's output dir.
const TranscriptsDirName = "transcripts"

// TranscribeChunks runs every chunk in the manifest through svc and writes
// per-chunk text files plus a combined transcript.txt. Outputs land in a
// staging directory renamed into <outputDir>/transcripts only when every
// chunk has succeeded, so a failed phase leaves nothing behind.
func TranscribeChunks(ctx context.Context, svc Service, manifest *splitter.Manifest, outputDir string) (*Result, error) {
	if svc == nil {
		return nil, services.Wrap(services.ErrConfiguration, "transcribing", "transcribe_chunks", "no transcription service", nil)
	}
	if manifest == nil || len(manifest.ChunkPaths) == 0 {
		return nil, services.Wrap(services.ErrValidation, "transcribing", "transcribe_chunks", "manifest has no chunks", nil)
	}

	staging := filepath.Join(outputDir, fmt.Sprintf(".%s-%s", TranscriptsDirName, uuid.NewString()[:8]))
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, services.Wrap(services.ErrProcessing, "transcribing", "transcribe_chunks", "create staging directory", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	result := &Result{Model: svc.Model()}
	var combined strings.Builder
	for i, chunkPath := range manifest.ChunkPaths {
		if err := ctx.Err(); err != nil {
			return nil, services.ClassifyTimeout(err, "transcribing", "transcribe_chunks")
		}
		text, err := svc.Transcribe(ctx, chunkPath)
		if err != nil {
			return nil, services.Wrap(errorMarker(err), "transcribing", "transcribe_chunks",
				fmt.Sprintf("chunk %d failed", i), err)
		}
		text = strings.TrimSpace(text)

		name := strings.TrimSuffix(filepath.Base(chunkPath), filepath.Ext(chunkPath)) + ".txt"
		if err := os.WriteFile(filepath.Join(staging, name), []byte(text+"\n"), 0o644); err != nil {
			return nil, services.Wrap(services.ErrProcessing, "transcribing", "transcribe_chunks", "write chunk transcript", err)
		}

		result.Chunks = append(result.Chunks, ChunkTranscript{Index: i, ChunkPath: chunkPath, Text: text})
		if combined.Len() > 0 {
			combined.WriteString("\n\n")
		}
		combined.WriteString(text)
	}

	result.CombinedText = combined.String()
	combinedPath := filepath.Join(staging, "transcript.txt")
	if err := os.WriteFile(combinedPath, []byte(result.CombinedText+"\n"), 0o644); err != nil {
		return nil, services.Wrap(services.ErrProcessing, "transcribing", "transcribe_chunks", "write combined transcript", err)
	}

	finalDir := filepath.Join(outputDir, TranscriptsDirName)
	if err := os.RemoveAll(finalDir); err != nil {
		return nil, services.Wrap(services.ErrProcessing, "transcribing", "transcribe_chunks", "clear previous transcripts", err)
	}
	if err := os.Rename(staging, finalDir); err != nil {
		return nil, services.Wrap(services.ErrProcessing, "transcribing", "transcribe_chunks", "publish transcripts", err)
	}
	committed = true
	result.TranscriptPath = filepath.Join(finalDir, "transcript.txt")
	return result, nil
}

// errorMarker keeps an already-classified error's kind; anything else from a
// provider is an external service failure.
func errorMarker(err error) error {
	for _, marker := range []error{services.ErrTimeout, services.ErrExternalService, services.ErrValidation, services.ErrConfiguration} {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return services.ErrExternalService
}
