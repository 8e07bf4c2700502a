package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"neuravox/internal/logging"
	"neuravox/internal/services"
)

// WhisperCLICommand is the launcher used to run the bundled whisper tool.
const WhisperCLICommand = "uvx"

// WhisperCLI transcribes chunks by shelling out to whisper via uvx. Each
// call writes a .txt next to a scratch directory and reads it back.
type WhisperCLI struct {
	model         string
	binary        string
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewWhisperCLI builds the local-tool provider for the given model.
func NewWhisperCLI(model string, logger *slog.Logger) *WhisperCLI {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WhisperCLI{
		model:  model,
		binary: WhisperCLICommand,
		logger: logger.With(logging.String(logging.FieldComponent, "whisper-cli")),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (w *WhisperCLI) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	w.commandRunner = runner
}

// Model returns the configured model tag.
func (w *WhisperCLI) Model() string { return w.model }

// Available reports whether the launcher binary is on PATH.
func (w *WhisperCLI) Available(ctx context.Context) bool {
	_, err := exec.LookPath(w.binary)
	return err == nil
}

// Transcribe runs whisper on one chunk and returns the text output.
func (w *WhisperCLI) Transcribe(ctx context.Context, chunkPath string) (string, error) {
	scratch, err := os.MkdirTemp("", "neuravox-whisper-*")
	if err != nil {
		return "", services.Wrap(services.ErrProcessing, "transcribing", "whisper-cli", "create scratch dir", err)
	}
	defer os.RemoveAll(scratch)

	args := []string{
		"--from", "openai-whisper", "whisper",
		chunkPath,
		"--model", w.model,
		"--output_format", "txt",
		"--output_dir", scratch,
	}
	if err := w.run(ctx, args...); err != nil {
		if classified := services.ClassifyTimeout(err, "transcribing", "whisper-cli"); classified != err {
			return "", classified
		}
		return "", services.Wrap(services.ErrExternalService, "transcribing", "whisper-cli", "whisper invocation failed", err)
	}

	stem := strings.TrimSuffix(filepath.Base(chunkPath), filepath.Ext(chunkPath))
	output, err := os.ReadFile(filepath.Join(scratch, stem+".txt"))
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "transcribing", "whisper-cli", "whisper produced no transcript", err)
	}
	return string(output), nil
}

func (w *WhisperCLI) run(ctx context.Context, args ...string) error {
	if w.commandRunner != nil {
		return w.commandRunner(ctx, w.binary, args...)
	}
	cmd := exec.CommandContext(ctx, w.binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", w.binary, err, strings.TrimSpace(string(output)))
	}
	return nil
}
