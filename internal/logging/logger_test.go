package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"neuravox/internal/logging"
	"neuravox/internal/services"
)

func TestConsoleOutputFormat(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	component := logging.NewComponentLogger(logger, "splitter")
	component.Info("chunk exported", logging.Int("chunk_index", 3))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO splitter: chunk exported") {
		t.Fatalf("unexpected console line: %q", line)
	}
	if !strings.Contains(line, "chunk_index=3") {
		t.Fatalf("expected attribute in console line: %q", line)
	}
}

func TestJSONOutputFormat(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "out.json")

	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hello", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, want := range []string{`"msg":"hello"`, `"k":"v"`, `"level":"info"`} {
		if !strings.Contains(string(content), want) {
			t.Fatalf("expected %s in JSON output, got %q", want, content)
		}
	}
}

func TestUnsupportedFormatRejected(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAttachesFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithFileID(context.Background(), "deadbeef1234")
	ctx = services.WithStage(ctx, "transcribing")
	logging.WithContext(ctx, logger).Info("stage started")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "file_id=deadbeef1234") || !strings.Contains(line, "stage=transcribing") {
		t.Fatalf("expected context fields, got %q", line)
	}
}

func TestWithContextNilLoggerIsNoop(t *testing.T) {
	logger := logging.WithContext(context.Background(), nil)
	// Must not panic.
	logger.Info("discarded")
}
