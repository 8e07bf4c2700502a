package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"neuravox/internal/config"
	"neuravox/internal/logging"
	"neuravox/internal/services"
	"neuravox/internal/splitter"
	"neuravox/internal/state"
	"neuravox/internal/testsupport"
	"neuravox/internal/transcription"
)

func newOrchestrator(t *testing.T, cfg *config.Config) *Orchestrator {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	o, err := New(cfg, store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

type countingProvider struct {
	model     string
	inFlight  atomic.Int64
	maxSeen   atomic.Int64
	fail      atomic.Bool
	delay     time.Duration
	lastStage atomic.Value
}

func (p *countingProvider) Available(context.Context) bool { return true }
func (p *countingProvider) Model() string                  { return p.model }

func (p *countingProvider) Transcribe(ctx context.Context, chunkPath string) (string, error) {
	if stage, ok := services.StageFromContext(ctx); ok {
		p.lastStage.Store(stage)
	}
	current := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		seen := p.maxSeen.Load()
		if current <= seen || p.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.fail.Load() {
		return "", errors.New("provider offline")
	}
	return "words from " + filepath.Base(chunkPath), nil
}

func useProvider(o *Orchestrator, p transcription.Service) {
	o.providerFactory = func(string) (transcription.Service, error) { return p, nil }
}

func TestProcessFileCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	o := newOrchestrator(t, cfg)

	source := filepath.Join(t.TempDir(), "talk.wav")
	testsupport.WriteToneWAV(t, source, 16000, 30,
		testsupport.ToneSpan{Start: 0, End: 10},
		testsupport.ToneSpan{Start: 20, End: 30})

	result, err := o.ProcessFile(context.Background(), source, "")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if result.FileID == "" {
		t.Fatal("result is missing a file id")
	}
	if got := len(result.Metadata.Chunks); got != 2 {
		t.Fatalf("chunks = %d, want 2", got)
	}

	status, err := o.FileStatus(context.Background(), result.FileID)
	if err != nil {
		t.Fatalf("FileStatus: %v", err)
	}
	if status.File.Status != state.StatusCompleted {
		t.Fatalf("status = %q, want completed", status.File.Status)
	}

	outputDir := filepath.Join(cfg.Paths.OutputDir, result.FileID)
	if _, err := splitter.LoadMetadata(filepath.Join(outputDir, splitter.MetadataFileName)); err != nil {
		t.Fatalf("metadata missing from output dir: %v", err)
	}
	manifest, err := splitter.LoadManifest(filepath.Join(outputDir, splitter.ManifestFileName))
	if err != nil {
		t.Fatalf("manifest missing from output dir: %v", err)
	}
	if len(manifest.ChunkPaths) != 2 {
		t.Fatalf("manifest chunks = %d, want 2", len(manifest.ChunkPaths))
	}
}

func TestProcessFileWithTranscription(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTranscription("whisper-cli"))
	o := newOrchestrator(t, cfg)
	provider := &countingProvider{model: "large-v3"}
	useProvider(o, provider)

	source := filepath.Join(t.TempDir(), "talk.wav")
	testsupport.WriteToneWAV(t, source, 16000, 10, testsupport.ToneSpan{Start: 0, End: 10})

	result, err := o.ProcessFile(context.Background(), source, "")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if result.Transcript == nil {
		t.Fatal("expected a transcript")
	}
	if result.Transcript.Model != "large-v3" {
		t.Fatalf("transcript model = %q", result.Transcript.Model)
	}
	if _, err := os.Stat(result.Transcript.TranscriptPath); err != nil {
		t.Fatalf("combined transcript missing: %v", err)
	}

	status, err := o.FileStatus(context.Background(), result.FileID)
	if err != nil {
		t.Fatalf("FileStatus: %v", err)
	}
	if status.File.Status != state.StatusCompleted {
		t.Fatalf("status = %q, want completed", status.File.Status)
	}
	stages := make(map[string]state.StageStatus)
	for _, row := range status.Stages {
		stages[row.Stage] = row.Status
	}
	if stages["transcribing"] != state.StageCompleted {
		t.Fatalf("transcribing stage = %q, want completed", stages["transcribing"])
	}
}

func TestProcessedStageRecordsMetrics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	o := newOrchestrator(t, cfg)

	source := filepath.Join(t.TempDir(), "talk.wav")
	testsupport.WriteToneWAV(t, source, 16000, 10, testsupport.ToneSpan{Start: 0, End: 10})

	result, err := o.ProcessFile(context.Background(), source, "")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	status, err := o.FileStatus(context.Background(), result.FileID)
	if err != nil {
		t.Fatalf("FileStatus: %v", err)
	}
	var metadata string
	for _, row := range status.Stages {
		if row.Stage == "processing" && row.Status == state.StageCompleted {
			metadata = row.Metadata
		}
	}
	if metadata == "" {
		t.Fatal("no completed processing stage row")
	}

	var recorded struct {
		Chunks         int     `json:"chunks"`
		Duration       float64 `json:"duration"`
		ProcessingTime float64 `json:"processing_time"`
	}
	if err := json.Unmarshal([]byte(metadata), &recorded); err != nil {
		t.Fatalf("stage metadata %q: %v", metadata, err)
	}
	if recorded.Chunks != 1 {
		t.Fatalf("recorded chunks = %d, want 1", recorded.Chunks)
	}
	if recorded.Duration < 9.5 || recorded.Duration > 10.5 {
		t.Fatalf("recorded duration = %v, want ~10s", recorded.Duration)
	}
	if recorded.ProcessingTime <= 0 {
		t.Fatalf("recorded processing time = %v, want > 0", recorded.ProcessingTime)
	}
}

func TestTranscriptionSeesStageContext(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTranscription("whisper-cli"))
	o := newOrchestrator(t, cfg)
	provider := &countingProvider{model: "large-v3"}
	useProvider(o, provider)

	source := filepath.Join(t.TempDir(), "talk.wav")
	testsupport.WriteToneWAV(t, source, 16000, 6, testsupport.ToneSpan{Start: 0, End: 6})

	if _, err := o.ProcessFile(context.Background(), source, ""); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if got, _ := provider.lastStage.Load().(string); got != "transcribing" {
		t.Fatalf("provider saw stage %q, want transcribing", got)
	}
}

func TestFailureLogsRetryability(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTranscription("whisper-cli"))
	logPath := filepath.Join(t.TempDir(), "pipeline.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	store := testsupport.MustOpenStore(t, cfg)
	o, err := New(cfg, store, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Close()

	provider := &countingProvider{model: "large-v3"}
	useProvider(o, provider)

	source := filepath.Join(t.TempDir(), "talk.wav")
	testsupport.WriteToneWAV(t, source, 16000, 6, testsupport.ToneSpan{Start: 0, End: 6})
	if _, err := o.ProcessFile(context.Background(), source, ""); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	provider.fail.Store(true)
	flaky := filepath.Join(t.TempDir(), "flaky.wav")
	testsupport.WriteToneWAV(t, flaky, 16000, 7, testsupport.ToneSpan{Start: 0, End: 7})
	if _, err := o.ProcessFile(context.Background(), flaky, ""); err == nil {
		t.Fatal("expected transcription failure")
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "stage=transcribing") {
		t.Fatalf("log is missing the transcribing stage field: %q", line)
	}
	if !strings.Contains(line, "retryable=true") {
		t.Fatalf("log is missing the retryability of the failure: %q", line)
	}
}

func TestProcessFileRejectsUnsupportedInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	o := newOrchestrator(t, cfg)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := o.ProcessFile(context.Background(), path, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want validation marker", err)
	}

	if _, err := o.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "absent.wav"), ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want validation marker for missing file", err)
	}
}

func TestProcessFileRecordsFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	o := newOrchestrator(t, cfg)

	source := filepath.Join(t.TempDir(), "broken.wav")
	if err := os.WriteFile(source, []byte("not a wav at all"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	result, err := o.ProcessFile(context.Background(), source, "")
	if err == nil {
		t.Fatal("expected error for invalid wav")
	}
	status, statusErr := o.FileStatus(context.Background(), result.FileID)
	if statusErr != nil {
		t.Fatalf("FileStatus: %v", statusErr)
	}
	if status.File.Status != state.StatusFailed {
		t.Fatalf("status = %q, want failed", status.File.Status)
	}
	if status.File.ErrorMessage == "" {
		t.Fatal("failure should record an error message")
	}
}

func TestProcessBatchBoundsConcurrencyAndKeepsOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTranscription("whisper-cli"),
		testsupport.WithMaxConcurrent(2))
	o := newOrchestrator(t, cfg)
	provider := &countingProvider{model: "large-v3", delay: 20 * time.Millisecond}
	useProvider(o, provider)

	dir := t.TempDir()
	paths := make([]string, 6)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("clip_%d.wav", i))
		// Vary durations so every file gets a distinct content fingerprint.
		testsupport.WriteToneWAV(t, paths[i], 16000, 1.0+0.1*float64(i),
			testsupport.ToneSpan{Start: 0, End: 2})
	}

	results := o.ProcessBatch(context.Background(), paths, "")
	if len(results) != len(paths) {
		t.Fatalf("results = %d, want %d", len(results), len(paths))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("file %d failed: %v", i, res.Err)
		}
		if res.Path != paths[i] {
			t.Fatalf("result %d is for %q, want %q", i, res.Path, paths[i])
		}
	}
	if peak := provider.maxSeen.Load(); peak > 2 {
		t.Fatalf("observed %d concurrent transcriptions, ceiling is 2", peak)
	}
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(2))
	o := newOrchestrator(t, cfg)

	dir := t.TempDir()
	good1 := filepath.Join(dir, "good1.wav")
	bad := filepath.Join(dir, "bad.wav")
	good2 := filepath.Join(dir, "good2.wav")
	testsupport.WriteToneWAV(t, good1, 16000, 1.0, testsupport.ToneSpan{Start: 0, End: 1})
	testsupport.WriteToneWAV(t, good2, 16000, 1.5, testsupport.ToneSpan{Start: 0, End: 1.5})
	if err := os.WriteFile(bad, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}

	results := o.ProcessBatch(context.Background(), []string{good1, bad, good2}, "")
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("healthy files failed: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Fatal("invalid file should fail")
	}
}

func TestResumeFailedRetriesTranscription(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTranscription("whisper-cli"))
	o := newOrchestrator(t, cfg)
	provider := &countingProvider{model: "large-v3"}
	provider.fail.Store(true)
	useProvider(o, provider)

	source := filepath.Join(t.TempDir(), "talk.wav")
	testsupport.WriteToneWAV(t, source, 16000, 8, testsupport.ToneSpan{Start: 0, End: 8})

	result, err := o.ProcessFile(context.Background(), source, "")
	if err == nil {
		t.Fatal("expected transcription failure")
	}

	failed, err := o.store.GetFailedFiles(context.Background())
	if err != nil {
		t.Fatalf("GetFailedFiles: %v", err)
	}
	if len(failed) != 1 || failed[0].FileID != result.FileID {
		t.Fatalf("failed files = %+v, want the one failure", failed)
	}

	provider.fail.Store(false)
	resumed, err := o.ResumeFailed(context.Background(), "")
	if err != nil {
		t.Fatalf("ResumeFailed: %v", err)
	}
	if len(resumed) != 1 {
		t.Fatalf("resumed = %d results, want 1", len(resumed))
	}
	if resumed[0].Err != nil {
		t.Fatalf("resume failed: %v", resumed[0].Err)
	}

	status, err := o.FileStatus(context.Background(), result.FileID)
	if err != nil {
		t.Fatalf("FileStatus: %v", err)
	}
	if status.File.Status != state.StatusCompleted {
		t.Fatalf("status = %q, want completed", status.File.Status)
	}
}

func TestResumeFailedClaimsChangedSourceAsFresh(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTranscription("whisper-cli"))
	o := newOrchestrator(t, cfg)
	provider := &countingProvider{model: "large-v3"}
	provider.fail.Store(true)
	useProvider(o, provider)

	source := filepath.Join(t.TempDir(), "talk.wav")
	testsupport.WriteToneWAV(t, source, 16000, 8, testsupport.ToneSpan{Start: 0, End: 8})

	result, err := o.ProcessFile(context.Background(), source, "")
	if err == nil {
		t.Fatal("expected transcription failure")
	}
	oldID := result.FileID

	// Rewriting the source gives it a new content fingerprint, so the
	// retry cannot reuse the failed record and claims a fresh one.
	testsupport.WriteToneWAV(t, source, 16000, 9, testsupport.ToneSpan{Start: 0, End: 9})
	provider.fail.Store(false)

	resumed, err := o.ResumeFailed(context.Background(), "")
	if err != nil {
		t.Fatalf("ResumeFailed: %v", err)
	}
	if len(resumed) != 1 {
		t.Fatalf("resumed = %d results, want 1", len(resumed))
	}
	if resumed[0].Err != nil {
		t.Fatalf("resume failed: %v", resumed[0].Err)
	}
	if resumed[0].FileID == oldID {
		t.Fatal("changed source kept its old file id")
	}

	oldStatus, err := o.FileStatus(context.Background(), oldID)
	if err != nil {
		t.Fatalf("FileStatus(old): %v", err)
	}
	if oldStatus.File.Status != state.StatusFailed {
		t.Fatalf("old record status = %q, want failed", oldStatus.File.Status)
	}
	newStatus, err := o.FileStatus(context.Background(), resumed[0].FileID)
	if err != nil {
		t.Fatalf("FileStatus(new): %v", err)
	}
	if newStatus.File.Status != state.StatusCompleted {
		t.Fatalf("new record status = %q, want completed", newStatus.File.Status)
	}
}

func TestResumeFailedReportsMissingSources(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	o := newOrchestrator(t, cfg)

	source := filepath.Join(t.TempDir(), "gone.wav")
	if err := os.WriteFile(source, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	result, err := o.ProcessFile(context.Background(), source, "")
	if err == nil {
		t.Fatal("expected failure for invalid wav")
	}
	if err := os.Remove(source); err != nil {
		t.Fatalf("remove source: %v", err)
	}

	resumed, err := o.ResumeFailed(context.Background(), "")
	if err != nil {
		t.Fatalf("ResumeFailed: %v", err)
	}
	if len(resumed) != 1 {
		t.Fatalf("resumed = %d results, want 1", len(resumed))
	}
	if !errors.Is(resumed[0].Err, services.ErrValidation) {
		t.Fatalf("error = %v, want validation marker", resumed[0].Err)
	}
	if resumed[0].FileID != result.FileID {
		t.Fatalf("missing-source result is for %q, want %q", resumed[0].FileID, result.FileID)
	}
}

func TestProviderCacheBuildsOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTranscription("whisper-cli"))
	o := newOrchestrator(t, cfg)

	var built atomic.Int64
	provider := &countingProvider{model: "large-v3"}
	o.providerFactory = func(string) (transcription.Service, error) {
		built.Add(1)
		return provider, nil
	}

	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("clip_%d.wav", i))
		testsupport.WriteToneWAV(t, path, 16000, 1.0+0.2*float64(i),
			testsupport.ToneSpan{Start: 0, End: 2})
		if _, err := o.ProcessFile(context.Background(), path, ""); err != nil {
			t.Fatalf("ProcessFile %d: %v", i, err)
		}
	}

	if got := built.Load(); got != 1 {
		t.Fatalf("provider built %d times, want 1", got)
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first, err := New(cfg, store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer first.Close()

	if _, err := New(cfg, store, nil); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("error = %v, want conflict marker", err)
	}
}

func TestStatusSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	o := newOrchestrator(t, cfg)

	source := filepath.Join(t.TempDir(), "talk.wav")
	testsupport.WriteToneWAV(t, source, 16000, 6, testsupport.ToneSpan{Start: 0, End: 6})
	if _, err := o.ProcessFile(context.Background(), source, ""); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	summary, err := o.Status(context.Background(), 5)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if summary.StatusCounts[state.StatusCompleted] != 1 {
		t.Fatalf("completed count = %d, want 1", summary.StatusCounts[state.StatusCompleted])
	}
	if len(summary.RecentActivity) == 0 {
		t.Fatal("expected recent activity rows")
	}
}
