// Package pipeline drives files through processing and transcription with
// bounded concurrency. One Orchestrator owns the machine-wide instance lock,
// the state store handle, and a per-model cache of transcription providers.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"neuravox/internal/config"
	"neuravox/internal/export"
	"neuravox/internal/fingerprint"
	"neuravox/internal/logging"
	"neuravox/internal/services"
	"neuravox/internal/splitter"
	"neuravox/internal/state"
	"neuravox/internal/transcription"
)

// LockFileName is the single-instance lock kept under the state directory.
const LockFileName = "neuravox.lock"

// FileResult reports one file's trip through the pipeline. Err is set when
// the file failed; the other fields describe how far it got.
type FileResult struct {
	Path       string
	FileID     string
	Metadata   *splitter.Metadata
	Transcript *transcription.Result
	Err        error
}

// Orchestrator coordinates splitting, state transitions, and transcription.
type Orchestrator struct {
	cfg      *config.Config
	store    *state.Store
	splitter *splitter.Splitter
	logger   *slog.Logger

	lock     *flock.Flock
	lockPath string

	providerFactory func(model string) (transcription.Service, error)

	mu        sync.Mutex
	providers map[string]transcription.Service
}

// New builds an orchestrator and acquires the instance lock. A second
// orchestrator against the same state directory is refused.
func New(cfg *config.Config, store *state.Store, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil || store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "config and store are required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "pipeline"))

	exporter, err := export.ForFormat(cfg.Chunking.OutputFormat, cfg.FFmpegBinary(), cfg.Chunking.TargetChannels)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "select exporter", err)
	}
	split, err := splitter.New(cfg, exporter, logger)
	if err != nil {
		return nil, err
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, LockFileName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrProcessing, "pipeline", "new", "acquire instance lock", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConflict, "pipeline", "new",
			fmt.Sprintf("another instance holds %s", lockPath), nil)
	}

	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		splitter:  split,
		logger:    logger,
		lock:      lock,
		lockPath:  lockPath,
		providers: make(map[string]transcription.Service),
	}
	o.providerFactory = func(model string) (transcription.Service, error) {
		return transcription.New(cfg, model, logger)
	}
	return o, nil
}

// Close releases the instance lock. The state store is owned by the caller.
func (o *Orchestrator) Close() error {
	if o.lock == nil {
		return nil
	}
	if err := o.lock.Unlock(); err != nil {
		return fmt.Errorf("release instance lock: %w", err)
	}
	o.lock = nil
	return nil
}

// ProcessFile runs one file through the full pipeline: claim, split, and
// optionally transcribe. Model overrides the configured transcription model
// when non-empty. Failures are recorded in the store before returning.
func (o *Orchestrator) ProcessFile(ctx context.Context, path, model string) (*FileResult, error) {
	return o.run(ctx, path, model, false)
}

// run is the shared body of ProcessFile and the resume path. A retry claims
// the file through the guarded failed-to-processing transition; when the
// file's contents changed since the failure the fingerprint no longer
// matches any record and the file is claimed as a fresh one instead.
func (o *Orchestrator) run(ctx context.Context, path, model string, retry bool) (*FileResult, error) {
	result := &FileResult{Path: path}

	absPath, err := filepath.Abs(path)
	if err != nil {
		result.Err = services.Wrap(services.ErrValidation, "pipeline", "process_file", "resolve input path", err)
		return result, result.Err
	}
	result.Path = absPath

	info, err := os.Stat(absPath)
	if err != nil {
		result.Err = services.Wrap(services.ErrValidation, "pipeline", "process_file", "input file not accessible", err)
		return result, result.Err
	}
	if info.IsDir() {
		result.Err = services.Wrap(services.ErrValidation, "pipeline", "process_file",
			fmt.Sprintf("%s is a directory", absPath), nil)
		return result, result.Err
	}
	if ext := filepath.Ext(absPath); !o.cfg.SupportsExtension(ext) {
		result.Err = services.Wrap(services.ErrValidation, "pipeline", "process_file",
			fmt.Sprintf("unsupported input extension %q", ext), nil)
		return result, result.Err
	}

	fileID, err := fingerprint.FileID(absPath)
	if err != nil {
		result.Err = services.Wrap(services.ErrValidation, "pipeline", "process_file", "fingerprint input", err)
		return result, result.Err
	}
	result.FileID = fileID

	ctx = services.WithFileID(ctx, fileID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithStage(ctx, string(state.StatusProcessing))
	log := logging.WithContext(ctx, o.logger)

	if threshold := int64(o.cfg.Pipeline.LargeFileThresholdMB) << 20; threshold > 0 && info.Size() > threshold {
		log.Warn("input exceeds large-file threshold, processing may be slow",
			logging.Int64("size_bytes", info.Size()),
			logging.Int("threshold_mb", o.cfg.Pipeline.LargeFileThresholdMB))
	}

	if err := o.claim(ctx, fileID, absPath, retry); err != nil {
		result.Err = err
		return result, err
	}
	log.Info("processing started", logging.String("source", absPath))

	meta, err := o.splitter.Process(ctx, absPath, fileID)
	if err != nil {
		return result, o.fail(ctx, log, result, err)
	}
	result.Metadata = meta

	stageMeta, _ := json.Marshal(map[string]any{
		"chunks":          len(meta.Chunks),
		"duration":        meta.AudioInfo.DurationSeconds,
		"processing_time": meta.ProcessingTime,
	})
	if err := o.store.UpdateStage(ctx, fileID, state.StatusProcessed, string(stageMeta)); err != nil {
		return result, o.fail(ctx, log, result, err)
	}
	log.Info("processing finished", logging.Int("chunks", len(meta.Chunks)))

	if o.cfg.Transcription.Enabled && len(meta.Chunks) > 0 {
		transcript, err := o.transcribe(ctx, fileID, model)
		if err != nil {
			return result, o.fail(ctx, log, result, err)
		}
		result.Transcript = transcript
	} else if o.cfg.Transcription.Enabled {
		log.Info("no chunks to transcribe, skipping transcription")
	}

	if err := o.store.CompleteProcessing(ctx, fileID); err != nil {
		return result, o.fail(ctx, log, result, err)
	}
	log.Info("pipeline completed")
	return result, nil
}

// claim moves the file into processing. Fresh files go through the upsert;
// retries take the guarded failed-to-processing transition and fall back to
// the upsert when the fingerprint is new to the store.
func (o *Orchestrator) claim(ctx context.Context, fileID, absPath string, retry bool) error {
	if retry {
		err := o.store.Retry(ctx, fileID)
		if err == nil || !errors.Is(err, services.ErrNotFound) {
			return err
		}
	}
	return o.store.StartProcessing(ctx, fileID, absPath)
}

func (o *Orchestrator) transcribe(ctx context.Context, fileID, model string) (*transcription.Result, error) {
	ctx = services.WithStage(ctx, string(state.StatusTranscribing))
	log := logging.WithContext(ctx, o.logger)

	if err := o.store.StartStage(ctx, fileID, state.StatusTranscribing); err != nil {
		return nil, err
	}

	svc, err := o.provider(model)
	if err != nil {
		return nil, err
	}
	if !svc.Available(ctx) {
		return nil, services.Wrap(services.ErrExternalService, "transcribing", "provider",
			fmt.Sprintf("transcription provider %q is not available", o.cfg.Transcription.Provider), nil)
	}

	outputDir := filepath.Join(o.cfg.Paths.OutputDir, fileID)
	manifest, err := splitter.LoadManifest(filepath.Join(outputDir, splitter.ManifestFileName))
	if err != nil {
		return nil, services.Wrap(services.ErrProcessing, "transcribing", "manifest", "load chunk manifest", err)
	}

	transcript, err := transcription.TranscribeChunks(ctx, svc, manifest, outputDir)
	if err != nil {
		return nil, err
	}

	stageMeta, _ := json.Marshal(map[string]any{"model": transcript.Model, "chunks": len(transcript.Chunks)})
	if err := o.store.UpdateStage(ctx, fileID, state.StatusTranscribed, string(stageMeta)); err != nil {
		return nil, err
	}
	log.Info("transcription finished",
		logging.String("model", transcript.Model),
		logging.Int("chunks", len(transcript.Chunks)))
	return transcript, nil
}

// provider returns the cached transcription service for a model, building it
// at most once per model.
func (o *Orchestrator) provider(model string) (transcription.Service, error) {
	key := model
	if key == "" {
		key = o.cfg.Transcription.Model
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if svc, ok := o.providers[key]; ok {
		return svc, nil
	}
	svc, err := o.providerFactory(model)
	if err != nil {
		return nil, err
	}
	o.providers[key] = svc
	return svc, nil
}

// fail records the error against the file and returns it. Conflict and
// not-found failures from the store itself are returned untouched since the
// file's record is not ours to rewrite.
func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, result *FileResult, err error) error {
	result.Err = err
	if errors.Is(err, services.ErrConflict) || errors.Is(err, services.ErrNotFound) {
		return err
	}
	log.Error("pipeline failed",
		logging.Error(err),
		logging.Bool("retryable", services.Retryable(err)))
	if markErr := o.store.MarkFailed(ctx, result.FileID, err.Error()); markErr != nil {
		log.Error("record failure", logging.Error(markErr))
	}
	return err
}

// ProcessBatch runs the given files with at most MaxConcurrent in flight.
// Results come back in input order; one file's failure never stops the rest.
func (o *Orchestrator) ProcessBatch(ctx context.Context, paths []string, model string) []FileResult {
	return o.processBatch(ctx, paths, model, false)
}

func (o *Orchestrator) processBatch(ctx context.Context, paths []string, model string, retry bool) []FileResult {
	limit := o.cfg.Pipeline.MaxConcurrent
	if limit < 1 {
		limit = 1
	}

	results := make([]FileResult, len(paths))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := o.run(ctx, path, model, retry)
			if res == nil {
				res = &FileResult{Path: path, Err: err}
			}
			results[i] = *res
		}(i, path)
	}
	wg.Wait()
	return results
}

// ResumeFailed reruns every failed file whose source still exists. Files
// whose original path is gone are reported as failed results without being
// retried.
func (o *Orchestrator) ResumeFailed(ctx context.Context, model string) ([]FileResult, error) {
	failed, err := o.store.GetFailedFiles(ctx)
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		return nil, nil
	}

	var retryable []string
	var missing []FileResult
	for _, entry := range failed {
		if _, err := os.Stat(entry.OriginalPath); err != nil {
			missing = append(missing, FileResult{
				Path:   entry.OriginalPath,
				FileID: entry.FileID,
				Err: services.Wrap(services.ErrValidation, "pipeline", "resume",
					fmt.Sprintf("original file %s no longer exists", entry.OriginalPath), err),
			})
			continue
		}
		retryable = append(retryable, entry.OriginalPath)
	}

	o.logger.Info("resuming failed files",
		logging.Int("retryable", len(retryable)),
		logging.Int("missing", len(missing)))
	results := o.processBatch(ctx, retryable, model, true)
	return append(results, missing...), nil
}

// ListFailed returns the failed files without re-running them.
func (o *Orchestrator) ListFailed(ctx context.Context) ([]state.FailedFile, error) {
	return o.store.GetFailedFiles(ctx)
}

// Status returns the aggregate pipeline summary.
func (o *Orchestrator) Status(ctx context.Context, recentLimit int) (*state.Summary, error) {
	return o.store.GetPipelineSummary(ctx, recentLimit)
}

// FileStatus returns one file's state and stage history.
func (o *Orchestrator) FileStatus(ctx context.Context, fileID string) (*state.FileStatus, error) {
	return o.store.GetFileStatus(ctx, fileID)
}
