package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks rejected input: missing files, unsupported
	// extensions, malformed parameters. Validation failures happen before
	// any state mutation.
	ErrValidation = errors.New("validation error")
	// ErrProcessing marks signal-processing or export failures.
	ErrProcessing = errors.New("processing error")
	// ErrConflict marks attempts to start work on a file that already has an
	// active attempt, or to resume a file that is not failed.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks lookups for unknown file IDs.
	ErrNotFound = errors.New("not found")
	// ErrExternalService marks transcription-provider failures; retryable.
	ErrExternalService = errors.New("external service error")
	// ErrConfiguration marks invalid thresholds or paths.
	ErrConfiguration = errors.New("configuration error")
	// ErrTimeout marks provider call timeouts. Retryable, distinct from
	// validation failures.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrProcessing
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a failure is worth retrying. Timeouts and
// external-service failures are; validation, configuration, and conflict
// failures are not.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrExternalService):
		return true
	default:
		return false
	}
}

// ClassifyTimeout converts context deadline errors into ErrTimeout so
// provider timeouts never masquerade as permanent failures.
func ClassifyTimeout(err error, stage, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrTimeout, stage, operation, "deadline exceeded", err)
	}
	return err
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
