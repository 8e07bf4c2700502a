// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// This package has no neuravox-specific dependencies and could be extracted
// as a standalone library.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual stream properties
//   - Format: container-level metadata (duration, size, bitrate)
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
//
// Helper methods on Result surface the first audio stream's layout along
// with duration and size parsing.
package ffprobe
