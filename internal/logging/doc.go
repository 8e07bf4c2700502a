// Package logging centralizes slog logger construction and the structured
// field conventions used across the pipeline. All components log through a
// *slog.Logger built here, with context-derived fields (file_id, stage,
// correlation_id) attached via WithContext.
package logging
