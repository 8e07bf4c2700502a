package state

import "time"

// Status is a file's position in the pipeline lifecycle.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusProcessed    Status = "processed"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// active statuses refuse a concurrent start on the same file id.
func (s Status) active() bool {
	return s == StatusProcessing || s == StatusTranscribing
}

// Terminal reports whether the status ends the lifecycle. Failed files can
// still re-enter via Retry.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// allowedSources lists the statuses a file may hold immediately before
// moving to the keyed status.
var allowedSources = map[Status][]Status{
	StatusProcessing:   {StatusPending, StatusFailed},
	StatusProcessed:    {StatusProcessing},
	StatusTranscribing: {StatusProcessed},
	StatusTranscribed:  {StatusTranscribing},
	StatusCompleted:    {StatusProcessed, StatusTranscribed},
	StatusFailed:       {StatusProcessing, StatusProcessed, StatusTranscribing},
}

// StageStatus is the state of one stage-history row.
type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// FileState is the durable per-file record.
type FileState struct {
	FileID       string
	OriginalPath string
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StageRow is one append-only stage-history entry.
type StageRow struct {
	ID           int64
	FileID       string
	Stage        string
	Status       StageStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Metadata     string
}

// FileStatus bundles a file's state with its full stage history.
type FileStatus struct {
	File   FileState
	Stages []StageRow
}

// FailedFile describes one resumable failure.
type FailedFile struct {
	FileID       string
	OriginalPath string
	ErrorMessage string
	UpdatedAt    time.Time
}

// Summary aggregates pipeline state for status queries.
type Summary struct {
	StatusCounts   map[Status]int
	RecentActivity []StageRow
}
