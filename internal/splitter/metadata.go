package splitter

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// AudioInfo captures the source file's layout, derived once per file.
type AudioInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	SizeBytes       int64   `json:"size_bytes"`
	Format          string  `json:"format"`
}

// Chunk describes one exported non-silent span.
type Chunk struct {
	Index       int     `json:"index"`
	TotalChunks int     `json:"total_chunks"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Duration    float64 `json:"duration"`
	OutputPath  string  `json:"output_path"`
	SourcePath  string  `json:"source_path"`
}

// Params records the parameters a file was processed with, for reproducibility.
type Params struct {
	SilenceThreshold   float64 `json:"silence_threshold"`
	MinSilenceDuration float64 `json:"min_silence_duration"`
	FrameLength        int     `json:"frame_length"`
	HopLength          int     `json:"hop_length"`
	WindowSeconds      float64 `json:"window_seconds"`
	MergeGapThreshold  float64 `json:"merge_gap_threshold"`
	KeepSilence        float64 `json:"keep_silence"`
	MinChunkDuration   float64 `json:"min_chunk_duration"`
	OutputFormat       string  `json:"output_format"`
	TargetSampleRate   int     `json:"target_sample_rate"`
	TargetChannels     int     `json:"target_channels"`
}

// Metadata is the immutable record persisted after a successful split.
type Metadata struct {
	FileID         string    `json:"file_id"`
	OriginalFile   string    `json:"original_file"`
	ProcessedAt    time.Time `json:"processed_at"`
	ProcessingTime float64   `json:"processing_time_seconds"`
	Chunks         []Chunk   `json:"chunks"`
	AudioInfo      AudioInfo `json:"audio_info"`
	Params         Params    `json:"processing_params"`
}

// Manifest enumerates chunk files for the transcription phase.
type Manifest struct {
	FileID       string   `json:"file_id"`
	OutputFormat string   `json:"output_format"`
	SampleRate   int      `json:"sample_rate"`
	ChunkPaths   []string `json:"chunk_paths"`
}

// MetadataFileName and ManifestFileName are the documents written next to
// the chunk files in each output directory.
const (
	MetadataFileName = "metadata.json"
	ManifestFileName = "manifest.json"
)

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadMetadata reads a metadata document from an output directory.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}

// LoadManifest reads a chunk manifest from an output directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &manifest, nil
}
