package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateChunking(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDetection() error {
	if c.Detection.SilenceThreshold <= 0 || c.Detection.SilenceThreshold >= 1 {
		return errors.New("detection.silence_threshold must be between 0 and 1 (exclusive)")
	}
	if c.Detection.MinSilenceDuration <= 0 {
		return errors.New("detection.min_silence_duration must be positive (seconds)")
	}
	if c.Detection.FrameLength <= 0 {
		return errors.New("detection.frame_length must be positive (samples)")
	}
	if c.Detection.HopLength <= 0 {
		return errors.New("detection.hop_length must be positive (samples)")
	}
	if c.Detection.HopLength > c.Detection.FrameLength {
		return errors.New("detection.hop_length must not exceed detection.frame_length")
	}
	if c.Detection.WindowSeconds <= 0 {
		return errors.New("detection.window_seconds must be positive")
	}
	return nil
}

func (c *Config) validateChunking() error {
	if c.Chunking.MergeGapThreshold < 0 {
		return errors.New("chunking.merge_gap_threshold must be >= 0 (seconds)")
	}
	if c.Chunking.KeepSilence < 0 {
		return errors.New("chunking.keep_silence must be >= 0 (seconds)")
	}
	if c.Chunking.MinChunkDuration <= 0 {
		return errors.New("chunking.min_chunk_duration must be positive (seconds)")
	}
	switch c.Chunking.OutputFormat {
	case "wav", "flac", "ogg":
	default:
		return fmt.Errorf("chunking.output_format: unsupported value %q (wav, flac, or ogg)", c.Chunking.OutputFormat)
	}
	if c.Chunking.TargetSampleRate <= 0 {
		return errors.New("chunking.target_sample_rate must be positive")
	}
	if c.Chunking.TargetChannels != 1 && c.Chunking.TargetChannels != 2 {
		return errors.New("chunking.target_channels must be 1 or 2")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if !c.Transcription.Enabled {
		return nil
	}
	switch c.Transcription.Provider {
	case "whisper-cli":
	case "api":
		if c.Transcription.BaseURL == "" {
			return errors.New("transcription.base_url must be set when transcription.provider is \"api\"")
		}
		if c.Transcription.APIKey == "" {
			return errors.New("transcription.api_key must be set when transcription.provider is \"api\" (or set NEURAVOX_API_KEY)")
		}
	default:
		return fmt.Errorf("transcription.provider: unsupported value %q (whisper-cli or api)", c.Transcription.Provider)
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		return errors.New("transcription.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxConcurrent <= 0 {
		return errors.New("pipeline.max_concurrent must be positive")
	}
	if c.Pipeline.LargeFileThresholdMB <= 0 {
		return errors.New("pipeline.large_file_threshold_mb must be positive")
	}
	if len(c.Pipeline.SupportedExtensions) == 0 {
		return errors.New("pipeline.supported_extensions must include at least one extension")
	}
	return nil
}
