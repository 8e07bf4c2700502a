package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeChunking()
	c.normalizeTranscription()
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeChunking() {
	c.Chunking.OutputFormat = strings.ToLower(strings.TrimSpace(c.Chunking.OutputFormat))
	if c.Chunking.OutputFormat == "" {
		c.Chunking.OutputFormat = defaultOutputFormat
	}
	if c.Chunking.TargetSampleRate == 0 {
		c.Chunking.TargetSampleRate = defaultTargetSampleRate
	}
	if c.Chunking.TargetChannels == 0 {
		c.Chunking.TargetChannels = defaultTargetChannels
	}
}

func (c *Config) normalizeTranscription() {
	if c.Transcription.APIKey == "" {
		if value, ok := os.LookupEnv("NEURAVOX_API_KEY"); ok {
			c.Transcription.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transcription.Provider = strings.ToLower(strings.TrimSpace(c.Transcription.Provider))
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = defaultTranscriptionProvider
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	if c.Transcription.TimeoutSeconds == 0 {
		c.Transcription.TimeoutSeconds = defaultTranscriptionTimeout
	}
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.MaxConcurrent == 0 {
		c.Pipeline.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Pipeline.LargeFileThresholdMB == 0 {
		c.Pipeline.LargeFileThresholdMB = defaultLargeFileThresholdMB
	}
	if len(c.Pipeline.SupportedExtensions) == 0 {
		c.Pipeline.SupportedExtensions = defaultSupportedExtensions()
	}
	for i, ext := range c.Pipeline.SupportedExtensions {
		c.Pipeline.SupportedExtensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
