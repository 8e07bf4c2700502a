package config

const (
	defaultOutputDir = "~/.local/share/neuravox/output"
	defaultWorkDir   = "~/.local/share/neuravox/work"
	defaultLogDir    = "~/.local/share/neuravox/logs"
	defaultStateDir  = "~/.local/share/neuravox/state"

	defaultSilenceThreshold   = 0.01
	defaultMinSilenceDuration = 1.0
	defaultFrameLength        = 2048
	defaultHopLength          = 512
	defaultWindowSeconds      = 30.0

	defaultMergeGapThreshold = 1.0
	defaultKeepSilence       = 0.25
	defaultMinChunkDuration  = 5.0
	defaultOutputFormat      = "wav"
	defaultTargetSampleRate  = 16000
	defaultTargetChannels    = 1

	defaultTranscriptionProvider = "whisper-cli"
	defaultTranscriptionModel    = "large-v3"
	defaultTranscriptionTimeout  = 600

	defaultMaxConcurrent        = 3
	defaultLargeFileThresholdMB = 500

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

func defaultSupportedExtensions() []string {
	return []string{"wav", "mp3", "m4a", "flac", "ogg", "opus"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Detection: Detection{
			SilenceThreshold:   defaultSilenceThreshold,
			MinSilenceDuration: defaultMinSilenceDuration,
			FrameLength:        defaultFrameLength,
			HopLength:          defaultHopLength,
			WindowSeconds:      defaultWindowSeconds,
		},
		Chunking: Chunking{
			MergeGapThreshold: defaultMergeGapThreshold,
			KeepSilence:       defaultKeepSilence,
			MinChunkDuration:  defaultMinChunkDuration,
			OutputFormat:      defaultOutputFormat,
			TargetSampleRate:  defaultTargetSampleRate,
			TargetChannels:    defaultTargetChannels,
		},
		Transcription: Transcription{
			Enabled:        true,
			Provider:       defaultTranscriptionProvider,
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Pipeline: Pipeline{
			MaxConcurrent:        defaultMaxConcurrent,
			LargeFileThresholdMB: defaultLargeFileThresholdMB,
			SupportedExtensions:  defaultSupportedExtensions(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
