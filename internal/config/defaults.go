package config

const (
	defaultConfigPath             = "~/.config/hydralite/config.toml"
	defaultDataDir                = "~/.local/share/hydralite"
	defaultAPIBind                = "0.0.0.0:8000"
	defaultMaxUploadMB            = 100
	defaultAssemblyAIBaseURL      = "https://api.assemblyai.com"
	defaultSpeakersExpected       = 2
	defaultTranscriptionAttempts  = 2
	defaultTranscriptionBackoff   = 2
	defaultTranscriptionPoll      = 3
	defaultTranscriptionTimeout   = 900
	defaultGroqBaseURL            = "https://api.groq.com/openai/v1"
	defaultGroqModel              = "llama-3.1-8b-instant"
	defaultSummaryTemperature     = 0.2
	defaultTranslationTemperature = 0.1
	defaultMaxConversationChars   = 6000
	defaultLLMTimeoutSeconds      = 60
	defaultLLMMaxAttempts         = 3
	defaultFFmpegPath             = "ffmpeg"
	defaultFFprobePath            = "ffprobe"
	defaultSampleRate             = 16000
	defaultChannels               = 1
	defaultMaxConcurrent          = 3
	defaultStatusCacheTTL         = 2
	defaultLanguage               = "en"
	defaultRoleStrategy           = "dominant"
	defaultScanIntervalSeconds    = 3
	defaultMissingDirBackoff      = 5
	defaultFileReadyTimeout       = 20
	defaultReadyPollMillis        = 500
	defaultStableChecks           = 2
	defaultWatcherRetryAttempts   = 3
	defaultWatcherRetryBackoff    = 60
	defaultDoctorName             = "Dr. Aarav Mehta"
	defaultDoctorQualification    = "MD (Internal Medicine)"
	defaultClinic                 = "Sanjeevani Multispeciality Clinic"
	defaultRegistration           = "MMC/2024/45821"
	defaultPhone                  = "+91 98765 43210"
	defaultAddress                = "Mumbai, Maharashtra"
	defaultAccentColor            = "#2F80ED"
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultStatusFileName         = "status.json"
	defaultLedgerFileName         = "processed_bluetooth.json"
	defaultDatabaseFileName       = "hydralite.db"
	defaultUploadDirName          = "uploads"
	defaultProcessedDirName       = "processed"
	defaultTranscriptDirName      = "transcripts"
	defaultSummaryDirName         = "summaries"
	defaultReportDirName          = "pdfs"
	defaultLogDirName             = "logs"
	defaultFontsDirName           = "fonts"
)

var defaultRoleLabels = []string{"Doctor", "Patient"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		API: API{
			Bind:           defaultAPIBind,
			AllowedOrigins: []string{"*"},
			MaxUploadMB:    defaultMaxUploadMB,
		},
		Transcription: Transcription{
			BaseURL:             defaultAssemblyAIBaseURL,
			SpeakersExpected:    defaultSpeakersExpected,
			Attempts:            defaultTranscriptionAttempts,
			RetryBackoffSeconds: defaultTranscriptionBackoff,
			PollIntervalSeconds: defaultTranscriptionPoll,
			TimeoutSeconds:      defaultTranscriptionTimeout,
		},
		LLM: LLM{
			BaseURL:                defaultGroqBaseURL,
			Model:                  defaultGroqModel,
			SummaryTemperature:     defaultSummaryTemperature,
			TranslationTemperature: defaultTranslationTemperature,
			MaxConversationChars:   defaultMaxConversationChars,
			TimeoutSeconds:         defaultLLMTimeoutSeconds,
			MaxAttempts:            defaultLLMMaxAttempts,
		},
		Audio: Audio{
			FFmpegPath:  defaultFFmpegPath,
			FFprobePath: defaultFFprobePath,
			SampleRate:  defaultSampleRate,
			Channels:    defaultChannels,
		},
		Pipeline: Pipeline{
			MaxConcurrent:         defaultMaxConcurrent,
			StatusCacheTTLSeconds: defaultStatusCacheTTL,
			DefaultLanguage:       defaultLanguage,
		},
		Roles: Roles{
			Strategy: defaultRoleStrategy,
			Labels:   append([]string(nil), defaultRoleLabels...),
		},
		Watcher: Watcher{
			ScanIntervalSeconds:      defaultScanIntervalSeconds,
			MissingDirBackoffSeconds: defaultMissingDirBackoff,
			FileReadyTimeoutSeconds:  defaultFileReadyTimeout,
			ReadyPollMillis:          defaultReadyPollMillis,
			StableChecks:             defaultStableChecks,
			UseFSNotify:              true,
			MaxRetryAttempts:         defaultWatcherRetryAttempts,
			RetryBackoffSeconds:      defaultWatcherRetryBackoff,
		},
		Report: Report{
			DoctorName:    defaultDoctorName,
			Qualification: defaultDoctorQualification,
			Clinic:        defaultClinic,
			Registration:  defaultRegistration,
			Phone:         defaultPhone,
			Address:       defaultAddress,
			AccentColor:   defaultAccentColor,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			Quarantine:     true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Enabled: true,
		},
	}
}
