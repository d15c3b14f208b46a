package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePositive(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateRoles(); err != nil {
		return err
	}
	if err := c.validateReport(); err != nil {
		return err
	}
	if c.Watcher.Enabled && c.Watcher.Dir == "" {
		return errors.New("watcher.dir must be set when watcher.enabled is true (or set BLUETOOTH_DIR)")
	}
	return nil
}

func (c *Config) validatePositive() error {
	return ensurePositive([]namedInt{
		{"api.max_upload_mb", c.API.MaxUploadMB},
		{"transcription.speakers_expected", c.Transcription.SpeakersExpected},
		{"transcription.attempts", c.Transcription.Attempts},
		{"transcription.poll_interval_seconds", c.Transcription.PollIntervalSeconds},
		{"transcription.timeout_seconds", c.Transcription.TimeoutSeconds},
		{"llm.max_conversation_chars", c.LLM.MaxConversationChars},
		{"llm.timeout_seconds", c.LLM.TimeoutSeconds},
		{"llm.max_attempts", c.LLM.MaxAttempts},
		{"audio.sample_rate", c.Audio.SampleRate},
		{"audio.channels", c.Audio.Channels},
		{"pipeline.max_concurrent", c.Pipeline.MaxConcurrent},
		{"pipeline.status_cache_ttl_seconds", c.Pipeline.StatusCacheTTLSeconds},
		{"watcher.scan_interval_seconds", c.Watcher.ScanIntervalSeconds},
		{"watcher.missing_dir_backoff_seconds", c.Watcher.MissingDirBackoffSeconds},
		{"watcher.file_ready_timeout_seconds", c.Watcher.FileReadyTimeoutSeconds},
		{"watcher.ready_poll_millis", c.Watcher.ReadyPollMillis},
		{"watcher.stable_checks", c.Watcher.StableChecks},
		{"watcher.max_retry_attempts", c.Watcher.MaxRetryAttempts},
		{"watcher.retry_backoff_seconds", c.Watcher.RetryBackoffSeconds},
		{"notifications.request_timeout", c.Notifications.RequestTimeout},
	})
}

func (c *Config) validateLLM() error {
	if c.Transcription.RetryBackoffSeconds < 0 {
		return errors.New("transcription.retry_backoff_seconds must be >= 0")
	}
	if c.LLM.SummaryTemperature < 0 || c.LLM.SummaryTemperature > 2 {
		return errors.New("llm.summary_temperature must be between 0 and 2")
	}
	if c.LLM.TranslationTemperature < 0 || c.LLM.TranslationTemperature > 2 {
		return errors.New("llm.translation_temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateRoles() error {
	switch c.Roles.Strategy {
	case "dominant", "ranked":
	case "mapping":
		if len(c.Roles.Mapping) == 0 {
			return errors.New("roles.mapping must be set when roles.strategy is \"mapping\"")
		}
	default:
		return fmt.Errorf("roles.strategy: unsupported value %q", c.Roles.Strategy)
	}
	if c.Roles.Strategy == "dominant" && len(c.Roles.Labels) < 2 {
		return errors.New("roles.labels must include at least two labels for the dominant strategy")
	}
	return nil
}

func (c *Config) validateReport() error {
	if strings.TrimSpace(c.Report.DoctorName) == "" {
		return errors.New("report.doctor_name must be set")
	}
	if !hexColorPattern.MatchString(c.Report.AccentColor) {
		return fmt.Errorf("report.accent_color: expected #RRGGBB, got %q", c.Report.AccentColor)
	}
	return nil
}

type namedInt struct {
	key   string
	value int
}

func ensurePositive(values []namedInt) error {
	for _, item := range values {
		if item.value <= 0 {
			return fmt.Errorf("%s must be positive", item.key)
		}
	}
	return nil
}
