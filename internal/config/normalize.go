package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.applyEnvOverrides(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeProviders()
	if err := c.normalizeWatcher(); err != nil {
		return err
	}
	c.normalizeRoles()
	c.normalizeLogging()
	return nil
}

// applyEnvOverrides lets deployment environment variables win over file values.
func (c *Config) applyEnvOverrides() error {
	envString("HYDRALITE_DATA_DIR", &c.Paths.DataDir)
	envString("HYDRALITE_API_BIND", &c.API.Bind)
	envString("HYDRALITE_API_TOKEN", &c.API.Token)
	envString("ASSEMBLYAI_API_KEY", &c.Transcription.APIKey)
	envString("GROQ_API_KEY", &c.LLM.APIKey)
	envString("FFMPEG_PATH", &c.Audio.FFmpegPath)
	envString("FFPROBE_PATH", &c.Audio.FFprobePath)
	envString("BLUETOOTH_DIR", &c.Watcher.Dir)
	envString("NTFY_TOPIC", &c.Notifications.NtfyTopic)
	if value, ok := lookupEnv("ALLOWED_ORIGINS"); ok {
		c.API.AllowedOrigins = splitList(value)
	}
	if err := envBool("ENABLE_BLUETOOTH_WATCHER", &c.Watcher.Enabled); err != nil {
		return err
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"STATUS_CACHE_TTL", &c.Pipeline.StatusCacheTTLSeconds},
		{"FILE_READY_TIMEOUT", &c.Watcher.FileReadyTimeoutSeconds},
		{"MAX_FILE_SIZE_MB", &c.API.MaxUploadMB},
		{"MAX_CONCURRENT_PROCESSING", &c.Pipeline.MaxConcurrent},
	}
	for _, item := range ints {
		if err := envInt(item.name, item.dst); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	derived := []struct {
		key      string
		dst      *string
		fallback string
	}{
		{"paths.upload_dir", &c.Paths.UploadDir, defaultUploadDirName},
		{"paths.processed_dir", &c.Paths.ProcessedDir, defaultProcessedDirName},
		{"paths.transcript_dir", &c.Paths.TranscriptDir, defaultTranscriptDirName},
		{"paths.summary_dir", &c.Paths.SummaryDir, defaultSummaryDirName},
		{"paths.report_dir", &c.Paths.ReportDir, defaultReportDirName},
		{"paths.status_file", &c.Paths.StatusFile, defaultStatusFileName},
		{"paths.ledger_file", &c.Paths.LedgerFile, defaultLedgerFileName},
		{"paths.database_file", &c.Paths.DatabaseFile, defaultDatabaseFileName},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDirName},
		{"paths.fonts_dir", &c.Paths.FontsDir, defaultFontsDirName},
	}
	for _, item := range derived {
		if strings.TrimSpace(*item.dst) == "" {
			*item.dst = filepath.Join(c.Paths.DataDir, item.fallback)
		}
		if *item.dst, err = expandPath(*item.dst); err != nil {
			return fmt.Errorf("%s: %w", item.key, err)
		}
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	origins := make([]string, 0, len(c.API.AllowedOrigins))
	for _, origin := range c.API.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.API.AllowedOrigins = origins
}

func (c *Config) normalizeProviders() {
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultAssemblyAIBaseURL
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultGroqBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultGroqModel
	}
	c.Audio.FFmpegPath = strings.TrimSpace(c.Audio.FFmpegPath)
	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = defaultFFmpegPath
	}
	c.Audio.FFprobePath = strings.TrimSpace(c.Audio.FFprobePath)
	if c.Audio.FFprobePath == "" {
		c.Audio.FFprobePath = defaultFFprobePath
	}
	c.Pipeline.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.Pipeline.DefaultLanguage))
	if c.Pipeline.DefaultLanguage == "" {
		c.Pipeline.DefaultLanguage = defaultLanguage
	}
	c.Report.AccentColor = strings.TrimSpace(c.Report.AccentColor)
	if c.Report.AccentColor == "" {
		c.Report.AccentColor = defaultAccentColor
	}
}

func (c *Config) normalizeWatcher() error {
	c.Watcher.Dir = strings.TrimSpace(c.Watcher.Dir)
	if c.Watcher.Dir == "" {
		return nil
	}
	var err error
	if c.Watcher.Dir, err = expandPath(c.Watcher.Dir); err != nil {
		return fmt.Errorf("watcher.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRoles() {
	c.Roles.Strategy = strings.ToLower(strings.TrimSpace(c.Roles.Strategy))
	if c.Roles.Strategy == "" {
		c.Roles.Strategy = defaultRoleStrategy
	}
	labels := make([]string, 0, len(c.Roles.Labels))
	for _, label := range c.Roles.Labels {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			labels = append(labels, trimmed)
		}
	}
	if len(labels) == 0 {
		labels = append(labels, defaultRoleLabels...)
	}
	c.Roles.Labels = labels
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(name string) (string, bool) {
	value, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func envString(name string, dst *string) {
	if value, ok := lookupEnv(name); ok {
		*dst = value
	}
}

func envInt(name string, dst *int) error {
	value, ok := lookupEnv(name)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", name, value)
	}
	*dst = parsed
	return nil
}

func envBool(name string, dst *bool) error {
	value, ok := lookupEnv(name)
	if !ok {
		return nil
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		return fmt.Errorf("%s: invalid boolean %q", name, value)
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
