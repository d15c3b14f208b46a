package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the data directory layout. Empty sub-directories are derived
// from DataDir during normalization.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	UploadDir     string `toml:"upload_dir"`
	ProcessedDir  string `toml:"processed_dir"`
	TranscriptDir string `toml:"transcript_dir"`
	SummaryDir    string `toml:"summary_dir"`
	ReportDir     string `toml:"report_dir"`
	StatusFile    string `toml:"status_file"`
	LedgerFile    string `toml:"ledger_file"`
	DatabaseFile  string `toml:"database_file"`
	LogDir        string `toml:"log_dir"`
	FontsDir      string `toml:"fonts_dir"`
}

// API contains HTTP listener settings.
type API struct {
	Bind           string   `toml:"bind"`
	Token          string   `toml:"token"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxUploadMB    int      `toml:"max_upload_mb"`
}

// Transcription contains AssemblyAI settings.
type Transcription struct {
	APIKey              string `toml:"api_key"`
	BaseURL             string `toml:"base_url"`
	SpeakersExpected    int    `toml:"speakers_expected"`
	Attempts            int    `toml:"attempts"`
	RetryBackoffSeconds int    `toml:"retry_backoff_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// LLM contains the chat-completion settings shared by summarization and translation.
type LLM struct {
	APIKey                 string  `toml:"api_key"`
	BaseURL                string  `toml:"base_url"`
	Model                  string  `toml:"model"`
	SummaryTemperature     float64 `toml:"summary_temperature"`
	TranslationTemperature float64 `toml:"translation_temperature"`
	MaxConversationChars   int     `toml:"max_conversation_chars"`
	TimeoutSeconds         int     `toml:"timeout_seconds"`
	MaxAttempts            int     `toml:"max_attempts"`
}

// Audio contains normalization tooling settings.
type Audio struct {
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
	SampleRate  int    `toml:"sample_rate"`
	Channels    int    `toml:"channels"`
}

// Pipeline contains engine-wide settings.
type Pipeline struct {
	MaxConcurrent         int    `toml:"max_concurrent"`
	StatusCacheTTLSeconds int    `toml:"status_cache_ttl_seconds"`
	DefaultLanguage       string `toml:"default_language"`
}

// Roles selects how diarized speakers are mapped onto report roles.
type Roles struct {
	Strategy string            `toml:"strategy"`
	Labels   []string          `toml:"labels"`
	Mapping  map[string]string `toml:"mapping"`
}

// Watcher contains settings for the drop-directory ingestion source.
type Watcher struct {
	Enabled                  bool   `toml:"enabled"`
	Dir                      string `toml:"dir"`
	ScanIntervalSeconds      int    `toml:"scan_interval_seconds"`
	MissingDirBackoffSeconds int    `toml:"missing_dir_backoff_seconds"`
	FileReadyTimeoutSeconds  int    `toml:"file_ready_timeout_seconds"`
	ReadyPollMillis          int    `toml:"ready_poll_millis"`
	StableChecks             int    `toml:"stable_checks"`
	UseFSNotify              bool   `toml:"use_fsnotify"`
	MaxRetryAttempts         int    `toml:"max_retry_attempts"`
	RetryBackoffSeconds      int    `toml:"retry_backoff_seconds"`
}

// Report contains the letterhead printed on every PDF.
type Report struct {
	DoctorName    string `toml:"doctor_name"`
	Qualification string `toml:"qualification"`
	Clinic        string `toml:"clinic"`
	Registration  string `toml:"registration"`
	Phone         string `toml:"phone"`
	Address       string `toml:"address"`
	AccentColor   string `toml:"accent_color"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	Quarantine     bool   `toml:"quarantine"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics toggles the Prometheus exposition endpoint.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for hydralite.
//
// Configuration sections by subsystem:
//   - Paths: data directory layout, status/ledger/database files, fonts
//   - API: HTTP bind address, bearer token, CORS origins, upload ceiling
//   - Transcription: AssemblyAI credentials and retry policy
//   - LLM: Groq chat-completion settings for summary and translation
//   - Audio: ffmpeg/ffprobe normalization settings
//   - Pipeline: concurrency ceiling, status cache TTL, default language
//   - Roles: speaker to role strategy
//   - Watcher: drop-directory polling, readiness and quarantine retry
//   - Report: PDF letterhead
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
//   - Metrics: Prometheus endpoint
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Transcription Transcription `toml:"transcription"`
	LLM           LLM           `toml:"llm"`
	Audio         Audio         `toml:"audio"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Roles         Roles         `toml:"roles"`
	Watcher       Watcher       `toml:"watcher"`
	Report        Report        `toml:"report"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("hydralite.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates every directory the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.UploadDir,
		c.Paths.ProcessedDir,
		c.Paths.TranscriptDir,
		c.Paths.SummaryDir,
		c.Paths.ReportDir,
		c.Paths.LogDir,
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WatcherActive reports whether the drop-directory watcher should start.
func (c *Config) WatcherActive() bool {
	return c.Watcher.Enabled && strings.TrimSpace(c.Watcher.Dir) != ""
}

// RequireProviderKeys reports missing credentials for the external providers.
// Client-only commands skip this check.
func (c *Config) RequireProviderKeys() error {
	var missing []string
	if strings.TrimSpace(c.Transcription.APIKey) == "" {
		missing = append(missing, "transcription.api_key (ASSEMBLYAI_API_KEY)")
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		missing = append(missing, "llm.api_key (GROQ_API_KEY)")
	}
	if len(missing) == 0 {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("missing provider credentials: %s. Set the env vars or edit %s (create with 'hydralite config init')",
		strings.Join(missing, ", "), defaultPath)
}

// StatusCacheTTL returns the status cache lifetime.
func (c *Config) StatusCacheTTL() time.Duration {
	return time.Duration(c.Pipeline.StatusCacheTTLSeconds) * time.Second
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.API.MaxUploadMB) * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
