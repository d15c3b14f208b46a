package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"hydralite/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every path lives under one temp root and the provider keys are dummies.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = base
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Paths.ProcessedDir = filepath.Join(base, "processed")
	cfgVal.Paths.TranscriptDir = filepath.Join(base, "transcripts")
	cfgVal.Paths.SummaryDir = filepath.Join(base, "summaries")
	cfgVal.Paths.ReportDir = filepath.Join(base, "pdfs")
	cfgVal.Paths.StatusFile = filepath.Join(base, "status.json")
	cfgVal.Paths.LedgerFile = filepath.Join(base, "processed_bluetooth.json")
	cfgVal.Paths.DatabaseFile = filepath.Join(base, "hydralite.db")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.FontsDir = filepath.Join(base, "fonts")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Transcription.APIKey = "test"
	cfgVal.Transcription.RetryBackoffSeconds = 0
	cfgVal.LLM.APIKey = "test"
	cfgVal.Watcher.Dir = filepath.Join(base, "watch")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithWatcher enables the drop-directory watcher on the test config.
func WithWatcher() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Watcher.Enabled = true
		b.cfg.Watcher.ReadyPollMillis = 10
		b.cfg.Watcher.StableChecks = 1
		b.cfg.Watcher.ScanIntervalSeconds = 1
		b.cfg.Watcher.RetryBackoffSeconds = 0
	}
}

// WithToken sets the API bearer token.
func WithToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithMaxUploadMB overrides the upload ceiling.
func WithMaxUploadMB(mb int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.MaxUploadMB = mb
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}

// WriteConfigFile encodes cfg as TOML under the config's base directory and
// returns the file path, for commands that load configuration from disk.
func WriteConfigFile(t testing.TB, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
