package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"hydralite/internal/config"
	"hydralite/internal/deps"
	"hydralite/internal/language"
	"hydralite/internal/services/assemblyai"
	"hydralite/internal/services/llm"
)

// CheckLLM verifies that the chat completion API is reachable and the key is
// valid. It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLM) Result {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeProviderError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckTranscription verifies AssemblyAI connectivity and authentication.
func CheckTranscription(ctx context.Context, cfg config.Transcription) Result {
	const name = "AssemblyAI"

	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := assemblyai.NewClient(assemblyai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeProviderError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckWatcherFromConfig evaluates the drop directory when the watcher is
// enabled. A missing directory is not fatal: the watcher waits for it.
func CheckWatcherFromConfig(cfg *config.Config) Result {
	const name = "Bluetooth watcher"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.WatcherActive() {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return CheckDirectoryAccess(name, cfg.Watcher.Dir)
}

// CheckFonts reports which report fonts are missing. Reports still render
// without them, in Helvetica.
func CheckFonts(fontsDir string) Result {
	const name = "Report fonts"

	var missing []string
	seen := make(map[string]struct{})
	for _, code := range language.Codes() {
		file := language.FontFile(code)
		if file == "" {
			continue
		}
		if _, ok := seen[file]; ok {
			continue
		}
		seen[file] = struct{}{}
		if _, err := os.Stat(filepath.Join(fontsDir, file)); err != nil {
			missing = append(missing, file)
		}
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("missing %s in %s (Helvetica fallback)", strings.Join(missing, ", "), fontsDir)}
	}
	return Result{Name: name, Passed: true, Detail: fontsDir}
}

// CheckSystemDeps evaluates the external binaries audio normalization needs.
// Both the daemon and `hydralite process` use this to avoid duplicating the
// requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.AudioRequirements(cfg.Audio.FFmpegPath, cfg.Audio.FFprobePath))
}

// summarizeProviderError produces a human-readable summary for health check failures.
func summarizeProviderError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
