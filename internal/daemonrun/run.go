package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hydralite/internal/audio"
	"hydralite/internal/config"
	"hydralite/internal/daemon"
	"hydralite/internal/gate"
	"hydralite/internal/ingest"
	"hydralite/internal/jobs"
	"hydralite/internal/language"
	"hydralite/internal/ledger"
	"hydralite/internal/logging"
	"hydralite/internal/notifications"
	"hydralite/internal/observe"
	"hydralite/internal/pipeline"
	"hydralite/internal/preflight"
	"hydralite/internal/readiness"
	"hydralite/internal/report"
	"hydralite/internal/services/assemblyai"
	"hydralite/internal/services/llm"
	"hydralite/internal/status"
	"hydralite/internal/transcript"
	"hydralite/internal/watcher"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// Offline skips the provider reachability checks at startup.
	Offline bool
}

// Runtime is the fully wired set of components shared by the daemon and the
// one-shot process command.
type Runtime struct {
	Config         *config.Config
	Logger         *slog.Logger
	Store          *jobs.Store
	Status         *status.Store
	Gate           *gate.Gate
	Intake         *ingest.Intake
	Processor      *ingest.Processor
	Watcher        *watcher.Watcher
	Metrics        *observe.Metrics
	MetricsHandler http.Handler

	provider *observe.Provider
}

// Close releases the job store and flushes metrics.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	if err := r.provider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown metrics: %w", err))
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close job store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Run starts the hydralite daemon and blocks until SIGINT/SIGTERM or cmdCtx
// cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}
	if err := cfg.RequireProviderKeys(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := NewLogger(cfg, opts.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logDependencySnapshot(logger, cfg)

	if err := runPreflight(signalCtx, logger, cfg, opts.Offline); err != nil {
		return err
	}

	rt, err := Build(cfg, logger, cfg.Metrics.Enabled)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("runtime shutdown incomplete", logging.Error(err))
		}
	}()

	deps := daemon.Deps{
		Store:          rt.Store,
		Status:         rt.Status,
		Intake:         rt.Intake,
		Processor:      rt.Processor,
		Gate:           rt.Gate,
		Metrics:        rt.Metrics,
		MetricsHandler: rt.MetricsHandler,
		Logger:         logger,
	}
	if rt.Watcher != nil {
		deps.Watcher = rt.Watcher
	}
	d, err := daemon.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(signalCtx); err != nil {
		logger.Error("daemon stopped with error", logging.Error(err))
		return err
	}
	logger.Info("hydralite daemon shutting down")
	return nil
}

// NewLogger builds the process logger: console or JSON on stdout plus a JSON
// copy in logs/hydralite.log. level overrides the configured level when set.
func NewLogger(cfg *config.Config, level string) (*slog.Logger, error) {
	if strings.TrimSpace(level) != "" {
		copied := *cfg
		copied.Logging.Level = level
		cfg = &copied
	}
	return logging.NewFromConfig(cfg)
}

// Build wires every pipeline collaborator from configuration. withMetrics
// selects the Prometheus-backed meter provider; otherwise instruments are
// no-ops.
func Build(cfg *config.Config, logger *slog.Logger, withMetrics bool) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger, Metrics: observe.NewNop()}
	if withMetrics {
		provider, err := observe.NewPrometheus()
		if err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		rt.provider = provider
		rt.Metrics = provider.Metrics
		rt.MetricsHandler = provider.Handler
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("open job store: %w", err)
	}
	rt.Store = store
	rt.Status = status.NewStore(cfg.Paths.StatusFile, cfg.StatusCacheTTL(), logger)

	queuedLogger := logging.NewComponentLogger(logger, "gate")
	rt.Gate = gate.New(cfg.Pipeline.MaxConcurrent, logger, gate.WithQueuedHook(func() {
		queuedLogger.Debug("job waiting for a processing slot")
	}))
	if err := rt.Metrics.GateGauges(rt.Gate.InFlight, rt.Gate.Waiting); err != nil {
		logger.Warn("gate gauges unavailable", logging.Error(err))
	}

	notifier := notifications.NewService(cfg)
	engine, err := newEngine(cfg, rt, notifier, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	normalizer := audio.NewNormalizer(cfg.Audio, logger, audio.ExecRunner)
	rt.Intake = ingest.NewIntake(cfg, store, logger)
	rt.Processor = ingest.NewProcessor(cfg, engine, normalizer, rt.Metrics, logger)

	if cfg.WatcherActive() {
		prober := readiness.New(
			time.Duration(cfg.Watcher.ReadyPollMillis)*time.Millisecond,
			cfg.Watcher.StableChecks,
		)
		rt.Watcher = watcher.New(cfg, cfg.Pipeline.MaxConcurrent, watcher.Deps{
			Intake:     rt.Intake,
			Processor:  rt.Processor,
			Ledger:     ledger.Open(cfg.Paths.LedgerFile, logger),
			Readiness:  prober,
			Quarantine: store,
			Notifier:   notifier,
			Metrics:    rt.Metrics,
			Logger:     logger,
		})
	}
	return rt, nil
}

func newEngine(cfg *config.Config, rt *Runtime, notifier notifications.Service, logger *slog.Logger) (*pipeline.Engine, error) {
	client := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(cfg.LLM.MaxAttempts))

	transcriber := assemblyai.NewClient(assemblyai.Config{
		APIKey:           cfg.Transcription.APIKey,
		BaseURL:          cfg.Transcription.BaseURL,
		SpeakersExpected: cfg.Transcription.SpeakersExpected,
		PollInterval:     time.Duration(cfg.Transcription.PollIntervalSeconds) * time.Second,
		Timeout:          time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second,
	})

	detector, err := language.NewDetector(0)
	if err != nil {
		return nil, fmt.Errorf("language detector: %w", err)
	}
	roles, err := transcript.NewRoleAssigner(cfg.Roles)
	if err != nil {
		return nil, fmt.Errorf("role assignment: %w", err)
	}

	engine, err := pipeline.NewEngine(cfg, pipeline.Deps{
		Transcriber: transcriber,
		Summarizer:  llm.NewSummarizer(client, cfg.LLM.SummaryTemperature),
		Translator:  llm.NewTranslator(client, cfg.LLM.TranslationTemperature),
		Renderer:    report.NewRenderer(cfg, logger),
		Detector:    detector,
		Roles:       roles,
		Gate:        rt.Gate,
		Status:      rt.Status,
		Registry:    rt.Store,
		Notifier:    notifier,
		Metrics:     rt.Metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	return engine, nil
}

func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, offline bool) error {
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	results := preflight.RunAll(checkCtx, cfg, offline)
	var fatal []string
	for _, result := range preflight.Failed(results) {
		if result.Fatal {
			fatal = append(fatal, fmt.Sprintf("%s: %s", result.Name, result.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "affected jobs may fail until this is resolved"),
		)
	}
	if len(fatal) > 0 {
		return fmt.Errorf("preflight failed: %s", strings.Join(fatal, "; "))
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		if dep.Available || dep.Optional {
			continue
		}
		return fmt.Errorf("required binary %s (%s) unavailable: %s", dep.Name, dep.Command, dep.Detail)
	}
	return nil
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := orDefault(cfg.Audio.FFmpegPath, "ffmpeg")
	ffprobe := orDefault(cfg.Audio.FFprobePath, "ffprobe")
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Int("pid", os.Getpid()),
		logging.Bool("assemblyai_key_present", strings.TrimSpace(cfg.Transcription.APIKey) != ""),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("llm_model", cfg.LLM.Model),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobe)),
		logging.String("ffprobe_binary", ffprobe),
		logging.Bool("bluetooth_watcher", cfg.WatcherActive()),
		logging.Int("max_concurrent", cfg.Pipeline.MaxConcurrent),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("metrics_enabled", cfg.Metrics.Enabled),
	)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
