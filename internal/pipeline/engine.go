package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hydralite/internal/config"
	"hydralite/internal/gate"
	"hydralite/internal/jobs"
	"hydralite/internal/language"
	"hydralite/internal/logging"
	"hydralite/internal/notifications"
	"hydralite/internal/observe"
	"hydralite/internal/services/assemblyai"
	"hydralite/internal/status"
	"hydralite/internal/summary"
	"hydralite/internal/transcript"
)

// Transcriber produces a diarized transcript for a normalized audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*assemblyai.Transcript, error)
}

// Summarizer turns a role-attributed conversation into a summary payload.
type Summarizer interface {
	Summarize(ctx context.Context, conversation string) (map[string]any, error)
}

// Renderer writes the report artifact and returns its path.
type Renderer interface {
	Render(ctx context.Context, base string, record summary.Record, lang string) (string, error)
}

// StatusWriter publishes the singleton status record.
type StatusWriter interface {
	Write(record status.Record) error
}

// Registry persists per-job state.
type Registry interface {
	Update(ctx context.Context, job *jobs.Job) error
}

// Step runs under the engine's permit before transcription starts, e.g. audio
// normalization. A failing step fails the job like any stage.
type Step func(ctx context.Context, job *jobs.Job) error

// Deps bundles the collaborators an Engine drives.
type Deps struct {
	Transcriber Transcriber
	Summarizer  Summarizer
	Translator  summary.Translator
	Renderer    Renderer
	Detector    *language.Detector
	Roles       transcript.RoleAssigner
	Gate        *gate.Gate
	Status      StatusWriter
	Registry    Registry
	Notifier    notifications.Service
	Metrics     *observe.Metrics
	Logger      *slog.Logger
}

// Engine sequences one job through transcription, summarization, translation
// and rendering.
type Engine struct {
	deps Deps

	attempts        int
	retryBackoff    time.Duration
	budget          int
	defaultLanguage string
	transcriptDir   string
	summaryDir      string

	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
	now    func() time.Time
}

// NewEngine builds an engine from configuration and collaborators.
func NewEngine(cfg *config.Config, deps Deps) (*Engine, error) {
	if deps.Transcriber == nil || deps.Summarizer == nil || deps.Renderer == nil {
		return nil, errors.New("pipeline: transcriber, summarizer and renderer are required")
	}
	if deps.Gate == nil {
		return nil, errors.New("pipeline: gate is required")
	}
	if deps.Detector == nil {
		detector, err := language.NewDetector(0)
		if err != nil {
			return nil, fmt.Errorf("pipeline: language detector: %w", err)
		}
		deps.Detector = detector
	}
	if deps.Roles == nil {
		roles, err := transcript.NewRoleAssigner(cfg.Roles)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		deps.Roles = roles
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	attempts := cfg.Transcription.Attempts
	if attempts <= 0 {
		attempts = 2
	}
	return &Engine{
		deps:            deps,
		attempts:        attempts,
		retryBackoff:    time.Duration(cfg.Transcription.RetryBackoffSeconds) * time.Second,
		budget:          cfg.LLM.MaxConversationChars,
		defaultLanguage: language.Normalize(cfg.Pipeline.DefaultLanguage),
		transcriptDir:   cfg.Paths.TranscriptDir,
		summaryDir:      cfg.Paths.SummaryDir,
		logger:          logging.NewComponentLogger(deps.Logger, "pipeline"),
		sleep:           sleepContext,
		now:             time.Now,
	}, nil
}

// Run acquires a gate permit, runs the optional preparation steps and then
// every pipeline stage. Stage failures are recorded on the job and in the
// status store and returned to the caller; they never panic out of Run.
func (e *Engine) Run(ctx context.Context, job *jobs.Job, prepare ...Step) error {
	if job == nil {
		return errors.New("pipeline: job is nil")
	}
	run := &runState{engine: e, job: job}
	ctx = run.context(ctx)

	err := e.deps.Gate.Do(ctx, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("pipeline panic: %v", r)
			}
		}()
		e.deps.Metrics.RecordJobStarted(ctx, string(job.Source))
		for _, step := range prepare {
			if err := step(ctx, job); err != nil {
				return err
			}
		}
		return run.execute(ctx)
	})
	if err != nil {
		run.fail(ctx, err)
		return err
	}
	run.complete(ctx)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
