package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"hydralite/internal/jobs"
	"hydralite/internal/language"
	"hydralite/internal/logging"
	"hydralite/internal/services"
	"hydralite/internal/services/assemblyai"
	"hydralite/internal/status"
	"hydralite/internal/summary"
	"hydralite/internal/transcript"
)

// runState carries one job's intermediate artifacts between stages.
type runState struct {
	engine *Engine
	job    *jobs.Job

	language   string
	transcript transcript.Record
	summary    summary.Record
	started    time.Time
}

func (r *runState) context(ctx context.Context) context.Context {
	ctx = services.WithJobID(ctx, r.job.ID)
	return services.WithSource(ctx, string(r.job.Source))
}

func (r *runState) logger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, r.engine.logger)
}

func (r *runState) execute(ctx context.Context) error {
	r.started = r.engine.now()
	r.logger(ctx).Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("original_name", r.job.OriginalName),
	)
	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{status.StageTranscribing, r.transcribe},
		{status.StageSummarizing, r.summarize},
		{status.StageGeneratingPDF, r.render},
	}
	for _, stage := range stages {
		stageCtx := services.WithStage(ctx, stage.name)
		start := r.engine.now()
		err := stage.fn(stageCtx)
		r.engine.deps.Metrics.RecordStage(stageCtx, stage.name, r.engine.now().Sub(start).Seconds())
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *runState) transcribe(ctx context.Context) error {
	r.publish(ctx, jobs.StageTranscribing, 20, "Transcribing audio...", false)

	raw, err := r.transcribeWithRetry(ctx)
	if err != nil {
		return err
	}
	r.language = r.engine.deps.Detector.Detect(raw.Text)
	r.job.Language = r.language
	r.logger(ctx).Info("language detected",
		logging.String("language", r.language),
		logging.String("provider_language", raw.LanguageCode),
	)

	r.publish(ctx, jobs.StageTranscribing, 40, "Processing transcript...", false)
	r.transcript = transcript.Build(r.job.ID, r.language, raw, r.engine.deps.Roles)
	path, err := transcript.Save(r.engine.transcriptDir, r.job.ID, r.transcript)
	if err != nil {
		return services.Wrap(services.ErrTranscriptionFailed, "transcribing", "persist transcript", "", err)
	}
	r.job.TranscriptPath = path
	return nil
}

// transcribeWithRetry makes up to e.attempts calls. A provider error waits the
// configured backoff before the next attempt; an empty result retries
// immediately.
func (r *runState) transcribeWithRetry(ctx context.Context) (*assemblyai.Transcript, error) {
	var lastErr error
	for attempt := 1; attempt <= r.engine.attempts; attempt++ {
		if attempt > 1 {
			reason := "empty"
			if lastErr != nil {
				reason = "error"
			}
			r.engine.deps.Metrics.RecordTranscriptionRetry(ctx, reason)
		}
		raw, err := r.engine.deps.Transcriber.Transcribe(ctx, r.job.AudioPath)
		if err == nil && raw != nil && strings.TrimSpace(raw.Text) != "" {
			return raw, nil
		}
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrTranscriptionFailed, "transcribing", "transcribe", "cancelled", ctx.Err())
		}
		lastErr = err
		if err == nil {
			r.logger(ctx).Info("transcription returned no text",
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", r.engine.attempts),
			)
			continue
		}
		logging.WarnWithContext(r.logger(ctx), "transcription attempt failed", "transcription_attempt_failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", r.engine.attempts),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job retries transcription"),
			logging.String(logging.FieldErrorHint, "check AssemblyAI availability and API key"),
		)
		if attempt < r.engine.attempts {
			if serr := r.engine.sleep(ctx, r.engine.retryBackoff); serr != nil {
				return nil, services.Wrap(services.ErrTranscriptionFailed, "transcribing", "backoff", "cancelled", serr)
			}
		}
	}
	return nil, services.Wrap(services.ErrTranscriptionFailed, "transcribing", "transcribe", "transcription failed or empty", lastErr)
}

func (r *runState) summarize(ctx context.Context) error {
	r.publish(ctx, jobs.StageSummarizing, 60, "Generating summary...", true)

	conversation := summary.BuildConversation(r.transcript.Utterances, r.engine.budget)
	payload, err := r.engine.deps.Summarizer.Summarize(ctx, conversation)
	if err != nil {
		if errors.Is(err, services.ErrInvalidSummaryFormat) {
			return err
		}
		return tag(services.ErrSummarizationFailed, "summarizing", "summarize", err)
	}
	if len(payload) == 0 {
		return services.Wrap(services.ErrSummarizationFailed, "summarizing", "summarize", "summary generation failed", nil)
	}
	r.summary = summary.Record(payload)

	translate := r.language != r.engine.defaultLanguage
	message := "Finalizing summary..."
	if translate {
		message = "Translating summary..."
	}
	r.publish(ctx, jobs.StageSummarizing, 75, message, true)

	if translate && r.engine.deps.Translator != nil {
		translated, err := summary.Translate(ctx, r.engine.deps.Translator, r.summary, r.language)
		if err != nil {
			return services.Wrap(services.ErrSummarizationFailed, "summarizing", "translate", language.DisplayName(r.language), err)
		}
		r.summary = translated
	}
	path, err := summary.Save(r.engine.summaryDir, r.job.ID, r.summary)
	if err != nil {
		return services.Wrap(services.ErrSummarizationFailed, "summarizing", "persist summary", "", err)
	}
	r.job.SummaryPath = path
	return nil
}

func (r *runState) render(ctx context.Context) error {
	r.publish(ctx, jobs.StageGeneratingPDF, 90, "Creating PDF report...", true)
	path, err := r.engine.deps.Renderer.Render(ctx, r.job.ID, r.summary, r.language)
	if err != nil {
		return tag(services.ErrRenderFailed, "generating_pdf", "render", err)
	}
	r.job.ReportPath = path
	return nil
}

// tag wraps err with marker unless it already carries it.
func tag(marker error, stage, op string, err error) error {
	if errors.Is(err, marker) {
		return err
	}
	return services.Wrap(marker, stage, op, "", err)
}
