package pipeline

import (
	"context"
	"errors"
	"strings"

	"hydralite/internal/jobs"
	"hydralite/internal/logging"
	"hydralite/internal/notifications"
	"hydralite/internal/services"
	"hydralite/internal/status"
)

// publish moves the job to stage and mirrors the transition into the registry
// and the status store. Neither write can fail the run.
func (r *runState) publish(ctx context.Context, stage jobs.Stage, progress int, message string, withLanguage bool) {
	r.job.Stage = stage
	r.job.Progress = progress
	r.job.Message = message

	record := status.Record{
		Source:   string(r.job.Source),
		File:     r.job.ID,
		Stage:    string(stage),
		Message:  message,
		Progress: progress,
	}
	if withLanguage {
		record.Language = r.language
	}
	r.persist(ctx, record)
	r.logger(ctx).Debug("stage progress",
		logging.String(logging.FieldStage, string(stage)),
		logging.Int("progress", progress),
		logging.String("message", message),
	)
}

func (r *runState) persist(ctx context.Context, record status.Record) {
	logger := r.logger(ctx)
	if r.engine.deps.Registry != nil {
		if err := r.engine.deps.Registry.Update(ctx, r.job); err != nil {
			logging.WarnWithContext(logger, "job registry update failed", "job_update_failed",
				logging.String("target_stage", string(r.job.Stage)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "per-job status may be stale"),
				logging.String(logging.FieldErrorHint, "check the job database"),
			)
		}
	}
	if r.engine.deps.Status != nil {
		if err := r.engine.deps.Status.Write(record); err != nil {
			logging.WarnWithContext(logger, "status write failed", "status_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "status readers fall back to the cached record"),
				logging.String(logging.FieldErrorHint, "check permissions on the status file"),
			)
		}
	}
}

func (r *runState) complete(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	r.publish(ctx, jobs.StageCompleted, 100, "Processing complete!", true)

	r.logger(ctx).Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.String("language", r.language),
		logging.String("report", r.job.ReportPath),
		logging.Duration("duration", r.engine.now().Sub(r.started)),
	)
	r.engine.deps.Metrics.RecordJobFinished(ctx, string(r.job.Source), "completed", "none")
	r.notify(ctx, notifications.EventJobCompleted, notifications.Payload{
		"audio_name": r.job.ID,
		"language":   r.language,
	})
}

// fail records the terminal error state. The context may already be
// cancelled, so writes use a detached copy.
func (r *runState) fail(ctx context.Context, err error) {
	ctx = context.WithoutCancel(ctx)
	reason := strings.TrimSpace(err.Error())
	kind := services.FailureKind(err)
	if errors.Is(err, context.Canceled) {
		kind = "cancelled"
	}

	r.job.Stage = jobs.StageError
	r.job.Progress = 0
	r.job.Message = "Error: " + reason
	r.job.ErrorMessage = reason
	r.job.FailureKind = kind
	r.persist(ctx, status.Record{
		Source:   string(r.job.Source),
		File:     r.job.ID,
		Stage:    status.StageError,
		Message:  r.job.Message,
		Progress: 0,
		Error:    reason,
	})

	logging.ErrorWithContext(r.logger(ctx), "pipeline failed", "pipeline_failed",
		logging.String("failure_kind", kind),
		logging.Error(err),
		logging.Alert("stage_failure"),
		logging.String(logging.FieldErrorHint, hintFor(err)),
	)
	r.engine.deps.Metrics.RecordJobFinished(ctx, string(r.job.Source), "error", kind)
	r.notify(ctx, notifications.EventJobFailed, notifications.Payload{
		"audio_name": r.job.ID,
		"error":      reason,
	})
}

func (r *runState) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if r.engine.deps.Notifier == nil {
		return
	}
	if err := r.engine.deps.Notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(r.logger(ctx), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "operator is not alerted about this job"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic reachability"),
		)
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrNormalizationFailed):
		return "verify the upload is a valid audio file and ffmpeg is installed"
	case errors.Is(err, services.ErrTranscriptionFailed):
		return "check ASSEMBLYAI_API_KEY and that the recording contains speech"
	case errors.Is(err, services.ErrInvalidSummaryFormat):
		return "the language model returned malformed JSON; retry the job"
	case errors.Is(err, services.ErrSummarizationFailed):
		return "check GROQ_API_KEY and provider availability"
	case errors.Is(err, services.ErrRenderFailed):
		return "check the pdfs directory and installed fonts"
	default:
		return "check logs for details"
	}
}
