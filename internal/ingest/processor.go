package ingest

import (
	"context"
	"log/slog"
	"path/filepath"

	"hydralite/internal/audio"
	"hydralite/internal/config"
	"hydralite/internal/jobs"
	"hydralite/internal/logging"
	"hydralite/internal/observe"
	"hydralite/internal/pipeline"
)

// Normalizer converts a raw recording into the transcription format.
type Normalizer interface {
	Normalize(ctx context.Context, input, output string) (audio.Info, error)
}

// Runner executes the pipeline for a job after the supplied preparation steps.
type Runner interface {
	Run(ctx context.Context, job *jobs.Job, prepare ...pipeline.Step) error
}

// Processor is the glue shared by every ingestion source: normalize the raw
// file into processed/<base>.wav, then run the pipeline.
type Processor struct {
	runner       Runner
	normalizer   Normalizer
	processedDir string
	metrics      *observe.Metrics
	logger       *slog.Logger
}

// NewProcessor wires a processor.
func NewProcessor(cfg *config.Config, runner Runner, normalizer Normalizer, metrics *observe.Metrics, logger *slog.Logger) *Processor {
	return &Processor{
		runner:       runner,
		normalizer:   normalizer,
		processedDir: cfg.Paths.ProcessedDir,
		metrics:      metrics,
		logger:       logging.NewComponentLogger(logger, "processor"),
	}
}

// Process normalizes and runs job. Normalization happens under the same gate
// permit as the pipeline so ffmpeg load is bounded too. The returned error is
// the run outcome; it has already been recorded on the job and status.
func (p *Processor) Process(ctx context.Context, job *jobs.Job) error {
	return p.runner.Run(ctx, job, p.normalize)
}

func (p *Processor) normalize(ctx context.Context, job *jobs.Job) error {
	output := filepath.Join(p.processedDir, job.ID+".wav")
	info, err := p.normalizer.Normalize(ctx, job.RawPath, output)
	if err != nil {
		return err
	}
	job.AudioPath = output
	p.metrics.RecordAudioDuration(ctx, string(job.Source), info.DurationSeconds)
	logging.WithContext(ctx, p.logger).Debug("normalized audio ready",
		logging.String("audio_path", output),
		logging.Float64("duration_seconds", info.DurationSeconds),
	)
	return nil
}
