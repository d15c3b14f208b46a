package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"hydralite/internal/config"
	"hydralite/internal/logging"
	"hydralite/internal/services"
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Info describes a normalized file.
type Info struct {
	Path            string
	DurationSeconds float64
	SampleRate      int
}

// Normalizer converts raw uploads into mono PCM WAV at the transcription
// sample rate.
type Normalizer struct {
	FFmpeg     string
	FFprobe    string
	SampleRate int
	Channels   int

	run    Runner
	logger *slog.Logger
}

// NewNormalizer builds a normalizer from the [audio] config section.
func NewNormalizer(cfg config.Audio, logger *slog.Logger, run Runner) *Normalizer {
	if run == nil {
		run = ExecRunner
	}
	n := &Normalizer{
		FFmpeg:     strings.TrimSpace(cfg.FFmpegPath),
		FFprobe:    strings.TrimSpace(cfg.FFprobePath),
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		run:        run,
		logger:     logging.NewComponentLogger(logger, "audio"),
	}
	if n.FFmpeg == "" {
		n.FFmpeg = "ffmpeg"
	}
	if n.SampleRate <= 0 {
		n.SampleRate = 16000
	}
	if n.Channels <= 0 {
		n.Channels = 1
	}
	return n
}

// Args returns the ffmpeg arguments used to normalize input into output.
func (n *Normalizer) Args(input, output string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", input,
		"-vn",
		"-ac", strconv.Itoa(n.Channels),
		"-ar", strconv.Itoa(n.SampleRate),
		"-c:a", "pcm_s16le",
		output,
	}
}

// Normalize writes a mono 16-bit PCM WAV of input to output. Failures are
// tagged with services.ErrNormalizationFailed and leave no partial output.
func (n *Normalizer) Normalize(ctx context.Context, input, output string) (Info, error) {
	if _, err := os.Stat(input); err != nil {
		return Info{}, services.Wrap(services.ErrNormalizationFailed, "normalizing", "stat input", input, err)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return Info{}, services.Wrap(services.ErrNormalizationFailed, "normalizing", "create output dir", "", err)
	}

	out, err := n.run(ctx, n.FFmpeg, n.Args(input, output)...)
	if err != nil {
		_ = os.Remove(output)
		detail := strings.TrimSpace(string(out))
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return Info{}, services.Wrap(services.ErrNormalizationFailed, "normalizing", "ffmpeg", detail, err)
	}
	info, statErr := os.Stat(output)
	if statErr != nil || info.Size() == 0 {
		_ = os.Remove(output)
		if statErr == nil {
			statErr = errors.New("empty output")
		}
		return Info{}, services.Wrap(services.ErrNormalizationFailed, "normalizing", "verify output", output, statErr)
	}

	result := Info{Path: output, SampleRate: n.SampleRate}
	if n.FFprobe != "" {
		probe, err := Probe(ctx, n.run, n.FFprobe, output)
		if err != nil {
			n.logger.Debug("ffprobe unavailable for normalized audio", logging.String("path", output), logging.Error(err))
		} else if d := probe.DurationSeconds(); !math.IsNaN(d) {
			result.DurationSeconds = d
			if rate := probe.SampleRateHz(); rate > 0 {
				result.SampleRate = rate
			}
		}
	}

	n.logger.Info("audio normalized",
		logging.String("input", filepath.Base(input)),
		logging.String("output", filepath.Base(output)),
		logging.Float64("duration_seconds", result.DurationSeconds),
	)
	return result, nil
}

// String describes the normalizer for diagnostics.
func (n *Normalizer) String() string {
	return fmt.Sprintf("%s (%d Hz, %d ch)", n.FFmpeg, n.SampleRate, n.Channels)
}
