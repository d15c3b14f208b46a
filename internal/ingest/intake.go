package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"hydralite/internal/config"
	"hydralite/internal/fileutil"
	"hydralite/internal/jobs"
	"hydralite/internal/logging"
	"hydralite/internal/services"
	"hydralite/internal/textutil"
)

// SupportedExtensions lists the accepted audio containers, lower case without the dot.
var SupportedExtensions = []string{"wav", "mp3", "m4a", "aac", "ogg", "3gp"}

// Rejection reasons.
const (
	ReasonTooLarge  = "too_large"
	ReasonExtension = "extension"
	ReasonName      = "name"
)

// Rejection explains why an upload was refused. It matches
// services.ErrUploadRejected under errors.Is.
type Rejection struct {
	Reason string
	Detail string
}

func (r *Rejection) Error() string { return r.Detail }

func (r *Rejection) Unwrap() error { return services.ErrUploadRejected }

// Supported reports whether name carries an accepted audio extension.
func Supported(name string) bool {
	return slices.Contains(SupportedExtensions, textutil.Extension(name))
}

// Registrar records newly admitted jobs.
type Registrar interface {
	Create(ctx context.Context, job jobs.Job) (*jobs.Job, error)
}

// Intake places raw audio into the uploads directory under a fresh unique
// prefix and registers the job.
type Intake struct {
	uploadDir string
	maxBytes  int64
	maxMB     int
	registry  Registrar
	logger    *slog.Logger
	newID     func() string
}

// NewIntake builds an intake writing into cfg.Paths.UploadDir.
func NewIntake(cfg *config.Config, registry Registrar, logger *slog.Logger) *Intake {
	return &Intake{
		uploadDir: cfg.Paths.UploadDir,
		maxBytes:  cfg.MaxUploadBytes(),
		maxMB:     cfg.API.MaxUploadMB,
		registry:  registry,
		logger:    logging.NewComponentLogger(logger, "intake"),
		newID:     shortID,
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CheckSize rejects uploads larger than the configured ceiling.
func (in *Intake) CheckSize(size int64) error {
	if in.maxBytes > 0 && size > in.maxBytes {
		return &Rejection{Reason: ReasonTooLarge, Detail: fmt.Sprintf("File too large. Max size: %dMB", in.maxMB)}
	}
	return nil
}

// CheckName rejects filenames without a supported extension.
func CheckName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &Rejection{Reason: ReasonName, Detail: "Missing file name"}
	}
	if !Supported(name) {
		return &Rejection{Reason: ReasonExtension, Detail: "Invalid file format. Supported: " + strings.Join(SupportedExtensions, ", ")}
	}
	return nil
}

// Accept streams body into uploads/<uid8>_<sanitized name> and registers a
// queued job. Oversized bodies are rejected even when the declared size lied.
func (in *Intake) Accept(ctx context.Context, name string, body io.Reader, source jobs.Source) (*jobs.Job, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	safe := textutil.SanitizeUploadName(filepath.Base(name))
	if textutil.Extension(safe) == "" || strings.Trim(safe, ". ") == "" {
		return nil, &Rejection{Reason: ReasonName, Detail: "Invalid file name"}
	}
	stored := in.newID() + "_" + safe
	path := filepath.Join(in.uploadDir, stored)

	if err := os.MkdirAll(in.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	reader := body
	if in.maxBytes > 0 {
		reader = io.LimitReader(body, in.maxBytes+1)
	}
	written, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if err := in.CheckSize(written); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	job, err := in.register(ctx, jobs.Job{
		ID:           textutil.BaseName(stored),
		Source:       source,
		OriginalName: name,
		RawPath:      path,
	})
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	logging.WithContext(services.WithJobID(ctx, job.ID), in.logger).Info("upload received",
		logging.String("file", stored),
		logging.Int64("bytes", written),
		logging.String(logging.FieldSource, string(source)),
	)
	return job, nil
}

// Adopt moves an existing file (from the watched directory) into the uploads
// directory and registers a queued job. The original name is kept verbatim.
func (in *Intake) Adopt(ctx context.Context, src string, source jobs.Source) (*jobs.Job, error) {
	name := filepath.Base(src)
	stored := in.newID() + "_" + name
	path := filepath.Join(in.uploadDir, stored)
	if err := os.MkdirAll(in.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if err := fileutil.MoveFile(src, path); err != nil {
		return nil, fmt.Errorf("move %s: %w", name, err)
	}
	job, err := in.register(ctx, jobs.Job{
		ID:           textutil.BaseName(stored),
		Source:       source,
		OriginalName: name,
		RawPath:      path,
	})
	if err != nil {
		return nil, err
	}
	logging.WithContext(services.WithJobID(ctx, job.ID), in.logger).Info("file moved into intake",
		logging.String("original_name", name),
		logging.String("file", stored),
		logging.String(logging.FieldSource, string(source)),
	)
	return job, nil
}

func (in *Intake) register(ctx context.Context, job jobs.Job) (*jobs.Job, error) {
	if in.registry == nil {
		job.Stage = jobs.StageQueued
		job.Message = "Queued"
		return &job, nil
	}
	created, err := in.registry.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}
	return created, nil
}
