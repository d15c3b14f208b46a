package services

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline failure taxonomy. Every stage failure is tagged with exactly one of
// these markers so callers can classify it with errors.Is.
var (
	ErrTranscriptionFailed  = errors.New("transcription failed")
	ErrSummarizationFailed  = errors.New("summarization failed")
	ErrInvalidSummaryFormat = errors.New("invalid summary format")
	ErrRenderFailed         = errors.New("report rendering failed")
	ErrNormalizationFailed  = errors.New("audio normalization failed")
	ErrUploadRejected       = errors.New("upload rejected")
	ErrStatusUnavailable    = errors.New("status unavailable")
)

// Generic markers shared by infrastructure code.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind returns a stable snake_case label for the taxonomy marker carried
// by err. It feeds metric labels and notifications.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTranscriptionFailed):
		return "transcription_failed"
	case errors.Is(err, ErrInvalidSummaryFormat):
		return "invalid_summary_format"
	case errors.Is(err, ErrSummarizationFailed):
		return "summarization_failed"
	case errors.Is(err, ErrRenderFailed):
		return "render_failed"
	case errors.Is(err, ErrNormalizationFailed):
		return "normalization_failed"
	case errors.Is(err, ErrUploadRejected):
		return "upload_rejected"
	case errors.Is(err, ErrStatusUnavailable):
		return "status_unavailable"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unexpected"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
