package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hydralite/internal/fileutil"
	"hydralite/internal/services"
	"hydralite/internal/transcript"
)

// Known summary keys, in report order.
const (
	KeyDoctorSummary     = "doctor_summary"
	KeySymptoms          = "symptoms"
	KeyPatientHistory    = "patient_history"
	KeyRiskFactors       = "risk_factors"
	KeyPrescription      = "prescription"
	KeyAdvice            = "advice"
	KeyRecommendedAction = "recommended_action"
)

// Record is a summary payload. Values are strings or lists of strings; other
// value types are kept as returned by the model.
type Record map[string]any

// String returns the scalar value for key, or "".
func (r Record) String(key string) string {
	value, _ := r[key].(string)
	return value
}

// List returns the string items stored under key. A scalar string is
// returned as a single-item list.
func (r Record) List(key string) []string {
	switch value := r[key].(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(value) == "" {
			return nil
		}
		return []string{value}
	}
	return nil
}

// BuildConversation renders utterances as "<role>: <text>\n" lines. A line is
// appended while the text accumulated so far has not exceeded budget, so the
// result may overshoot by at most one line.
func BuildConversation(utterances []transcript.Utterance, budget int) string {
	var b strings.Builder
	for _, u := range utterances {
		if budget > 0 && b.Len() > budget {
			break
		}
		b.WriteString(u.Role)
		b.WriteString(": ")
		b.WriteString(u.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Translator translates one value into the target language.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Translate returns a copy of record with every string value and every
// string list item translated. Keys, list order and non-string values are
// preserved.
func Translate(ctx context.Context, t Translator, record Record, targetLang string) (Record, error) {
	out := make(Record, len(record))
	for key, value := range record {
		translated, err := translateValue(ctx, t, value, targetLang)
		if err != nil {
			return nil, fmt.Errorf("translate %s: %w", key, err)
		}
		out[key] = translated
	}
	return out, nil
}

func translateValue(ctx context.Context, t Translator, value any, targetLang string) (any, error) {
	switch v := value.(type) {
	case string:
		return t.Translate(ctx, v, targetLang)
	case []string:
		items := make([]string, len(v))
		for i, item := range v {
			translated, err := t.Translate(ctx, item, targetLang)
			if err != nil {
				return nil, err
			}
			items[i] = translated
		}
		return items, nil
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				items[i] = item
				continue
			}
			translated, err := t.Translate(ctx, s, targetLang)
			if err != nil {
				return nil, err
			}
			items[i] = translated
		}
		return items, nil
	default:
		return value, nil
	}
}

// Path returns summaries/<base>_summary.json under dir.
func Path(dir, base string) string {
	return filepath.Join(dir, base+"_summary.json")
}

// Save writes the record atomically and returns its path.
func Save(dir, base string, record Record) (string, error) {
	path := Path(dir, base)
	if err := fileutil.WriteJSONAtomic(path, record); err != nil {
		return "", fmt.Errorf("save summary: %w", err)
	}
	return path, nil
}

// Load reads the saved summary for base. A missing file is reported as
// services.ErrNotFound.
func Load(dir, base string) (Record, error) {
	data, err := os.ReadFile(Path(dir, base))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "summary", "load", base, err)
		}
		return nil, fmt.Errorf("read summary: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return record, nil
}
