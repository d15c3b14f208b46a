package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"hydralite/internal/fileutil"
	"hydralite/internal/logging"
	"hydralite/internal/services"
)

// Stage values published in the status record.
const (
	StageIdle          = "idle"
	StageTranscribing  = "transcribing"
	StageSummarizing   = "summarizing"
	StageGeneratingPDF = "generating_pdf"
	StageCompleted     = "completed"
	StageError         = "error"
)

// Record is the most recent pipeline transition, as served by GET /status.
type Record struct {
	Source    string `json:"source,omitempty"`
	File      string `json:"file,omitempty"`
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Progress  int    `json:"progress"`
	Language  string `json:"language,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Idle is the record reported before any job has run.
func Idle() Record {
	return Record{Stage: StageIdle, Message: "Ready", Progress: 0}
}

// Unavailable is the synthetic record reported when the status file cannot be read.
func Unavailable() Record {
	return Record{Stage: StageError, Message: "Status unavailable", Progress: 0}
}

// Store persists the singleton status record and caches it for a short TTL.
type Store struct {
	path   string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	cached   *Record
	cachedAt time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a status store writing to path.
func NewStore(path string, ttl time.Duration, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		path:   path,
		ttl:    ttl,
		now:    time.Now,
		logger: logging.NewComponentLogger(logger, "status"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write stamps record with the current time, persists it, and refreshes the
// cache. The cache is refreshed even when persisting fails so readers still see
// the latest transition. The file write and the cache update happen under one
// lock so concurrent writers leave both holding the same record.
func (s *Store) Write(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	record.Timestamp = now.Unix()

	err := fileutil.WriteJSONAtomic(s.path, record)
	s.cached = &record
	s.cachedAt = now

	if err != nil {
		return services.Wrap(services.ErrStatusUnavailable, "status", "write", s.path, err)
	}
	return nil
}

// Read returns the cached record while it is younger than the TTL, otherwise
// reloads it from disk. It never fails: a missing file yields Idle and any other
// error yields Unavailable.
func (s *Store) Read() Record {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && now.Sub(s.cachedAt) < s.ttl {
		return *s.cached
	}

	record, err := s.load()
	if err != nil {
		logging.WarnWithContext(s.logger, "status file unreadable", "status_read_failed",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions and JSON validity of the status file"),
			logging.String(logging.FieldImpact, "clients see a synthetic error status"),
		)
		return Unavailable()
	}
	s.cached = &record
	s.cachedAt = now
	return record
}

func (s *Store) load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Idle(), nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("read status file: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("parse status file: %w", err)
	}
	return record, nil
}
