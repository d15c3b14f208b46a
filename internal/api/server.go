package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"hydralite/internal/config"
	"hydralite/internal/jobs"
	"hydralite/internal/logging"
	"hydralite/internal/observe"
	"hydralite/internal/status"
)

// Registry is the subset of the job store the HTTP surface reads and mutates.
type Registry interface {
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, stages ...jobs.Stage) ([]*jobs.Job, error)
	ListQuarantine(ctx context.Context) ([]*jobs.QuarantineEntry, error)
	ScheduleRetry(ctx context.Context, id int64) (*jobs.QuarantineEntry, error)
}

// Uploader admits an uploaded body as a queued job.
type Uploader interface {
	Accept(ctx context.Context, name string, body io.Reader, source jobs.Source) (*jobs.Job, error)
}

// Dispatcher starts background processing of an accepted job. The daemon
// tracks dispatched work so shutdown can wait for it.
type Dispatcher interface {
	Dispatch(job *jobs.Job)
}

// StatusReader serves the singleton status record.
type StatusReader interface {
	Read() status.Record
}

// GateStats exposes the concurrency gate counters.
type GateStats interface {
	Capacity() int
	InFlight() int
	Waiting() int
}

// Deps bundles the collaborators a Server routes to.
type Deps struct {
	Registry       Registry
	Uploader       Uploader
	Dispatcher     Dispatcher
	Status         StatusReader
	Gate           GateStats
	Metrics        *observe.Metrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Server is the hydralite HTTP surface.
type Server struct {
	deps Deps

	bind           string
	token          string
	allowedOrigins []string
	maxUploadBytes int64
	maxUploadMB    int
	summaryDir     string
	reportDir      string
	watcherActive  bool

	logger   *slog.Logger
	handler  http.Handler
	server   *http.Server
	listener net.Listener
}

// NewServer builds the router. Deps.Registry, Uploader, Dispatcher and Status
// are required; Gate, Metrics and MetricsHandler are optional.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("api: config is required")
	}
	if deps.Registry == nil || deps.Uploader == nil || deps.Dispatcher == nil || deps.Status == nil {
		return nil, errors.New("api: registry, uploader, dispatcher and status are required")
	}
	s := &Server{
		deps:           deps,
		bind:           strings.TrimSpace(cfg.API.Bind),
		token:          strings.TrimSpace(cfg.API.Token),
		allowedOrigins: cfg.API.AllowedOrigins,
		maxUploadBytes: cfg.MaxUploadBytes(),
		maxUploadMB:    cfg.API.MaxUploadMB,
		summaryDir:     cfg.Paths.SummaryDir,
		reportDir:      cfg.Paths.ReportDir,
		watcherActive:  cfg.WatcherActive(),
		logger:         logging.NewComponentLogger(deps.Logger, "api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload-audio", s.protect(s.handleUpload))
	mux.HandleFunc("GET /status", s.protect(s.handleStatus))
	mux.HandleFunc("GET /status/{audio_name}", s.protect(s.handleJobStatus))
	mux.HandleFunc("GET /jobs", s.protect(s.handleJobs))
	mux.HandleFunc("GET /download-pdf/{audio_name}", s.protect(s.handleDownload))
	mux.HandleFunc("GET /summary/{audio_name}", s.protect(s.handleSummary))
	mux.HandleFunc("GET /quarantine", s.protect(s.handleQuarantine))
	mux.HandleFunc("POST /quarantine/{id}/retry", s.protect(s.handleQuarantineRetry))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	if deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", deps.MetricsHandler)
	}

	s.handler = requestIDMiddleware(corsMiddleware(s.allowedOrigins, observe.Middleware(deps.Metrics)(mux)))
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the configured address. It is separate from Serve so startup
// failures surface before the daemon reports itself ready.
func (s *Server) Listen() error {
	if s.bind == "" {
		return errors.New("api: bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

// Serve blocks until ctx is cancelled, then shuts the server down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.listener)
	}()
	s.logger.Info("api server listening", logging.String("address", s.Addr()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return authMiddleware(s.token, next)
}

func writeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	if err := writeJSON(w, status, payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, ErrorResponse{Detail: detail})
}
