package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"hydralite/internal/ingest"
	"hydralite/internal/jobs"
	"hydralite/internal/logging"
	"hydralite/internal/report"
	"hydralite/internal/services"
	"hydralite/internal/summary"
	"hydralite/internal/textutil"
)

// multipartSlack covers boundaries and part headers on top of the file
// ceiling; the intake enforces the exact limit on the file bytes.
const multipartSlack = 1 << 20

const uploadField = "file"

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartSlack)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		s.rejectUpload(w, r, ingest.ReasonName, http.StatusBadRequest, "Expected multipart/form-data upload with a file field")
		return
	}
	part, err := nextFilePart(reader)
	if err != nil {
		s.uploadError(w, r, err)
		return
	}
	defer part.Close()

	job, err := s.deps.Uploader.Accept(ctx, part.FileName(), part, jobs.SourceWeb)
	if err != nil {
		s.uploadError(w, r, err)
		return
	}
	s.deps.Dispatcher.Dispatch(job)
	s.writeJSON(w, http.StatusOK, UploadResponse{Status: "processing", AudioName: job.ID})
}

func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, &ingest.Rejection{Reason: ingest.ReasonName, Detail: "Missing file field"}
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == uploadField && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

func (s *Server) uploadError(w http.ResponseWriter, r *http.Request, err error) {
	var rejection *ingest.Rejection
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &rejection):
		code := http.StatusBadRequest
		if rejection.Reason == ingest.ReasonTooLarge {
			code = http.StatusRequestEntityTooLarge
		}
		s.rejectUpload(w, r, rejection.Reason, code, rejection.Detail)
	case errors.As(err, &tooLarge):
		s.rejectUpload(w, r, ingest.ReasonTooLarge, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Max size: %dMB", s.maxUploadMB))
	default:
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "upload failed", "upload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the uploads directory"),
		)
		s.writeError(w, http.StatusInternalServerError, "Upload failed")
	}
}

func (s *Server) rejectUpload(w http.ResponseWriter, r *http.Request, reason string, code int, detail string) {
	s.deps.Metrics.RecordUploadRejected(r.Context(), reason)
	logging.WithContext(r.Context(), s.logger).Info("upload rejected",
		logging.String("reason", reason),
		logging.String("detail", detail),
	)
	s.writeError(w, code, detail)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Status.Read())
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("audio_name"))
	job, err := s.deps.Registry.Get(r.Context(), name)
	if err != nil {
		s.internalError(w, r, "job lookup failed", err)
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, FromJob(job))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	var stages []jobs.Stage
	for _, value := range r.URL.Query()["stage"] {
		for _, raw := range strings.Split(value, ",") {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			stage, ok := jobs.ParseStage(raw)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown stage %q", strings.TrimSpace(raw)))
				return
			}
			stages = append(stages, stage)
		}
	}
	list, err := s.deps.Registry.List(r.Context(), stages...)
	if err != nil {
		s.internalError(w, r, "job listing failed", err)
		return
	}
	views := make([]JobView, 0, len(list))
	for _, job := range list {
		views = append(views, FromJob(job))
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: views})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := textutil.SanitizeArtifactName(r.PathValue("audio_name"))
	if name == "" {
		s.writeError(w, http.StatusNotFound, "PDF not found")
		return
	}
	file, err := os.Open(report.Path(s.reportDir, name))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "PDF not found")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		s.writeError(w, http.StatusNotFound, "PDF not found")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="summary_%s.pdf"`, name))
	http.ServeContent(w, r, "", info.ModTime(), file)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	name := textutil.SanitizeArtifactName(r.PathValue("audio_name"))
	if name == "" {
		s.writeError(w, http.StatusNotFound, "Summary not found")
		return
	}
	record, err := summary.Load(s.summaryDir, name)
	if errors.Is(err, services.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Summary not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "summary load failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Registry.ListQuarantine(r.Context())
	if err != nil {
		s.internalError(w, r, "quarantine listing failed", err)
		return
	}
	views := make([]QuarantineView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, FromQuarantine(entry))
	}
	s.writeJSON(w, http.StatusOK, QuarantineListResponse{Entries: views})
}

func (s *Server) handleQuarantineRetry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid quarantine id")
		return
	}
	entry, err := s.deps.Registry.ScheduleRetry(r.Context(), id)
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Quarantine entry not found")
		return
	case errors.Is(err, jobs.ErrQuarantineBusy):
		s.writeError(w, http.StatusConflict, "Quarantine entry is already being retried")
		return
	case err != nil:
		s.internalError(w, r, "quarantine retry failed", err)
		return
	}
	logging.WithContext(services.WithJobID(r.Context(), entry.JobID), s.logger).Info("quarantine retry scheduled",
		logging.Int64("quarantine_id", entry.ID),
		logging.String("original_name", entry.OriginalName),
	)
	s.writeJSON(w, http.StatusAccepted, FromQuarantine(entry))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:           "ok",
		Version:          Version,
		BluetoothWatcher: s.watcherActive,
	}
	if s.deps.Gate != nil {
		resp.Gate = GateStatus{
			Capacity: s.deps.Gate.Capacity(),
			InFlight: s.deps.Gate.InFlight(),
			Waiting:  s.deps.Gate.Waiting(),
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, RootResponse{
		Message: "Medical Audio Transcription API",
		Version: Version,
		Docs:    "/api/docs",
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), msg, "api_request_failed",
		logging.Error(err),
		logging.String("path", r.URL.Path),
	)
	s.writeError(w, http.StatusInternalServerError, "Internal server error")
}
