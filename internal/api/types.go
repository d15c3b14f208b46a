package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Version is reported by `/` and `/health`.
const Version = "1.0.0"

// JobView describes a registry entry in a transport-friendly format.
type JobView struct {
	AudioName    string `json:"audio_name"`
	Source       string `json:"source"`
	OriginalName string `json:"original_name"`
	Stage        string `json:"stage"`
	Progress     int    `json:"progress"`
	Message      string `json:"message"`
	Language     string `json:"language,omitempty"`
	Error        string `json:"error,omitempty"`
	FailureKind  string `json:"failure_kind,omitempty"`
	HasSummary   bool   `json:"has_summary"`
	HasReport    bool   `json:"has_report"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// JobListResponse wraps GET /jobs.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// QuarantineView describes a quarantined watcher file.
type QuarantineView struct {
	ID           int64  `json:"id"`
	AudioName    string `json:"audio_name"`
	OriginalName string `json:"original_name"`
	Attempts     int    `json:"attempts"`
	LastError    string `json:"last_error,omitempty"`
	State        string `json:"state"`
	NextRetryAt  string `json:"next_retry_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// QuarantineListResponse wraps GET /quarantine.
type QuarantineListResponse struct {
	Entries []QuarantineView `json:"entries"`
}

// UploadResponse acknowledges an accepted upload.
type UploadResponse struct {
	Status    string `json:"status"`
	AudioName string `json:"audio_name"`
}

// GateStatus reports the concurrency ceiling and its current use.
type GateStatus struct {
	Capacity int `json:"capacity"`
	InFlight int `json:"in_flight"`
	Waiting  int `json:"waiting"`
}

// HealthResponse is served by GET /health.
type HealthResponse struct {
	Status           string     `json:"status"`
	Version          string     `json:"version"`
	BluetoothWatcher bool       `json:"bluetooth_watcher"`
	Gate             GateStatus `json:"gate"`
}

// RootResponse is served by GET /.
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
