// Package api serves the hydralite HTTP interface and the client the CLI uses
// to talk to it.
//
// # Key Types
//
// Server: routes uploads, status, job and quarantine views, report downloads,
// health and metrics onto a net/http ServeMux.
//
// Client: typed wrapper over the same routes for `hydralite status`,
// `hydralite jobs` and `hydralite quarantine`.
//
// JobView, QuarantineView: transport-friendly renderings of registry rows.
//
// # Design Notes
//
// DTOs use snake_case JSON tags to match the status file and the upload
// response. Errors are always `{"detail": "..."}`. Timestamps use RFC3339 with
// milliseconds. Uploads are streamed part by part so the upload ceiling is
// enforced without buffering the whole body.
//
// The bearer token, when configured, guards every route except `/`, `/health`
// and `/metrics`.
package api
