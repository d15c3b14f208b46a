// Package status owns the singleton "most recent transition" record served by
// GET /status.
//
// Every pipeline transition overwrites the record, whichever job produced it.
// Per-job state lives in the jobs registry; this record exists for clients that
// poll a single endpoint. Reads are served from a short-lived in-memory cache
// and never fail outward.
package status
