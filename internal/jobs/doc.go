// Package jobs persists pipeline jobs and the watcher quarantine in SQLite.
//
// Every ingestion (web upload or drop-directory file) registers a Job keyed by
// its base identifier. The pipeline engine writes each stage transition here
// alongside the singleton status file, so per-job status survives the status
// singleton being overwritten by concurrent runs.
//
// The quarantine table holds failed drop-directory jobs awaiting retry. Entries
// move pending -> retrying -> (resolved | pending | abandoned); a resolved
// entry is deleted.
//
// Like the rest of the data directory, the database is operational state, not
// an archive. Schema changes bump schemaVersion; operators delete the database
// file to adopt a new schema.
package jobs
