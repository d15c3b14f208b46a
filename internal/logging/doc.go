// Package logging assembles structured slog loggers and formatting helpers used
// across hydralite services.
//
// It owns the console and JSON handlers, fans records out to a JSON log file
// next to the human-readable stream, and exposes context-aware helpers so
// pipeline code automatically tags log lines with job identifiers, stages,
// ingestion sources, and request correlation IDs. A no-op logger is provided
// for tests and wiring code that cannot fail.
package logging
