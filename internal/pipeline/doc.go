// Package pipeline implements the per-job state machine that turns a
// normalized recording into a PDF report.
//
// Engine.Run takes a permit from the concurrency gate, then walks the job
// through transcribing (20, 40), summarizing (60, 75) and generating_pdf (90)
// before marking it completed (100). Every transition is written to the job
// registry and to the singleton status record. Any stage failure ends the run
// in the error stage with the reason recorded; the error is also returned so
// ingestion sources can decide whether to quarantine the file.
package pipeline
