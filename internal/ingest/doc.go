// Package ingest admits recordings into the pipeline.
//
// Intake validates and stores uploads (or adopts files from the watched
// directory) and registers the job; Processor normalizes the raw file and
// hands the job to the pipeline engine. Both ingestion sources share this
// path, so upload and watcher jobs behave identically once admitted.
package ingest
