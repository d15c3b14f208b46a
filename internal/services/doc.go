// Package services defines shared utilities consumed by the pipeline stages
// and the external provider clients.
//
// Key responsibilities:
//   - Context helpers that stamp job identifiers, stage names, ingestion
//     sources, and correlation identifiers for logging.
//   - The failure taxonomy (transcription, summarization, rendering,
//     normalization, upload, status) plus the Wrap helper that tags errors
//     with a marker and a readable stage/operation trail.
//
// Provider clients live in sub-packages (assemblyai, llm).
package services
