// Command hydralite runs the medical audio transcription daemon and provides
// client commands that query it over its HTTP API.
//
// `hydralite serve` starts the daemon. `status`, `jobs` and `quarantine`
// talk to a running daemon; `process` runs one file through the pipeline
// in-process without a daemon.
package main
