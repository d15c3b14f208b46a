// Package daemon coordinates the long-running hydralite process.
//
// It wires the job registry, the status store, the HTTP server and the
// optional drop-directory watcher into a single lifecycle with flock-based
// locking to prevent multiple instances. On start it recovers state left by
// a previous process: unfinished jobs are marked interrupted and interrupted
// watcher jobs go to quarantine for retry. Shutdown is cooperative: the
// server drains, the watcher finishes in-flight work and background uploads
// are waited for.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown and high level coordination.
package daemon
