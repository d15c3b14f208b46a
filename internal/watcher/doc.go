// Package watcher ingests recordings dropped into a directory, typically the
// folder a phone pushes Bluetooth transfers into.
//
// A single producer scans the directory on a fixed interval (and early when
// fsnotify reports activity), skips files already in the ledger, unsupported
// or empty files, waits for each remaining file to stop growing and moves it
// into intake. A pool of workers, sized to the concurrency gate, runs the
// pipeline. Successful jobs are added to the ledger; failed jobs go to the
// quarantine table and are retried with backoff until the attempt budget is
// spent.
package watcher
