// Package preflight provides readiness checks for the directories and
// external services hydralite depends on.
//
// The daemon runs RunAll at startup: a failing directory check aborts the
// start, while provider, font and watcher problems are logged as warnings
// because jobs can still be accepted and will fail with a clear reason.
// `hydralite process` uses CheckSystemDeps before touching ffmpeg.
package preflight
