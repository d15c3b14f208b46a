// Package notifications delivers pipeline events via ntfy.
//
// The ntfy implementation publishes to the topic URL configured under
// [notifications] and degrades to a no-op when no topic is set. Per-event
// toggles let operators silence completions while keeping failure alerts.
// Callers treat delivery errors as warnings; a failed notification never
// affects a job.
package notifications
