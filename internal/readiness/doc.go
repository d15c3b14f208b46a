// Package readiness guards the drop-directory watcher against picking up a
// file that an external device is still writing: a file is ready once its size
// is positive and stable across consecutive polls.
package readiness
