// Package textutil sanitizes client-supplied names before they touch the
// filesystem and derives job base identifiers from stored file names.
package textutil
