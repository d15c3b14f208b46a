// Package ledger persists the set of drop-directory filenames that have
// already been ingested successfully, so rescans skip them. The file is a
// sorted JSON array; read errors are never fatal.
package ledger
