// Package gate provides the counting admission control that bounds concurrent
// pipeline runs across every ingestion source.
package gate
