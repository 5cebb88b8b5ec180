// Package progress keeps aggregated job counters for a running daemon. The
// ledger observer moves jobs between counters on every transition and the
// daemon status report reads a snapshot.
package progress
