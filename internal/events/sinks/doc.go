// Package sinks provides events.Sink implementations: structured logging,
// Prometheus metrics, terminal-job archival, and downstream publishing.
package sinks
