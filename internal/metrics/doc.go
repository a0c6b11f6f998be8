// Package metrics exposes gateway Prometheus metrics.
//
// Metrics implements tools.Recorder and stream.Observer so the tool registry and
// the orchestrator report into it without importing Prometheus themselves.
package metrics
