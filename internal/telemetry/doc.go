// Package telemetry configures OpenTelemetry tracing.
package telemetry
