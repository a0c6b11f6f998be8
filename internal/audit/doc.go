// Package audit records agent interactions with PII redacted.
//
// Writer redacts the request and response text, stamps an id and timestamp, and
// appends the record to a Sink. LogSink emits structured log lines; the store
// package provides SQLite and Postgres sinks. Sink errors are logged, never returned.
package audit
