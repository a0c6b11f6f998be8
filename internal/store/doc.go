// Package store persists audit records in SQL databases.
//
// # Backends
//
// OpenSQLite uses the pure-Go modernc.org/sqlite driver with WAL enabled.
// OpenPostgres uses pgx through database/sql. Both create the audit_log table
// and its indexes when they open.
//
// # Schema
//
//	audit_log(audit_id, user_id, agent_id, request_text, response_text,
//	          tools_used_json, pii_redacted, metadata_json, ts)
//
// SQLite stores ts as fixed-width UTC text; Postgres uses TIMESTAMPTZ.
//
// AuditStore implements audit.Sink and audit.Lister.
package store
