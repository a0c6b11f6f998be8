// Package tools implements the tool registry.
//
// A tool is a versioned definition with input and output JSON schemas, the roles allowed
// to call it, an optional cache TTL and an executor. Every call goes through the same
// steps in order:
//
//  1. lookup (tool_not_found)
//  2. role check (rbac_denied), before the cache is read
//  3. cache lookup keyed by tool id and canonical JSON params
//  4. input schema validation (tool_input_invalid)
//  5. execution with latency measurement
//  6. output schema validation (tool_output_invalid)
//  7. cache store
//
// The registry never retries an executor.
package tools
