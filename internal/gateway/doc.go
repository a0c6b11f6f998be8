// Package gateway serves the dexi HTTP API.
//
// # Routes
//
//	GET  /health                         liveness
//	GET  /health/ready                   audit store ping
//	GET  /metrics                        Prometheus (path configurable)
//	POST /api/chat                       classify, pick an agent, run
//	GET  /api/agents                     agents the caller may run
//	POST /api/agents/{agentId}/invoke    run a named agent
//	GET  /api/tools                      tools the caller may execute
//	POST /api/tools/{toolId}/execute     run a tool directly
//	GET  /api/audit                      audit records (admin only)
//
// Everything under /api requires authentication. Chat and invoke answer with
// JSON by default and with server-sent events when the body sets "stream".
// A stream always ends with a done event, including after an error event.
//
// # Middleware
//
// Requests pass, in order, through request id assignment, real IP
// extraction, panic recovery, access logging, metrics, CORS and the
// per-client rate limiter.
package gateway
