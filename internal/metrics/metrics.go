// ABOUTME: Prometheus collectors for tool executions, agent runs and HTTP traffic
// ABOUTME: Collectors live on a private registry exposed by Handler

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/dexi-gateway/internal/mode"
)

// Metrics holds the gateway collectors.
type Metrics struct {
	registry *prometheus.Registry

	// ToolExecutions counts tool calls.
	// Labels: tool_id, outcome (success|<error code>), cache (hit|miss)
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool_id
	ToolDuration *prometheus.HistogramVec

	// AgentRuns counts finished agent runs.
	// Labels: agent_id, mode (chat|execution), outcome
	AgentRuns *prometheus.CounterVec

	// AgentDuration measures agent run time in seconds.
	// Labels: agent_id, mode
	AgentDuration *prometheus.HistogramVec

	// HTTPRequests counts HTTP requests.
	// Labels: method, route, status_code
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration measures HTTP request latency in seconds.
	// Labels: method, route
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexi_tool_executions_total",
				Help: "Total number of tool executions by tool, outcome and cache result",
			},
			[]string{"tool_id", "outcome", "cache"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dexi_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"tool_id"},
		),
		AgentRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexi_agent_runs_total",
				Help: "Total number of agent runs by agent, mode and outcome",
			},
			[]string{"agent_id", "mode", "outcome"},
		),
		AgentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dexi_agent_run_duration_seconds",
				Help:    "Duration of agent runs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"agent_id", "mode"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexi_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status_code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dexi_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"method", "route"},
		),
	}
}

// ToolExecuted records a tool call.
func (m *Metrics) ToolExecuted(toolID, outcome string, cacheHit bool, latency time.Duration) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	m.ToolExecutions.WithLabelValues(toolID, outcome, cache).Inc()
	m.ToolDuration.WithLabelValues(toolID).Observe(latency.Seconds())
}

// RunCompleted records a finished agent run.
func (m *Metrics) RunCompleted(agentID string, resolved mode.Mode, outcome string, latency time.Duration) {
	m.AgentRuns.WithLabelValues(agentID, string(resolved), outcome).Inc()
	m.AgentDuration.WithLabelValues(agentID, string(resolved)).Observe(latency.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and durations labeled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
