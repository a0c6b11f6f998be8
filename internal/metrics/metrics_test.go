// ABOUTME: Tests for the Prometheus collectors and HTTP middleware
// ABOUTME: Uses testutil against a per-test registry

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dexi-gateway/internal/mode"
)

func TestToolExecuted(t *testing.T) {
	m := New()
	m.ToolExecuted("docs-search", "success", false, 10*time.Millisecond)
	m.ToolExecuted("docs-search", "success", true, time.Millisecond)
	m.ToolExecuted("docs-search", "success", true, time.Millisecond)

	expected := `
		# HELP dexi_tool_executions_total Total number of tool executions by tool, outcome and cache result
		# TYPE dexi_tool_executions_total counter
		dexi_tool_executions_total{cache="hit",outcome="success",tool_id="docs-search"} 2
		dexi_tool_executions_total{cache="miss",outcome="success",tool_id="docs-search"} 1
	`
	require.NoError(t, testutil.CollectAndCompare(m.ToolExecutions, strings.NewReader(expected)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ToolDuration))
}

func TestRunCompleted(t *testing.T) {
	m := New()
	m.RunCompleted("guide", mode.Chat, "completed", time.Second)
	m.RunCompleted("guide", mode.Execution, "error", time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AgentRuns.WithLabelValues("guide", "chat", "completed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.AgentDuration))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/tools/{toolId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tools/docs-search", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/tools/{toolId}", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dexi_http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}
