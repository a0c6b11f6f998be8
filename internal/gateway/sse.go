// ABOUTME: Server-sent events framing for orchestrator streams
// ABOUTME: Each event is written as an event line and a JSON data line, then flushed

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/2389/dexi-gateway/internal/stream"
)

// formatSSEEvent formats an SSE event as a string with the standard format:
// event: <eventType>\ndata: <data>\n\n
func formatSSEEvent(eventType, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, ev stream.Event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "event", ev.Type, "error", err)
		return
	}
	_, _ = fmt.Fprint(w, formatSSEEvent(string(ev.Type), string(data)))
}

// pipeSSE writes events until the channel closes. It keeps draining after a
// client disconnects so the producer always finishes.
func (g *Gateway) pipeSSE(w http.ResponseWriter, flusher http.Flusher, events <-chan stream.Event) {
	for ev := range events {
		g.writeSSEEvent(w, ev)
		flusher.Flush()
	}
}
