package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEStream wraps a ResponseWriter configured for Server-Sent Events. Callers
// obtain one with NewSSEStream, then call Send for each event and Ping to
// keep idle connections alive through intermediary proxies.
type SSEStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEStream sets the SSE response headers and returns a stream, or an
// error if the ResponseWriter does not support flushing.
func NewSSEStream(w http.ResponseWriter) (*SSEStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEStream{w: w, flusher: flusher}, nil
}

// Send writes a named event with a JSON-encoded payload and flushes it
// immediately to the client.
func (s *SSEStream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling sse payload: %w", err)
	}

	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}

	s.flusher.Flush()
	return nil
}

// Ping sends a named "heartbeat" event with an empty payload, keeping the
// connection from being closed by idle timeouts on intermediary proxies
// while still being observable by an EventSource's addEventListener.
func (s *SSEStream) Ping() error {
	return s.Send("heartbeat", struct{}{})
}
