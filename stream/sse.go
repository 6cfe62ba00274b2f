package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSESink writes chunks as server-sent events: the chunk type becomes the
// event name, the JSON-encoded chunk the data line. Each event is flushed
// immediately so clients see chunks as they are produced.
type SSESink struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewSSESink prepares w for event streaming and returns the sink.
// Fails when the ResponseWriter cannot flush (no streaming possible).
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("stream: response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &SSESink{w: w, f: f}, nil
}

// Send writes one event and flushes.
func (s *SSESink) Send(c Chunk) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("stream: marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", c.Type, data); err != nil {
		return ErrClientGone
	}
	s.f.Flush()
	return nil
}
