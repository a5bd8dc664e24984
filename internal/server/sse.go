package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"docsearch/internal/domain"
)

// sseWriter frames stream tokens as server-sent events:
// data: {"content":...}, data: {"error":...} and data: [DONE].
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: f}
}

// WriteToken writes one event. Empty content tokens are not sent.
func (s *sseWriter) WriteToken(tok domain.StreamToken) error {
	var frame []byte
	switch {
	case tok.Done:
		frame = []byte("[DONE]")
	case tok.IsError():
		b, err := json.Marshal(map[string]string{"error": tok.Error})
		if err != nil {
			return err
		}
		frame = b
	case tok.Content == "":
		return nil
	default:
		b, err := json.Marshal(map[string]string{"content": tok.Content})
		if err != nil {
			return err
		}
		frame = b
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", frame); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
