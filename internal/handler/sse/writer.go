package sse

import (
	"fmt"
	"net/http"
	"sync"

	"callagent/internal/domain/models"
)

// Writer serializes event and keep-alive writes to one SSE response. The
// keep-alive goroutine and the event loop share it.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter wraps an SSE response
func NewWriter(w http.ResponseWriter, flusher http.Flusher) *Writer {
	return &Writer{w: w, flusher: flusher}
}

// WriteEvent writes one call event and flushes it
func (s *Writer) WriteEvent(event models.CallEvent) error {
	frame, err := event.FormatSSE()
	if err != nil {
		return err
	}
	return s.write(frame)
}

// WriteKeepAlive writes an SSE comment line, which clients ignore
func (s *Writer) WriteKeepAlive() error {
	return s.write(": keepalive\n\n")
}

func (s *Writer) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return fmt.Errorf("sse write failed: %w", err)
	}
	s.flusher.Flush()
	return nil
}
