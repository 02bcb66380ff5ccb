package sse

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"callagent/internal/domain/models"
)

type countingWriter struct {
	mu    sync.Mutex
	count int
	fail  bool
}

func (c *countingWriter) WriteKeepAlive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if c.fail {
		return errors.New("connection closed")
	}
	return nil
}

func TestTickerKeepAlive_StopsOnWriteError(t *testing.T) {
	k := NewTickerKeepAlive(5 * time.Millisecond)
	w := &countingWriter{fail: true}

	select {
	case <-k.Start(w, slog.New(slog.NewTextHandler(io.Discard, nil))):
	case <-time.After(time.Second):
		t.Fatal("keep-alive did not stop after a failed write")
	}
	k.Stop()
	k.Stop()
}

func TestTickerKeepAlive_Stop(t *testing.T) {
	k := NewTickerKeepAlive(time.Hour)
	stopped := k.Start(&countingWriter{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	k.Stop()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not terminate the keep-alive")
	}
}

func TestWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec, rec)

	call := &models.CallSession{ProviderCallID: "CA1"}
	if err := w.WriteEvent(models.NewCallEvent(models.EventCallUpdated, call)); err != nil {
		t.Fatalf("WriteEvent() error = %v", err)
	}
	if err := w.WriteKeepAlive(); err != nil {
		t.Fatalf("WriteKeepAlive() error = %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: call_updated\ndata: {") {
		t.Errorf("event frame = %q", body)
	}
	if !strings.Contains(body, `"provider_call_id":"CA1"`) || !strings.HasSuffix(body, ": keepalive\n\n") {
		t.Errorf("body = %q", body)
	}
	if !rec.Flushed {
		t.Error("writer did not flush")
	}
}
