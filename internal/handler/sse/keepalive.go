package sse

import (
	"log/slog"
	"time"
)

// KeepAliveWriter abstracts the mechanism for writing keep-alive messages
// so the ticker can be tested without a real connection.
type KeepAliveWriter interface {
	WriteKeepAlive() error
}

// TickerKeepAlive sends keep-alive pings at fixed intervals until stopped
// or the connection fails.
type TickerKeepAlive struct {
	interval time.Duration
	done     chan struct{}
}

// NewTickerKeepAlive creates a new ticker-based keep-alive
func NewTickerKeepAlive(interval time.Duration) *TickerKeepAlive {
	return &TickerKeepAlive{
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins sending keep-alive pings. The returned channel closes when
// the keep-alive terminates, either on Stop or on a failed write.
func (k *TickerKeepAlive) Start(writer KeepAliveWriter, logger *slog.Logger) <-chan struct{} {
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					logger.Debug("keep-alive write failed, stopping", "error", err)
					return
				}
			case <-k.done:
				return
			}
		}
	}()

	return stopped
}

// Stop terminates the keep-alive. Safe to call multiple times.
func (k *TickerKeepAlive) Stop() {
	select {
	case <-k.done:
	default:
		close(k.done)
	}
}
