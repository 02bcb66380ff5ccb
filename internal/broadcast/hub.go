// Package broadcast fans call state changes out to live dashboard subscribers.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"callagent/internal/domain/models"
	"callagent/internal/domain/services"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 32

// Subscriber receives events until its unsubscribe func is called
type Subscriber struct {
	ID     string
	events chan models.CallEvent
}

// Events is closed when the subscriber is removed from the hub
func (s *Subscriber) Events() <-chan models.CallEvent {
	return s.events
}

// Hub is an in-process fan-out. Publish never blocks: a subscriber whose
// queue is full misses the event and is expected to reconcile with a full read.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	buffer int
	logger *slog.Logger
}

var _ services.Broadcaster = (*Hub)(nil)

// NewHub creates a hub with the given per-subscriber buffer
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]*Subscriber),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber
func (h *Hub) Subscribe() (*Subscriber, func()) {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		events: make(chan models.CallEvent, h.buffer),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	h.logger.Debug("subscriber attached", "subscriber_id", sub.ID)

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub.ID)
			close(sub.events)
			h.mu.Unlock()
			h.logger.Debug("subscriber detached", "subscriber_id", sub.ID)
		})
	}
}

// SubscriberCount returns the number of attached subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers a snapshot of call to every subscriber that has room
func (h *Hub) Publish(_ context.Context, eventName string, call *models.CallSession) {
	if call == nil {
		return
	}
	event := models.NewCallEvent(eventName, snapshot(call))

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, sub := range h.subs {
		select {
		case sub.events <- event:
		default:
			h.logger.Warn("subscriber queue full, dropping event",
				"subscriber_id", id,
				"event", eventName,
				"call_sid", call.ProviderCallID,
			)
		}
	}
}

// snapshot copies call so later mutation by the publisher is not observed
func snapshot(call *models.CallSession) *models.CallSession {
	c := *call
	if call.EmergencyKeywords != nil {
		c.EmergencyKeywords = append([]string(nil), call.EmergencyKeywords...)
	}
	if call.EndTime != nil {
		t := *call.EndTime
		c.EndTime = &t
	}
	return &c
}
