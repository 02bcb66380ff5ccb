package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Broadcast event names
const (
	EventCallCreated = "call_created" // First call-start delivery created the record
	EventCallUpdated = "call_updated" // Any later merge (turn, status, recording, transcription)
)

// CallEvent is what live subscribers receive. Call is always a full snapshot,
// never a delta, so a subscriber that missed events only needs the latest one.
type CallEvent struct {
	Name      string       `json:"event"`
	Call      *CallSession `json:"call"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewCallEvent stamps a snapshot for publishing
func NewCallEvent(name string, call *CallSession) CallEvent {
	return CallEvent{
		Name:      name,
		Call:      call,
		Timestamp: time.Now().UTC(),
	}
}

// FormatSSE formats the event for transmission over Server-Sent Events:
//
//	event: call_updated
//	data: {"event": "...", "call": {...}}
func (e CallEvent) FormatSSE() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal call event: %w", err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Name, data), nil
}
