package models

import (
	"time"
)

// CallStatus mirrors the telephony provider's call lifecycle values
type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusActive     CallStatus = "active"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
)

// TerminalStatuses lists every status after which the conversation is frozen.
var TerminalStatuses = []CallStatus{
	CallStatusCompleted,
	CallStatusFailed,
	CallStatusCanceled,
	CallStatusBusy,
	CallStatusNoAnswer,
}

// IsTerminal reports whether no further turn processing may mutate the call
func (s CallStatus) IsTerminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// IsValid reports whether s is one of the known provider statuses
func (s CallStatus) IsValid() bool {
	switch s {
	case CallStatusInitiated, CallStatusInProgress, CallStatusRinging, CallStatusActive:
		return true
	}
	return s.IsTerminal()
}

// Direction of the call relative to this system
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ParseDirection maps provider values ("inbound", "outbound-api", "outbound-dial") to a Direction
func ParseDirection(raw string) Direction {
	if len(raw) >= len(DirectionOutbound) && raw[:len(DirectionOutbound)] == string(DirectionOutbound) {
		return DirectionOutbound
	}
	return DirectionInbound
}

// CallSession is the single persistent record of one phone call, keyed by
// the provider's call id. It is the only state shared between turns.
type CallSession struct {
	ID             string    `json:"id" db:"id"`
	ProviderCallID string    `json:"provider_call_id" db:"provider_call_id"`
	Direction      Direction `json:"direction" db:"direction"`

	CallerNumber  string `json:"caller_number" db:"caller_number"`
	CalleeNumber  string `json:"callee_number" db:"callee_number"`
	CallerCountry string `json:"caller_country,omitempty" db:"caller_country"`
	Language      string `json:"language" db:"language"`

	Status    CallStatus `json:"status" db:"status"`
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`
	Duration  int        `json:"duration" db:"duration"` // seconds

	Transcript           string  `json:"transcript" db:"transcript"`
	TranscriptConfidence float64 `json:"transcript_confidence" db:"transcript_confidence"`
	FullTranscript       string  `json:"full_transcript,omitempty" db:"full_transcript"`
	TranscriptionStatus  string  `json:"transcription_status,omitempty" db:"transcription_status"`
	TurnCount            int     `json:"turn_count" db:"turn_count"`
	EmptyTurns           int     `json:"empty_turns" db:"empty_turns"` // consecutive, reset on speech

	Intent               Intent   `json:"intent" db:"intent"`
	Priority             Priority `json:"priority" db:"priority"`
	EmergencyDetected    bool     `json:"emergency_detected" db:"emergency_detected"`
	EmergencySeverity    Severity `json:"emergency_severity" db:"emergency_severity"`
	EmergencyKeywords    []string `json:"emergency_keywords" db:"emergency_keywords"`
	EmergencyContext     string   `json:"emergency_context,omitempty" db:"emergency_context"`
	AIResponse           string   `json:"ai_response" db:"ai_response"`
	SystemContext        string   `json:"system_context,omitempty" db:"system_context"`
	FollowUpInstructions string   `json:"follow_up_instructions,omitempty" db:"follow_up_instructions"`

	RecordingID       string `json:"recording_id,omitempty" db:"recording_id"`
	RecordingURL      string `json:"recording_url,omitempty" db:"recording_url"`
	RecordingDuration int    `json:"recording_duration,omitempty" db:"recording_duration"`

	InitiatedBy string    `json:"initiated_by" db:"initiated_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TurnUpdate is the partial merge applied after a processed (or empty) turn.
// Nil fields are left untouched by the store.
type TurnUpdate struct {
	Transcript           *string
	TranscriptConfidence *float64
	CallerCountry        *string
	Language             *string

	// IncrementTurn bumps TurnCount by exactly one.
	IncrementTurn bool
	// EmptyTurns overwrites the consecutive empty-turn counter.
	EmptyTurns *int

	Analysis *Analysis
}

// StatusUpdate is the partial merge applied by the provider's status callback
type StatusUpdate struct {
	Status       CallStatus
	Duration     *int
	EndTime      *time.Time
	RecordingURL *string
	RecordingID  *string
}

// RecordingUpdate merges recording metadata. Independent of call status.
type RecordingUpdate struct {
	RecordingID       string
	RecordingURL      string
	RecordingDuration int
}

// TranscriptionUpdate merges the provider's asynchronous full transcription
type TranscriptionUpdate struct {
	Text   string
	Status string
}

// Apply merges the turn fields into the session in place
func (u *TurnUpdate) Apply(c *CallSession) {
	if u.Transcript != nil {
		c.Transcript = *u.Transcript
	}
	if u.TranscriptConfidence != nil {
		c.TranscriptConfidence = *u.TranscriptConfidence
	}
	if u.CallerCountry != nil && *u.CallerCountry != "" {
		c.CallerCountry = *u.CallerCountry
	}
	if u.Language != nil && *u.Language != "" {
		c.Language = *u.Language
	}
	if u.IncrementTurn {
		c.TurnCount++
	}
	if u.EmptyTurns != nil {
		c.EmptyTurns = *u.EmptyTurns
	}
	if a := u.Analysis; a != nil {
		c.Intent = a.Intent
		c.Priority = a.Priority
		c.EmergencyDetected = a.IsEmergency
		c.EmergencySeverity = a.Severity
		c.EmergencyKeywords = a.Keywords
		c.EmergencyContext = a.EmergencyContext
		c.AIResponse = a.ReplyText
		c.SystemContext = a.AuxiliaryContext
		c.FollowUpInstructions = a.FollowUpInstructions
	}
}

// Apply merges the status fields into the session in place
func (u *StatusUpdate) Apply(c *CallSession) {
	c.Status = u.Status
	if u.Duration != nil {
		c.Duration = *u.Duration
	}
	if u.EndTime != nil {
		t := *u.EndTime
		c.EndTime = &t
	}
	if u.RecordingURL != nil && *u.RecordingURL != "" {
		c.RecordingURL = *u.RecordingURL
	}
	if u.RecordingID != nil && *u.RecordingID != "" {
		c.RecordingID = *u.RecordingID
	}
}

// Apply merges the recording metadata into the session in place
func (u *RecordingUpdate) Apply(c *CallSession) {
	if u.RecordingID != "" {
		c.RecordingID = u.RecordingID
	}
	if u.RecordingURL != "" {
		c.RecordingURL = u.RecordingURL
	}
	c.RecordingDuration = u.RecordingDuration
}
