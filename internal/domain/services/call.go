package services

import (
	"context"

	"callagent/internal/domain/models"
	"callagent/internal/telephony/twiml"
)

// StartCallRequest is the provider's call-start webhook
type StartCallRequest struct {
	CallSid       string
	From          string
	To            string
	Direction     string
	CallerCountry string
}

// TurnRequest is one speech (or keypad) result for an in-progress call
type TurnRequest struct {
	CallSid       string
	SpeechResult  string
	Confidence    *float64 // 0-1, nil when the provider omitted it
	CallerCountry string
	Digits        string
	// EmptyTurns is the silent-turn count echoed back on the gather action
	// URL. It keeps the reprompt budget bounded when the record is unreadable.
	EmptyTurns int
}

// StatusCallback is the provider's call status notification
type StatusCallback struct {
	CallSid      string
	CallStatus   string
	CallDuration *int
	RecordingURL string
	RecordingSid string
}

// RecordingCallback carries recording metadata once the provider has it
type RecordingCallback struct {
	CallSid           string
	RecordingSid      string
	RecordingURL      string
	RecordingDuration int
}

// TranscriptionCallback carries the provider's asynchronous full transcript
type TranscriptionCallback struct {
	CallSid             string
	TranscriptionText   string
	TranscriptionStatus string
}

// CallService drives the phone conversation. The document-returning methods
// only fail on malformed input; every later failure is rendered as a spoken
// apology so the provider always receives a valid document.
type CallService interface {
	StartCall(ctx context.Context, req *StartCallRequest) (*twiml.Response, error)
	ProcessTurn(ctx context.Context, req *TurnRequest) (*twiml.Response, error)

	HandleStatus(ctx context.Context, req *StatusCallback) error
	HandleRecording(ctx context.Context, req *RecordingCallback) error
	HandleTranscription(ctx context.Context, req *TranscriptionCallback) error

	GetCall(ctx context.Context, callSid string) (*models.CallSession, error)
	ListCalls(ctx context.Context, limit int) ([]models.CallSession, error)
}
