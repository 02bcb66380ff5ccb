package repositories

import (
	"context"

	"callagent/internal/domain/models"
)

// CallRepository is the narrow adapter through which all call-record mutation flows.
// Every update is a partial merge so that callbacks arriving on independent
// provider channels (turns, status, recording) never clobber each other.
type CallRepository interface {
	// UpsertOnStart inserts the record if no record exists for call.ProviderCallID.
	// Must be a single atomic insert-if-absent; a duplicate delivery is a no-op.
	// Returns created=false when the record already existed. call is updated
	// in place with the stored record either way.
	UpsertOnStart(ctx context.Context, call *models.CallSession) (created bool, err error)

	// ApplyTurnUpdate merges turn fields. Returns domain.ErrNotFound if the call
	// is unknown, and the stored record with domain.ErrTerminal if the call has
	// already reached a terminal status (nothing is written).
	ApplyTurnUpdate(ctx context.Context, providerCallID string, update *models.TurnUpdate) (*models.CallSession, error)

	// ApplyStatusUpdate merges a status callback. Rejected with domain.ErrTerminal
	// when the stored record is already terminal.
	ApplyStatusUpdate(ctx context.Context, providerCallID string, update *models.StatusUpdate) (*models.CallSession, error)

	// ApplyRecordingUpdate merges recording metadata regardless of status
	ApplyRecordingUpdate(ctx context.Context, providerCallID string, update *models.RecordingUpdate) (*models.CallSession, error)

	// ApplyTranscription merges the provider's full transcription regardless of status
	ApplyTranscription(ctx context.Context, providerCallID string, update *models.TranscriptionUpdate) (*models.CallSession, error)

	// FindByProviderCallID returns domain.ErrNotFound when absent
	FindByProviderCallID(ctx context.Context, providerCallID string) (*models.CallSession, error)

	// List returns the most recently created calls, newest first
	List(ctx context.Context, limit int) ([]models.CallSession, error)
}
