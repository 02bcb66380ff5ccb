package call

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"callagent/internal/domain"
	"callagent/internal/domain/models"
	"callagent/internal/domain/services"
)

// HandleStatus merges a status callback. Updates for a call that already
// reached a terminal status are dropped.
func (s *callService) HandleStatus(ctx context.Context, req *services.StatusCallback) error {
	status := models.CallStatus(strings.ToLower(strings.TrimSpace(req.CallStatus)))
	if err := validation.ValidateStruct(req,
		validation.Field(&req.CallSid, validation.Required, validation.Length(1, 64)),
		validation.Field(&req.CallStatus, validation.Required, validation.By(func(any) error {
			if !status.IsValid() {
				return fmt.Errorf("unknown call status %q", req.CallStatus)
			}
			return nil
		})),
		validation.Field(&req.CallDuration, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	update := &models.StatusUpdate{
		Status:   status,
		Duration: req.CallDuration,
	}
	if req.RecordingURL != "" {
		update.RecordingURL = &req.RecordingURL
	}
	if req.RecordingSid != "" {
		update.RecordingID = &req.RecordingSid
	}
	if status.IsTerminal() {
		end := s.now()
		update.EndTime = &end
	}

	logger := s.logger.With("call_sid", req.CallSid, "status", status)
	call, err := s.calls.ApplyStatusUpdate(ctx, req.CallSid, update)
	if errors.Is(err, domain.ErrTerminal) {
		logger.Debug("status update for terminated call ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply status: %w", err)
	}

	logger.Info("call status updated")
	s.broadcaster.Publish(ctx, models.EventCallUpdated, call)
	return nil
}

// HandleRecording merges recording metadata whatever the call status
func (s *callService) HandleRecording(ctx context.Context, req *services.RecordingCallback) error {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.CallSid, validation.Required, validation.Length(1, 64)),
		validation.Field(&req.RecordingURL, validation.Required),
		validation.Field(&req.RecordingDuration, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	call, err := s.calls.ApplyRecordingUpdate(ctx, req.CallSid, &models.RecordingUpdate{
		RecordingID:       req.RecordingSid,
		RecordingURL:      req.RecordingURL,
		RecordingDuration: req.RecordingDuration,
	})
	if err != nil {
		return fmt.Errorf("apply recording: %w", err)
	}

	s.logger.Info("recording stored", "call_sid", req.CallSid, "recording_sid", req.RecordingSid)
	s.broadcaster.Publish(ctx, models.EventCallUpdated, call)
	return nil
}

// HandleTranscription stores the full transcript once the provider reports
// it completed. Other statuses are acknowledged and ignored.
func (s *callService) HandleTranscription(ctx context.Context, req *services.TranscriptionCallback) error {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.CallSid, validation.Required, validation.Length(1, 64)),
	); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	status := strings.ToLower(strings.TrimSpace(req.TranscriptionStatus))
	if status != "completed" {
		s.logger.Debug("transcription not completed, ignoring", "call_sid", req.CallSid, "transcription_status", status)
		return nil
	}

	call, err := s.calls.ApplyTranscription(ctx, req.CallSid, &models.TranscriptionUpdate{
		Text:   req.TranscriptionText,
		Status: status,
	})
	if err != nil {
		return fmt.Errorf("apply transcription: %w", err)
	}

	s.logger.Info("transcription stored", "call_sid", req.CallSid)
	s.broadcaster.Publish(ctx, models.EventCallUpdated, call)
	return nil
}

// GetCall returns one call record
func (s *callService) GetCall(ctx context.Context, callSid string) (*models.CallSession, error) {
	if strings.TrimSpace(callSid) == "" {
		return nil, fmt.Errorf("%w: call sid is required", domain.ErrValidation)
	}
	return s.calls.FindByProviderCallID(ctx, callSid)
}

// ListCalls returns the most recent calls, newest first
func (s *callService) ListCalls(ctx context.Context, limit int) ([]models.CallSession, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.calls.List(ctx, limit)
}
