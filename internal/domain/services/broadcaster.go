package services

import (
	"context"

	"callagent/internal/domain/models"
)

// Broadcaster notifies live subscribers of call state changes.
// Publish is fire-and-forget: it never blocks on subscribers and never fails.
type Broadcaster interface {
	Publish(ctx context.Context, eventName string, call *models.CallSession)
}
