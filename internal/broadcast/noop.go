package broadcast

import (
	"context"

	"callagent/internal/domain/models"
	"callagent/internal/domain/services"
)

// Noop is used when no live transport is attached, such as when running
// request-per-invocation with no connection registry.
type Noop struct{}

var _ services.Broadcaster = Noop{}

func (Noop) Publish(context.Context, string, *models.CallSession) {}
