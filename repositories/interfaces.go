package repositories

import (
	"context"

	"github.com/arnobt78/multimodel-chat/models"
)

// EventRepository persists telemetry events
type EventRepository interface {
	// Insert stores a single event
	Insert(ctx context.Context, event *models.Event) error
}
