package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/models"
	"github.com/arnobt78/multimodel-chat/repositories"
)

// EventRepository implements the repositories.EventRepository interface
type EventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB, logger *zap.Logger) repositories.EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new event
func (r *EventRepository) Insert(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (
			id, session_id, event_type, provider, success,
			duration_ms, request_id, metadata, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	// JSONB rejects an empty byte slice, so send NULL instead
	var metadata interface{}
	if len(event.Metadata) > 0 {
		metadata = []byte(event.Metadata)
	}

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		nullString(event.SessionID),
		event.EventType,
		event.Provider,
		event.Success,
		event.DurationMs,
		nullString(event.RequestID),
		metadata,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	r.logger.Debug("event inserted", zap.String("id", event.ID.String()), zap.String("event_type", string(event.EventType)))
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
