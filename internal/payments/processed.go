package payments

import (
	"context"
	"fmt"
)

// ProcessedTracker deduplicates webhook deliveries by provider event id.
type ProcessedTracker struct {
	pool DB
}

func NewProcessedTracker(pool DB) *ProcessedTracker {
	return &ProcessedTracker{pool: pool}
}

// AlreadyProcessed reports whether the event id was seen before.
func (t *ProcessedTracker) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var exists bool
	err := t.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2
		)`, provider, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("payments: processed lookup: %w", err)
	}
	return exists, nil
}

// MarkProcessed records the event id. Returns false when another delivery
// already claimed it.
func (t *ProcessedTracker) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	tag, err := t.pool.Exec(ctx, `
		INSERT INTO processed_events (provider, event_id, processed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (provider, event_id) DO NOTHING`,
		provider, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("payments: mark processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
