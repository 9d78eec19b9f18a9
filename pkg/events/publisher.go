package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// notifyLimit is PostgreSQL's NOTIFY payload ceiling (8000 bytes) with
// headroom. Oversized envelopes are replaced by a minimal truncation
// envelope carrying only routing fields; subscribers re-query the store.
const notifyLimit = 7900

// Publisher broadcasts event envelopes on named channels via pg_notify.
// No event is persisted — live state on the blackboard is authoritative.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a Publisher on the shared database handle.
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// Publish sends one envelope on the given channel. Errors are the
// caller's to log; publishing is best-effort by contract.
func (p *Publisher) Publish(ctx context.Context, channel string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	notifyPayload, err := truncateIfNeeded(env, payload)
	if err != nil {
		return err
	}

	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// truncateIfNeeded returns the payload as-is when it fits, otherwise a
// minimal envelope with the routing fields and a truncated marker.
func truncateIfNeeded(env Envelope, payload []byte) (string, error) {
	if len(payload) <= notifyLimit {
		return string(payload), nil
	}

	truncated := map[string]any{
		"event_type": env.EventType,
		"timestamp":  env.Timestamp,
		"truncated":  true,
	}
	if id, ok := env.Data["id"]; ok {
		truncated["data"] = map[string]any{"id": id}
	}

	out, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated envelope: %w", err)
	}
	return string(out), nil
}
