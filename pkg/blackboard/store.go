// Package blackboard implements the shared coordination store: typed
// spaces of immutable knowledge, a task queue with atomic claiming,
// conflict records, and agent registrations, all backed by PostgreSQL.
// Every mutation is broadcast as a best-effort NOTIFY event; the tables
// remain the single source of truth.
package blackboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/consilium-ai/consilium/pkg/events"
)

// Observer receives store-level measurements. The performance monitor
// implements it; everything else uses the no-op default.
type Observer interface {
	// ObserveLatency records the wall-clock duration of one store operation.
	ObserveLatency(op string, d time.Duration)
	// ObserveCache records one knowledge-cache lookup outcome.
	ObserveCache(hit bool)
	// ObserveClaim records a successful task claim by an agent.
	ObserveClaim(agentID string)
}

type nopObserver struct{}

func (nopObserver) ObserveLatency(string, time.Duration) {}
func (nopObserver) ObserveCache(bool)                    {}
func (nopObserver) ObserveClaim(string)                  {}

// Store is the blackboard. All methods are safe for concurrent use; the
// underlying *sql.DB pool provides the connection management.
type Store struct {
	db       *sql.DB
	pub      *events.Publisher
	cache    *gocache.Cache
	cacheTTL time.Duration
	obs      Observer
	logger   *slog.Logger
}

// NewStore creates a Store over the shared database handle. cacheTTL
// caps how long a knowledge item may be served from the read cache; the
// item's own expiry always wins when shorter.
func NewStore(db *sql.DB, pub *events.Publisher, cacheTTL time.Duration) *Store {
	return &Store{
		db:       db,
		pub:      pub,
		cache:    gocache.New(cacheTTL, 2*cacheTTL),
		cacheTTL: cacheTTL,
		obs:      nopObserver{},
		logger:   slog.Default().With("component", "blackboard"),
	}
}

// SetObserver installs a measurement sink. Must be called before the
// store is shared across goroutines.
func (s *Store) SetObserver(obs Observer) {
	if obs != nil {
		s.obs = obs
	}
}

func (s *Store) observe(op string, start time.Time) {
	s.obs.ObserveLatency(op, time.Since(start))
}

// publish broadcasts an event envelope, logging rather than failing the
// operation when NOTIFY itself errors. Events are hints, not state.
func (s *Store) publish(ctx context.Context, channel, eventType string, data map[string]any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, channel, events.NewEnvelope(eventType, data)); err != nil {
		s.logger.Warn("Event publish failed", "channel", channel, "error", err)
	}
}

// jsonStrings encodes a string slice for a JSONB column, mapping nil to
// the empty array so NOT NULL defaults hold.
func jsonStrings(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	return json.Marshal(v)
}

// jsonMap encodes a map for a JSONB column, mapping nil to the empty
// object.
func jsonMap(v map[string]any) ([]byte, error) {
	if v == nil {
		v = map[string]any{}
	}
	return json.Marshal(v)
}

// jsonMapOrNull encodes a map for a nullable JSONB column.
func jsonMapOrNull(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeStrings(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func decodeMap(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
