package blackboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/consilium-ai/consilium/pkg/events"
	"github.com/consilium-ai/consilium/pkg/models"
)

const knowledgeColumns = `id, space, agent_id, task_id, knowledge_type, priority, tags, dependencies, content, created_at, expires_at`

// AddKnowledge publishes an immutable knowledge item into a space and
// broadcasts knowledge_added. Missing fields get defaults: a fresh UUID,
// the current UTC time, and priority 3 clamped to [1, 5].
func (s *Store) AddKnowledge(ctx context.Context, item models.KnowledgeItem) (*models.KnowledgeItem, error) {
	defer s.observe("add_knowledge", time.Now())

	if !item.Space.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSpace, item.Space)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}
	if item.Priority == 0 {
		item.Priority = 3
	}
	if item.Priority < models.PriorityHighest {
		item.Priority = models.PriorityHighest
	}
	if item.Priority > models.PriorityLowest {
		item.Priority = models.PriorityLowest
	}

	tags, err := jsonStrings(item.Tags)
	if err != nil {
		return nil, transient("encode knowledge tags", err)
	}
	deps, err := jsonStrings(item.Dependencies)
	if err != nil {
		return nil, transient("encode knowledge dependencies", err)
	}
	content, err := jsonMap(item.Content)
	if err != nil {
		return nil, transient("encode knowledge content", err)
	}

	var taskID any
	if item.TaskID != "" {
		taskID = item.TaskID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bb_knowledge (id, space, agent_id, task_id, knowledge_type, priority, tags, dependencies, content, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, string(item.Space), item.AgentID, taskID, item.KnowledgeType,
		item.Priority, tags, deps, content, item.Timestamp, item.ExpiresAt,
	)
	if err != nil {
		return nil, transient("insert knowledge", err)
	}

	s.publish(ctx, events.ChannelKnowledgeAdded, events.EventTypeKnowledgeAdded, map[string]any{
		"id":             item.ID,
		"space":          string(item.Space),
		"knowledge_type": item.KnowledgeType,
		"agent_id":       item.AgentID,
	})
	return &item, nil
}

// GetKnowledge fetches one item by space and id. Expired items are
// absent: the call returns ErrNotFound even when the row still exists.
// Reads go through the in-process cache; the item's own expiry bounds
// the cache entry's lifetime.
func (s *Store) GetKnowledge(ctx context.Context, space models.Space, id string) (*models.KnowledgeItem, error) {
	defer s.observe("get_knowledge", time.Now())

	if !space.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSpace, space)
	}

	now := time.Now().UTC()
	cacheKey := string(space) + "/" + id
	if v, ok := s.cache.Get(cacheKey); ok {
		item := v.(*models.KnowledgeItem)
		if item.Expired(now) {
			s.cache.Delete(cacheKey)
			s.obs.ObserveCache(false)
			return nil, ErrNotFound
		}
		s.obs.ObserveCache(true)
		return item, nil
	}
	s.obs.ObserveCache(false)

	row := s.db.QueryRowContext(ctx, `
		SELECT `+knowledgeColumns+`
		FROM bb_knowledge
		WHERE space = $1 AND id = $2
		  AND (expires_at IS NULL OR expires_at > $3)`,
		string(space), id, now,
	)
	item, err := scanKnowledge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, transient("select knowledge", err)
	}

	ttl := s.cacheTTL
	if item.ExpiresAt != nil {
		if remaining := item.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		s.cache.Set(cacheKey, item, ttl)
	}
	return item, nil
}

// QueryKnowledge returns live items matching the filter set, ordered by
// priority (1 first) then insertion time. Tags use subset semantics:
// an item matches when it carries every requested tag. The default
// limit is 100.
func (s *Store) QueryKnowledge(ctx context.Context, q models.KnowledgeQuery) ([]*models.KnowledgeItem, error) {
	defer s.observe("query_knowledge", time.Now())

	if !q.Space.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSpace, q.Space)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + knowledgeColumns + `
		FROM bb_knowledge
		WHERE space = $1
		  AND (expires_at IS NULL OR expires_at > $2)`
	args := []any{string(q.Space), time.Now().UTC()}

	if q.KnowledgeType != "" {
		args = append(args, q.KnowledgeType)
		query += fmt.Sprintf(" AND knowledge_type = $%d", len(args))
	}
	if q.AgentID != "" {
		args = append(args, q.AgentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if len(q.Tags) > 0 {
		tags, err := jsonStrings(q.Tags)
		if err != nil {
			return nil, transient("encode query tags", err)
		}
		args = append(args, tags)
		query += fmt.Sprintf(" AND tags @> $%d::jsonb", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY priority, created_at LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient("query knowledge", err)
	}
	defer rows.Close()

	var items []*models.KnowledgeItem
	for rows.Next() {
		item, err := scanKnowledge(rows)
		if err != nil {
			return nil, transient("scan knowledge", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("iterate knowledge", err)
	}
	return items, nil
}

// PurgeExpiredKnowledge deletes rows past their expiry. Reads already
// exclude them; this reclaims the storage.
func (s *Store) PurgeExpiredKnowledge(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bb_knowledge WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, transient("purge expired knowledge", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanKnowledge(row interface{ Scan(...any) error }) (*models.KnowledgeItem, error) {
	var (
		item      models.KnowledgeItem
		taskID    sql.NullString
		tags      []byte
		deps      []byte
		content   []byte
		expiresAt sql.NullTime
	)
	err := row.Scan(&item.ID, &item.Space, &item.AgentID, &taskID, &item.KnowledgeType,
		&item.Priority, &tags, &deps, &content, &item.Timestamp, &expiresAt)
	if err != nil {
		return nil, err
	}
	item.TaskID = taskID.String
	item.Tags = decodeStrings(tags)
	item.Dependencies = decodeStrings(deps)
	item.Content = decodeMap(content)
	item.ExpiresAt = timePtr(expiresAt)
	return &item, nil
}
