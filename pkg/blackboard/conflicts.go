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

const conflictColumns = `id, conflict_type, involved_agents, involved_tasks, description, severity, status, resolution_strategy, resolution_data, created_at, resolved_at`

// ReportConflict files a new open conflict and broadcasts
// conflict_detected. The severity's queue score is computed here so the
// open-conflict ordering is stable even if severity names change later.
func (s *Store) ReportConflict(ctx context.Context, c models.ConflictItem) (*models.ConflictItem, error) {
	defer s.observe("report_conflict", time.Now())

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Status = models.ConflictStatusOpen
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Severity == "" {
		c.Severity = models.SeverityMedium
	}

	agents, err := jsonStrings(c.InvolvedAgents)
	if err != nil {
		return nil, transient("encode involved agents", err)
	}
	tasks, err := jsonStrings(c.InvolvedTasks)
	if err != nil {
		return nil, transient("encode involved tasks", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bb_conflicts (id, conflict_type, involved_agents, involved_tasks, description, severity, severity_score, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, string(c.ConflictType), agents, tasks, c.Description,
		string(c.Severity), c.Severity.Score(), string(c.Status), c.CreatedAt,
	)
	if err != nil {
		return nil, transient("insert conflict", err)
	}

	s.publish(ctx, events.ChannelConflictDetected, events.EventTypeConflictDetected, map[string]any{
		"id":            c.ID,
		"conflict_type": string(c.ConflictType),
		"severity":      string(c.Severity),
	})
	return &c, nil
}

// GetConflict fetches one conflict by id.
func (s *Store) GetConflict(ctx context.Context, id string) (*models.ConflictItem, error) {
	defer s.observe("get_conflict", time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM bb_conflicts WHERE id = $1`, id)
	c, err := scanConflict(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, transient("select conflict", err)
	}
	return c, nil
}

// UpdateConflictStatus moves a conflict along its state machine,
// recording the resolution strategy and data. Terminal states stamp
// resolved_at.
func (s *Store) UpdateConflictStatus(ctx context.Context, id string, status models.ConflictStatus, strategy string, data map[string]any) error {
	defer s.observe("update_conflict_status", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("begin conflict update", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current models.ConflictStatus
	row := tx.QueryRowContext(ctx, `SELECT status FROM bb_conflicts WHERE id = $1 FOR UPDATE`, id)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return transient("select conflict for update", err)
	}
	if !models.ValidConflictTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	encoded, err := jsonMapOrNull(data)
	if err != nil {
		return transient("encode resolution data", err)
	}
	var resolvedAt any
	if status.Terminal() {
		resolvedAt = time.Now().UTC()
	}
	var strategyArg any
	if strategy != "" {
		strategyArg = strategy
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bb_conflicts
		SET status = $2,
		    resolution_strategy = COALESCE($3, resolution_strategy),
		    resolution_data = COALESCE($4, resolution_data),
		    resolved_at = $5
		WHERE id = $1`,
		id, string(status), strategyArg, encoded, resolvedAt,
	)
	if err != nil {
		return transient("update conflict status", err)
	}
	if err := tx.Commit(); err != nil {
		return transient("commit conflict update", err)
	}
	return nil
}

// GetOpenConflicts lists open conflicts in resolution order: critical
// first, then oldest first within a severity.
func (s *Store) GetOpenConflicts(ctx context.Context, limit int) ([]*models.ConflictItem, error) {
	defer s.observe("get_open_conflicts", time.Now())

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conflictColumns+`
		FROM bb_conflicts
		WHERE status = 'open'
		ORDER BY severity_score, created_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, transient("query open conflicts", err)
	}
	defer rows.Close()

	var conflicts []*models.ConflictItem
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, transient("scan conflict", err)
		}
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("iterate conflicts", err)
	}
	return conflicts, nil
}

// PurgeResolvedConflicts deletes terminal conflicts resolved before the
// cutoff.
func (s *Store) PurgeResolvedConflicts(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM bb_conflicts
		WHERE status IN ('resolved', 'escalated') AND resolved_at <= $1`,
		olderThan)
	if err != nil {
		return 0, transient("purge resolved conflicts", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanConflict(row interface{ Scan(...any) error }) (*models.ConflictItem, error) {
	var (
		c          models.ConflictItem
		agents     []byte
		tasks      []byte
		strategy   sql.NullString
		resolution []byte
		resolvedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.ConflictType, &agents, &tasks, &c.Description,
		&c.Severity, &c.Status, &strategy, &resolution, &c.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	c.InvolvedAgents = decodeStrings(agents)
	c.InvolvedTasks = decodeStrings(tasks)
	c.ResolutionStrategy = strategy.String
	c.ResolutionData = decodeMap(resolution)
	c.ResolvedAt = timePtr(resolvedAt)
	return &c, nil
}
