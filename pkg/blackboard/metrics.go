package blackboard

import (
	"context"
	"time"

	"github.com/consilium-ai/consilium/pkg/models"
)

// Metrics is a point-in-time census of the blackboard.
type Metrics struct {
	KnowledgeBySpace  map[models.Space]int          `json:"knowledge_by_space"`
	TasksByStatus     map[models.TaskStatus]int     `json:"tasks_by_status"`
	ConflictsByStatus map[models.ConflictStatus]int `json:"conflicts_by_status"`
	ActiveAgents      int                           `json:"active_agents"`
}

// GetMetrics counts live knowledge per space, tasks per status,
// conflicts per status, and active agents.
func (s *Store) GetMetrics(ctx context.Context) (*Metrics, error) {
	defer s.observe("get_metrics", time.Now())

	m := &Metrics{
		KnowledgeBySpace:  make(map[models.Space]int),
		TasksByStatus:     make(map[models.TaskStatus]int),
		ConflictsByStatus: make(map[models.ConflictStatus]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT space, COUNT(*) FROM bb_knowledge
		WHERE expires_at IS NULL OR expires_at > $1
		GROUP BY space`,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, transient("count knowledge", err)
	}
	for rows.Next() {
		var (
			space models.Space
			n     int
		)
		if err := rows.Scan(&space, &n); err != nil {
			rows.Close()
			return nil, transient("scan knowledge count", err)
		}
		m.KnowledgeBySpace[space] = n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, transient("iterate knowledge counts", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM bb_tasks GROUP BY status`)
	if err != nil {
		return nil, transient("count tasks", err)
	}
	for rows.Next() {
		var (
			status models.TaskStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, transient("scan task count", err)
		}
		m.TasksByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, transient("iterate task counts", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM bb_conflicts GROUP BY status`)
	if err != nil {
		return nil, transient("count conflicts", err)
	}
	for rows.Next() {
		var (
			status models.ConflictStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, transient("scan conflict count", err)
		}
		m.ConflictsByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, transient("iterate conflict counts", err)
	}
	rows.Close()

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bb_agents WHERE status = 'active'`)
	if err := row.Scan(&m.ActiveAgents); err != nil {
		return nil, transient("count active agents", err)
	}
	return m, nil
}
