package blackboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/consilium-ai/consilium/pkg/events"
	"github.com/consilium-ai/consilium/pkg/models"
)

// RegisterAgent records (or refreshes) a worker agent. Re-registration
// reactivates the agent and resets its heartbeat.
func (s *Store) RegisterAgent(ctx context.Context, reg models.AgentRegistration) error {
	defer s.observe("register_agent", time.Now())

	now := time.Now().UTC()
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = now
	}
	caps, err := jsonStrings(reg.Capabilities)
	if err != nil {
		return transient("encode agent capabilities", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bb_agents (agent_id, agent_type, capabilities, status, registered_at, last_heartbeat)
		VALUES ($1, $2, $3, 'active', $4, $5)
		ON CONFLICT (agent_id) DO UPDATE
		SET agent_type = EXCLUDED.agent_type,
		    capabilities = EXCLUDED.capabilities,
		    status = 'active',
		    last_heartbeat = EXCLUDED.last_heartbeat`,
		reg.AgentID, reg.AgentType, caps, reg.RegisteredAt, now,
	)
	if err != nil {
		return transient("register agent", err)
	}

	s.publish(ctx, events.ChannelAgentStatus, events.EventTypeAgentStatus, map[string]any{
		"agent_id":   reg.AgentID,
		"agent_type": reg.AgentType,
		"status":     string(models.AgentStatusActive),
	})
	return nil
}

// AgentHeartbeat refreshes an agent's liveness timestamp. Returns false
// when the agent is unknown, in which case the caller should re-register.
func (s *Store) AgentHeartbeat(ctx context.Context, agentID string) (bool, error) {
	defer s.observe("agent_heartbeat", time.Now())

	res, err := s.db.ExecContext(ctx, `
		UPDATE bb_agents SET last_heartbeat = $2, status = 'active' WHERE agent_id = $1`,
		agentID, time.Now().UTC(),
	)
	if err != nil {
		return false, transient("agent heartbeat", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, transient("agent heartbeat result", err)
	}
	return n > 0, nil
}

// GetActiveAgents lists agents currently marked active.
func (s *Store) GetActiveAgents(ctx context.Context) ([]*models.AgentRegistration, error) {
	defer s.observe("get_active_agents", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, agent_type, capabilities, status, registered_at, last_heartbeat
		FROM bb_agents
		WHERE status = 'active'
		ORDER BY agent_id`,
	)
	if err != nil {
		return nil, transient("query active agents", err)
	}
	defer rows.Close()

	var agents []*models.AgentRegistration
	for rows.Next() {
		var (
			a    models.AgentRegistration
			caps []byte
		)
		if err := rows.Scan(&a.AgentID, &a.AgentType, &caps, &a.Status, &a.RegisteredAt, &a.LastHeartbeat); err != nil {
			return nil, transient("scan agent", err)
		}
		a.Capabilities = decodeStrings(caps)
		agents = append(agents, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("iterate agents", err)
	}
	return agents, nil
}

// CheckAgentTimeouts deactivates agents whose heartbeat is older than
// the timeout and releases their claimed tasks: a task with retry budget
// left is requeued to pending, one past its budget is failed with
// reason agent_timeout. Returns the ids of the deactivated agents.
func (s *Store) CheckAgentTimeouts(ctx context.Context, timeout time.Duration) ([]string, error) {
	defer s.observe("check_agent_timeouts", time.Now())

	cutoff := time.Now().UTC().Add(-timeout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, transient("begin timeout scan", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		UPDATE bb_agents SET status = 'inactive'
		WHERE status = 'active' AND last_heartbeat < $1
		RETURNING agent_id`,
		cutoff,
	)
	if err != nil {
		return nil, transient("deactivate timed-out agents", err)
	}
	var timedOut []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, transient("scan timed-out agent", err)
		}
		timedOut = append(timedOut, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, transient("iterate timed-out agents", err)
	}
	rows.Close()

	var pending []pendingEvent
	for _, agentID := range timedOut {
		evs, err := releaseAgentTasks(ctx, tx, agentID, "agent_timeout")
		if err != nil {
			return nil, err
		}
		pending = append(pending, evs...)
	}
	if err := tx.Commit(); err != nil {
		return nil, transient("commit timeout scan", err)
	}

	for _, agentID := range timedOut {
		s.logger.Warn("Agent timed out, tasks released", "agent_id", agentID)
		s.publish(ctx, events.ChannelAgentStatus, events.EventTypeAgentStatus, map[string]any{
			"agent_id": agentID,
			"status":   string(models.AgentStatusInactive),
			"reason":   "heartbeat_timeout",
		})
	}
	s.flushEvents(ctx, pending)
	return timedOut, nil
}

// RecoverOrphanedTasks releases tasks held by agents that are inactive
// or no longer registered. Run once at startup so work claimed before a
// crash is not stranded.
func (s *Store) RecoverOrphanedTasks(ctx context.Context) (int, error) {
	defer s.observe("recover_orphaned_tasks", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, transient("begin orphan recovery", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT t.agent_id
		FROM bb_tasks t
		LEFT JOIN bb_agents a ON a.agent_id = t.agent_id
		WHERE t.status IN ('claimed', 'in_progress')
		  AND (a.agent_id IS NULL OR a.status = 'inactive')`,
	)
	if err != nil {
		return 0, transient("query orphaned holders", err)
	}
	var holders []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, transient("scan orphaned holder", err)
		}
		holders = append(holders, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, transient("iterate orphaned holders", err)
	}
	rows.Close()

	var pending []pendingEvent
	for _, agentID := range holders {
		evs, err := releaseAgentTasks(ctx, tx, agentID, "startup_recovery")
		if err != nil {
			return 0, err
		}
		pending = append(pending, evs...)
	}
	if err := tx.Commit(); err != nil {
		return 0, transient("commit orphan recovery", err)
	}

	if len(pending) > 0 {
		s.logger.Info("Recovered orphaned tasks", "count", len(pending))
	}
	s.flushEvents(ctx, pending)
	return len(pending), nil
}

// pendingEvent defers a NOTIFY until after the surrounding transaction
// commits.
type pendingEvent struct {
	channel   string
	eventType string
	data      map[string]any
}

func (s *Store) flushEvents(ctx context.Context, evs []pendingEvent) {
	for _, ev := range evs {
		s.publish(ctx, ev.channel, ev.eventType, ev.data)
	}
}

// releaseAgentTasks requeues or fails every non-terminal task held by
// the agent, inside the caller's transaction.
func releaseAgentTasks(ctx context.Context, tx *sql.Tx, agentID, reason string) ([]pendingEvent, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, retries, max_retries FROM bb_tasks
		WHERE agent_id = $1 AND status IN ('claimed', 'in_progress')
		FOR UPDATE`,
		agentID,
	)
	if err != nil {
		return nil, transient("query held tasks", err)
	}

	type held struct {
		id      string
		retries int
		maxRet  int
	}
	var tasks []held
	for rows.Next() {
		var h held
		if err := rows.Scan(&h.id, &h.retries, &h.maxRet); err != nil {
			rows.Close()
			return nil, transient("scan held task", err)
		}
		tasks = append(tasks, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, transient("iterate held tasks", err)
	}
	rows.Close()

	now := time.Now().UTC()
	var evs []pendingEvent
	for _, h := range tasks {
		if h.retries < h.maxRet {
			_, err = tx.ExecContext(ctx, `
				UPDATE bb_tasks
				SET status = 'pending', agent_id = NULL, claimed_at = NULL, retries = retries + 1
				WHERE id = $1`,
				h.id)
			if err != nil {
				return nil, transient("requeue held task", err)
			}
			evs = append(evs, pendingEvent{
				channel:   events.ChannelTaskCreated,
				eventType: events.EventTypeTaskCreated,
				data:      map[string]any{"id": h.id, "requeue": true, "reason": reason},
			})
			continue
		}

		details, err := json.Marshal(map[string]any{"reason": reason})
		if err != nil {
			return nil, transient("encode release reason", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE bb_tasks
			SET status = 'failed', error_details = $2, completed_at = $3
			WHERE id = $1`,
			h.id, details, now)
		if err != nil {
			return nil, transient("fail held task", err)
		}
		evs = append(evs, pendingEvent{
			channel:   events.ChannelTaskFailed,
			eventType: events.EventTypeTaskFailed,
			data:      map[string]any{"id": h.id, "agent_id": agentID, "error": map[string]any{"reason": reason}},
		})
	}
	return evs, nil
}
