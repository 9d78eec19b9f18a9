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

const taskColumns = `id, task_type, status, agent_id, priority, dependencies, requirements, input_data, output_data, error_details, deadline, created_at, claimed_at, completed_at, retries, max_retries`

// depsSatisfied gates a task on its dependencies: every listed task id
// must exist in completed state. Tasks with unmet dependencies are never
// offered and never claimable.
const depsSatisfied = `NOT EXISTS (
		SELECT 1 FROM jsonb_array_elements_text(t.dependencies) AS dep(id)
		WHERE NOT EXISTS (
			SELECT 1 FROM bb_tasks done WHERE done.id = dep.id AND done.status = 'completed'
		)
	)`

// CreateTask enqueues a new pending task and broadcasts task_created.
func (s *Store) CreateTask(ctx context.Context, task models.TaskDefinition) (*models.TaskDefinition, error) {
	defer s.observe("create_task", time.Now())

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Status = models.TaskStatusPending
	task.AgentID = ""
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.Priority == 0 {
		task.Priority = 3
	}
	if task.Priority < models.PriorityHighest {
		task.Priority = models.PriorityHighest
	}
	if task.Priority > models.PriorityLowest {
		task.Priority = models.PriorityLowest
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = models.DefaultMaxRetries
	}

	deps, err := jsonStrings(task.Dependencies)
	if err != nil {
		return nil, transient("encode task dependencies", err)
	}
	reqs, err := jsonMap(task.Requirements)
	if err != nil {
		return nil, transient("encode task requirements", err)
	}
	input, err := jsonMap(task.InputData)
	if err != nil {
		return nil, transient("encode task input", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bb_tasks (id, task_type, status, priority, dependencies, requirements, input_data, deadline, created_at, retries, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)`,
		task.ID, task.TaskType, string(task.Status), task.Priority,
		deps, reqs, input, task.Deadline, task.CreatedAt, task.MaxRetries,
	)
	if err != nil {
		return nil, transient("insert task", err)
	}

	s.publish(ctx, events.ChannelTaskCreated, events.EventTypeTaskCreated, map[string]any{
		"id":        task.ID,
		"task_type": task.TaskType,
		"priority":  task.Priority,
	})
	return &task, nil
}

// GetTask fetches one task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*models.TaskDefinition, error) {
	defer s.observe("get_task", time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM bb_tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, transient("select task", err)
	}
	return task, nil
}

// ClaimTask attempts to claim a pending task for an agent. The claim is
// a single compare-and-swap: under concurrent attempts exactly one
// caller observes true and the rest observe false, with no error. Tasks
// with unmet dependencies are not claimable.
func (s *Store) ClaimTask(ctx context.Context, taskID, agentID string) (bool, error) {
	defer s.observe("claim_task", time.Now())

	res, err := s.db.ExecContext(ctx, `
		UPDATE bb_tasks t
		SET status = 'claimed', agent_id = $2, claimed_at = $3
		WHERE t.id = $1 AND t.status = 'pending' AND `+depsSatisfied,
		taskID, agentID, time.Now().UTC(),
	)
	if err != nil {
		return false, transient("claim task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, transient("claim task result", err)
	}
	if n == 0 {
		return false, nil
	}

	s.obs.ObserveClaim(agentID)
	s.publish(ctx, events.ChannelTaskClaimed, events.EventTypeTaskClaimed, map[string]any{
		"id":       taskID,
		"agent_id": agentID,
	})
	return true, nil
}

// UpdateTaskStatus moves a task along its state machine. Transitions to
// in_progress, completed, and failed require the acting agent to hold
// the claim. A transition back to pending requeues the task, clears
// ownership, and spends one retry from the budget. Terminal transitions
// record output or error details and stamp completed_at.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID, actorID string, newStatus models.TaskStatus, output, errDetails map[string]any) error {
	defer s.observe("update_task_status", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("begin task update", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT status, agent_id, retries, max_retries FROM bb_tasks WHERE id = $1 FOR UPDATE`, taskID)
	var (
		current models.TaskStatus
		holder  sql.NullString
		retries int
		maxRet  int
	)
	if err := row.Scan(&current, &holder, &retries, &maxRet); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return transient("select task for update", err)
	}

	if !models.ValidTaskTransition(current, newStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, newStatus)
	}

	now := time.Now().UTC()
	switch newStatus {
	case models.TaskStatusInProgress, models.TaskStatusCompleted, models.TaskStatusFailed:
		if holder.String != actorID {
			return fmt.Errorf("%w: task %s held by %q, not %q", ErrUnauthorizedActor, taskID, holder.String, actorID)
		}
	case models.TaskStatusPending:
		if retries >= maxRet {
			return fmt.Errorf("%w: task %s at %d/%d", ErrRetriesExhausted, taskID, retries, maxRet)
		}
	}

	switch newStatus {
	case models.TaskStatusInProgress:
		_, err = tx.ExecContext(ctx,
			`UPDATE bb_tasks SET status = 'in_progress' WHERE id = $1`, taskID)
	case models.TaskStatusCompleted:
		var out any
		out, err = jsonMapOrNull(output)
		if err != nil {
			return transient("encode task output", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE bb_tasks SET status = 'completed', output_data = $2, completed_at = $3 WHERE id = $1`,
			taskID, out, now)
	case models.TaskStatusFailed:
		var det any
		det, err = jsonMapOrNull(errDetails)
		if err != nil {
			return transient("encode task error details", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE bb_tasks SET status = 'failed', error_details = $2, completed_at = $3 WHERE id = $1`,
			taskID, det, now)
	case models.TaskStatusPending:
		_, err = tx.ExecContext(ctx,
			`UPDATE bb_tasks SET status = 'pending', agent_id = NULL, claimed_at = NULL, completed_at = NULL, retries = retries + 1 WHERE id = $1`,
			taskID)
	}
	if err != nil {
		return transient("update task status", err)
	}
	if err := tx.Commit(); err != nil {
		return transient("commit task update", err)
	}

	switch newStatus {
	case models.TaskStatusCompleted:
		s.publish(ctx, events.ChannelTaskCompleted, events.EventTypeTaskCompleted, map[string]any{
			"id":       taskID,
			"agent_id": actorID,
			"output":   output,
		})
	case models.TaskStatusFailed:
		s.publish(ctx, events.ChannelTaskFailed, events.EventTypeTaskFailed, map[string]any{
			"id":       taskID,
			"agent_id": actorID,
			"error":    errDetails,
		})
	case models.TaskStatusPending:
		// Requeues re-announce availability to idle workers.
		s.publish(ctx, events.ChannelTaskCreated, events.EventTypeTaskCreated, map[string]any{
			"id":      taskID,
			"requeue": true,
		})
	}
	return nil
}

// GetAvailableTasks lists pending tasks whose dependencies are all
// completed, filtered to the given task types (empty means all), ordered
// by priority (1 first) then age. The default limit is 10.
func (s *Store) GetAvailableTasks(ctx context.Context, taskTypes []string, limit int) ([]*models.TaskDefinition, error) {
	defer s.observe("get_available_tasks", time.Now())

	if limit <= 0 {
		limit = 10
	}
	types, err := jsonStrings(taskTypes)
	if err != nil {
		return nil, transient("encode task types", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM bb_tasks t
		WHERE t.status = 'pending'
		  AND ($1::jsonb = '[]'::jsonb OR t.task_type IN (SELECT jsonb_array_elements_text($1::jsonb)))
		  AND `+depsSatisfied+`
		ORDER BY t.priority, t.created_at
		LIMIT $2`,
		types, limit,
	)
	if err != nil {
		return nil, transient("query available tasks", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// GetAgentTasks lists the tasks currently assigned to an agent,
// optionally filtered by status.
func (s *Store) GetAgentTasks(ctx context.Context, agentID string, statuses ...models.TaskStatus) ([]*models.TaskDefinition, error) {
	defer s.observe("get_agent_tasks", time.Now())

	filter := make([]string, 0, len(statuses))
	for _, st := range statuses {
		filter = append(filter, string(st))
	}
	encoded, err := jsonStrings(filter)
	if err != nil {
		return nil, transient("encode status filter", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM bb_tasks t
		WHERE t.agent_id = $1
		  AND ($2::jsonb = '[]'::jsonb OR t.status IN (SELECT jsonb_array_elements_text($2::jsonb)))
		ORDER BY t.created_at`,
		agentID, encoded,
	)
	if err != nil {
		return nil, transient("query agent tasks", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// PurgeTerminalTasks deletes completed and failed tasks whose terminal
// timestamp is older than the cutoff.
func (s *Store) PurgeTerminalTasks(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM bb_tasks
		WHERE status IN ('completed', 'failed') AND completed_at <= $1`,
		olderThan)
	if err != nil {
		return 0, transient("purge terminal tasks", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func collectTasks(rows *sql.Rows) ([]*models.TaskDefinition, error) {
	var tasks []*models.TaskDefinition
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, transient("scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("iterate tasks", err)
	}
	return tasks, nil
}

func scanTask(row interface{ Scan(...any) error }) (*models.TaskDefinition, error) {
	var (
		t           models.TaskDefinition
		agentID     sql.NullString
		deps        []byte
		reqs        []byte
		input       []byte
		output      []byte
		errDetails  []byte
		deadline    sql.NullTime
		claimedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.TaskType, &t.Status, &agentID, &t.Priority,
		&deps, &reqs, &input, &output, &errDetails,
		&deadline, &t.CreatedAt, &claimedAt, &completedAt, &t.Retries, &t.MaxRetries)
	if err != nil {
		return nil, err
	}
	t.AgentID = agentID.String
	t.Dependencies = decodeStrings(deps)
	t.Requirements = decodeMap(reqs)
	t.InputData = decodeMap(input)
	t.OutputData = decodeMap(output)
	t.ErrorDetails = decodeMap(errDetails)
	t.Deadline = timePtr(deadline)
	t.ClaimedAt = timePtr(claimedAt)
	t.CompletedAt = timePtr(completedAt)
	return &t, nil
}
