package models

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task lifecycle states. pending → claimed → (in_progress) → completed | failed.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusClaimed    TaskStatus = "claimed"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// DefaultMaxRetries is the retry budget applied when a task is created
// without an explicit one.
const DefaultMaxRetries = 3

// TaskDefinition is a unit of work with an explicit state machine and
// ownership semantics. AgentID is empty until the task is claimed.
type TaskDefinition struct {
	ID           string         `json:"id"`
	TaskType     string         `json:"task_type"`
	Status       TaskStatus     `json:"status"`
	AgentID      string         `json:"agent_id,omitempty"`
	Priority     int            `json:"priority"`
	Requirements map[string]any `json:"requirements,omitempty"`
	InputData    map[string]any `json:"input_data,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	ClaimedAt    *time.Time     `json:"claimed_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Retries      int            `json:"retries"`
	MaxRetries   int            `json:"max_retries"`
}

// validTaskTransitions encodes the state machine. A claimed task may be
// marked in_progress by its claimant; terminal transitions are allowed
// from claimed or in_progress only. A failed task with retry budget left
// may be requeued to pending.
var validTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusClaimed},
	TaskStatusClaimed:    {TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed, TaskStatusPending},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusFailed, TaskStatusPending},
	TaskStatusFailed:     {TaskStatusPending},
}

// ValidTaskTransition reports whether from → to is a legal move along
// the task state machine.
func ValidTaskTransition(from, to TaskStatus) bool {
	for _, next := range validTaskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
