// Package events provides best-effort notification fan-out over
// PostgreSQL NOTIFY/LISTEN. Delivery is at-most-once from the
// publisher's standpoint; subscribers treat events as hints and
// re-query the blackboard for authoritative state.
package events

import "time"

// Named notification channels.
const (
	ChannelTaskCreated               = "events:task_created"
	ChannelTaskClaimed               = "events:task_claimed"
	ChannelTaskCompleted             = "events:task_completed"
	ChannelTaskFailed                = "events:task_failed"
	ChannelConflictDetected          = "events:conflict_detected"
	ChannelKnowledgeAdded            = "events:knowledge_added"
	ChannelAgentStatus               = "events:agent_status"
	ChannelGovernanceWorkflowStarted = "events:governance_workflow_started"
	ChannelGovernanceRequestDone     = "events:governance_request_completed"
)

// Event types carried in envelopes.
const (
	EventTypeTaskCreated               = "task_created"
	EventTypeTaskClaimed               = "task_claimed"
	EventTypeTaskCompleted             = "task_completed"
	EventTypeTaskFailed                = "task_failed"
	EventTypeConflictDetected          = "conflict_detected"
	EventTypeKnowledgeAdded            = "knowledge_added"
	EventTypeAgentStatus               = "agent_status"
	EventTypeGovernanceWorkflowStarted = "governance_workflow_started"
	EventTypeGovernanceRequestDone     = "governance_request_completed"
)

// Envelope is the wire format for every published event. Timestamps
// are ISO-8601 strings in UTC.
type Envelope struct {
	EventType string         `json:"event_type"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewEnvelope builds an envelope stamped with the current UTC time.
func NewEnvelope(eventType string, data map[string]any) Envelope {
	return Envelope{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	}
}

// HandlerFunc consumes a decoded envelope. Handlers run on the
// listener's receive goroutine and must not block.
type HandlerFunc func(Envelope)
