package models

import "time"

// AgentStatus is the registration state of a worker agent.
type AgentStatus string

// Agent statuses.
const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
)

// AgentRegistration records a worker agent known to the blackboard.
// LastHeartbeat drives the central timeout scan.
type AgentRegistration struct {
	AgentID       string      `json:"agent_id"`
	AgentType     string      `json:"agent_type"`
	Capabilities  []string    `json:"capabilities,omitempty"`
	Status        AgentStatus `json:"status"`
	RegisteredAt  time.Time   `json:"registered_at"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
}
