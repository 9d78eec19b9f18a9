package models

import "time"

// ConflictType classifies a recorded disagreement.
type ConflictType string

// Well-known conflict types. The field is open-ended; these are the
// types the coordinator files itself.
const (
	ConflictTypeDecision       ConflictType = "decision_conflict"
	ConflictTypeResource       ConflictType = "resource_conflict"
	ConflictTypePolicy         ConflictType = "policy_conflict"
	ConflictTypeRiskAssessment ConflictType = "risk_assessment_conflict"
)

// ConflictSeverity orders conflicts for resolution. Critical first.
type ConflictSeverity string

// Severity levels.
const (
	SeverityLow      ConflictSeverity = "low"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityHigh     ConflictSeverity = "high"
	SeverityCritical ConflictSeverity = "critical"
)

// Score returns the priority-queue score for a severity: critical=1 … low=4.
// Lower scores sort first.
func (s ConflictSeverity) Score() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 3
	default:
		return 4
	}
}

// ConflictStatus is the lifecycle state of a conflict.
type ConflictStatus string

// Conflict lifecycle states. open → in_resolution → resolved | escalated.
const (
	ConflictStatusOpen         ConflictStatus = "open"
	ConflictStatusInResolution ConflictStatus = "in_resolution"
	ConflictStatusResolved     ConflictStatus = "resolved"
	ConflictStatusEscalated    ConflictStatus = "escalated"
)

// Terminal reports whether the status is absorbing.
func (s ConflictStatus) Terminal() bool {
	return s == ConflictStatusResolved || s == ConflictStatusEscalated
}

// validConflictTransitions encodes the conflict state machine. Direct
// open → resolved is allowed for automatic resolutions that never pass
// through an explicit in_resolution phase.
var validConflictTransitions = map[ConflictStatus][]ConflictStatus{
	ConflictStatusOpen:         {ConflictStatusInResolution, ConflictStatusResolved, ConflictStatusEscalated},
	ConflictStatusInResolution: {ConflictStatusResolved, ConflictStatusEscalated},
}

// ValidConflictTransition reports whether from → to is a legal move
// along the conflict state machine.
func ValidConflictTransition(from, to ConflictStatus) bool {
	for _, next := range validConflictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ConflictItem records a disagreement between agents or task outputs.
type ConflictItem struct {
	ID                 string           `json:"id"`
	ConflictType       ConflictType     `json:"conflict_type"`
	InvolvedAgents     []string         `json:"involved_agents,omitempty"`
	InvolvedTasks      []string         `json:"involved_tasks,omitempty"`
	Description        string           `json:"description"`
	Severity           ConflictSeverity `json:"severity"`
	Status             ConflictStatus   `json:"status"`
	ResolutionStrategy string           `json:"resolution_strategy,omitempty"`
	ResolutionData     map[string]any   `json:"resolution_data,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	ResolvedAt         *time.Time       `json:"resolved_at,omitempty"`
}
