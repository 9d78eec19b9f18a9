// Package models defines the shared data model for the governance
// blackboard: knowledge items, tasks, conflicts, consensus sessions,
// agent registrations, and their lifecycle state machines.
package models

// Space is a logical partition of the blackboard. Items in different
// spaces never collide.
type Space string

// The fixed space enumeration.
const (
	SpaceGovernance   Space = "governance"
	SpaceCompliance   Space = "compliance"
	SpacePerformance  Space = "performance"
	SpaceCoordination Space = "coordination"
	SpaceTasks        Space = "tasks"
	SpaceConflicts    Space = "conflicts"
	SpaceAgents       Space = "agents"
)

// AllSpaces lists every valid space, in declaration order.
var AllSpaces = []Space{
	SpaceGovernance,
	SpaceCompliance,
	SpacePerformance,
	SpaceCoordination,
	SpaceTasks,
	SpaceConflicts,
	SpaceAgents,
}

// Valid reports whether s is one of the fixed spaces.
func (s Space) Valid() bool {
	for _, sp := range AllSpaces {
		if s == sp {
			return true
		}
	}
	return false
}
