package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidTaskTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  TaskStatus
		to    TaskStatus
		valid bool
	}{
		{"pending to claimed", TaskStatusPending, TaskStatusClaimed, true},
		{"pending to completed", TaskStatusPending, TaskStatusCompleted, false},
		{"claimed to in_progress", TaskStatusClaimed, TaskStatusInProgress, true},
		{"claimed to completed", TaskStatusClaimed, TaskStatusCompleted, true},
		{"claimed to failed", TaskStatusClaimed, TaskStatusFailed, true},
		{"claimed requeued to pending", TaskStatusClaimed, TaskStatusPending, true},
		{"in_progress to completed", TaskStatusInProgress, TaskStatusCompleted, true},
		{"in_progress requeued to pending", TaskStatusInProgress, TaskStatusPending, true},
		{"completed is absorbing", TaskStatusCompleted, TaskStatusFailed, false},
		{"completed cannot requeue", TaskStatusCompleted, TaskStatusPending, false},
		{"failed retry to pending", TaskStatusFailed, TaskStatusPending, true},
		{"failed to completed", TaskStatusFailed, TaskStatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidTaskTransition(tt.from, tt.to))
		})
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	assert.True(t, TaskStatusCompleted.Terminal())
	assert.True(t, TaskStatusFailed.Terminal())
	assert.False(t, TaskStatusPending.Terminal())
	assert.False(t, TaskStatusClaimed.Terminal())
	assert.False(t, TaskStatusInProgress.Terminal())
}

func TestKnowledgeExpired(t *testing.T) {
	now := time.Now()
	item := &KnowledgeItem{}
	assert.False(t, item.Expired(now), "no expiry means never expired")

	past := now.Add(-time.Minute)
	item.ExpiresAt = &past
	assert.True(t, item.Expired(now))

	future := now.Add(time.Minute)
	item.ExpiresAt = &future
	assert.False(t, item.Expired(now))

	// Expiry instant itself counts as expired.
	item.ExpiresAt = &now
	assert.True(t, item.Expired(now))
}

func TestKnowledgeHasAllTags(t *testing.T) {
	item := &KnowledgeItem{Tags: []string{"ethical_analysis", "analysis_complete"}}

	assert.True(t, item.HasAllTags(nil))
	assert.True(t, item.HasAllTags([]string{"analysis_complete"}))
	assert.True(t, item.HasAllTags([]string{"ethical_analysis", "analysis_complete"}))
	assert.False(t, item.HasAllTags([]string{"ethical_analysis", "reviewed"}),
		"subset semantics: every requested tag must be present")
}

func TestSeverityScore(t *testing.T) {
	assert.Equal(t, 1, SeverityCritical.Score())
	assert.Equal(t, 2, SeverityHigh.Score())
	assert.Equal(t, 3, SeverityMedium.Score())
	assert.Equal(t, 4, SeverityLow.Score())
}

func TestVoterAuthority(t *testing.T) {
	assert.Equal(t, 100, VoterTypeCoordinator.Authority())
	assert.Equal(t, 80, VoterTypeHumanExpert.Authority())
	assert.Equal(t, 60, VoterTypeSeniorAgent.Authority())
	assert.Equal(t, 40, VoterTypeAgent.Authority())
	assert.Equal(t, 20, VoterTypeAutomatedSystem.Authority())
	assert.Equal(t, 0, VoterTypeHuman.Authority())
}

func TestRiskOrdinal(t *testing.T) {
	for level, want := range map[string]int{"low": 1, "medium": 2, "high": 3, "critical": 4} {
		got, ok := RiskOrdinal(level)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := RiskOrdinal("unknown")
	assert.False(t, ok)
}
