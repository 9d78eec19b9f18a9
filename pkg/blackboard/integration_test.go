package blackboard_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consilium-ai/consilium/pkg/blackboard"
	"github.com/consilium-ai/consilium/pkg/models"
	"github.com/consilium-ai/consilium/test/util"
)

func newTestStore(t *testing.T) *blackboard.Store {
	t.Helper()
	db, _ := util.SetupTestDatabase(t)
	return blackboard.NewStore(db, nil, 30*time.Second)
}

func createPendingTask(t *testing.T, store *blackboard.Store, taskType string, priority int, deps ...string) *models.TaskDefinition {
	t.Helper()
	task, err := store.CreateTask(context.Background(), models.TaskDefinition{
		TaskType:     taskType,
		Priority:     priority,
		Dependencies: deps,
	})
	require.NoError(t, err)
	return task
}

func TestKnowledgeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	added, err := store.AddKnowledge(ctx, models.KnowledgeItem{
		Space:         models.SpaceGovernance,
		AgentID:       "ethics-1",
		KnowledgeType: "ethical_analysis_result",
		Content:       map[string]any{"approved": true, "confidence": 0.9},
		Priority:      2,
		Tags:          []string{"ethical_analysis", "analysis_complete"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, added.ID)

	got, err := store.GetKnowledge(ctx, models.SpaceGovernance, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "ethical_analysis_result", got.KnowledgeType)
	assert.Equal(t, true, got.Content["approved"])
	assert.ElementsMatch(t, []string{"ethical_analysis", "analysis_complete"}, got.Tags)

	// Second read is served from cache and must agree.
	cached, err := store.GetKnowledge(ctx, models.SpaceGovernance, added.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Content, cached.Content)

	// Wrong space misses.
	_, err = store.GetKnowledge(ctx, models.SpaceCompliance, added.ID)
	assert.ErrorIs(t, err, blackboard.ErrNotFound)
}

func TestKnowledgeQueryFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, tags := range [][]string{
		{"audit", "phase1"},
		{"audit", "phase2"},
		{"review"},
	} {
		_, err := store.AddKnowledge(ctx, models.KnowledgeItem{
			Space:         models.SpaceCompliance,
			AgentID:       "auditor",
			KnowledgeType: "audit_finding",
			Content:       map[string]any{"n": i},
			Priority:      3 - i,
			Tags:          tags,
		})
		require.NoError(t, err)
	}

	// Tag subset semantics.
	items, err := store.QueryKnowledge(ctx, models.KnowledgeQuery{
		Space: models.SpaceCompliance,
		Tags:  []string{"audit"},
	})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = store.QueryKnowledge(ctx, models.KnowledgeQuery{
		Space: models.SpaceCompliance,
		Tags:  []string{"audit", "phase2"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)

	// Priority ordering: highest priority (lowest number) first.
	items, err = store.QueryKnowledge(ctx, models.KnowledgeQuery{
		Space:         models.SpaceCompliance,
		KnowledgeType: "audit_finding",
	})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.LessOrEqual(t, items[0].Priority, items[1].Priority)
	assert.LessOrEqual(t, items[1].Priority, items[2].Priority)
}

func TestKnowledgeTTL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	expiry := time.Now().UTC().Add(300 * time.Millisecond)
	added, err := store.AddKnowledge(ctx, models.KnowledgeItem{
		Space:         models.SpaceCoordination,
		AgentID:       "coordinator",
		KnowledgeType: "transient_note",
		Content:       map[string]any{"note": "short-lived"},
		ExpiresAt:     &expiry,
	})
	require.NoError(t, err)

	_, err = store.GetKnowledge(ctx, models.SpaceCoordination, added.ID)
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)

	// Expired items are absent from every read, purged or not.
	_, err = store.GetKnowledge(ctx, models.SpaceCoordination, added.ID)
	assert.ErrorIs(t, err, blackboard.ErrNotFound)

	items, err := store.QueryKnowledge(ctx, models.KnowledgeQuery{Space: models.SpaceCoordination})
	require.NoError(t, err)
	assert.Empty(t, items)

	purged, err := store.PurgeExpiredKnowledge(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestAddKnowledgeRejectsUnknownSpace(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddKnowledge(context.Background(), models.KnowledgeItem{
		Space:         "penumbra",
		AgentID:       "x",
		KnowledgeType: "y",
	})
	assert.ErrorIs(t, err, blackboard.ErrInvalidSpace)
}

func TestClaimTaskExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := createPendingTask(t, store, "legal_compliance", 1)

	const contenders = 100
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			agentID := fmt.Sprintf("agent-%d", n)
			ok, err := store.ClaimTask(ctx, task.ID, agentID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins = append(wins, agentID)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, wins, 1, "exactly one contender must win the claim")

	claimed, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusClaimed, claimed.Status)
	assert.Equal(t, wins[0], claimed.AgentID)
	assert.NotNil(t, claimed.ClaimedAt)
}

func TestTaskLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := createPendingTask(t, store, "ethical_analysis", 1)

	ok, err := store.ClaimTask(ctx, task.ID, "ethics-1")
	require.NoError(t, err)
	require.True(t, ok)

	// Only the claim holder may advance the task.
	err = store.UpdateTaskStatus(ctx, task.ID, "impostor", models.TaskStatusInProgress, nil, nil)
	assert.ErrorIs(t, err, blackboard.ErrUnauthorizedActor)

	require.NoError(t, store.UpdateTaskStatus(ctx, task.ID, "ethics-1", models.TaskStatusInProgress, nil, nil))
	require.NoError(t, store.UpdateTaskStatus(ctx, task.ID, "ethics-1", models.TaskStatusCompleted,
		map[string]any{"approved": true}, nil))

	done, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, done.Status)
	assert.Equal(t, true, done.OutputData["approved"])
	assert.NotNil(t, done.CompletedAt)

	// Completed is absorbing.
	err = store.UpdateTaskStatus(ctx, task.ID, "ethics-1", models.TaskStatusPending, nil, nil)
	assert.ErrorIs(t, err, blackboard.ErrInvalidTransition)
}

func TestDependencyGating(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parent := createPendingTask(t, store, "ethical_analysis", 1)
	child := createPendingTask(t, store, "operational_validation", 2, parent.ID)

	available, err := store.GetAvailableTasks(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, parent.ID, available[0].ID)

	// The claim gate enforces the same rule.
	ok, err := store.ClaimTask(ctx, child.ID, "ops-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ClaimTask(ctx, parent.ID, "ethics-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.UpdateTaskStatus(ctx, parent.ID, "ethics-1", models.TaskStatusCompleted, nil, nil))

	available, err = store.GetAvailableTasks(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, child.ID, available[0].ID)

	ok, err = store.ClaimTask(ctx, child.ID, "ops-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAvailableTasksPriorityOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low := createPendingTask(t, store, "audit_report", 3)
	high := createPendingTask(t, store, "legal_compliance", 1)
	mid := createPendingTask(t, store, "policy_analysis", 2)

	available, err := store.GetAvailableTasks(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, available, 3)
	assert.Equal(t, high.ID, available[0].ID)
	assert.Equal(t, mid.ID, available[1].ID)
	assert.Equal(t, low.ID, available[2].ID)

	// Type filter narrows the queue.
	available, err = store.GetAvailableTasks(ctx, []string{"policy_analysis"}, 10)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, mid.ID, available[0].ID)
}

func TestRetryBudget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, models.TaskDefinition{
		TaskType:   "flaky_analysis",
		Priority:   1,
		MaxRetries: 1,
	})
	require.NoError(t, err)

	ok, err := store.ClaimTask(ctx, task.ID, "agent-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.UpdateTaskStatus(ctx, task.ID, "agent-1", models.TaskStatusFailed,
		nil, map[string]any{"error": "boom"}))

	// First requeue spends the only retry.
	require.NoError(t, store.UpdateTaskStatus(ctx, task.ID, "", models.TaskStatusPending, nil, nil))
	requeued, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, requeued.Status)
	assert.Equal(t, 1, requeued.Retries)
	assert.Empty(t, requeued.AgentID)

	ok, err = store.ClaimTask(ctx, task.ID, "agent-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.UpdateTaskStatus(ctx, task.ID, "agent-2", models.TaskStatusFailed,
		nil, map[string]any{"error": "boom again"}))

	err = store.UpdateTaskStatus(ctx, task.ID, "", models.TaskStatusPending, nil, nil)
	assert.ErrorIs(t, err, blackboard.ErrRetriesExhausted)
}

func TestConflictQueueOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	report := func(severity models.ConflictSeverity) *models.ConflictItem {
		c, err := store.ReportConflict(ctx, models.ConflictItem{
			ConflictType: models.ConflictTypeDecision,
			Description:  string(severity) + " disagreement",
			Severity:     severity,
		})
		require.NoError(t, err)
		return c
	}
	medium := report(models.SeverityMedium)
	critical := report(models.SeverityCritical)
	low := report(models.SeverityLow)

	open, err := store.GetOpenConflicts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, critical.ID, open[0].ID)
	assert.Equal(t, medium.ID, open[1].ID)
	assert.Equal(t, low.ID, open[2].ID)

	require.NoError(t, store.UpdateConflictStatus(ctx, critical.ID, models.ConflictStatusResolved,
		"consensus", map[string]any{"winning_option": "conservative_position"}))

	open, err = store.GetOpenConflicts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	resolved, err := store.GetConflict(ctx, critical.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictStatusResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	// Terminal conflicts cannot reopen.
	err = store.UpdateConflictStatus(ctx, critical.ID, models.ConflictStatusInResolution, "", nil)
	assert.ErrorIs(t, err, blackboard.ErrInvalidTransition)
}

func TestAgentTimeoutRequeuesTasks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterAgent(ctx, models.AgentRegistration{
		AgentID:      "sleepy-1",
		AgentType:    "ethics",
		Capabilities: []string{"ethical_analysis"},
	}))

	task := createPendingTask(t, store, "ethical_analysis", 1)
	ok, err := store.ClaimTask(ctx, task.ID, "sleepy-1")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	timedOut, err := store.CheckAgentTimeouts(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"sleepy-1"}, timedOut)

	requeued, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, requeued.Status)
	assert.Empty(t, requeued.AgentID)

	active, err := store.GetActiveAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// A heartbeat from a deactivated agent reports the lost registration.
	found, err := store.AgentHeartbeat(ctx, "sleepy-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRecoverOrphanedTasks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := createPendingTask(t, store, "legal_compliance", 1)
	ok, err := store.ClaimTask(ctx, task.ID, "ghost-agent")
	require.NoError(t, err)
	require.True(t, ok)

	recovered, err := store.RecoverOrphanedTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	requeued, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, requeued.Status)
}

func TestMetricsCensus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddKnowledge(ctx, models.KnowledgeItem{
		Space: models.SpaceGovernance, AgentID: "a", KnowledgeType: "governance_result",
	})
	require.NoError(t, err)
	_, err = store.AddKnowledge(ctx, models.KnowledgeItem{
		Space: models.SpacePerformance, AgentID: "m", KnowledgeType: "performance_alert",
	})
	require.NoError(t, err)

	createPendingTask(t, store, "ethical_analysis", 1)
	claimed := createPendingTask(t, store, "legal_compliance", 1)
	ok, err := store.ClaimTask(ctx, claimed.ID, "agent-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = store.ReportConflict(ctx, models.ConflictItem{
		ConflictType: models.ConflictTypeResource, Severity: models.SeverityLow,
	})
	require.NoError(t, err)

	require.NoError(t, store.RegisterAgent(ctx, models.AgentRegistration{
		AgentID: "agent-1", AgentType: "legal",
	}))

	metrics, err := store.GetMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.KnowledgeBySpace[models.SpaceGovernance])
	assert.Equal(t, 1, metrics.KnowledgeBySpace[models.SpacePerformance])
	assert.Equal(t, 1, metrics.TasksByStatus[models.TaskStatusPending])
	assert.Equal(t, 1, metrics.TasksByStatus[models.TaskStatusClaimed])
	assert.Equal(t, 1, metrics.ConflictsByStatus[models.ConflictStatusOpen])
	assert.Equal(t, 1, metrics.ActiveAgents)
}
