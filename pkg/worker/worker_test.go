package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consilium-ai/consilium/pkg/blackboard"
	"github.com/consilium-ai/consilium/pkg/config"
	"github.com/consilium-ai/consilium/pkg/models"
)

// fakeStore is an in-memory Store for harness tests.
type fakeStore struct {
	mu            sync.Mutex
	registrations []models.AgentRegistration
	heartbeats    int
	heartbeatOK   bool
	available     []*models.TaskDefinition
	claimResult   bool
	statusLog     map[string][]models.TaskStatus
	outputs       map[string]map[string]any
	errDetails    map[string]map[string]any
	knowledge     []models.KnowledgeItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		heartbeatOK: true,
		claimResult: true,
		statusLog:   make(map[string][]models.TaskStatus),
		outputs:     make(map[string]map[string]any),
		errDetails:  make(map[string]map[string]any),
	}
}

func (f *fakeStore) RegisterAgent(_ context.Context, reg models.AgentRegistration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations = append(f.registrations, reg)
	return nil
}

func (f *fakeStore) AgentHeartbeat(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return f.heartbeatOK, nil
}

func (f *fakeStore) GetAvailableTasks(_ context.Context, _ []string, _ int) ([]*models.TaskDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.available
	f.available = nil
	return out, nil
}

func (f *fakeStore) ClaimTask(_ context.Context, _, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimResult, nil
}

func (f *fakeStore) UpdateTaskStatus(_ context.Context, taskID, _ string, newStatus models.TaskStatus, output, errDetails map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusLog[taskID] = append(f.statusLog[taskID], newStatus)
	if output != nil {
		f.outputs[taskID] = output
	}
	if errDetails != nil {
		f.errDetails[taskID] = errDetails
	}
	return nil
}

func (f *fakeStore) AddKnowledge(_ context.Context, item models.KnowledgeItem) (*models.KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.knowledge = append(f.knowledge, item)
	return &item, nil
}

func testConfig() *config.WorkerConfig {
	cfg := config.DefaultWorkerConfig()
	cfg.ClaimInterval = 10 * time.Millisecond
	cfg.ClaimIntervalJitter = 0
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.GracefulShutdownTimeout = time.Second
	return cfg
}

func ethicsTask(id string) *models.TaskDefinition {
	return &models.TaskDefinition{
		ID:        id,
		TaskType:  "ethical_analysis",
		Status:    models.TaskStatusPending,
		Priority:  1,
		InputData: map[string]any{"governance_request_id": "req-1"},
	}
}

func TestClaimAndComplete(t *testing.T) {
	store := newFakeStore()
	store.available = []*models.TaskDefinition{ethicsTask("t-1")}

	agent := NewAgent("ethics-1", "ethical_analyzer", store, testConfig(), map[string]Handler{
		"ethical_analysis": func(_ context.Context, task *models.TaskDefinition) (map[string]any, error) {
			return map[string]any{"approved": true, "confidence": 0.9}, nil
		},
	})

	claimed, err := agent.claimAvailable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	agent.inflight.Wait()

	assert.Equal(t, []models.TaskStatus{models.TaskStatusInProgress, models.TaskStatusCompleted}, store.statusLog["t-1"])
	assert.Equal(t, true, store.outputs["t-1"]["approved"])
}

func TestAnalysisResultKnowledge(t *testing.T) {
	store := newFakeStore()
	store.available = []*models.TaskDefinition{ethicsTask("t-1")}

	agent := NewAgent("ethics-1", "ethical_analyzer", store, testConfig(), map[string]Handler{
		"ethical_analysis": func(_ context.Context, task *models.TaskDefinition) (map[string]any, error) {
			return map[string]any{"approved": true, "confidence": 0.9}, nil
		},
	})

	_, err := agent.claimAvailable(context.Background())
	require.NoError(t, err)
	agent.inflight.Wait()

	require.Len(t, store.knowledge, 1)
	item := store.knowledge[0]
	assert.Equal(t, models.SpaceGovernance, item.Space)
	assert.Equal(t, "ethical_analysis_analysis_result", item.KnowledgeType)
	assert.Equal(t, "t-1", item.TaskID)
	assert.Equal(t, "req-1", item.Content["governance_request_id"])
	assert.Equal(t, 0.9, item.Content["confidence"])
	assert.ElementsMatch(t, []string{"ethical_analysis", "analysis_complete"}, item.Tags)
}

func TestHandlerErrorFailsTask(t *testing.T) {
	store := newFakeStore()
	store.available = []*models.TaskDefinition{ethicsTask("t-1")}

	agent := NewAgent("ethics-1", "ethical_analyzer", store, testConfig(), map[string]Handler{
		"ethical_analysis": func(_ context.Context, task *models.TaskDefinition) (map[string]any, error) {
			return nil, errors.New("model endpoint unavailable")
		},
	})

	_, err := agent.claimAvailable(context.Background())
	require.NoError(t, err)
	agent.inflight.Wait()

	assert.Equal(t, []models.TaskStatus{models.TaskStatusInProgress, models.TaskStatusFailed}, store.statusLog["t-1"])
	details := store.errDetails["t-1"]
	require.NotNil(t, details)
	assert.Equal(t, "model endpoint unavailable", details["error"])
	assert.Contains(t, details, "processing_time_ms")
	assert.Empty(t, store.knowledge, "failed tasks emit no analysis result")
}

func TestAllClaimsLostReportsContention(t *testing.T) {
	store := newFakeStore()
	store.available = []*models.TaskDefinition{ethicsTask("t-1"), ethicsTask("t-2")}
	store.claimResult = false

	agent := NewAgent("ethics-1", "ethical_analyzer", store, testConfig(), map[string]Handler{
		"ethical_analysis": func(_ context.Context, task *models.TaskDefinition) (map[string]any, error) {
			return nil, nil
		},
	})

	claimed, err := agent.claimAvailable(context.Background())
	assert.Equal(t, 0, claimed)
	assert.ErrorIs(t, err, blackboard.ErrContentionExhausted)
	assert.Empty(t, store.statusLog)
}

func TestEmptyPollIsQuiet(t *testing.T) {
	store := newFakeStore()
	agent := NewAgent("ethics-1", "ethical_analyzer", store, testConfig(), nil)

	claimed, err := agent.claimAvailable(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, claimed)
}

func TestStartRegistersAndHeartbeats(t *testing.T) {
	store := newFakeStore()
	agent := NewAgent("ethics-1", "ethical_analyzer", store, testConfig(), map[string]Handler{
		"ethical_analysis": func(_ context.Context, task *models.TaskDefinition) (map[string]any, error) {
			return nil, nil
		},
	})

	require.NoError(t, agent.Start(context.Background()))
	defer agent.Stop()

	store.mu.Lock()
	require.NotEmpty(t, store.registrations)
	reg := store.registrations[0]
	store.mu.Unlock()
	assert.Equal(t, "ethics-1", reg.AgentID)
	assert.Equal(t, []string{"ethical_analysis"}, reg.Capabilities)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.heartbeats >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestLostRegistrationTriggersReRegister(t *testing.T) {
	store := newFakeStore()
	store.heartbeatOK = false

	agent := NewAgent("ethics-1", "ethical_analyzer", store, testConfig(), nil)
	require.NoError(t, agent.Start(context.Background()))
	defer agent.Stop()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.registrations) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestTimeoutScanner(t *testing.T) {
	scans := make(chan time.Duration, 8)
	store := timeoutStoreFunc(func(_ context.Context, timeout time.Duration) ([]string, error) {
		scans <- timeout
		return []string{"stale-agent"}, nil
	})

	cfg := testConfig()
	cfg.TimeoutScanInterval = 10 * time.Millisecond
	scanner := NewTimeoutScanner(store, cfg)
	scanner.Start(context.Background())
	defer scanner.Stop()

	select {
	case timeout := <-scans:
		assert.Equal(t, cfg.AgentTimeout, timeout)
	case <-time.After(time.Second):
		t.Fatal("timeout scan never ran")
	}
}

type timeoutStoreFunc func(ctx context.Context, timeout time.Duration) ([]string, error)

func (f timeoutStoreFunc) CheckAgentTimeouts(ctx context.Context, timeout time.Duration) ([]string, error) {
	return f(ctx, timeout)
}
