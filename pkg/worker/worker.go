// Package worker provides the harness external worker agents plug
// into: registration, a polling claim loop, concurrent handler
// dispatch, heartbeats, and result publishing. The harness knows
// nothing about the domain analysis it hosts.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/consilium-ai/consilium/pkg/blackboard"
	"github.com/consilium-ai/consilium/pkg/config"
	"github.com/consilium-ai/consilium/pkg/models"
)

// Handler is the domain entry point for one task type. The returned
// payload must be JSON-serializable and should include a confidence
// field so result integration can weigh it.
type Handler func(ctx context.Context, task *models.TaskDefinition) (map[string]any, error)

// Store is the slice of the blackboard the harness needs.
type Store interface {
	RegisterAgent(ctx context.Context, reg models.AgentRegistration) error
	AgentHeartbeat(ctx context.Context, agentID string) (bool, error)
	GetAvailableTasks(ctx context.Context, taskTypes []string, limit int) ([]*models.TaskDefinition, error)
	ClaimTask(ctx context.Context, taskID, agentID string) (bool, error)
	UpdateTaskStatus(ctx context.Context, taskID, actorID string, newStatus models.TaskStatus, output, errDetails map[string]any) error
	AddKnowledge(ctx context.Context, item models.KnowledgeItem) (*models.KnowledgeItem, error)
}

// Agent is one worker harness instance.
type Agent struct {
	id        string
	agentType string
	store     Store
	cfg       *config.WorkerConfig
	logger    *slog.Logger

	handlers map[string]Handler

	sem      chan struct{} // nil when handlers are unbounded
	inflight sync.WaitGroup

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAgent creates a harness. Handlers map task types to domain code;
// the key set doubles as the agent's capability list.
func NewAgent(id, agentType string, store Store, cfg *config.WorkerConfig, handlers map[string]Handler) *Agent {
	a := &Agent{
		id:        id,
		agentType: agentType,
		store:     store,
		cfg:       cfg,
		logger:    slog.Default().With("component", "worker", "agent_id", id),
		handlers:  handlers,
	}
	if cfg.MaxConcurrentHandlers > 0 {
		a.sem = make(chan struct{}, cfg.MaxConcurrentHandlers)
	}
	return a
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// TaskTypes returns the task types this agent handles.
func (a *Agent) TaskTypes() []string {
	types := make([]string, 0, len(a.handlers))
	for t := range a.handlers {
		types = append(types, t)
	}
	return types
}

// Start registers the agent and launches the claim and heartbeat loops.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.store.RegisterAgent(ctx, models.AgentRegistration{
		AgentID:      a.id,
		AgentType:    a.agentType,
		Capabilities: a.TaskTypes(),
		Status:       models.AgentStatusActive,
	}); err != nil {
		return fmt.Errorf("failed to register agent %s: %w", a.id, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go func() {
		defer close(a.done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.claimLoop(loopCtx)
		}()
		go func() {
			defer wg.Done()
			a.heartbeatLoop(loopCtx)
		}()
		wg.Wait()
	}()

	a.logger.Info("Worker agent started",
		"agent_type", a.agentType, "task_types", a.TaskTypes())
	return nil
}

// Stop halts the loops and waits for in-flight handlers, bounded by the
// configured graceful-shutdown timeout.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.done != nil {
		<-a.done
	}

	finished := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		a.logger.Info("Worker agent stopped")
	case <-time.After(a.cfg.GracefulShutdownTimeout):
		a.logger.Warn("Worker agent shutdown timed out with handlers in flight")
	}
}

// claimLoop polls for available work on a jittered interval.
func (a *Agent) claimLoop(ctx context.Context) {
	for {
		interval := a.cfg.ClaimInterval
		if a.cfg.ClaimIntervalJitter > 0 {
			interval += time.Duration(rand.Int63n(int64(2*a.cfg.ClaimIntervalJitter))) - a.cfg.ClaimIntervalJitter
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if _, err := a.claimAvailable(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Debug("Claim poll yielded nothing", "error", err)
		}
	}
}

// claimAvailable fetches a batch of available tasks matching the
// agent's types and tries to claim each in order. Every claim win
// schedules the handler. When a non-empty batch produces zero wins the
// whole batch was lost to other claimants; this is reported as
// ErrContentionExhausted and treated like an empty poll.
func (a *Agent) claimAvailable(ctx context.Context) (int, error) {
	tasks, err := a.store.GetAvailableTasks(ctx, a.TaskTypes(), a.cfg.ClaimBatchSize)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	claimed := 0
	for _, task := range tasks {
		ok, err := a.store.ClaimTask(ctx, task.ID, a.id)
		if err != nil {
			a.logger.Warn("Claim attempt failed", "task_id", task.ID, "error", err)
			continue
		}
		if !ok {
			continue // lost the race
		}
		claimed++
		a.scheduleHandler(ctx, task)
	}
	if claimed == 0 {
		return 0, blackboard.ErrContentionExhausted
	}
	return claimed, nil
}

// scheduleHandler runs the task's handler on its own goroutine,
// honoring the concurrency bound.
func (a *Agent) scheduleHandler(ctx context.Context, task *models.TaskDefinition) {
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		if a.sem != nil {
			select {
			case a.sem <- struct{}{}:
				defer func() { <-a.sem }()
			case <-ctx.Done():
				return
			}
		}
		a.processTask(ctx, task)
	}()
}

// processTask drives one claimed task to a terminal state.
func (a *Agent) processTask(ctx context.Context, task *models.TaskDefinition) {
	handler, ok := a.handlers[task.TaskType]
	if !ok {
		// Shouldn't happen: the claim loop only fetches registered types.
		a.failTask(ctx, task, fmt.Errorf("no handler for task type %q", task.TaskType), 0)
		return
	}

	if err := a.store.UpdateTaskStatus(ctx, task.ID, a.id, models.TaskStatusInProgress, nil, nil); err != nil {
		a.logger.Error("Failed to mark task in progress", "task_id", task.ID, "error", err)
		return
	}

	start := time.Now()
	output, err := handler(ctx, task)
	elapsed := time.Since(start)

	if err != nil {
		a.failTask(ctx, task, err, elapsed)
		return
	}

	if err := a.store.UpdateTaskStatus(ctx, task.ID, a.id, models.TaskStatusCompleted, output, nil); err != nil {
		a.logger.Error("Failed to complete task", "task_id", task.ID, "error", err)
		return
	}
	a.logger.Info("Task completed",
		"task_id", task.ID, "task_type", task.TaskType, "duration", elapsed)

	a.emitAnalysisResult(ctx, task, output)
}

func (a *Agent) failTask(ctx context.Context, task *models.TaskDefinition, handlerErr error, elapsed time.Duration) {
	details := map[string]any{
		"error":              handlerErr.Error(),
		"type":               fmt.Sprintf("%T", handlerErr),
		"processing_time_ms": elapsed.Milliseconds(),
	}
	if err := a.store.UpdateTaskStatus(ctx, task.ID, a.id, models.TaskStatusFailed, nil, details); err != nil {
		a.logger.Error("Failed to mark task failed", "task_id", task.ID, "error", err)
		return
	}
	a.logger.Warn("Task failed",
		"task_id", task.ID, "task_type", task.TaskType, "error", handlerErr)
}

// emitAnalysisResult publishes the handler output as a
// <task_type>_analysis_result knowledge item. Result integration
// discovers outputs through these items.
func (a *Agent) emitAnalysisResult(ctx context.Context, task *models.TaskDefinition, output map[string]any) {
	content := make(map[string]any, len(output)+1)
	for k, v := range output {
		content[k] = v
	}
	if reqID, ok := task.InputData["governance_request_id"]; ok {
		content["governance_request_id"] = reqID
	}

	_, err := a.store.AddKnowledge(ctx, models.KnowledgeItem{
		Space:         models.SpaceGovernance,
		AgentID:       a.id,
		TaskID:        task.ID,
		KnowledgeType: task.TaskType + "_analysis_result",
		Content:       content,
		Priority:      task.Priority,
		Tags:          []string{task.TaskType, "analysis_complete"},
	})
	if err != nil {
		a.logger.Error("Failed to emit analysis result", "task_id", task.ID, "error", err)
	}
}

// heartbeatLoop reports liveness; a false return means the registration
// vanished and the agent re-registers.
func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			known, err := a.store.AgentHeartbeat(ctx, a.id)
			if err != nil {
				a.logger.Warn("Heartbeat failed", "error", err)
				continue
			}
			if !known {
				a.logger.Warn("Registration lost, re-registering")
				if err := a.store.RegisterAgent(ctx, models.AgentRegistration{
					AgentID:      a.id,
					AgentType:    a.agentType,
					Capabilities: a.TaskTypes(),
					Status:       models.AgentStatusActive,
				}); err != nil {
					a.logger.Error("Re-registration failed", "error", err)
				}
			}
		}
	}
}
