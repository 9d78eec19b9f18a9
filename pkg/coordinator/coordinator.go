// Package coordinator turns high-level governance requests into task
// graphs on the blackboard, fuses the per-task outputs into a decision,
// and drives conflict resolution.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consilium-ai/consilium/pkg/consensus"
	"github.com/consilium-ai/consilium/pkg/events"
	"github.com/consilium-ai/consilium/pkg/models"
	"github.com/consilium-ai/consilium/pkg/validator"
)

// Coordinator-level errors.
var (
	ErrUnknownRequestType = errors.New("unknown request type")
	ErrCyclicDependencies = errors.New("task plan contains a dependency cycle")
	ErrResultNotReady     = errors.New("governance result not yet available")
)

// conflictResolveInterval paces the background conflict-resolution loop.
const conflictResolveInterval = 30 * time.Second

// Store is the slice of the blackboard the coordinator needs.
type Store interface {
	CreateTask(ctx context.Context, task models.TaskDefinition) (*models.TaskDefinition, error)
	GetTask(ctx context.Context, id string) (*models.TaskDefinition, error)
	AddKnowledge(ctx context.Context, item models.KnowledgeItem) (*models.KnowledgeItem, error)
	QueryKnowledge(ctx context.Context, q models.KnowledgeQuery) ([]*models.KnowledgeItem, error)
	ReportConflict(ctx context.Context, c models.ConflictItem) (*models.ConflictItem, error)
	GetOpenConflicts(ctx context.Context, limit int) ([]*models.ConflictItem, error)
	UpdateConflictStatus(ctx context.Context, id string, status models.ConflictStatus, strategy string, data map[string]any) error
}

// Publisher broadcasts coordinator events.
type Publisher interface {
	Publish(ctx context.Context, channel string, env events.Envelope) error
}

// Subscriber delivers task-completion events.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, fn events.HandlerFunc) error
}

// Validator is the constitutional pre-check and final-compliance hook.
type Validator interface {
	Validate(ctx context.Context, requestType string, inputData, requirements map[string]any) (*validator.Result, error)
}

// CoordinationMonitor tracks in-flight governance requests.
type CoordinationMonitor interface {
	CoordinationStarted()
	CoordinationCompleted()
}

type nopMonitor struct{}

func (nopMonitor) CoordinationStarted()   {}
func (nopMonitor) CoordinationCompleted() {}

// requestState tracks one in-flight request.
type requestState struct {
	request   models.GovernanceRequest
	taskIDs   []string
	taskTypes map[string]string // task id → task type
}

// Coordinator is the request orchestrator.
type Coordinator struct {
	store     Store
	pub       Publisher
	validator Validator
	engine    *consensus.Engine
	monitor   CoordinationMonitor
	logger    *slog.Logger

	mu     sync.Mutex
	active map[string]*requestState

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a coordinator. monitor may be nil.
func New(store Store, pub Publisher, v Validator, engine *consensus.Engine, monitor CoordinationMonitor) *Coordinator {
	if monitor == nil {
		monitor = nopMonitor{}
	}
	return &Coordinator{
		store:     store,
		pub:       pub,
		validator: v,
		engine:    engine,
		monitor:   monitor,
		logger:    slog.Default().With("component", "coordinator"),
		active:    make(map[string]*requestState),
	}
}

// Submission is the synchronous answer to a request: either the created
// task graph, or an immediate pre-check failure result.
type Submission struct {
	RequestID string                   `json:"request_id"`
	TaskIDs   []string                 `json:"task_ids,omitempty"`
	Result    *models.GovernanceResult `json:"result,omitempty"`
}

// SubmitRequest validates, pre-checks, decomposes, and creates the task
// graph for a request. A constitutional pre-check failure returns an
// immediate structured failure with no blackboard side effects. The
// fused result arrives asynchronously once all tasks are terminal.
func (c *Coordinator) SubmitRequest(ctx context.Context, req models.GovernanceRequest) (*Submission, error) {
	if !req.RequestType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequestType, req.RequestType)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	check, err := c.validator.Validate(ctx, string(req.RequestType), req.InputData, req.ConstitutionalRequirements)
	if err != nil {
		return nil, fmt.Errorf("constitutional pre-check errored: %w", err)
	}
	if !check.Compliant {
		c.logger.Warn("Request rejected at constitutional pre-check",
			"request_id", req.ID, "violations", check.Violations)
		return &Submission{
			RequestID: req.ID,
			Result:    failureResult(&req, "constitutional_precheck", "validator_violation", "request violates constitutional requirements", check.Violations),
		}, nil
	}

	templates, err := decompose(&req)
	if err != nil {
		return nil, err
	}

	graph := NewGraph()
	for _, tpl := range templates {
		graph.AddNode(tpl.TaskType, tpl.DependsOn...)
	}
	groups, unschedulable := graph.ParallelGroups()
	if len(unschedulable) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrCyclicDependencies, unschedulable)
	}

	state := &requestState{
		request:   req,
		taskTypes: make(map[string]string, len(templates)),
	}
	byType := make(map[string]taskTemplate, len(templates))
	for _, tpl := range templates {
		byType[tpl.TaskType] = tpl
	}
	idByType := make(map[string]string, len(templates))

	// Create level by level so every dependency id already exists.
	for _, level := range groups {
		for _, taskType := range level {
			tpl := byType[taskType]
			deps := make([]string, 0, len(tpl.DependsOn))
			for _, depType := range tpl.DependsOn {
				deps = append(deps, idByType[depType])
			}

			input := map[string]any{"governance_request_id": req.ID}
			for k, v := range req.InputData {
				input[k] = v
			}
			requirements := map[string]any{"request_type": string(req.RequestType)}
			for k, v := range tpl.Requirements {
				requirements[k] = v
			}
			if len(req.ConstitutionalRequirements) > 0 {
				requirements["constitutional_requirements"] = req.ConstitutionalRequirements
			}

			task, err := c.store.CreateTask(ctx, models.TaskDefinition{
				TaskType:     taskType,
				Priority:     tpl.Priority,
				Requirements: requirements,
				InputData:    input,
				Dependencies: deps,
				Deadline:     req.Deadline,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create %s task: %w", taskType, err)
			}
			idByType[taskType] = task.ID
			state.taskIDs = append(state.taskIDs, task.ID)
			state.taskTypes[task.ID] = taskType
		}
	}

	c.mu.Lock()
	c.active[req.ID] = state
	c.mu.Unlock()
	c.monitor.CoordinationStarted()

	if c.pub != nil {
		env := events.NewEnvelope(events.EventTypeGovernanceWorkflowStarted, map[string]any{
			"id":           req.ID,
			"request_type": string(req.RequestType),
			"task_ids":     state.taskIDs,
		})
		if err := c.pub.Publish(ctx, events.ChannelGovernanceWorkflowStarted, env); err != nil {
			c.logger.Warn("Failed to publish workflow start", "request_id", req.ID, "error", err)
		}
	}

	c.logger.Info("Governance request decomposed",
		"request_id", req.ID,
		"request_type", string(req.RequestType),
		"tasks", len(state.taskIDs),
		"critical_path", graph.CriticalPath())
	return &Submission{RequestID: req.ID, TaskIDs: state.taskIDs}, nil
}

// Start subscribes to task-terminal events and launches the conflict
// resolution loop.
func (c *Coordinator) Start(ctx context.Context, sub Subscriber) error {
	handler := func(env events.Envelope) {
		id, _ := env.Data["id"].(string)
		if id == "" {
			return
		}
		// Events are hints; re-query the store off the listener goroutine.
		go c.maybeIntegrate(context.WithoutCancel(ctx), id)
	}
	if err := sub.Subscribe(ctx, events.ChannelTaskCompleted, handler); err != nil {
		return fmt.Errorf("failed to subscribe to task completions: %w", err)
	}
	if err := sub.Subscribe(ctx, events.ChannelTaskFailed, handler); err != nil {
		return fmt.Errorf("failed to subscribe to task failures: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(conflictResolveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				c.resolveOpenConflicts(loopCtx)
			}
		}
	}()

	c.logger.Info("Coordinator started")
	return nil
}

// Stop halts the conflict resolution loop.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
}

// GetResult returns the persisted governance_result content for a
// request, or ErrResultNotReady.
func (c *Coordinator) GetResult(ctx context.Context, requestID string) (map[string]any, error) {
	items, err := c.store.QueryKnowledge(ctx, models.KnowledgeQuery{
		Space:         models.SpaceGovernance,
		KnowledgeType: "governance_result",
		Tags:          []string{requestID},
		Limit:         1,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrResultNotReady, requestID)
	}
	return items[0].Content, nil
}

// failureResult builds the structured failure payload every rejected or
// failed request carries.
func failureResult(req *models.GovernanceRequest, component, kind, reason string, violations []string) *models.GovernanceResult {
	return &models.GovernanceResult{
		RequestID:          req.ID,
		RequestType:        req.RequestType,
		Success:            false,
		Conflicts:          []string{},
		Violations:         violations,
		FailedComponent:    component,
		ErrorKind:          kind,
		Reason:             reason,
		CompletedAt:        time.Now().UTC(),
		ConstitutionalHash: models.ConstitutionalHash,
	}
}
