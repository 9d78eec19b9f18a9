package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/consilium-ai/consilium/pkg/events"
	"github.com/consilium-ai/consilium/pkg/models"
)

// maybeIntegrate checks whether the request owning taskID has reached a
// fully terminal task set, and if so runs result integration exactly
// once.
func (c *Coordinator) maybeIntegrate(ctx context.Context, taskID string) {
	c.mu.Lock()
	var state *requestState
	for _, s := range c.active {
		if _, mine := s.taskTypes[taskID]; mine {
			state = s
			break
		}
	}
	c.mu.Unlock()
	if state == nil {
		return
	}

	tasks := make([]*models.TaskDefinition, 0, len(state.taskIDs))
	for _, id := range state.taskIDs {
		task, err := c.store.GetTask(ctx, id)
		if err != nil {
			c.logger.Warn("Failed to fetch task during completion check",
				"request_id", state.request.ID, "task_id", id, "error", err)
			return
		}
		if !task.Status.Terminal() {
			return
		}
		tasks = append(tasks, task)
	}

	// Claim the integration under the lock so concurrent completion
	// events integrate at most once.
	c.mu.Lock()
	if _, still := c.active[state.request.ID]; !still {
		c.mu.Unlock()
		return
	}
	delete(c.active, state.request.ID)
	c.mu.Unlock()

	c.integrate(ctx, state, tasks)
}

// integrate fuses terminal task outputs into the request's decision,
// files conflicts, persists the result, and announces completion. An
// integration error still produces a recorded failure result.
func (c *Coordinator) integrate(ctx context.Context, state *requestState, tasks []*models.TaskDefinition) {
	defer c.monitor.CoordinationCompleted()
	req := &state.request

	outputs := make(map[string]map[string]any)
	taskIDByType := make(map[string]string)
	var failedTypes []string
	for _, task := range tasks {
		taskType := state.taskTypes[task.ID]
		taskIDByType[taskType] = task.ID
		if task.Status == models.TaskStatusCompleted {
			outputs[taskType] = task.OutputData
		} else {
			failedTypes = append(failedTypes, taskType)
		}
	}

	conflicts := c.scanConflicts(ctx, req, outputs, taskIDByType)

	fused := make(map[string]any, len(outputs))
	for taskType, out := range outputs {
		fused[taskType] = out
	}
	check, err := c.validator.Validate(ctx, string(req.RequestType), fused, req.ConstitutionalRequirements)
	if err != nil {
		c.logger.Error("Final compliance check errored", "request_id", req.ID, "error", err)
		c.persistResult(ctx, failureResult(req, "result_integration", "transient", err.Error(), nil))
		return
	}

	result := &models.GovernanceResult{
		RequestID:          req.ID,
		RequestType:        req.RequestType,
		Success:            len(conflicts) == 0 && check.Compliant,
		ConfidenceScore:    harmonicMeanConfidence(outputs),
		TaskOutputs:        outputs,
		Conflicts:          conflicts,
		Recommendations:    collectRecommendations(outputs),
		Violations:         check.Violations,
		CompletedAt:        time.Now().UTC(),
		ConstitutionalHash: models.ConstitutionalHash,
	}
	result.DeploymentApproved = result.Success && allApproved(outputs)

	if len(failedTypes) > 0 {
		result.FailedComponent = strings.Join(failedTypes, ",")
		result.ErrorKind = "handler_failure"
		result.Reason = fmt.Sprintf("%d of %d tasks failed; integrated partial results", len(failedTypes), len(tasks))
	} else if !check.Compliant {
		result.FailedComponent = "constitutional_validation"
		result.ErrorKind = "validator_violation"
		result.Reason = "fused outputs violate constitutional requirements"
	} else if len(conflicts) > 0 {
		result.FailedComponent = "conflict_scan"
		result.ErrorKind = "conflict_detected"
		result.Reason = fmt.Sprintf("%d unresolved conflicts", len(conflicts))
	}

	c.persistResult(ctx, result)
	c.logger.Info("Governance request integrated",
		"request_id", req.ID,
		"success", result.Success,
		"confidence", result.ConfidenceScore,
		"conflicts", len(conflicts))
}

// scanConflicts detects disagreement across task outputs and files each
// finding as a conflict. Returns the filed conflict ids.
func (c *Coordinator) scanConflicts(ctx context.Context, req *models.GovernanceRequest, outputs map[string]map[string]any, taskIDByType map[string]string) []string {
	conflicts := []string{}

	var approvers, rejectors []string
	type riskReading struct {
		taskType string
		level    string
		ordinal  int
	}
	var risks []riskReading

	for taskType, out := range outputs {
		if approved, ok := out["approved"].(bool); ok {
			if approved {
				approvers = append(approvers, taskType)
			} else {
				rejectors = append(rejectors, taskType)
			}
		}
		if level, ok := out["risk_level"].(string); ok {
			if ordinal, known := models.RiskOrdinal(level); known {
				risks = append(risks, riskReading{taskType: taskType, level: level, ordinal: ordinal})
			}
		}
	}

	file := func(conflictType models.ConflictType, severity models.ConflictSeverity, description string, taskTypes []string) {
		ids := make([]string, 0, len(taskTypes))
		for _, t := range taskTypes {
			ids = append(ids, taskIDByType[t])
		}
		filed, err := c.store.ReportConflict(ctx, models.ConflictItem{
			ConflictType:  conflictType,
			InvolvedTasks: ids,
			Description:   description,
			Severity:      severity,
		})
		if err != nil {
			c.logger.Error("Failed to file conflict", "request_id", req.ID, "error", err)
			return
		}
		conflicts = append(conflicts, filed.ID)
	}

	if len(approvers) > 0 && len(rejectors) > 0 {
		file(models.ConflictTypeDecision, models.SeverityHigh,
			fmt.Sprintf("approval disagreement: %v approved, %v rejected", approvers, rejectors),
			append(append([]string(nil), approvers...), rejectors...))
	}

	if len(risks) > 1 {
		lowest, highest := risks[0], risks[0]
		for _, r := range risks[1:] {
			if r.ordinal < lowest.ordinal {
				lowest = r
			}
			if r.ordinal > highest.ordinal {
				highest = r
			}
		}
		if highest.ordinal-lowest.ordinal > 1 {
			file(models.ConflictTypeRiskAssessment, models.SeverityMedium,
				fmt.Sprintf("risk assessments diverge: %s=%s vs %s=%s",
					lowest.taskType, lowest.level, highest.taskType, highest.level),
				[]string{lowest.taskType, highest.taskType})
		}
	}

	return conflicts
}

// harmonicMeanConfidence fuses per-output confidences. Absent values
// default to 0.7; non-positive values are skipped.
func harmonicMeanConfidence(outputs map[string]map[string]any) float64 {
	n := 0
	sum := 0.0
	for _, out := range outputs {
		confidence := 0.7
		if v, ok := asFloat(out["confidence"]); ok {
			confidence = v
		}
		if confidence <= 0 {
			continue
		}
		n++
		sum += 1 / confidence
	}
	if n == 0 {
		return 0
	}
	return float64(n) / sum
}

// collectRecommendations concatenates per-output recommendations and
// appends coordination-level ones for detected patterns.
func collectRecommendations(outputs map[string]map[string]any) []string {
	var recs []string
	biasDetected := false
	for _, out := range outputs {
		recs = append(recs, asStrings(out["recommendations"])...)
		if flagged, ok := out["bias_detected"].(bool); ok && flagged {
			biasDetected = true
		}
	}
	if biasDetected {
		recs = append(recs, "Bias detected in analysis outputs; run bias mitigation before deployment")
	}
	return recs
}

// allApproved reports whether every output carrying an approved field
// set it true, and at least one did.
func allApproved(outputs map[string]map[string]any) bool {
	seen := false
	for _, out := range outputs {
		if approved, ok := out["approved"].(bool); ok {
			if !approved {
				return false
			}
			seen = true
		}
	}
	return seen
}

// persistResult writes the result into the governance space (tagged by
// request id for retrieval) and publishes completion.
func (c *Coordinator) persistResult(ctx context.Context, result *models.GovernanceResult) {
	content, err := resultContent(result)
	if err != nil {
		c.logger.Error("Failed to encode governance result", "request_id", result.RequestID, "error", err)
		return
	}

	_, err = c.store.AddKnowledge(ctx, models.KnowledgeItem{
		Space:         models.SpaceGovernance,
		AgentID:       "coordinator",
		KnowledgeType: "governance_result",
		Content:       content,
		Priority:      1,
		Tags:          []string{"governance_result", result.RequestID},
	})
	if err != nil {
		c.logger.Error("Failed to persist governance result", "request_id", result.RequestID, "error", err)
	}

	if c.pub != nil {
		env := events.NewEnvelope(events.EventTypeGovernanceRequestDone, map[string]any{
			"id":      result.RequestID,
			"success": result.Success,
		})
		if err := c.pub.Publish(ctx, events.ChannelGovernanceRequestDone, env); err != nil {
			c.logger.Warn("Failed to publish request completion", "request_id", result.RequestID, "error", err)
		}
	}
}

// resultContent converts the typed result into a knowledge content map.
func resultContent(result *models.GovernanceResult) (map[string]any, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, err
	}
	content["request_id"] = result.RequestID
	return content, nil
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func asStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
