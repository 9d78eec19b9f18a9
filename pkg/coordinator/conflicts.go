package coordinator

import (
	"context"

	"github.com/consilium-ai/consilium/pkg/models"
)

// resolveOpenConflicts fetches the open-conflict queue (critical first)
// and dispatches each to its type's resolution strategy.
func (c *Coordinator) resolveOpenConflicts(ctx context.Context) {
	conflicts, err := c.store.GetOpenConflicts(ctx, 20)
	if err != nil {
		c.logger.Error("Failed to fetch open conflicts", "error", err)
		return
	}

	for _, conflict := range conflicts {
		switch conflict.ConflictType {
		case models.ConflictTypeDecision, models.ConflictTypeRiskAssessment:
			c.resolveByConsensus(ctx, conflict)
		case models.ConflictTypeResource:
			c.resolveByPriority(ctx, conflict)
		case models.ConflictTypePolicy:
			c.resolveByConstitutionalPrecedence(ctx, conflict)
		default:
			c.logger.Warn("No resolution strategy for conflict type",
				"conflict_id", conflict.ID, "conflict_type", string(conflict.ConflictType))
			if err := c.store.UpdateConflictStatus(ctx, conflict.ID, models.ConflictStatusEscalated,
				"manual_review", map[string]any{"reason": "no automatic strategy"}); err != nil {
				c.logger.Error("Failed to escalate conflict", "conflict_id", conflict.ID, "error", err)
			}
		}
	}
}

// resolveByConsensus runs a constitutional_priority session over the
// conflict's positions. The conservative option carries the higher
// constitutional score, so a voteless session still resolves safely.
func (c *Coordinator) resolveByConsensus(ctx context.Context, conflict *models.ConflictItem) {
	options := []models.VoteOption{
		{
			ID:                  "conservative_position",
			Name:                "Adopt the more conservative assessment",
			ProposedBy:          "coordinator",
			ConstitutionalScore: 0.85,
			RiskAssessment:      "low",
		},
		{
			ID:                  "original_position",
			Name:                "Keep the original assessment",
			ProposedBy:          "coordinator",
			ConstitutionalScore: 0.6,
			RiskAssessment:      "medium",
		},
	}
	participants := append([]string{"coordinator"}, conflict.InvolvedAgents...)

	sessionID, err := c.engine.InitiateConsensus(ctx, conflict.ID,
		models.AlgorithmConstitutionalPriority, participants, options, 0, models.SessionConfig{})
	if err != nil {
		c.logger.Error("Failed to open consensus session", "conflict_id", conflict.ID, "error", err)
		return
	}

	if err := c.store.UpdateConflictStatus(ctx, conflict.ID, models.ConflictStatusInResolution,
		"consensus", map[string]any{"session_id": sessionID}); err != nil {
		c.logger.Error("Failed to mark conflict in resolution", "conflict_id", conflict.ID, "error", err)
		return
	}

	result, err := c.engine.ExecuteConsensus(ctx, sessionID)
	if err != nil {
		c.logger.Error("Consensus execution failed", "conflict_id", conflict.ID, "error", err)
		return
	}

	if result.Success {
		err = c.store.UpdateConflictStatus(ctx, conflict.ID, models.ConflictStatusResolved,
			"consensus", map[string]any{
				"session_id":          sessionID,
				"winning_option":      result.WinningOption,
				"confidence_score":    result.ConfidenceScore,
				"constitutional_hash": result.ConstitutionalHash,
			})
	} else {
		err = c.store.UpdateConflictStatus(ctx, conflict.ID, models.ConflictStatusEscalated,
			"consensus", map[string]any{
				"session_id": sessionID,
				"reason":     result.Reason,
			})
	}
	if err != nil {
		c.logger.Error("Failed to record consensus outcome", "conflict_id", conflict.ID, "error", err)
		return
	}
	c.logger.Info("Conflict resolved by consensus",
		"conflict_id", conflict.ID, "session_id", sessionID, "success", result.Success)
}

// resolveByPriority settles resource conflicts by static allocation:
// the first involved party (agents are recorded in request-priority
// order) wins the contended resource.
func (c *Coordinator) resolveByPriority(ctx context.Context, conflict *models.ConflictItem) {
	data := map[string]any{"allocation_order": conflict.InvolvedAgents}
	if len(conflict.InvolvedAgents) > 0 {
		data["granted_to"] = conflict.InvolvedAgents[0]
	}
	if err := c.store.UpdateConflictStatus(ctx, conflict.ID, models.ConflictStatusResolved,
		"priority_allocation", data); err != nil {
		c.logger.Error("Failed to resolve resource conflict", "conflict_id", conflict.ID, "error", err)
		return
	}
	c.logger.Info("Resource conflict resolved by priority allocation", "conflict_id", conflict.ID)
}

// resolveByConstitutionalPrecedence settles policy conflicts: the
// constitutionally-grounded policy wins by definition.
func (c *Coordinator) resolveByConstitutionalPrecedence(ctx context.Context, conflict *models.ConflictItem) {
	if err := c.store.UpdateConflictStatus(ctx, conflict.ID, models.ConflictStatusResolved,
		"constitutional_precedence", map[string]any{
			"basis":               "constitutional requirements take precedence over local policy",
			"constitutional_hash": models.ConstitutionalHash,
		}); err != nil {
		c.logger.Error("Failed to resolve policy conflict", "conflict_id", conflict.ID, "error", err)
		return
	}
	c.logger.Info("Policy conflict resolved by constitutional precedence", "conflict_id", conflict.ID)
}
