package coordinator

import (
	"fmt"

	"github.com/consilium-ai/consilium/pkg/models"
)

// taskTemplate is one planned task before creation. Dependencies are
// expressed by task type and resolved to concrete ids at creation time.
type taskTemplate struct {
	TaskType     string
	Priority     int
	Requirements map[string]any
	DependsOn    []string
}

// decompose emits the per-type task plan for a request.
func decompose(req *models.GovernanceRequest) ([]taskTemplate, error) {
	switch req.RequestType {
	case models.RequestTypeModelDeployment:
		return []taskTemplate{
			{TaskType: "ethical_analysis", Priority: 1,
				Requirements: map[string]any{"analysis": "bias_and_fairness"}},
			{TaskType: "legal_compliance", Priority: 1,
				Requirements: map[string]any{"analysis": "regulatory_review"}},
			{TaskType: "operational_validation", Priority: 2,
				Requirements: map[string]any{"analysis": "capacity_and_latency"},
				DependsOn:    []string{"ethical_analysis"}},
		}, nil

	case models.RequestTypePolicyEnforcement:
		return []taskTemplate{
			{TaskType: "policy_analysis", Priority: 1,
				Requirements: map[string]any{"analysis": "policy_interpretation"}},
			{TaskType: "legal_compliance", Priority: 1,
				Requirements: map[string]any{"analysis": "regulatory_review"}},
			{TaskType: "enforcement_planning", Priority: 2,
				Requirements: map[string]any{"analysis": "rollout_plan"},
				DependsOn:    []string{"policy_analysis", "legal_compliance"}},
		}, nil

	case models.RequestTypeComplianceAudit:
		return []taskTemplate{
			{TaskType: "data_practice_audit", Priority: 1,
				Requirements: map[string]any{"analysis": "data_handling_review"}},
			{TaskType: "legal_compliance", Priority: 1,
				Requirements: map[string]any{"analysis": "regulatory_review"}},
			{TaskType: "audit_report", Priority: 2,
				Requirements: map[string]any{"analysis": "findings_summary"},
				DependsOn:    []string{"data_practice_audit", "legal_compliance"}},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRequestType, req.RequestType)
}
