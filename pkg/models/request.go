package models

import "time"

// RequestType classifies a governance request and selects its
// decomposition strategy.
type RequestType string

// Governance request types.
const (
	RequestTypeModelDeployment   RequestType = "model_deployment"
	RequestTypePolicyEnforcement RequestType = "policy_enforcement"
	RequestTypeComplianceAudit   RequestType = "compliance_audit"
)

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	switch t {
	case RequestTypeModelDeployment, RequestTypePolicyEnforcement, RequestTypeComplianceAudit:
		return true
	}
	return false
}

// GovernanceRequest is a high-level ask ("may this model be deployed?")
// that the coordinator decomposes into a task graph.
type GovernanceRequest struct {
	ID                         string         `json:"id"`
	RequestType                RequestType    `json:"request_type"`
	Priority                   int            `json:"priority"`
	RequesterID                string         `json:"requester_id"`
	InputData                  map[string]any `json:"input_data,omitempty"`
	ConstitutionalRequirements map[string]any `json:"constitutional_requirements,omitempty"`
	Deadline                   *time.Time     `json:"deadline,omitempty"`
	ComplexityScore            float64        `json:"complexity_score"`
	CreatedAt                  time.Time      `json:"created_at"`
}

// GovernanceResult is the fused decision for a request. It is persisted
// as a governance_result knowledge item and returned to the requester.
type GovernanceResult struct {
	RequestID          string                    `json:"request_id"`
	RequestType        RequestType               `json:"request_type"`
	Success            bool                      `json:"success"`
	DeploymentApproved bool                      `json:"deployment_approved"`
	ConfidenceScore    float64                   `json:"confidence_score"`
	TaskOutputs        map[string]map[string]any `json:"task_outputs,omitempty"`
	Conflicts          []string                  `json:"conflicts"`
	Recommendations    []string                  `json:"recommendations,omitempty"`
	Violations         []string                  `json:"violations,omitempty"`
	FailedComponent    string                    `json:"failed_component,omitempty"`
	Reason             string                    `json:"reason,omitempty"`
	ErrorKind          string                    `json:"error_kind,omitempty"`
	CompletedAt        time.Time                 `json:"completed_at"`
	ConstitutionalHash string                    `json:"constitutional_hash"`
}
