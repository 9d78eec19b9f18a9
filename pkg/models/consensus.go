package models

import "time"

// ConsensusAlgorithm names one of the seven interchangeable
// voting/arbitration rules.
type ConsensusAlgorithm string

// The seven algorithms.
const (
	AlgorithmMajorityVote           ConsensusAlgorithm = "majority_vote"
	AlgorithmWeightedVote           ConsensusAlgorithm = "weighted_vote"
	AlgorithmRankedChoice           ConsensusAlgorithm = "ranked_choice"
	AlgorithmConsensusThreshold     ConsensusAlgorithm = "consensus_threshold"
	AlgorithmHierarchicalOverride   ConsensusAlgorithm = "hierarchical_override"
	AlgorithmConstitutionalPriority ConsensusAlgorithm = "constitutional_priority"
	AlgorithmExpertMediation        ConsensusAlgorithm = "expert_mediation"
)

// Valid reports whether a is one of the seven algorithms.
func (a ConsensusAlgorithm) Valid() bool {
	switch a {
	case AlgorithmMajorityVote, AlgorithmWeightedVote, AlgorithmRankedChoice,
		AlgorithmConsensusThreshold, AlgorithmHierarchicalOverride,
		AlgorithmConstitutionalPriority, AlgorithmExpertMediation:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a consensus session.
type SessionStatus string

// Session lifecycle states. active → completed | failed | escalated.
const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusEscalated SessionStatus = "escalated"
)

// Terminal reports whether the status is absorbing.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed || s == SessionStatusEscalated
}

// VoterType classifies vote origin for authority-weighted algorithms.
type VoterType string

// Voter types.
const (
	VoterTypeAgent           VoterType = "agent"
	VoterTypeHuman           VoterType = "human"
	VoterTypeHumanExpert     VoterType = "human_expert"
	VoterTypeCoordinator     VoterType = "coordinator"
	VoterTypeSeniorAgent     VoterType = "senior_agent"
	VoterTypeAutomatedSystem VoterType = "automated_system"
)

// Authority returns the fixed authority score used by
// hierarchical_override. Unknown types score 0.
func (v VoterType) Authority() int {
	switch v {
	case VoterTypeCoordinator:
		return 100
	case VoterTypeHumanExpert:
		return 80
	case VoterTypeSeniorAgent:
		return 60
	case VoterTypeAgent:
		return 40
	case VoterTypeAutomatedSystem:
		return 20
	}
	return 0
}

// Expert reports whether the voter type counts for expert_mediation.
func (v VoterType) Expert() bool {
	return v == VoterTypeHuman || v == VoterTypeHumanExpert
}

// VoteOption is a candidate outcome within a session.
type VoteOption struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Description         string         `json:"description,omitempty"`
	ProposedBy          string         `json:"proposed_by,omitempty"`
	SupportingData      map[string]any `json:"supporting_data,omitempty"`
	ConstitutionalScore float64        `json:"constitutional_score"`
	RiskAssessment      string         `json:"risk_assessment,omitempty"`
}

// Vote is a single ballot. At most one vote per (session, voter) is
// retained; re-casting replaces the prior vote.
type Vote struct {
	VoterID    string    `json:"voter_id"`
	VoterType  VoterType `json:"voter_type"`
	OptionID   string    `json:"option_id"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning,omitempty"`
	CastAt     time.Time `json:"cast_at"`
	Weight     float64   `json:"weight"`
}

// SessionConfig carries algorithm-specific parameters. Zero values fall
// back to the engine defaults.
type SessionConfig struct {
	WeightedThreshold        float64 `json:"weighted_threshold,omitempty"`
	MinConfidence            float64 `json:"min_confidence,omitempty"`
	ConsensusThreshold       float64 `json:"consensus_threshold,omitempty"`
	OverrideThreshold        int     `json:"override_threshold,omitempty"`
	MinConstitutionalScore   float64 `json:"min_constitutional_score,omitempty"`
	ExpertConsensusThreshold float64 `json:"expert_consensus_threshold,omitempty"`
}

// ConsensusResult is the structured outcome of running a session's
// algorithm. Fields tells the caller enough to act on the outcome;
// Extra carries algorithm-specific values.
type ConsensusResult struct {
	Success            bool               `json:"success"`
	Algorithm          ConsensusAlgorithm `json:"algorithm"`
	WinningOption      string             `json:"winning_option,omitempty"`
	ConfidenceScore    float64            `json:"confidence_score"`
	Reason             string             `json:"reason,omitempty"`
	NextSteps          []string           `json:"next_steps,omitempty"`
	ConstitutionalHash string             `json:"constitutional_hash"`
	Extra              map[string]any     `json:"extra,omitempty"`
}

// ConsensusSession is a scoped voting episode over a fixed option and
// participant set, resolved by a named algorithm.
type ConsensusSession struct {
	ID            string             `json:"id"`
	ConflictID    string             `json:"conflict_id"`
	Algorithm     ConsensusAlgorithm `json:"algorithm"`
	Participants  []string           `json:"participants"`
	Options       []VoteOption       `json:"options"`
	Votes         []Vote             `json:"votes"`
	Status        SessionStatus      `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	Deadline      time.Time          `json:"deadline"`
	Result        *ConsensusResult   `json:"result,omitempty"`
	SessionConfig SessionConfig      `json:"session_config"`
}

// HasParticipant reports whether voterID is allowed to vote.
func (s *ConsensusSession) HasParticipant(voterID string) bool {
	for _, p := range s.Participants {
		if p == voterID {
			return true
		}
	}
	return false
}

// HasOption reports whether optionID is one of the session's candidates.
func (s *ConsensusSession) HasOption(optionID string) bool {
	for _, o := range s.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}
