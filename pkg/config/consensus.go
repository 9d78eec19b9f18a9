package config

import "time"

// ConsensusConfig carries engine-level defaults for the seven
// algorithms plus session housekeeping cadences. Per-session overrides
// arrive via the session's SessionConfig.
type ConsensusConfig struct {
	// WeightedThreshold is the minimum winner share for weighted_vote.
	WeightedThreshold float64

	// MinConfidence is the minimum margin-derived confidence for
	// ranked_choice.
	MinConfidence float64

	// ConsensusThreshold is the minimum weighted support for
	// consensus_threshold.
	ConsensusThreshold float64

	// OverrideThreshold is the minimum authority for
	// hierarchical_override to bypass the fallback vote.
	OverrideThreshold int

	// MinConstitutionalScore is the bar for constitutional_priority.
	MinConstitutionalScore float64

	// ExpertConsensusThreshold is the agreement bar for expert_mediation.
	ExpertConsensusThreshold float64

	// DefaultDeadline is applied when a session is initiated without an
	// explicit deadline.
	DefaultDeadline time.Duration

	// DeadlineExtension is how far a deadline is pushed when failure
	// handling chooses "extend_deadline".
	DeadlineExtension time.Duration

	// SweepInterval is how often the deadline sweeper runs.
	SweepInterval time.Duration

	// SessionMaxAge bounds how long terminal sessions are retained in
	// memory before cleanup drops them.
	SessionMaxAge time.Duration
}

// DefaultConsensusConfig returns the built-in consensus defaults.
func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		WeightedThreshold:        0.5,
		MinConfidence:            0.6,
		ConsensusThreshold:       0.8,
		OverrideThreshold:        60,
		MinConstitutionalScore:   0.7,
		ExpertConsensusThreshold: 0.7,
		DefaultDeadline:          24 * time.Hour,
		DeadlineExtension:        24 * time.Hour,
		SweepInterval:            30 * time.Second,
		SessionMaxAge:            7 * 24 * time.Hour,
	}
}

func (c *ConsensusConfig) applyEnv() {
	c.WeightedThreshold = envFloat("CONSENSUS_WEIGHTED_THRESHOLD", c.WeightedThreshold)
	c.MinConfidence = envFloat("CONSENSUS_MIN_CONFIDENCE", c.MinConfidence)
	c.ConsensusThreshold = envFloat("CONSENSUS_THRESHOLD", c.ConsensusThreshold)
	c.OverrideThreshold = envInt("CONSENSUS_OVERRIDE_THRESHOLD", c.OverrideThreshold)
	c.MinConstitutionalScore = envFloat("CONSENSUS_MIN_CONSTITUTIONAL_SCORE", c.MinConstitutionalScore)
	c.ExpertConsensusThreshold = envFloat("CONSENSUS_EXPERT_THRESHOLD", c.ExpertConsensusThreshold)
	c.DefaultDeadline = envDuration("CONSENSUS_DEFAULT_DEADLINE", c.DefaultDeadline)
	c.DeadlineExtension = envDuration("CONSENSUS_DEADLINE_EXTENSION", c.DeadlineExtension)
	c.SweepInterval = envDuration("CONSENSUS_SWEEP_INTERVAL", c.SweepInterval)
	c.SessionMaxAge = envDuration("CONSENSUS_SESSION_MAX_AGE", c.SessionMaxAge)
}
