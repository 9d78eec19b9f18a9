package config

import "time"

// RetentionConfig controls the purge sweeper: TTL enforcement for
// knowledge items and retention of terminal tasks/conflicts. Live state
// is authoritative; purged rows are gone.
type RetentionConfig struct {
	// PurgeInterval is how often the sweeper runs.
	PurgeInterval time.Duration

	// TerminalTaskRetention is how long completed/failed tasks are kept.
	TerminalTaskRetention time.Duration

	// ResolvedConflictRetention is how long resolved/escalated conflicts
	// are kept.
	ResolvedConflictRetention time.Duration

	// KnowledgeCacheTTL caps how long a knowledge item may live in the
	// read cache regardless of its own expiry.
	KnowledgeCacheTTL time.Duration
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		PurgeInterval:             time.Minute,
		TerminalTaskRetention:     24 * time.Hour,
		ResolvedConflictRetention: 24 * time.Hour,
		KnowledgeCacheTTL:         30 * time.Second,
	}
}

func (c *RetentionConfig) applyEnv() {
	c.PurgeInterval = envDuration("RETENTION_PURGE_INTERVAL", c.PurgeInterval)
	c.TerminalTaskRetention = envDuration("RETENTION_TERMINAL_TASKS", c.TerminalTaskRetention)
	c.ResolvedConflictRetention = envDuration("RETENTION_RESOLVED_CONFLICTS", c.ResolvedConflictRetention)
	c.KnowledgeCacheTTL = envDuration("RETENTION_KNOWLEDGE_CACHE_TTL", c.KnowledgeCacheTTL)
}
