package config

import "time"

// WorkerConfig controls the worker-agent harness: how tasks are polled,
// claimed, and processed, and how liveness is reported.
type WorkerConfig struct {
	// ClaimInterval is the base interval between claim-loop polls.
	ClaimInterval time.Duration

	// ClaimIntervalJitter is the random jitter added to ClaimInterval.
	// Actual interval: ClaimInterval ± ClaimIntervalJitter.
	ClaimIntervalJitter time.Duration

	// ClaimBatchSize is the maximum number of available tasks fetched
	// (and attempted) per poll.
	ClaimBatchSize int

	// MaxConcurrentHandlers bounds concurrently running handlers per
	// harness. Zero means unbounded (the handler's responsibility).
	MaxConcurrentHandlers int

	// HeartbeatInterval is how often the harness reports liveness.
	HeartbeatInterval time.Duration

	// AgentTimeout is how long an agent may go without a heartbeat
	// before the central scan marks it inactive and requeues its tasks.
	AgentTimeout time.Duration

	// TimeoutScanInterval is how often the central timeout scan runs.
	TimeoutScanInterval time.Duration

	// GracefulShutdownTimeout is the max time to wait for in-flight
	// handlers during shutdown.
	GracefulShutdownTimeout time.Duration
}

// DefaultWorkerConfig returns the built-in harness defaults.
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		ClaimInterval:           5 * time.Second,
		ClaimIntervalJitter:     500 * time.Millisecond,
		ClaimBatchSize:          5,
		MaxConcurrentHandlers:   0,
		HeartbeatInterval:       30 * time.Second,
		AgentTimeout:            5 * time.Minute,
		TimeoutScanInterval:     time.Minute,
		GracefulShutdownTimeout: 2 * time.Minute,
	}
}

func (c *WorkerConfig) applyEnv() {
	c.ClaimInterval = envDuration("WORKER_CLAIM_INTERVAL", c.ClaimInterval)
	c.ClaimIntervalJitter = envDuration("WORKER_CLAIM_JITTER", c.ClaimIntervalJitter)
	c.ClaimBatchSize = envInt("WORKER_CLAIM_BATCH_SIZE", c.ClaimBatchSize)
	c.MaxConcurrentHandlers = envInt("WORKER_MAX_CONCURRENT_HANDLERS", c.MaxConcurrentHandlers)
	c.HeartbeatInterval = envDuration("WORKER_HEARTBEAT_INTERVAL", c.HeartbeatInterval)
	c.AgentTimeout = envDuration("WORKER_AGENT_TIMEOUT", c.AgentTimeout)
	c.TimeoutScanInterval = envDuration("WORKER_TIMEOUT_SCAN_INTERVAL", c.TimeoutScanInterval)
	c.GracefulShutdownTimeout = envDuration("WORKER_GRACEFUL_SHUTDOWN_TIMEOUT", c.GracefulShutdownTimeout)
}
