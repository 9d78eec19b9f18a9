package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5*time.Second, cfg.Worker.ClaimInterval)
	assert.Equal(t, 5, cfg.Worker.ClaimBatchSize)
	assert.Equal(t, 30*time.Second, cfg.Worker.HeartbeatInterval)
	assert.Equal(t, 5*time.Minute, cfg.Worker.AgentTimeout)

	assert.Equal(t, 0.5, cfg.Consensus.WeightedThreshold)
	assert.Equal(t, 0.6, cfg.Consensus.MinConfidence)
	assert.Equal(t, 0.8, cfg.Consensus.ConsensusThreshold)
	assert.Equal(t, 60, cfg.Consensus.OverrideThreshold)
	assert.Equal(t, 0.7, cfg.Consensus.MinConstitutionalScore)
	assert.Equal(t, 0.7, cfg.Consensus.ExpertConsensusThreshold)
	assert.Equal(t, 7*24*time.Hour, cfg.Consensus.SessionMaxAge)

	assert.Equal(t, 1000, cfg.Monitor.SampleWindow)
	assert.Equal(t, 5*time.Millisecond, cfg.Monitor.P99Target)
	assert.Equal(t, 0.85, cfg.Monitor.CacheHitRateTarget)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("WORKER_CLAIM_BATCH_SIZE", "12")
	t.Setenv("WORKER_CLAIM_INTERVAL", "2s")
	t.Setenv("CONSENSUS_WEIGHTED_THRESHOLD", "0.75")
	t.Setenv("MONITOR_P99_TARGET", "10ms")

	cfg := FromEnv()
	assert.Equal(t, 12, cfg.Worker.ClaimBatchSize)
	assert.Equal(t, 2*time.Second, cfg.Worker.ClaimInterval)
	assert.Equal(t, 0.75, cfg.Consensus.WeightedThreshold)
	assert.Equal(t, 10*time.Millisecond, cfg.Monitor.P99Target)
}

func TestFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("WORKER_CLAIM_BATCH_SIZE", "not-a-number")
	t.Setenv("CONSENSUS_WEIGHTED_THRESHOLD", "half")

	cfg := FromEnv()
	assert.Equal(t, 5, cfg.Worker.ClaimBatchSize)
	assert.Equal(t, 0.5, cfg.Consensus.WeightedThreshold)
}
