package config

import "time"

// MonitorConfig controls the performance monitor's sampling and
// bottleneck detection.
type MonitorConfig struct {
	// SampleWindow is the number of latency samples retained per
	// operation (rolling).
	SampleWindow int

	// ScanInterval is how often the bottleneck scan runs.
	ScanInterval time.Duration

	// P99Target is the latency target the scan alerts on.
	P99Target time.Duration

	// CacheHitRateTarget is the minimum acceptable cache hit rate.
	CacheHitRateTarget float64

	// ThroughputTarget is the minimum acceptable operation rate per
	// second. Informational.
	ThroughputTarget float64

	// WorkloadImbalanceRatio is the max/min per-agent workload ratio
	// above which the scan alerts.
	WorkloadImbalanceRatio float64
}

// DefaultMonitorConfig returns the built-in monitor defaults with the
// fixed performance targets.
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		SampleWindow:           1000,
		ScanInterval:           30 * time.Second,
		P99Target:              5 * time.Millisecond,
		CacheHitRateTarget:     0.85,
		ThroughputTarget:       100,
		WorkloadImbalanceRatio: 3,
	}
}

func (c *MonitorConfig) applyEnv() {
	c.SampleWindow = envInt("MONITOR_SAMPLE_WINDOW", c.SampleWindow)
	c.ScanInterval = envDuration("MONITOR_SCAN_INTERVAL", c.ScanInterval)
	c.P99Target = envDuration("MONITOR_P99_TARGET", c.P99Target)
	c.CacheHitRateTarget = envFloat("MONITOR_CACHE_HIT_RATE_TARGET", c.CacheHitRateTarget)
	c.ThroughputTarget = envFloat("MONITOR_THROUGHPUT_TARGET", c.ThroughputTarget)
	c.WorkloadImbalanceRatio = envFloat("MONITOR_WORKLOAD_IMBALANCE_RATIO", c.WorkloadImbalanceRatio)
}
