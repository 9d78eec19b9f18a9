// Package monitor observes store and coordination activity: rolling
// latency windows, cache hit rates, per-agent workload, and a periodic
// bottleneck scan that files performance_alert knowledge. It also
// exports everything to Prometheus.
package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/consilium-ai/consilium/pkg/config"
	"github.com/consilium-ai/consilium/pkg/models"
)

// KnowledgeSink receives performance alerts. The blackboard store
// satisfies it.
type KnowledgeSink interface {
	AddKnowledge(ctx context.Context, item models.KnowledgeItem) (*models.KnowledgeItem, error)
}

// Monitor implements the blackboard's Observer and keeps the rolling
// metric state. All methods are safe for concurrent use.
type Monitor struct {
	cfg    *config.MonitorConfig
	sink   KnowledgeSink
	logger *slog.Logger

	mu          sync.Mutex
	samples     []time.Duration // ring buffer, capacity cfg.SampleWindow
	sampleNext  int
	sampleCount int
	windowStart time.Time
	windowOps   int

	cacheHits   int64
	cacheMisses int64

	workload map[string]int64 // claims per agent

	activeCoordinations    int
	completedCoordinations int

	cancel context.CancelFunc
	done   chan struct{}

	// prometheus
	latencyHist   *prometheus.HistogramVec
	cacheCounter  *prometheus.CounterVec
	claimCounter  *prometheus.CounterVec
	coordGauge    prometheus.Gauge
	coordDoneCtr  prometheus.Counter
	alertsCounter *prometheus.CounterVec
}

// New creates a Monitor and registers its collectors. sink may be nil,
// in which case alerts are logged only.
func New(cfg *config.MonitorConfig, sink KnowledgeSink, reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		cfg:         cfg,
		sink:        sink,
		logger:      slog.Default().With("component", "monitor"),
		samples:     make([]time.Duration, cfg.SampleWindow),
		windowStart: time.Now(),
		workload:    make(map[string]int64),

		latencyHist: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "consilium",
			Name:      "store_operation_seconds",
			Help:      "Latency of blackboard store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"operation"}),
		cacheCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consilium",
			Name:      "knowledge_cache_lookups_total",
			Help:      "Knowledge cache lookups by outcome.",
		}, []string{"outcome"}),
		claimCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consilium",
			Name:      "task_claims_total",
			Help:      "Successful task claims per agent.",
		}, []string{"agent_id"}),
		coordGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consilium",
			Name:      "active_coordinations",
			Help:      "Governance requests currently in flight.",
		}),
		coordDoneCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consilium",
			Name:      "completed_coordinations_total",
			Help:      "Governance requests brought to a terminal result.",
		}),
		alertsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consilium",
			Name:      "performance_alerts_total",
			Help:      "Bottleneck alerts by type.",
		}, []string{"alert_type"}),
	}

	if reg != nil {
		reg.MustRegister(m.latencyHist, m.cacheCounter, m.claimCounter,
			m.coordGauge, m.coordDoneCtr, m.alertsCounter)
	}
	return m
}

// ObserveLatency records one store-operation duration into the rolling
// window.
func (m *Monitor) ObserveLatency(op string, d time.Duration) {
	m.latencyHist.WithLabelValues(op).Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[m.sampleNext] = d
	m.sampleNext = (m.sampleNext + 1) % len(m.samples)
	if m.sampleCount < len(m.samples) {
		m.sampleCount++
	}
	m.windowOps++
}

// ObserveCache records one knowledge-cache lookup outcome.
func (m *Monitor) ObserveCache(hit bool) {
	m.mu.Lock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
	m.mu.Unlock()

	if hit {
		m.cacheCounter.WithLabelValues("hit").Inc()
	} else {
		m.cacheCounter.WithLabelValues("miss").Inc()
	}
}

// ObserveClaim records a successful task claim for workload balancing.
func (m *Monitor) ObserveClaim(agentID string) {
	m.mu.Lock()
	m.workload[agentID]++
	m.mu.Unlock()

	m.claimCounter.WithLabelValues(agentID).Inc()
}

// CoordinationStarted marks a governance request as in flight.
func (m *Monitor) CoordinationStarted() {
	m.mu.Lock()
	m.activeCoordinations++
	m.mu.Unlock()
	m.coordGauge.Inc()
}

// CoordinationCompleted marks a governance request as finished.
func (m *Monitor) CoordinationCompleted() {
	m.mu.Lock()
	if m.activeCoordinations > 0 {
		m.activeCoordinations--
	}
	m.completedCoordinations++
	m.mu.Unlock()
	m.coordGauge.Dec()
	m.coordDoneCtr.Inc()
}

// P99 returns the 99th-percentile latency over the rolling window, or
// zero with no samples.
func (m *Monitor) P99() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p99Locked()
}

func (m *Monitor) p99Locked() time.Duration {
	if m.sampleCount == 0 {
		return 0
	}
	sorted := make([]time.Duration, m.sampleCount)
	copy(sorted, m.samples[:m.sampleCount])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (99 * m.sampleCount) / 100
	if idx >= m.sampleCount {
		idx = m.sampleCount - 1
	}
	return sorted[idx]
}

// CacheHitRate returns hits / lookups, or 1.0 before any lookup so an
// idle system never alerts.
func (m *Monitor) CacheHitRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheHitRateLocked()
}

func (m *Monitor) cacheHitRateLocked() float64 {
	total := m.cacheHits + m.cacheMisses
	if total == 0 {
		return 1.0
	}
	return float64(m.cacheHits) / float64(total)
}

// Snapshot is the monitor's public point-in-time view.
type Snapshot struct {
	P99Millis              float64          `json:"p99_ms"`
	CacheHitRate           float64          `json:"cache_hit_rate"`
	ThroughputPerSecond    float64          `json:"throughput_per_second"`
	ActiveCoordinations    int              `json:"active_coordinations"`
	CompletedCoordinations int              `json:"completed_coordinations"`
	AgentWorkload          map[string]int64 `json:"agent_workload"`
	ConstitutionalHash     string           `json:"constitutional_hash"`
}

// GetSnapshot returns the current metric state, tagged for compliance.
func (m *Monitor) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	workload := make(map[string]int64, len(m.workload))
	for k, v := range m.workload {
		workload[k] = v
	}

	throughput := 0.0
	if elapsed := time.Since(m.windowStart).Seconds(); elapsed > 0 {
		throughput = float64(m.windowOps) / elapsed
	}

	return Snapshot{
		P99Millis:              float64(m.p99Locked()) / float64(time.Millisecond),
		CacheHitRate:           m.cacheHitRateLocked(),
		ThroughputPerSecond:    throughput,
		ActiveCoordinations:    m.activeCoordinations,
		CompletedCoordinations: m.completedCoordinations,
		AgentWorkload:          workload,
		ConstitutionalHash:     models.ConstitutionalHash,
	}
}

// Start launches the periodic bottleneck scan.
func (m *Monitor) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.runScan(loopCtx)
			}
		}
	}()
	m.logger.Info("Performance monitor started", "scan_interval", m.cfg.ScanInterval)
}

// Stop halts the scan loop.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}
}

func (m *Monitor) runScan(ctx context.Context) {
	for _, alert := range m.DetectBottlenecks() {
		m.alertsCounter.WithLabelValues(alert.Type).Inc()
		m.logger.Warn("Performance bottleneck detected",
			"alert_type", alert.Type,
			"severity", string(alert.Severity),
			"detail", alert.Detail,
			"recommendation", alert.Recommendation)
		m.fileAlert(ctx, alert)
	}
}
