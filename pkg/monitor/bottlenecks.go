package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/consilium-ai/consilium/pkg/models"
)

// Alert is one detected bottleneck plus its remediation hint. The
// recommendation is informational; the monitor never acts on it.
type Alert struct {
	Type           string                  `json:"alert_type"`
	Severity       models.ConflictSeverity `json:"severity"`
	Detail         string                  `json:"detail"`
	Recommendation string                  `json:"recommendation"`
	Value          float64                 `json:"value"`
	Target         float64                 `json:"target"`
}

// DetectBottlenecks evaluates the current metrics against the
// configured targets and returns zero or more alerts.
func (m *Monitor) DetectBottlenecks() []Alert {
	m.mu.Lock()
	p99 := m.p99Locked()
	hitRate := m.cacheHitRateLocked()
	sampleCount := m.sampleCount
	lookups := m.cacheHits + m.cacheMisses

	var maxLoad, minLoad int64 = 0, -1
	for _, n := range m.workload {
		if n > maxLoad {
			maxLoad = n
		}
		if minLoad < 0 || n < minLoad {
			minLoad = n
		}
	}
	agents := len(m.workload)
	m.mu.Unlock()

	var alerts []Alert

	if sampleCount > 0 && p99 > m.cfg.P99Target {
		severity := models.SeverityHigh
		if p99 > 2*m.cfg.P99Target {
			severity = models.SeverityCritical
		}
		alerts = append(alerts, Alert{
			Type:           "p99_latency",
			Severity:       severity,
			Detail:         fmt.Sprintf("P99 latency %.2fms exceeds target %.2fms", float64(p99)/float64(time.Millisecond), float64(m.cfg.P99Target)/float64(time.Millisecond)),
			Recommendation: "Enable connection pooling or reduce claim batch size",
			Value:          float64(p99) / float64(time.Millisecond),
			Target:         float64(m.cfg.P99Target) / float64(time.Millisecond),
		})
	}

	if lookups > 0 && hitRate < m.cfg.CacheHitRateTarget {
		alerts = append(alerts, Alert{
			Type:           "cache_hit_rate",
			Severity:       models.SeverityMedium,
			Detail:         fmt.Sprintf("cache hit rate %.2f below target %.2f", hitRate, m.cfg.CacheHitRateTarget),
			Recommendation: "Increase knowledge cache TTL or pre-warm hot items",
			Value:          hitRate,
			Target:         m.cfg.CacheHitRateTarget,
		})
	}

	if agents > 1 && minLoad > 0 && float64(maxLoad)/float64(minLoad) > m.cfg.WorkloadImbalanceRatio {
		alerts = append(alerts, Alert{
			Type:           "workload_imbalance",
			Severity:       models.SeverityMedium,
			Detail:         fmt.Sprintf("agent workload max/min ratio %.1f exceeds %.1f", float64(maxLoad)/float64(minLoad), m.cfg.WorkloadImbalanceRatio),
			Recommendation: "Rebalance task types across agents or add capacity",
			Value:          float64(maxLoad) / float64(minLoad),
			Target:         m.cfg.WorkloadImbalanceRatio,
		})
	}

	return alerts
}

// fileAlert writes one alert into the performance space.
func (m *Monitor) fileAlert(ctx context.Context, alert Alert) {
	if m.sink == nil {
		return
	}
	_, err := m.sink.AddKnowledge(ctx, models.KnowledgeItem{
		Space:         models.SpacePerformance,
		AgentID:       "performance_monitor",
		KnowledgeType: "performance_alert",
		Priority:      alert.Severity.Score(),
		Content: map[string]any{
			"alert_type":     alert.Type,
			"severity":       string(alert.Severity),
			"detail":         alert.Detail,
			"recommendation": alert.Recommendation,
			"value":          alert.Value,
			"target":         alert.Target,
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		},
		Tags: []string{"performance", alert.Type},
	})
	if err != nil {
		m.logger.Warn("Failed to file performance alert", "alert_type", alert.Type, "error", err)
	}
}
