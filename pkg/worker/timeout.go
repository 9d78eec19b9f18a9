package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/consilium-ai/consilium/pkg/config"
)

// TimeoutStore is the slice of the blackboard the scanner needs.
type TimeoutStore interface {
	CheckAgentTimeouts(ctx context.Context, timeout time.Duration) ([]string, error)
}

// TimeoutScanner periodically runs the central agent-timeout check:
// agents silent past the timeout are deactivated and their claimed
// tasks released back to the queue.
type TimeoutScanner struct {
	store  TimeoutStore
	cfg    *config.WorkerConfig
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTimeoutScanner creates a scanner over the store.
func NewTimeoutScanner(store TimeoutStore, cfg *config.WorkerConfig) *TimeoutScanner {
	return &TimeoutScanner{
		store:  store,
		cfg:    cfg,
		logger: slog.Default().With("component", "timeout_scanner"),
	}
}

// Start launches the scan loop.
func (s *TimeoutScanner) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.TimeoutScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				timedOut, err := s.store.CheckAgentTimeouts(loopCtx, s.cfg.AgentTimeout)
				if err != nil {
					s.logger.Error("Agent timeout scan failed", "error", err)
					continue
				}
				if len(timedOut) > 0 {
					s.logger.Warn("Agents timed out", "agent_ids", timedOut)
				}
			}
		}
	}()
	s.logger.Info("Agent timeout scanner started",
		"interval", s.cfg.TimeoutScanInterval, "timeout", s.cfg.AgentTimeout)
}

// Stop halts the scan loop.
func (s *TimeoutScanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
