package blackboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/consilium-ai/consilium/pkg/config"
)

// Sweeper periodically reclaims expired knowledge, old terminal tasks,
// and old resolved conflicts. Expired knowledge is already invisible to
// reads; the sweeper only bounds table growth.
type Sweeper struct {
	store  *Store
	cfg    config.RetentionConfig
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a retention sweeper over the store.
func NewSweeper(store *Store, cfg config.RetentionConfig) *Sweeper {
	return &Sweeper{
		store:  store,
		cfg:    cfg,
		logger: slog.Default().With("component", "sweeper"),
	}
}

// Start launches the sweep loop. An immediate first sweep runs so a
// restart reclaims backlog without waiting a full interval.
func (s *Sweeper) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.sweep(loopCtx)

		ticker := time.NewTicker(s.cfg.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.sweep(loopCtx)
			}
		}
	}()

	s.logger.Info("Retention sweeper started", "interval", s.cfg.PurgeInterval)
}

// Stop halts the sweep loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	s.logger.Info("Retention sweeper stopped")
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := s.store.PurgeExpiredKnowledge(ctx, now)
	if err != nil {
		s.logger.Error("Expired knowledge purge failed", "error", err)
	}

	tasks, err := s.store.PurgeTerminalTasks(ctx, now.Add(-s.cfg.TerminalTaskRetention))
	if err != nil {
		s.logger.Error("Terminal task purge failed", "error", err)
	}

	conflicts, err := s.store.PurgeResolvedConflicts(ctx, now.Add(-s.cfg.ResolvedConflictRetention))
	if err != nil {
		s.logger.Error("Resolved conflict purge failed", "error", err)
	}

	if expired+tasks+conflicts > 0 {
		s.logger.Info("Retention sweep completed",
			"expired_knowledge", expired,
			"terminal_tasks", tasks,
			"resolved_conflicts", conflicts)
	}
}
