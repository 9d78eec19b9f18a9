package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// Pool starts and stops a set of worker agents together.
type Pool struct {
	agents []*Agent
	logger *slog.Logger
}

// NewPool creates a pool over the given agents.
func NewPool(agents ...*Agent) *Pool {
	return &Pool{
		agents: agents,
		logger: slog.Default().With("component", "worker_pool"),
	}
}

// Start launches every agent. On the first failure the already-started
// agents are stopped again.
func (p *Pool) Start(ctx context.Context) error {
	for i, a := range p.agents {
		if err := a.Start(ctx); err != nil {
			for _, started := range p.agents[:i] {
				started.Stop()
			}
			return fmt.Errorf("failed to start agent %s: %w", a.ID(), err)
		}
	}
	p.logger.Info("Worker pool started", "agents", len(p.agents))
	return nil
}

// Stop shuts every agent down, waiting for in-flight handlers.
func (p *Pool) Stop() {
	for _, a := range p.agents {
		a.Stop()
	}
	p.logger.Info("Worker pool stopped")
}
