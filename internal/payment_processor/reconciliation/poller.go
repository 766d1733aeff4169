package reconciliation

import (
	"context"
	"log/slog"
	"time"
)

// sweepRunner is what the poller runs on every tick
type sweepRunner interface {
	Sweep(ctx context.Context) (Summary, error)
}

// Poller runs the reconciliation sweep on a fixed interval
type Poller struct {
	sweeper  sweepRunner
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(logger *slog.Logger, sweeper sweepRunner, interval time.Duration) *Poller {
	return &Poller{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

// Start sweeps on every tick until the context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting reconciliation poller", "interval", p.interval.String())
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Reconciliation poller stopping due to context cancellation")
			return
		case <-ticker.C:
			p.logger.Debug("Reconciliation tick")
			if _, err := p.sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("Reconciliation sweep failed", "error", err)
			}
		}
	}
}
