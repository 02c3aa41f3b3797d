package orchestrator

import (
	"context"
	"time"

	"github.com/sheenhq/sitesmith/internal/domain"
	"github.com/sheenhq/sitesmith/internal/logger"
)

// Watchdog periodically sweeps migrations whose worker lease expired while
// still in a non-terminal state and reports them as stalled failures.
type Watchdog struct {
	orchestrator *Orchestrator
	interval     time.Duration
}

// NewWatchdog creates a watchdog.
// Parameters:
//   - orchestrator: used for lease sweeping and event emission.
//   - interval: sweep cadence.
// Returns:
//   - *Watchdog: initialized watchdog.
func NewWatchdog(orchestrator *Orchestrator, interval time.Duration) *Watchdog {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watchdog{orchestrator: orchestrator, interval: interval}
}

// Run sweeps on the configured interval until the context is cancelled.
// Parameters:
//   - ctx: cancellation context; Run returns when it is done.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger.CtxInfo(ctx, "Lease watchdog started, sweeping every %s", w.interval)
	for {
		select {
		case <-ctx.Done():
			logger.CtxInfo(ctx, "Lease watchdog stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep marks expired-lease migrations failed and emits their stalled
// events. The sweep itself clears locks and sets status; only the event
// emission happens here so ordering against notifications is preserved.
func (w *Watchdog) sweep(ctx context.Context) {
	stalled, err := w.orchestrator.deps.Leases.SweepStalled(ctx)
	if err != nil {
		logger.CtxError(ctx, "Lease sweep failed: %v", err)
		return
	}

	for _, m := range stalled {
		logger.CtxWarn(ctx, "Migration %s stalled in phase %s, lease expired", m.ID, m.Status)
		err := w.orchestrator.emit(ctx, domain.EventFailed, &domain.ProgressPayload{
			MigrationID: m.ID,
			Phase:       string(m.Status),
			Message:     "lease expired while migration was in progress",
			ErrorCode:   CodeStalled,
		})
		if err != nil {
			logger.CtxError(ctx, "Failed to emit stalled event for migration %s: %v", m.ID, err)
		}
	}
}
