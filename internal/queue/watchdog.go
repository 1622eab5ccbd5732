package queue

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/praxis-sh/praxis/internal/config"
	"github.com/praxis-sh/praxis/internal/observability"
)

// Watchdog independently observes the worker heartbeat and raises a
// critical-severity signal when it goes stale. Observability only: it never
// blocks or influences the submit path.
type Watchdog struct {
	transport Transport
	cfg       config.QueueConfig
	logger    *zap.Logger
}

// NewWatchdog wires a heartbeat observer.
func NewWatchdog(transport Transport, cfg config.QueueConfig, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		transport: transport,
		cfg:       cfg,
		logger:    logger.Named("queue.watchdog"),
	}
}

// Run checks the heartbeat on the stale-threshold cadence until the context
// is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	interval := w.cfg.HeartbeatStaleAfter
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check performs a single staleness evaluation.
func (w *Watchdog) Check(ctx context.Context) {
	raw, err := w.transport.Get(ctx, w.cfg.HeartbeatKey)
	if err != nil {
		w.logger.Warn("Heartbeat read failed", zap.Error(err))
		return
	}
	if raw == nil {
		// No heartbeat ever written: the worker has not started yet. Noted,
		// but not the same signal as a worker that went silent.
		w.logger.Info("No worker heartbeat present")
		return
	}

	unix, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		w.logger.Warn("Malformed heartbeat value", zap.String("value", string(raw)))
		return
	}

	age := time.Since(time.Unix(unix, 0))
	if age > w.cfg.HeartbeatStaleAfter {
		observability.WorkerHeartbeatStale.Inc()
		w.logger.Error("CRITICAL: inference worker heartbeat is stale",
			zap.Duration("age", age),
			zap.Duration("threshold", w.cfg.HeartbeatStaleAfter))
	}
}
