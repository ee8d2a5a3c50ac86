package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"launchlock/internal/logging"
	"launchlock/internal/queue"
)

// HeartbeatMonitor extends claim leases and reclaims expired ones.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	workerID string
	interval time.Duration
	lease    time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, workerID string, interval, lease time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger,
		workerID: workerID,
		interval: interval,
		lease:    lease,
	}
}

// ReclaimExpired returns commands whose lease ended before now to the queue.
func (h *HeartbeatMonitor) ReclaimExpired(ctx context.Context, logger *slog.Logger, now time.Time) error {
	reclaimed, err := h.store.ReclaimExpiredLeases(ctx, now)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed expired leases",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "lease_reclaimed"),
		)
	}
	return nil
}

// StartLoop extends the lease of commandID until ctx is done. When the store
// reports the command is no longer executing under this worker, interrupt is
// called so the handler stops before its next side effect.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, commandID string, interrupt context.CancelFunc) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := h.store.Heartbeat(ctx, commandID, h.workerID, h.lease)
			if err != nil {
				switch {
				case errors.Is(err, context.Canceled):
					logger.Debug("heartbeat stopped with command")
				case errors.Is(err, queue.ErrNotFound):
					logger.Warn("command vanished while executing; interrupting handler",
						logging.String(logging.FieldEventType, "heartbeat_lost"),
					)
					interrupt()
					return
				default:
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
				continue
			}
			if status != queue.StatusExecuting {
				logger.Info("command left executing; interrupting handler",
					logging.String("status", string(status)),
					logging.String(logging.FieldEventType, "command_interrupted"),
				)
				interrupt()
				return
			}
		}
	}
}
