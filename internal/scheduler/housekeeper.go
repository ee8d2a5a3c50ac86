package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"launchlock/internal/clock"
	"launchlock/internal/logging"
)

// LeaseReclaimer returns expired executing commands to the queue.
type LeaseReclaimer interface {
	ReclaimExpiredLeases(ctx context.Context, now time.Time) (int64, error)
}

// LockSweeper removes expired resource locks.
type LockSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Result reports one housekeeping pass.
type Result struct {
	ReclaimedLeases int64
	SweptLocks      int64
}

// Housekeeper periodically reclaims leases and sweeps locks.
type Housekeeper struct {
	spec      string
	reclaimer LeaseReclaimer
	sweeper   LockSweeper
	clock     clock.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	entryID cron.EntryID
	lastRun time.Time
	lastErr error
}

// New constructs a housekeeper for the given cron spec. sweeper may be nil
// when no lock backend needs sweeping.
func New(spec string, reclaimer LeaseReclaimer, sweeper LockSweeper, clk clock.Clock, logger *slog.Logger) *Housekeeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Housekeeper{
		spec:      spec,
		reclaimer: reclaimer,
		sweeper:   sweeper,
		clock:     clock.OrReal(clk),
		logger:    logging.NewComponentLogger(logger, "housekeeper"),
		cron:      cron.New(),
	}
}

// Start registers the housekeeping entry and starts the cron scheduler.
func (h *Housekeeper) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return errors.New("housekeeper already running")
	}
	id, err := h.cron.AddFunc(h.spec, func() {
		if _, err := h.RunNow(ctx); err != nil && ctx.Err() == nil {
			h.logger.Warn("housekeeping pass failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "housekeeping_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule housekeeping %q: %w", h.spec, err)
	}
	h.entryID = id
	h.cron.Start()
	h.running = true
	h.logger.Info("housekeeping scheduled",
		logging.String("schedule", h.spec),
		logging.String(logging.FieldEventType, "housekeeping_scheduled"),
	)
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish.
func (h *Housekeeper) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.cron.Remove(h.entryID)
	stopped := h.cron.Stop()
	h.mu.Unlock()
	<-stopped.Done()
}

// RunNow performs one housekeeping pass immediately.
func (h *Housekeeper) RunNow(ctx context.Context) (Result, error) {
	var (
		result Result
		errs   []error
	)
	if h.reclaimer != nil {
		n, err := h.reclaimer.ReclaimExpiredLeases(ctx, h.clock.Now())
		if err != nil {
			errs = append(errs, fmt.Errorf("reclaim leases: %w", err))
		}
		result.ReclaimedLeases = n
	}
	if h.sweeper != nil {
		n, err := h.sweeper.Sweep(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep locks: %w", err))
		}
		result.SweptLocks = n
	}
	err := errors.Join(errs...)

	h.mu.Lock()
	h.lastRun = h.clock.Now()
	h.lastErr = err
	h.mu.Unlock()

	if result.ReclaimedLeases > 0 || result.SweptLocks > 0 {
		h.logger.Info("housekeeping pass complete",
			logging.Int64("reclaimed_leases", result.ReclaimedLeases),
			logging.Int64("swept_locks", result.SweptLocks),
			logging.String(logging.FieldEventType, "housekeeping_complete"),
		)
	} else {
		h.logger.Debug("housekeeping pass found nothing to do")
	}
	return result, err
}

// NextRun returns when the next scheduled pass fires, or the zero time when
// the housekeeper is stopped.
func (h *Housekeeper) NextRun() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return time.Time{}
	}
	return h.cron.Entry(h.entryID).Next
}

// LastRun reports the time and error of the most recent pass.
func (h *Housekeeper) LastRun() (time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastRun, h.lastErr
}
