package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"launchlock/internal/config"
	"launchlock/internal/logging"
	"launchlock/internal/scheduler"
	"launchlock/internal/workflow"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	workflow    *workflow.Manager
	housekeeper *scheduler.Housekeeper

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running bool
	started time.Time
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	StartedAt        time.Time
	Workflow         workflow.StatusSummary
	NextHousekeeping time.Time
	DatabasePath     string
	LockFilePath     string
}

// New constructs a daemon. housekeeper may be nil.
func New(cfg *config.Config, logger *slog.Logger, wf *workflow.Manager, housekeeper *scheduler.Housekeeper) (*Daemon, error) {
	if cfg == nil || wf == nil {
		return nil, errors.New("daemon requires config and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.WorkerLockPath()
	return &Daemon{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		workflow:    wf,
		housekeeper: housekeeper,
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the workflow manager and
// housekeeping.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another launchlock daemon is already running for worker %q", d.cfg.Worker.ID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.housekeeper != nil {
		if err := d.housekeeper.Start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start housekeeping: %w", err)
		}
	}
	if err := d.workflow.Start(runCtx); err != nil {
		if d.housekeeper != nil {
			d.housekeeper.Stop()
		}
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.cancel = cancel
	d.running = true
	d.started = time.Now()
	d.logger.Info("launchlock daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldWorkerID, d.cfg.Worker.ID),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}

	d.cancel()
	d.cancel = nil
	d.workflow.Stop()
	if d.housekeeper != nil {
		d.housekeeper.Stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.running = false
	d.logger.Info("launchlock daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Status returns the latest daemon information.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	running := d.running
	started := d.started
	d.mu.Unlock()

	status := Status{
		Running:      running,
		Workflow:     d.workflow.Status(ctx),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
	if running {
		status.StartedAt = started
	}
	if d.housekeeper != nil {
		status.NextHousekeeping = d.housekeeper.NextRun()
	}
	return status
}
