package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"launchlock/internal/logging"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("no command handlers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for the in-flight command
// to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// RunOnce reclaims expired leases and processes at most one command. It
// reports whether a command was claimed. Handler failures are resolved into
// command status and are not returned; the error covers queue access only.
func (m *Manager) RunOnce(ctx context.Context) (bool, error) {
	logger := m.runnerLogger()

	if err := m.heartbeat.ReclaimExpired(ctx, logger, m.clock.Now()); err != nil {
		logger.Warn("lease reclaim failed; stuck commands may remain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lease_reclaim_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}

	cmd, err := m.store.ClaimNext(ctx, m.workerID, m.cfg.LeaseDuration())
	if err != nil {
		m.setLastError(err)
		return false, err
	}
	if cmd == nil {
		return false, nil
	}
	if err := m.processCommand(ctx, logger, cmd); err != nil {
		m.setLastError(err)
		return true, err
	}
	return true, nil
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	logger := m.runnerLogger()
	logger.Info("worker started",
		logging.String(logging.FieldEventType, "worker_start"),
		logging.Duration("poll_interval", m.cfg.PollInterval()),
		logging.Duration("lease", m.cfg.LeaseDuration()),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped", logging.String(logging.FieldEventType, "worker_stop"))
			return
		default:
		}

		processed, err := m.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			m.handleCycleError(ctx, logger, err)
			continue
		}
		if !processed {
			m.waitForCommandOrShutdown(ctx)
		}
	}
}

func (m *Manager) runnerLogger() *slog.Logger {
	return m.logger.With(logging.String(logging.FieldComponent, "workflow-runner"))
}

func (m *Manager) handleCycleError(ctx context.Context, logger *slog.Logger, err error) {
	logger.Error("worker cycle failed",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_cycle_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	wait(ctx, m.cfg.ErrorRetryInterval())
}

func (m *Manager) waitForCommandOrShutdown(ctx context.Context) {
	wait(ctx, m.cfg.PollInterval())
}

func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
