package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"launchlock/internal/clock"
	"launchlock/internal/config"
	"launchlock/internal/logging"
	"launchlock/internal/notifications"
	"launchlock/internal/queue"
	"launchlock/internal/stage"
)

// Manager coordinates command execution using registered stage handlers.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service
	clock    clock.Clock
	workerID string

	heartbeat *HeartbeatMonitor

	mu          sync.RWMutex
	handlers    map[queue.Type]stage.Handler
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	lastCommand *queue.Command
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier overrides the notification service built from config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithClock overrides the wall clock used for backoff and lease reclaim.
func WithClock(clk clock.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clock.OrReal(clk)
	}
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logger.With(logging.String(logging.FieldWorkerID, cfg.Worker.ID)),
		notifier: notifications.NewService(cfg),
		clock:    clock.Real(),
		workerID: cfg.Worker.ID,
		handlers: make(map[queue.Type]stage.Handler),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.heartbeat = NewHeartbeatMonitor(store, m.logger, m.workerID, cfg.HeartbeatInterval(), cfg.LeaseDuration())
	return m
}

// Register binds a handler to a command type. Registering a type twice
// replaces the earlier handler.
func (m *Manager) Register(commandType queue.Type, handler stage.Handler) error {
	if handler == nil {
		return fmt.Errorf("register %s: handler is nil", commandType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[commandType] = handler
	return nil
}

func (m *Manager) handlerFor(commandType queue.Type) (stage.Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handler, ok := m.handlers[commandType]
	return handler, ok
}

// WorkerID returns the identity used when claiming commands.
func (m *Manager) WorkerID() string {
	return m.workerID
}
