package workflow

import (
	"context"
	"sort"

	"launchlock/internal/logging"
	"launchlock/internal/queue"
	"launchlock/internal/stage"
)

// StatusSummary represents lightweight worker diagnostics.
type StatusSummary struct {
	Running       bool
	WorkerID      string
	LastError     string
	LastCommand   *queue.Command
	QueueStats    map[queue.Status]int
	HandlerHealth map[queue.Type]stage.Health
}

// Status returns the latest worker information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastCommand := m.lastCommand
	handlers := make(map[queue.Type]stage.Handler, len(m.handlers))
	for commandType, handler := range m.handlers {
		handlers[commandType] = handler
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	health := make(map[queue.Type]stage.Health, len(handlers))
	for commandType, handler := range handlers {
		health[commandType] = handler.HealthCheck(ctx)
	}

	summary := StatusSummary{Running: running, WorkerID: m.workerID, QueueStats: stats, HandlerHealth: health}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastCommand != nil {
		copy := *lastCommand
		summary.LastCommand = &copy
	}
	return summary
}

// RegisteredTypes lists the command types with a handler, sorted.
func (m *Manager) RegisteredTypes() []queue.Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]queue.Type, 0, len(m.handlers))
	for commandType := range m.handlers {
		types = append(types, commandType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastCommand(cmd *queue.Command) {
	m.mu.Lock()
	if cmd != nil {
		copy := *cmd
		m.lastCommand = &copy
	} else {
		m.lastCommand = nil
	}
	m.mu.Unlock()
}

func (m *Manager) refreshLastCommand(ctx context.Context, id string) {
	cmd, err := m.store.Get(ctx, id)
	if err != nil {
		return
	}
	m.setLastCommand(cmd)
}
