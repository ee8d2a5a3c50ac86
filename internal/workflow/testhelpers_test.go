package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"launchlock/internal/clock"
	"launchlock/internal/config"
	"launchlock/internal/notifications"
	"launchlock/internal/queue"
	"launchlock/internal/stage"
	"launchlock/internal/testsupport"
	"launchlock/internal/workflow"
)

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type stubHandler struct {
	name    string
	execute func(context.Context, *queue.Command) error

	mu    sync.Mutex
	calls []string
}

func newStubHandler(name string, execute func(context.Context, *queue.Command) error) *stubHandler {
	return &stubHandler{name: name, execute: execute}
}

func (s *stubHandler) Execute(ctx context.Context, cmd *queue.Command) error {
	s.mu.Lock()
	s.calls = append(s.calls, cmd.ID)
	s.mu.Unlock()
	if s.execute == nil {
		return nil
	}
	return s.execute(ctx, cmd)
}

func (s *stubHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.name)
}

func (s *stubHandler) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type recordedNotification struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedNotification
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedNotification{event: event, payload: payload})
	return nil
}

func (r *recordingNotifier) Events() []recordedNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedNotification(nil), r.events...)
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	clock    *clock.Fake
	notifier *recordingNotifier
	manager  *workflow.Manager
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	base := []testsupport.ConfigOption{testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Worker.HeartbeatInterval = 0
		cfg.Worker.QueuePollInterval = 1
		cfg.Worker.ErrorRetryInterval = 1
	})}
	cfg := testsupport.NewConfig(t, append(base, opts...)...)
	clk := clock.NewFake(testEpoch)
	store, _ := testsupport.MustOpenQueue(t, cfg, clk)
	notifier := &recordingNotifier{}
	mgr := workflow.NewManager(cfg, store, nil, workflow.WithNotifier(notifier), workflow.WithClock(clk))
	return &harness{cfg: cfg, store: store, clock: clk, notifier: notifier, manager: mgr}
}

func (h *harness) register(t *testing.T, commandType queue.Type, handler stage.Handler) {
	t.Helper()
	if err := h.manager.Register(commandType, handler); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func (h *harness) enqueuePublish(t *testing.T, opts queue.EnqueueOptions) string {
	t.Helper()
	return testsupport.MustEnqueue(t, h.store, queue.PublishPayload{SourceProductID: "acme-1", DryRun: true}, opts)
}

func (h *harness) runOnce(t *testing.T) bool {
	t.Helper()
	processed, err := h.manager.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	return processed
}

func (h *harness) get(t *testing.T, id string) *queue.Command {
	t.Helper()
	cmd, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get %s: %v", id, err)
	}
	return cmd
}
