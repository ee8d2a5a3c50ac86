package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"launchlock/internal/config"
	"launchlock/internal/notifications"
	"launchlock/internal/queue"
	"launchlock/internal/services"
	"launchlock/internal/stage"
	"launchlock/internal/testsupport"
)

func TestRunOnceSucceedsAndDrainsQueue(t *testing.T) {
	h := newHarness(t)
	handler := newStubHandler("publish", nil)
	h.register(t, queue.TypePublish, handler)
	id := h.enqueuePublish(t, queue.EnqueueOptions{})

	if !h.runOnce(t) {
		t.Fatal("expected a command to be processed")
	}
	if h.runOnce(t) {
		t.Fatal("expected empty queue on second cycle")
	}

	cmd := h.get(t, id)
	if cmd.Status != queue.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", cmd.Status)
	}
	if cmd.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", cmd.Attempts)
	}
	if cmd.ClaimedBy != "" {
		t.Fatalf("expected claim released, got %q", cmd.ClaimedBy)
	}
	if calls := handler.Calls(); len(calls) != 1 || calls[0] != id {
		t.Fatalf("unexpected handler calls: %v", calls)
	}
	if events := h.notifier.Events(); len(events) != 0 {
		t.Fatalf("expected no notifications, got %d", len(events))
	}
}

func TestRunOnceClassifiesHandlerErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus queue.Status
		wantCode   services.Code
		wantEvent  notifications.Event
	}{
		{
			name:       "policy",
			err:        services.PolicyFailure(services.CodePublishDailyQuotaReached, "quota of 50 reached"),
			wantStatus: queue.StatusHumanRequired,
			wantCode:   services.CodePublishDailyQuotaReached,
			wantEvent:  notifications.EventHumanRequired,
		},
		{
			name:       "validation",
			err:        services.NewFailure(services.ErrValidation, services.CodeListingNotLive, "listing is draft"),
			wantStatus: queue.StatusHumanRequired,
			wantCode:   services.CodeListingNotLive,
			wantEvent:  notifications.EventHumanRequired,
		},
		{
			name:       "fatal",
			err:        services.Wrap(services.ErrFatal, "test", "execute", "corrupt state", nil),
			wantStatus: queue.StatusFailedFatal,
			wantCode:   services.CodeInternalError,
			wantEvent:  notifications.EventFailedFatal,
		},
		{
			name:       "transient",
			err:        services.NewFailure(services.ErrTransient, services.CodeMarketplaceError, "503 from marketplace"),
			wantStatus: queue.StatusFailedRetryable,
			wantCode:   services.CodeMarketplaceError,
		},
		{
			name:       "unclassified",
			err:        errors.New("connection reset"),
			wantStatus: queue.StatusFailedRetryable,
			wantCode:   services.CodeTransientError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.register(t, queue.TypePublish, newStubHandler("publish", func(context.Context, *queue.Command) error {
				return tc.err
			}))
			id := h.enqueuePublish(t, queue.EnqueueOptions{})
			h.runOnce(t)

			cmd := h.get(t, id)
			if cmd.Status != tc.wantStatus {
				t.Fatalf("expected %s, got %s", tc.wantStatus, cmd.Status)
			}
			if cmd.ErrorCode != string(tc.wantCode) {
				t.Fatalf("expected code %s, got %s", tc.wantCode, cmd.ErrorCode)
			}
			if cmd.LastError == "" {
				t.Fatal("expected last error recorded")
			}

			events := h.notifier.Events()
			if tc.wantEvent == "" {
				if len(events) != 0 {
					t.Fatalf("expected no notification, got %v", events)
				}
				return
			}
			if len(events) != 1 || events[0].event != tc.wantEvent {
				t.Fatalf("expected one %s notification, got %v", tc.wantEvent, events)
			}
			if events[0].payload["command_id"] != id {
				t.Fatalf("notification missing command id: %v", events[0].payload)
			}
		})
	}
}

func TestTransientFailureBacksOffThenRetries(t *testing.T) {
	h := newHarness(t)
	var attempts []int
	h.register(t, queue.TypePublish, newStubHandler("publish", func(_ context.Context, cmd *queue.Command) error {
		attempts = append(attempts, cmd.Attempts)
		if cmd.Attempts == 1 {
			return services.NewFailure(services.ErrTransient, services.CodeMarketplaceError, "timeout")
		}
		return nil
	}))
	id := h.enqueuePublish(t, queue.EnqueueOptions{})

	h.runOnce(t)
	cmd := h.get(t, id)
	if cmd.Status != queue.StatusFailedRetryable {
		t.Fatalf("expected failed_retryable, got %s", cmd.Status)
	}
	wantRetry := testEpoch.Add(h.cfg.RetryBackoff(1))
	if !cmd.NextAttemptAt.Equal(wantRetry) {
		t.Fatalf("expected next attempt at %s, got %s", wantRetry, cmd.NextAttemptAt)
	}

	if h.runOnce(t) {
		t.Fatal("command claimed before its backoff elapsed")
	}

	h.clock.Advance(h.cfg.RetryBackoff(1))
	if !h.runOnce(t) {
		t.Fatal("expected retry once backoff elapsed")
	}
	if cmd := h.get(t, id); cmd.Status != queue.StatusSucceeded {
		t.Fatalf("expected succeeded after retry, got %s", cmd.Status)
	}
	if len(attempts) != 2 || attempts[1] != 2 {
		t.Fatalf("unexpected attempt sequence %v", attempts)
	}
}

func TestTransientFailureExhaustsRetries(t *testing.T) {
	h := newHarness(t)
	h.register(t, queue.TypePublish, newStubHandler("publish", func(context.Context, *queue.Command) error {
		return services.NewFailure(services.ErrTransient, services.CodeMarketplaceError, "still down")
	}))
	id := h.enqueuePublish(t, queue.EnqueueOptions{MaxAttempts: 1})

	h.runOnce(t)

	cmd := h.get(t, id)
	if cmd.Status != queue.StatusHumanRequired {
		t.Fatalf("expected human_required, got %s", cmd.Status)
	}
	if cmd.ErrorCode != string(services.CodeRetriesExhausted) {
		t.Fatalf("expected RETRIES_EXHAUSTED, got %s", cmd.ErrorCode)
	}
	if events := h.notifier.Events(); len(events) != 1 || events[0].event != notifications.EventHumanRequired {
		t.Fatalf("expected human_required notification, got %v", events)
	}
}

func TestHandlerSettledStatusIsNeverOverwritten(t *testing.T) {
	tests := []struct {
		name string
		ret  error
	}{
		{name: "nil result"},
		{name: "error result", ret: errors.New("ignored")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.register(t, queue.TypePublish, newStubHandler("publish", func(_ context.Context, cmd *queue.Command) error {
				stage.RequireHuman(cmd, services.GateFailure("trust", services.CodeTrustScoreTooLow, "score 40 below 95"))
				return tc.ret
			}))
			id := h.enqueuePublish(t, queue.EnqueueOptions{})
			h.runOnce(t)

			cmd := h.get(t, id)
			if cmd.Status != queue.StatusHumanRequired {
				t.Fatalf("expected human_required, got %s", cmd.Status)
			}
			if cmd.ErrorCode != string(services.CodeTrustScoreTooLow) {
				t.Fatalf("expected TRUST_SCORE_TOO_LOW, got %s", cmd.ErrorCode)
			}
			if cmd.ErrorMessage != "score 40 below 95" {
				t.Fatalf("unexpected message %q", cmd.ErrorMessage)
			}
		})
	}
}

func TestUnknownCommandTypeFailsFatal(t *testing.T) {
	h := newHarness(t)
	h.register(t, queue.TypePublish, newStubHandler("publish", nil))
	id := testsupport.MustEnqueue(t, h.store, queue.WithdrawPayload{ListingID: "l-1", Reason: "discontinued"}, queue.EnqueueOptions{})

	h.runOnce(t)

	cmd := h.get(t, id)
	if cmd.Status != queue.StatusFailedFatal {
		t.Fatalf("expected failed_fatal, got %s", cmd.Status)
	}
	if cmd.ErrorCode != string(services.CodeUnknownCommandType) {
		t.Fatalf("expected UNKNOWN_COMMAND_TYPE, got %s", cmd.ErrorCode)
	}
	if events := h.notifier.Events(); len(events) != 1 || events[0].event != notifications.EventFailedFatal {
		t.Fatalf("expected failed_fatal notification, got %v", events)
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	h := newHarness(t)
	h.register(t, queue.TypePublish, newStubHandler("publish", func(context.Context, *queue.Command) error {
		panic("nil map write")
	}))
	id := h.enqueuePublish(t, queue.EnqueueOptions{})

	h.runOnce(t)

	cmd := h.get(t, id)
	if cmd.Status != queue.StatusFailedFatal {
		t.Fatalf("expected failed_fatal, got %s", cmd.Status)
	}
	if cmd.ErrorCode != string(services.CodeHandlerPanic) {
		t.Fatalf("expected HANDLER_PANIC, got %s", cmd.ErrorCode)
	}
}

func TestOperatorCancelInterruptsRunningHandler(t *testing.T) {
	h := newHarness(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Worker.HeartbeatInterval = 1
	}))
	interrupted := make(chan struct{})
	h.register(t, queue.TypePublish, newStubHandler("publish", func(ctx context.Context, cmd *queue.Command) error {
		if err := h.store.Cancel(context.Background(), cmd.ID, "operator stop"); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			close(interrupted)
			return stage.CheckCancelled(ctx)
		case <-time.After(10 * time.Second):
			return errors.New("handler was not interrupted")
		}
	}))
	id := h.enqueuePublish(t, queue.EnqueueOptions{})

	h.runOnce(t)

	select {
	case <-interrupted:
	default:
		t.Fatal("expected handler context to be cancelled")
	}
	cmd := h.get(t, id)
	if cmd.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled to be kept, got %s", cmd.Status)
	}
	if cmd.ErrorMessage != "operator stop" {
		t.Fatalf("expected operator reason kept, got %q", cmd.ErrorMessage)
	}
}

func TestShutdownReturnsCommandToQueue(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.register(t, queue.TypePublish, newStubHandler("publish", func(handlerCtx context.Context, _ *queue.Command) error {
		cancel()
		return stage.CheckCancelled(handlerCtx)
	}))
	id := h.enqueuePublish(t, queue.EnqueueOptions{})

	if _, err := h.manager.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if cmd := h.get(t, id); cmd.Status != queue.StatusPending {
		t.Fatalf("expected pending after shutdown, got %s", cmd.Status)
	}
}

func TestRunOnceReclaimsExpiredLease(t *testing.T) {
	h := newHarness(t)
	handler := newStubHandler("publish", nil)
	h.register(t, queue.TypePublish, handler)
	id := h.enqueuePublish(t, queue.EnqueueOptions{})

	claimed, err := h.store.ClaimNext(context.Background(), "crashed-worker", time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v %v", claimed, err)
	}
	if h.runOnce(t) {
		t.Fatal("leased command must not be claimed by another worker")
	}

	h.clock.Advance(2 * time.Minute)
	if !h.runOnce(t) {
		t.Fatal("expected expired lease to be reclaimed and processed")
	}
	cmd := h.get(t, id)
	if cmd.Status != queue.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", cmd.Status)
	}
	if cmd.Attempts != 2 {
		t.Fatalf("expected the crashed attempt to count, got %d attempts", cmd.Attempts)
	}
}

func TestStartProcessesUntilStopped(t *testing.T) {
	h := newHarness(t)
	if err := h.manager.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail without handlers")
	}

	done := make(chan string, 1)
	h.register(t, queue.TypePublish, newStubHandler("publish", func(_ context.Context, cmd *queue.Command) error {
		done <- cmd.ID
		return nil
	}))
	id := h.enqueuePublish(t, queue.EnqueueOptions{})

	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.manager.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	select {
	case got := <-done:
		if got != id {
			t.Fatalf("processed %s, want %s", got, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command not processed")
	}
	h.manager.Stop()
	h.manager.Stop()

	if cmd := h.get(t, id); cmd.Status != queue.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", cmd.Status)
	}
	status := h.manager.Status(context.Background())
	if status.Running {
		t.Fatal("expected stopped manager")
	}
	if status.WorkerID != "test-worker" {
		t.Fatalf("unexpected worker id %q", status.WorkerID)
	}
	if status.LastCommand == nil || status.LastCommand.ID != id {
		t.Fatalf("expected last command %s, got %+v", id, status.LastCommand)
	}
	if status.QueueStats[queue.StatusSucceeded] != 1 {
		t.Fatalf("unexpected queue stats %v", status.QueueStats)
	}
	if health := status.HandlerHealth[queue.TypePublish]; !health.Ready {
		t.Fatalf("expected healthy publish handler, got %+v", health)
	}
}
