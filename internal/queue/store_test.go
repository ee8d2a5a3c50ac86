package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"launchlock/internal/clock"
	"launchlock/internal/logging"
	"launchlock/internal/queue"
	"launchlock/internal/services"
	"launchlock/internal/testsupport"
)

var testStart = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*queue.Store, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testStart)
	store, _ := testsupport.MustOpenQueue(t, testsupport.NewConfig(t), clk)
	return store, clk
}

func TestEnqueueValidatesPayloads(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		payload queue.Payload
		wantErr bool
	}{
		{"publish", queue.PublishPayload{SourceProductID: "sp-1", DryRun: true}, false},
		{"publish missing source", queue.PublishPayload{DryRun: true}, true},
		{"approval on dry run", queue.PublishPayload{SourceProductID: "sp-1", DryRun: true, ApprovedFromDryRun: "l-1"}, true},
		{"price", queue.PriceUpdatePayload{ListingID: "l-1", NewPrice: 19.99}, false},
		{"price zero", queue.PriceUpdatePayload{ListingID: "l-1"}, true},
		{"withdraw missing reason", queue.WithdrawPayload{ListingID: "l-1"}, true},
		{"nil", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := store.Enqueue(ctx, tc.payload, queue.EnqueueOptions{})
			if tc.wantErr {
				if !errors.Is(err, queue.ErrInvalidPayload) {
					t.Fatalf("expected ErrInvalidPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			cmd, err := store.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if cmd.Status != queue.StatusPending || cmd.Attempts != 0 || cmd.MaxAttempts != queue.DefaultMaxAttempts {
				t.Fatalf("unexpected new command: %+v", cmd)
			}
			payload, err := cmd.Payload()
			if err != nil {
				t.Fatalf("Payload: %v", err)
			}
			if payload.CommandType() != tc.payload.CommandType() {
				t.Fatalf("payload type mismatch: %s", payload.CommandType())
			}
		})
	}
}

func TestEnqueueWithIDIsIdempotent(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	opts := queue.EnqueueOptions{ID: "fixed-id"}
	first := testsupport.MustEnqueue(t, store, queue.WithdrawPayload{ListingID: "l-1", Reason: "eol"}, opts)
	second := testsupport.MustEnqueue(t, store, queue.WithdrawPayload{ListingID: "l-2", Reason: "other"}, opts)
	if first != second {
		t.Fatalf("expected same id, got %s and %s", first, second)
	}
	commands, err := store.List(ctx, queue.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(commands) != 1 {
		t.Fatalf("expected a single command, got %d", len(commands))
	}
	payload, _ := commands[0].Payload()
	if payload.(queue.WithdrawPayload).ListingID != "l-1" {
		t.Fatalf("expected original payload to be kept, got %+v", payload)
	}
}

func TestClaimNextOrdersByPriorityThenCreation(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	low := testsupport.MustEnqueue(t, store, queue.PublishPayload{SourceProductID: "a", DryRun: true}, queue.EnqueueOptions{})
	high := testsupport.MustEnqueue(t, store, queue.PublishPayload{SourceProductID: "b", DryRun: true}, queue.EnqueueOptions{Priority: 5})
	low2 := testsupport.MustEnqueue(t, store, queue.PublishPayload{SourceProductID: "c", DryRun: true}, queue.EnqueueOptions{})

	var order []string
	for i := 0; i < 3; i++ {
		cmd, err := store.ClaimNext(ctx, "w1", time.Minute)
		if err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		if cmd == nil {
			t.Fatal("expected a command")
		}
		if cmd.Status != queue.StatusExecuting || cmd.Attempts != 1 || cmd.ClaimedBy != "w1" {
			t.Fatalf("unexpected claimed command: %+v", cmd)
		}
		if !cmd.LeaseExpiresAt.Equal(testStart.Add(time.Minute)) {
			t.Fatalf("unexpected lease: %v", cmd.LeaseExpiresAt)
		}
		order = append(order, cmd.ID)
	}
	want := []string{high, low, low2}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("claim order = %v, want %v", order, want)
		}
	}

	cmd, err := store.ClaimNext(ctx, "w1", time.Minute)
	if err != nil || cmd != nil {
		t.Fatalf("expected nothing claimable, got %+v %v", cmd, err)
	}
}

func TestClaimNextIsExclusiveUnderConcurrency(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, queue.PublishPayload{SourceProductID: "only", DryRun: true}, queue.EnqueueOptions{})

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd, err := store.ClaimNext(ctx, "w", time.Minute)
			if err != nil {
				t.Errorf("ClaimNext: %v", err)
				return
			}
			if cmd != nil {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if claims != 1 {
		t.Fatalf("expected exactly one claim, got %d", claims)
	}
}

func TestFailedRetryableWaitsForNextAttempt(t *testing.T) {
	store, clk := newStore(t)
	ctx := context.Background()
	id := testsupport.MustEnqueue(t, store, queue.PublishPayload{SourceProductID: "a", DryRun: true}, queue.EnqueueOptions{})

	if _, err := store.ClaimNext(ctx, "w", time.Minute); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	cause := services.Wrap(services.ErrTransient, "marketplace", "publish", "503", nil)
	if err := store.Transition(ctx, id, queue.StatusFailedRetryable, cause, queue.RetryAt(testStart.Add(30*time.Second))); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	cmd, _ := store.Get(ctx, id)
	if cmd.ErrorCode != string(services.CodeTransientError) || cmd.ClaimedBy != "" || cmd.LastError == "" {
		t.Fatalf("unexpected failure bookkeeping: %+v", cmd)
	}

	if cmd, _ := store.ClaimNext(ctx, "w", time.Minute); cmd != nil {
		t.Fatal("retry should not be claimable before next_attempt_at")
	}
	clk.Advance(31 * time.Second)
	cmd, err := store.ClaimNext(ctx, "w", time.Minute)
	if err != nil || cmd == nil {
		t.Fatalf("expected retry claim, got %+v %v", cmd, err)
	}
	if cmd.Attempts != 2 {
		t.Fatalf("expected attempt 2, got %d", cmd.Attempts)
	}
}

func TestTransitionLegality(t *testing.T) {
	for _, from := range queue.AllStatuses() {
		for _, to := range queue.AllStatuses() {
			legal := queue.CanTransition(from, to)
			if from.IsTerminal() && legal {
				t.Fatalf("terminal %s must not transition to %s", from, to)
			}
			if to == queue.StatusSucceeded && legal && from != queue.StatusExecuting {
				t.Fatalf("only executing may succeed, got %s", from)
			}
		}
	}
	for _, terminal := range []queue.Status{queue.StatusSucceeded, queue.StatusFailedFatal, queue.StatusCancelled} {
		if !terminal.IsTerminal() {
			t.Fatalf("expected %s terminal", terminal)
		}
	}
	if queue.StatusHumanRequired.IsTerminal() {
		t.Fatal("human_required must not be terminal")
	}
}

func TestTransitionRejectsIllegalAndConflicts(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := testsupport.MustEnqueue(t, store, queue.PublishPayload{SourceProductID: "a", DryRun: true}, queue.EnqueueOptions{})

	err := store.Transition(ctx, id, queue.StatusSucceeded, nil)
	var illegal *queue.IllegalTransitionError
	if !errors.As(err, &illegal) || illegal.From != queue.StatusPending || illegal.To != queue.StatusSucceeded {
		t.Fatalf("expected illegal pending->succeeded, got %v", err)
	}

	if _, err := store.ClaimNext(ctx, "w1", time.Minute); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := store.Cancel(ctx, id, "operator"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	err = store.Transition(ctx, id, queue.StatusSucceeded, nil, queue.ExpectStatus(queue.StatusExecuting), queue.OwnedBy("w1"))
	if !errors.Is(err, queue.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict after cancel, got %v", err)
	}
	cmd, _ := store.Get(ctx, id)
	if cmd.Status != queue.StatusCancelled || cmd.ErrorCode != string(services.CodeCancelled) {
		t.Fatalf("expected cancelled to persist, got %+v", cmd)
	}
	if err := store.Cancel(ctx, id, "again"); !errors.As(err, &illegal) {
		t.Fatalf("expected illegal transition cancelling a cancelled command, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAcknowledgeResetsAttempts(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := testsupport.MustEnqueue(t, store, queue.PublishPayload{SourceProductID: "a", DryRun: true}, queue.EnqueueOptions{})

	if err := store.Acknowledge(ctx, id); err == nil {
		t.Fatal("expected acknowledge of pending command to fail")
	}
	if _, err := store.ClaimNext(ctx, "w", time.Minute); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	block := services.PolicyFailure(services.CodeSupplierDisabled, "supplier acme disabled")
	if err := store.Transition(ctx, id, queue.StatusHumanRequired, block); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	cmd, _ := store.Get(ctx, id)
	if cmd.ErrorCode != string(services.CodeSupplierDisabled) || cmd.ErrorMessage != "supplier acme disabled" {
		t.Fatalf("unexpected error fields: %+v", cmd)
	}

	if err := store.Acknowledge(ctx, id); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	cmd, _ = store.Get(ctx, id)
	if cmd.Status != queue.StatusPending || cmd.Attempts != 0 || cmd.ErrorCode != "" {
		t.Fatalf("unexpected acknowledged command: %+v", cmd)
	}
}

func TestReclaimExpiredLeases(t *testing.T) {
	store, clk := newStore(t)
	ctx := context.Background()
	fresh := testsupport.MustEnqueue(t, store, queue.PublishPayload{SourceProductID: "a", DryRun: true}, queue.EnqueueOptions{})
	spent := testsupport.MustEnqueue(t, store, queue.PublishPayload{SourceProductID: "b", DryRun: true}, queue.EnqueueOptions{MaxAttempts: 1})

	for i := 0; i < 2; i++ {
		if cmd, err := store.ClaimNext(ctx, "crashed", time.Minute); err != nil || cmd == nil {
			t.Fatalf("ClaimNext: %+v %v", cmd, err)
		}
	}
	if n, err := store.ReclaimExpiredLeases(ctx, clk.Now()); err != nil || n != 0 {
		t.Fatalf("expected nothing reclaimed before expiry, got %d %v", n, err)
	}

	clk.Advance(2 * time.Minute)
	n, err := store.ReclaimExpiredLeases(ctx, clk.Now())
	if err != nil {
		t.Fatalf("ReclaimExpiredLeases: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 reclaimed, got %d", n)
	}
	if cmd, _ := store.Get(ctx, fresh); cmd.Status != queue.StatusPending || cmd.ClaimedBy != "" {
		t.Fatalf("expected fresh command back to pending, got %+v", cmd)
	}
	if cmd, _ := store.Get(ctx, spent); cmd.Status != queue.StatusHumanRequired || cmd.ErrorCode != string(services.CodeRetriesExhausted) {
		t.Fatalf("expected spent command to need a human, got %+v", cmd)
	}
}

func TestHeartbeatExtendsLeaseAndReportsCancellation(t *testing.T) {
	store, clk := newStore(t)
	ctx := context.Background()
	id := testsupport.MustEnqueue(t, store, queue.PublishPayload{SourceProductID: "a", DryRun: true}, queue.EnqueueOptions{})
	if _, err := store.ClaimNext(ctx, "w", time.Minute); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	clk.Advance(50 * time.Second)
	status, err := store.Heartbeat(ctx, id, "w", time.Minute)
	if err != nil || status != queue.StatusExecuting {
		t.Fatalf("Heartbeat: %s %v", status, err)
	}
	cmd, _ := store.Get(ctx, id)
	if !cmd.LeaseExpiresAt.Equal(testStart.Add(110 * time.Second)) {
		t.Fatalf("expected lease extended, got %v", cmd.LeaseExpiresAt)
	}

	if err := store.Cancel(ctx, id, "stop"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	status, err = store.Heartbeat(ctx, id, "w", time.Minute)
	if err != nil || status != queue.StatusCancelled {
		t.Fatalf("expected cancelled status from heartbeat, got %s %v", status, err)
	}
}

func TestProgressAndLogs(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := testsupport.MustEnqueue(t, store, queue.PublishPayload{SourceProductID: "a", DryRun: true}, queue.EnqueueOptions{})

	if _, ok, err := store.GetProgress(ctx, id); err != nil || ok {
		t.Fatalf("expected no progress yet, got %v %v", ok, err)
	}
	if err := store.SetProgress(ctx, id, queue.Progress{Phase: "photos", Done: 1, Total: 4}); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	if err := store.SetProgress(ctx, id, queue.Progress{Phase: "photos", Done: 3, Total: 4, Message: "uploading"}); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	progress, ok, err := store.GetProgress(ctx, id)
	if err != nil || !ok || progress.Done != 3 || progress.Message != "uploading" {
		t.Fatalf("unexpected progress: %+v %v %v", progress, ok, err)
	}

	if err := store.AppendLog(ctx, queue.LogEntry{CommandID: id, Level: "INFO", Message: "first"}); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if err := store.AppendCommandLog(ctx, logging.CommandLogEntry{
		CommandID: id, Level: "warn", Message: "second", Attrs: map[string]any{"error_code": "X"},
	}); err != nil {
		t.Fatalf("AppendCommandLog: %v", err)
	}
	logs, err := store.Logs(ctx, id, 0, 0)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(logs) != 2 || logs[0].Message != "first" || logs[0].Level != "info" || logs[1].AttrsJSON != `{"error_code":"X"}` {
		t.Fatalf("unexpected logs: %+v", logs)
	}
	tail, err := store.Logs(ctx, id, logs[0].ID, 10)
	if err != nil || len(tail) != 1 || tail[0].Message != "second" {
		t.Fatalf("unexpected tail: %+v %v", tail, err)
	}
}

func TestFailureStatus(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		attempts int
		want     queue.Status
	}{
		{"policy", services.PolicyFailure(services.CodePublishDisabled, "off"), 1, queue.StatusHumanRequired},
		{"validation", services.Wrap(services.ErrValidation, "marketplace", "validate", "bad", nil), 1, queue.StatusHumanRequired},
		{"fatal", services.NewFailure(services.ErrFatal, services.CodeUnknownCommandType, "x"), 1, queue.StatusFailedFatal},
		{"transient", errors.New("reset by peer"), 1, queue.StatusFailedRetryable},
		{"transient exhausted", errors.New("reset by peer"), 3, queue.StatusHumanRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := queue.FailureStatus(tc.err, tc.attempts, 3); got != tc.want {
				t.Fatalf("FailureStatus = %s, want %s", got, tc.want)
			}
		})
	}
}
