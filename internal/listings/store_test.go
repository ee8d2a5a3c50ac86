package listings_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"launchlock/internal/clock"
	"launchlock/internal/listings"
	"launchlock/internal/queue"
	"launchlock/internal/testsupport"
)

type fixture struct {
	store    *listings.Store
	commands *queue.Store
	clock    *clock.Fake
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 6, 3, 8, 0, 0, 0, time.UTC))
	commands, db := testsupport.MustOpenQueue(t, testsupport.NewConfig(t), clk)
	return fixture{store: listings.NewStore(db, clk), commands: commands, clock: clk}
}

func (f fixture) publishCommand(t *testing.T, dryRun bool) string {
	t.Helper()
	return testsupport.MustEnqueue(t, f.commands, queue.PublishPayload{SourceProductID: "sp-1", DryRun: dryRun}, queue.EnqueueOptions{})
}

func TestDraftRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmdID := f.publishCommand(t, true)

	if _, err := f.store.GetDraft(ctx, cmdID); !errors.Is(err, listings.ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound, got %v", err)
	}
	draft := listings.Draft{
		CommandID:       cmdID,
		SourceProductID: "sp-1",
		PayloadJSON:     `{"title":"Hose"}`,
		PayloadHash:     "p1",
		SnapshotHash:    "s1",
		Validation:      &listings.Validation{Passed: true},
	}
	if err := f.store.SaveDraft(ctx, draft); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	draft.PayloadHash = "p2"
	draft.Validation = &listings.Validation{Gate: "trust", Code: "TRUST_SCORE_TOO_LOW", Message: "score 80"}
	if err := f.store.SaveDraft(ctx, draft); err != nil {
		t.Fatalf("SaveDraft overwrite: %v", err)
	}
	got, err := f.store.GetDraft(ctx, cmdID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if got.PayloadHash != "p2" || got.Validation == nil || got.Validation.Code != "TRUST_SCORE_TOO_LOW" {
		t.Fatalf("unexpected draft: %+v", got)
	}
}

func TestSaveDryRunIsStableAcrossRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmdID := f.publishCommand(t, true)

	first, err := f.store.SaveDryRun(ctx, listings.Record{CommandID: cmdID, SourceProductID: "sp-1", PayloadHash: "p1", DesiredPrice: 57.95})
	if err != nil {
		t.Fatalf("SaveDryRun: %v", err)
	}
	if first.State != listings.StateDryRun || !first.DryRun || !strings.HasPrefix(first.ExternalID, listings.DryRunPrefix) {
		t.Fatalf("unexpected dry-run listing: %+v", first)
	}
	if first.HasExternalID() {
		t.Fatal("dry-run ids are not real external ids")
	}
	second, err := f.store.SaveDryRun(ctx, listings.Record{CommandID: cmdID, SourceProductID: "sp-1", PayloadHash: "p2", DesiredPrice: 57.95})
	if err != nil {
		t.Fatalf("SaveDryRun again: %v", err)
	}
	if second.ID != first.ID || second.ExternalID != first.ExternalID || second.PayloadHash != "p2" {
		t.Fatalf("retry changed identity: %+v vs %+v", second, first)
	}
}

func TestBeginPublishIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmdID := f.publishCommand(t, false)
	rec := listings.Record{CommandID: cmdID, SourceProductID: "sp-1", PayloadHash: "p1", DesiredPrice: 57.95}

	listing, created, err := f.store.BeginPublish(ctx, rec)
	if err != nil {
		t.Fatalf("BeginPublish: %v", err)
	}
	if !created || listing.State != listings.StatePublishing || listing.ExternalID != "" {
		t.Fatalf("unexpected intent: created=%v %+v", created, listing)
	}

	again, created, err := f.store.BeginPublish(ctx, rec)
	if err != nil {
		t.Fatalf("BeginPublish again: %v", err)
	}
	if created || again.ID != listing.ID {
		t.Fatalf("second BeginPublish must return the existing row, created=%v", created)
	}

	if err := f.store.MarkBlocked(ctx, listing.ID, "MARKETPLACE_REJECTED", "bad category"); err != nil {
		t.Fatalf("MarkBlocked: %v", err)
	}
	reset, created, err := f.store.BeginPublish(ctx, rec)
	if err != nil {
		t.Fatalf("BeginPublish after block: %v", err)
	}
	if !created || reset.State != listings.StatePublishing || reset.BlockCode != "" {
		t.Fatalf("blocked intent must reset, created=%v %+v", created, reset)
	}

	if err := f.store.MarkPublished(ctx, listing.ID, "ext-1"); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	live, created, err := f.store.BeginPublish(ctx, rec)
	if err != nil {
		t.Fatalf("BeginPublish after publish: %v", err)
	}
	if created || !live.HasExternalID() || live.State != listings.StateLive || live.PublishedAt.IsZero() {
		t.Fatalf("published row must be returned untouched, created=%v %+v", created, live)
	}

	if _, err := f.store.RecordBlocked(ctx, listings.Block{CommandID: cmdID, SourceProductID: "sp-1", Code: "X", Reason: "late"}); err != nil {
		t.Fatalf("RecordBlocked: %v", err)
	}
	still, err := f.store.Get(ctx, listing.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if still.State != listings.StateLive {
		t.Fatalf("live listing downgraded to %s", still.State)
	}
}

func TestBeginPublishConsumesDryRunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dry := f.publishCommand(t, true)
	if _, err := f.store.SaveDryRun(ctx, listings.Record{CommandID: dry, SourceProductID: "sp-1", PayloadHash: "p1"}); err != nil {
		t.Fatalf("SaveDryRun: %v", err)
	}

	first := f.publishCommand(t, false)
	rec := listings.Record{CommandID: first, SourceProductID: "sp-1", ApprovedFromDryRun: dry}
	listing, _, err := f.store.BeginPublish(ctx, rec)
	if err != nil {
		t.Fatalf("BeginPublish: %v", err)
	}
	if err := f.store.MarkBlocked(ctx, listing.ID, "MARKETPLACE_REJECTED", "bad category"); err != nil {
		t.Fatalf("MarkBlocked: %v", err)
	}
	if _, created, err := f.store.BeginPublish(ctx, rec); err != nil || !created {
		t.Fatalf("retry of the approving command must pass, created=%v err=%v", created, err)
	}

	consumed, err := f.store.GetByCommand(ctx, dry)
	if err != nil {
		t.Fatalf("GetByCommand: %v", err)
	}
	if consumed.State != listings.StateApproved || consumed.ApprovedBy != first {
		t.Fatalf("expected dry run approved by %s, got %s/%s", first, consumed.State, consumed.ApprovedBy)
	}
	if again, err := f.store.SaveDryRun(ctx, listings.Record{CommandID: dry, SourceProductID: "sp-1", PayloadHash: "p2"}); err != nil || again.State != listings.StateApproved {
		t.Fatalf("re-running the dry run must not reopen it: %+v, %v", again, err)
	}

	second := f.publishCommand(t, false)
	_, _, err = f.store.BeginPublish(ctx, listings.Record{CommandID: second, SourceProductID: "sp-1", ApprovedFromDryRun: dry})
	if !errors.Is(err, listings.ErrSourceListed) {
		t.Fatalf("expected ErrSourceListed while the first publish is active, got %v", err)
	}
	if err := f.store.MarkWithdrawn(ctx, listing.ID, "eol"); err != nil {
		t.Fatalf("MarkWithdrawn: %v", err)
	}
	_, _, err = f.store.BeginPublish(ctx, listings.Record{CommandID: second, SourceProductID: "sp-1", ApprovedFromDryRun: dry})
	if !errors.Is(err, listings.ErrDryRunConsumed) {
		t.Fatalf("expected ErrDryRunConsumed, got %v", err)
	}
	if _, err := f.store.GetByCommand(ctx, second); !errors.Is(err, listings.ErrNotFound) {
		t.Fatalf("refused publish must not leave an intent row, got %v", err)
	}
}

func TestBeginPublishRefusesSecondActiveListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.publishCommand(t, false)
	listing, _, err := f.store.BeginPublish(ctx, listings.Record{CommandID: first, SourceProductID: "sp-1"})
	if err != nil {
		t.Fatalf("BeginPublish: %v", err)
	}

	second := f.publishCommand(t, false)
	if _, _, err := f.store.BeginPublish(ctx, listings.Record{CommandID: second, SourceProductID: "sp-1"}); !errors.Is(err, listings.ErrSourceListed) {
		t.Fatalf("expected ErrSourceListed for a publishing row, got %v", err)
	}
	if err := f.store.MarkPublished(ctx, listing.ID, "ext-1"); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	if _, _, err := f.store.BeginPublish(ctx, listings.Record{CommandID: second, SourceProductID: "sp-1"}); !errors.Is(err, listings.ErrSourceListed) {
		t.Fatalf("expected ErrSourceListed for a live row, got %v", err)
	}
	if err := f.store.MarkWithdrawn(ctx, listing.ID, "relist"); err != nil {
		t.Fatalf("MarkWithdrawn: %v", err)
	}
	if _, created, err := f.store.BeginPublish(ctx, listings.Record{CommandID: second, SourceProductID: "sp-1"}); err != nil || !created {
		t.Fatalf("publish after withdrawal must pass, created=%v err=%v", created, err)
	}
}

func TestResolveIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lost := f.publishCommand(t, false)
	if _, _, err := f.store.BeginPublish(ctx, listings.Record{CommandID: lost, SourceProductID: "sp-1"}); err != nil {
		t.Fatalf("BeginPublish: %v", err)
	}
	blocked, err := f.store.ResolveIntent(ctx, lost, "")
	if err != nil {
		t.Fatalf("ResolveIntent: %v", err)
	}
	if blocked.State != listings.StateBlocked {
		t.Fatalf("expected blocked, got %s", blocked.State)
	}

	found := f.publishCommand(t, false)
	if _, _, err := f.store.BeginPublish(ctx, listings.Record{CommandID: found, SourceProductID: "sp-2"}); err != nil {
		t.Fatalf("BeginPublish: %v", err)
	}
	live, err := f.store.ResolveIntent(ctx, found, "ext-9")
	if err != nil {
		t.Fatalf("ResolveIntent: %v", err)
	}
	if live.State != listings.StateLive || live.ExternalID != "ext-9" {
		t.Fatalf("unexpected resolved listing: %+v", live)
	}
	if _, err := f.store.ResolveIntent(ctx, found, ""); err == nil {
		t.Fatal("resolving a live listing must fail")
	}
}

func TestPublishCounting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()

	for i := 0; i < 3; i++ {
		cmdID := f.publishCommand(t, false)
		listing, _, err := f.store.BeginPublish(ctx, listings.Record{CommandID: cmdID, SourceProductID: fmt.Sprintf("sp-%d", i)})
		if err != nil {
			t.Fatalf("BeginPublish: %v", err)
		}
		if err := f.store.MarkPublished(ctx, listing.ID, "ext-"+cmdID); err != nil {
			t.Fatalf("MarkPublished: %v", err)
		}
		f.clock.Advance(20 * time.Second)
	}
	dry := f.publishCommand(t, true)
	if _, err := f.store.SaveDryRun(ctx, listings.Record{CommandID: dry, SourceProductID: "sp-1"}); err != nil {
		t.Fatalf("SaveDryRun: %v", err)
	}

	n, err := f.store.CountPublishedSince(ctx, start)
	if err != nil || n != 3 {
		t.Fatalf("CountPublishedSince = %d, %v", n, err)
	}
	times, err := f.store.PublishTimesSince(ctx, start.Add(time.Second))
	if err != nil {
		t.Fatalf("PublishTimesSince: %v", err)
	}
	if len(times) != 2 || !times[0].Before(times[1]) {
		t.Fatalf("unexpected publish times: %v", times)
	}

	live, err := f.store.List(ctx, listings.Filter{States: []listings.State{listings.StateLive}})
	if err != nil || len(live) != 3 {
		t.Fatalf("List live = %d, %v", len(live), err)
	}
	if err := f.store.MarkWithdrawn(ctx, live[0].ID, "eol"); err != nil {
		t.Fatalf("MarkWithdrawn: %v", err)
	}
	if n, _ := f.store.CountPublishedSince(ctx, start); n != 3 {
		t.Fatalf("withdrawn listings still count towards publishes, got %d", n)
	}
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmdID := f.publishCommand(t, true)
	listing, err := f.store.SaveDryRun(ctx, listings.Record{CommandID: cmdID, SourceProductID: "sp-1"})
	if err != nil {
		t.Fatalf("SaveDryRun: %v", err)
	}
	if listing.Lifecycle != listings.LifecycleNew {
		t.Fatalf("default lifecycle = %s", listing.Lifecycle)
	}
	if err := f.store.SetLifecycle(ctx, listing.ID, listings.LifecycleStable); err != nil {
		t.Fatalf("SetLifecycle: %v", err)
	}
	if err := f.store.SetLifecycle(ctx, listing.ID, "thriving"); !errors.Is(err, listings.ErrInvalidLifecycle) {
		t.Fatalf("expected ErrInvalidLifecycle, got %v", err)
	}
	if err := f.store.SetLifecycle(ctx, "missing", listings.LifecycleKill); !errors.Is(err, listings.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
