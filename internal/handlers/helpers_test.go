package handlers_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"launchlock/internal/catalog"
	"launchlock/internal/clock"
	"launchlock/internal/config"
	"launchlock/internal/enrichment"
	"launchlock/internal/gatekeeper"
	"launchlock/internal/guardrails"
	"launchlock/internal/handlers"
	"launchlock/internal/idempotency"
	"launchlock/internal/listings"
	"launchlock/internal/locks"
	"launchlock/internal/policy"
	"launchlock/internal/pricing"
	"launchlock/internal/queue"
	"launchlock/internal/services"
	"launchlock/internal/stage"
	"launchlock/internal/testsupport"
	"launchlock/internal/trust"
)

var testNow = time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	cfg      *config.Config
	clock    *clock.Fake
	commands *queue.Store
	catalog  *catalog.Store
	listings *listings.Store
	market   *testsupport.FakeMarketplace
	locker   *locks.SQLiteLocker
	deps     handlers.Dependencies

	publish  *handlers.PublishHandler
	price    *handlers.PriceUpdateHandler
	withdraw *handlers.WithdrawHandler
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	clk := clock.NewFake(testNow)
	commands, db := testsupport.MustOpenQueue(t, cfg, clk)

	imageDir := filepath.Join(testsupport.BaseDir(cfg), "images")
	testsupport.WriteFile(t, filepath.Join(imageDir, "front.jpg"), 3, 512)
	images := catalog.NewFSImageSource(imageDir)

	f := &fixture{
		cfg:      cfg,
		clock:    clk,
		commands: commands,
		catalog:  catalog.NewStore(db, clk),
		listings: listings.NewStore(db, clk),
		market:   testsupport.NewFakeMarketplace(),
		locker:   locks.NewSQLiteLocker(db, clk),
	}
	prices := pricing.NewEngine(cfg)
	gate := gatekeeper.New(cfg, gatekeeper.Dependencies{
		Enricher: enrichment.Cleaner{},
		Trust:    trust.NewScorer(cfg, clk),
		Policy:   policy.NewEvaluator(cfg),
		Pricer:   prices,
		Images:   images,
	}, nil)
	deps := handlers.Dependencies{
		Config:      cfg,
		Sources:     f.catalog,
		Listings:    f.listings,
		Guardrails:  guardrails.NewEngine(cfg, f.catalog, f.listings, f.market, clk, nil, guardrails.WithLocation(time.UTC)),
		Gatekeeper:  gate,
		Photos:      idempotency.NewPhotoCache(db, f.market, clk),
		Images:      images,
		Locker:      f.locker,
		Marketplace: f.market,
		Margins:     prices,
		Progress:    commands,
		Clock:       clk,
	}
	f.deps = deps
	f.publish = handlers.NewPublishHandler(deps)
	f.price = handlers.NewPriceUpdateHandler(deps)
	f.withdraw = handlers.NewWithdrawHandler(deps)

	f.upsert(t, sampleProduct("sp-1"))
	return f
}

func sampleProduct(id string) catalog.Product {
	return catalog.Product{
		ID:             id,
		Supplier:       "acme",
		SourceRef:      "ACME-" + id,
		Title:          "Garden Hose",
		RawDescription: "<p>A durable fifty foot garden hose with solid brass fittings and a kink resistant inner lining.</p>",
		Specs:          map[string]string{"length": "50 ft"},
		Cost:           50,
		Stock:          5,
		Category:       "garden",
		CategoryID:     "1234",
		Images:         []string{"front.jpg"},
		Shipping:       map[string]any{"weight_kg": 2},
	}
}

func (f *fixture) upsert(t *testing.T, p catalog.Product) *catalog.Product {
	t.Helper()
	stored, err := f.catalog.Upsert(context.Background(), p)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return stored
}

// claim enqueues payload and claims it as the worker would.
func (f *fixture) claim(t *testing.T, payload queue.Payload) *queue.Command {
	t.Helper()
	id := testsupport.MustEnqueue(t, f.commands, payload, queue.EnqueueOptions{})
	cmd, err := f.commands.ClaimNext(context.Background(), "test-worker", time.Minute)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if cmd == nil || cmd.ID != id {
		t.Fatalf("expected to claim %s, got %+v", id, cmd)
	}
	return cmd
}

func (f *fixture) run(t *testing.T, h stage.Handler, payload queue.Payload) (*queue.Command, error) {
	t.Helper()
	cmd := f.claim(t, payload)
	return cmd, h.Execute(context.Background(), cmd)
}

func (f *fixture) mustRun(t *testing.T, h stage.Handler, payload queue.Payload) *queue.Command {
	t.Helper()
	cmd, err := f.run(t, h, payload)
	if err != nil {
		t.Fatalf("Execute %s: %v", cmd.Type, err)
	}
	if _, settled := stage.SettledStatus(cmd); settled {
		t.Fatalf("Execute %s settled as %s: %s", cmd.Type, cmd.Status, cmd.ErrorMessage)
	}
	return cmd
}

func (f *fixture) listingFor(t *testing.T, commandID string) *listings.Listing {
	t.Helper()
	listing, err := f.listings.GetByCommand(context.Background(), commandID)
	if err != nil {
		t.Fatalf("GetByCommand(%s): %v", commandID, err)
	}
	return listing
}

// publishLive runs a direct publish of productID and returns its listing.
func (f *fixture) publishLive(t *testing.T, productID string) *listings.Listing {
	t.Helper()
	cmd := f.mustRun(t, f.publish, queue.PublishPayload{SourceProductID: productID})
	listing := f.listingFor(t, cmd.ID)
	if listing.State != listings.StateLive {
		t.Fatalf("expected live listing, got %s", listing.State)
	}
	return listing
}

func requireCode(t *testing.T, err error, code services.Code) {
	t.Helper()
	if !services.HasCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}
