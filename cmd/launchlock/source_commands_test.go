package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"launchlock/internal/listings"
	"launchlock/internal/testsupport"
)

func TestSourceImportAndList(t *testing.T) {
	env := setupCLITestEnv(t)

	path := filepath.Join(testsupport.BaseDir(env.cfg), "products.json")
	data := `[
  {"id": "sp-1", "supplier": "acme", "source_ref": "https://acme.example/1", "title": "Desk lamp", "cost": 12.5, "stock": 4},
  {"id": "sp-2", "supplier": "acme", "source_ref": "https://acme.example/2", "title": "Floor lamp", "cost": 30, "stock": 1}
]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write products: %v", err)
	}

	requireContains(t, env.mustRun(t, "source", "import", path), "Imported 2 source product(s)")

	out := env.mustRun(t, "source", "list", "--supplier", "acme")
	requireContains(t, out, "sp-1")
	requireContains(t, out, "Floor lamp")
	requireContains(t, out, "12.50")

	bad := filepath.Join(testsupport.BaseDir(env.cfg), "bad.json")
	if err := os.WriteFile(bad, []byte(`[{"id": "sp-3", "supplier": "acme", "colour": "red"}]`), 0o644); err != nil {
		t.Fatalf("write bad products: %v", err)
	}
	if _, _, err := env.run(t, "source", "import", bad); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestListingsListAndResolve(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	requireContains(t, env.mustRun(t, "listings", "list"), "No listings")

	if _, _, err := env.listings.BeginPublish(ctx, listings.Record{
		CommandID:       "cmd-pub-1",
		SourceProductID: "sp-1",
		DesiredPrice:    24.99,
	}); err != nil {
		t.Fatalf("BeginPublish: %v", err)
	}

	out := env.mustRun(t, "listings", "list", "--state", "publishing")
	requireContains(t, out, "sp-1")
	requireContains(t, out, "24.99")

	requireContains(t, env.mustRun(t, "listings", "resolve", "cmd-pub-1", "mk-42"), "is now live")
	listing, err := env.listings.GetByCommand(ctx, "cmd-pub-1")
	if err != nil {
		t.Fatalf("GetByCommand: %v", err)
	}
	if listing.ExternalID != "mk-42" || listing.State != listings.StateLive {
		t.Fatalf("unexpected resolved listing: %+v", listing)
	}

	if _, _, err := env.run(t, "listings", "resolve", "cmd-pub-1"); err == nil {
		t.Fatal("expected second resolve to fail")
	}
}
