package handlers_test

import (
	"testing"

	"launchlock/internal/listings"
	"launchlock/internal/queue"
	"launchlock/internal/services"
	"launchlock/internal/services/marketplace"
)

func TestWithdrawLiveListing(t *testing.T) {
	f := newFixture(t)
	live := f.publishLive(t, "sp-1")

	f.mustRun(t, f.withdraw, queue.WithdrawPayload{ListingID: live.ID, Reason: "supplier discontinued"})

	remote, _ := f.market.Listing(live.ExternalID)
	if remote.Status != "withdrawn" {
		t.Fatalf("marketplace status = %q, want withdrawn", remote.Status)
	}
	listing := f.listingFor(t, live.CommandID)
	if listing.State != listings.StateWithdrawn || listing.BlockReason != "supplier discontinued" {
		t.Fatalf("unexpected listing %+v", listing)
	}

	// Withdrawing again is a no-op.
	f.mustRun(t, f.withdraw, queue.WithdrawPayload{ListingID: live.ID, Reason: "again"})
	if got := f.market.Calls("WithdrawListing"); got != 1 {
		t.Fatalf("expected 1 withdraw call, got %d", got)
	}
}

func TestWithdrawDryRunIsLocal(t *testing.T) {
	f := newFixture(t)
	dry := f.mustRun(t, f.publish, queue.PublishPayload{SourceProductID: "sp-1", DryRun: true})
	listing := f.listingFor(t, dry.ID)

	f.mustRun(t, f.withdraw, queue.WithdrawPayload{ListingID: listing.ID, Reason: "not needed"})
	if f.market.TotalCalls() != 0 {
		t.Fatalf("local withdraw made %d marketplace calls", f.market.TotalCalls())
	}
	if got := f.listingFor(t, dry.ID); got.State != listings.StateWithdrawn {
		t.Fatalf("expected withdrawn, got %s", got.State)
	}
}

func TestWithdrawUnknownListing(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, f.withdraw, queue.WithdrawPayload{ListingID: "missing", Reason: "eol"})
	requireCode(t, err, services.CodeListingNotFound)
}

func TestWithdrawRemoteMissingStillRecords(t *testing.T) {
	f := newFixture(t)
	live := f.publishLive(t, "sp-1")
	f.market.Errors["WithdrawListing"] = &marketplace.APIError{Operation: "withdraw listing", StatusCode: 404, Message: "listing not found"}

	f.mustRun(t, f.withdraw, queue.WithdrawPayload{ListingID: live.ID, Reason: "gone"})
	if got := f.listingFor(t, live.CommandID); got.State != listings.StateWithdrawn {
		t.Fatalf("expected withdrawn, got %s", got.State)
	}
}
