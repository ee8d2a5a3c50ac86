package testsupport

import (
	"context"
	"fmt"
	"sync"

	"launchlock/internal/services"
	"launchlock/internal/services/marketplace"
)

// FakeMarketplace is an in-memory marketplace.Client that counts calls.
type FakeMarketplace struct {
	mu sync.Mutex

	calls    map[string]int
	listings map[string]marketplace.Listing
	payloads map[string]marketplace.Payload
	keys     map[string]string
	nextID   int

	// Balance is returned by GetAccountBalance unless BalanceErr is set.
	Balance    float64
	BalanceErr error
	// Errors forces the named call ("PublishListing", ...) to fail.
	Errors map[string]error
	// LoseCreateResponse makes PublishListing create the listing and then
	// return a timeout, as if the response was lost in transit.
	LoseCreateResponse bool
	// PriceSkew is added to prices reported by GetListing.
	PriceSkew float64
	// ValidationErrors makes ValidateListing report a failed validation.
	ValidationErrors []string
	// HonorIdempotencyKey returns the existing listing when a create repeats a key.
	HonorIdempotencyKey bool
}

var _ marketplace.Client = (*FakeMarketplace)(nil)

// NewFakeMarketplace returns a fake with a healthy balance.
func NewFakeMarketplace() *FakeMarketplace {
	return &FakeMarketplace{
		calls:    make(map[string]int),
		listings: make(map[string]marketplace.Listing),
		payloads: make(map[string]marketplace.Payload),
		keys:     make(map[string]string),
		Balance:  1000,
		Errors:   make(map[string]error),
	}
}

// Calls returns how often the named method was invoked.
func (f *FakeMarketplace) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// MutatingCalls counts calls that change marketplace state.
func (f *FakeMarketplace) MutatingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["UploadPhoto"] + f.calls["PublishListing"] + f.calls["WithdrawListing"] + f.calls["UpdatePrice"]
}

// TotalCalls counts every call.
func (f *FakeMarketplace) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// ListingCount returns how many listings exist on the fake marketplace.
func (f *FakeMarketplace) ListingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listings)
}

// Payload returns the payload a listing was created with.
func (f *FakeMarketplace) Payload(id string) (marketplace.Payload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payloads[id]
	return p, ok
}

// Listing returns the marketplace state of a listing.
func (f *FakeMarketplace) Listing(id string) (marketplace.Listing, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	return l, ok
}

// SeedListing creates a live listing directly.
func (f *FakeMarketplace) SeedListing(id string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings[id] = marketplace.Listing{ID: id, Status: "active", Price: price}
}

func (f *FakeMarketplace) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.Errors[method]
}

func (f *FakeMarketplace) UploadPhoto(ctx context.Context, data []byte) (string, error) {
	if err := f.record("UploadPhoto"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("photo-%d", f.nextID), nil
}

func (f *FakeMarketplace) ValidateListing(ctx context.Context, payload marketplace.Payload) (marketplace.Validation, error) {
	if err := f.record("ValidateListing"); err != nil {
		return marketplace.Validation{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ValidationErrors) > 0 {
		return marketplace.Validation{OK: false, Errors: append([]string(nil), f.ValidationErrors...)}, nil
	}
	return marketplace.Validation{OK: true, Response: map[string]any{"ok": true}}, nil
}

func (f *FakeMarketplace) PublishListing(ctx context.Context, payload marketplace.Payload, idempotencyKey string) (string, error) {
	if err := f.record("PublishListing"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HonorIdempotencyKey {
		if id, ok := f.keys[idempotencyKey]; ok {
			return id, nil
		}
	}
	f.nextID++
	id := fmt.Sprintf("ext-%d", f.nextID)
	f.listings[id] = marketplace.Listing{ID: id, Status: "active", Price: payload.Price, Title: payload.Title}
	f.payloads[id] = payload
	f.keys[idempotencyKey] = id
	if f.LoseCreateResponse {
		return "", services.Wrap(services.ErrTimeout, "marketplace", "publish listing", "request timed out", context.DeadlineExceeded)
	}
	return id, nil
}

func (f *FakeMarketplace) GetListing(ctx context.Context, id string) (marketplace.Listing, error) {
	if err := f.record("GetListing"); err != nil {
		return marketplace.Listing{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok {
		return marketplace.Listing{}, &marketplace.APIError{Operation: "get listing", StatusCode: 404, Message: "listing not found"}
	}
	l.Price += f.PriceSkew
	return l, nil
}

func (f *FakeMarketplace) WithdrawListing(ctx context.Context, id string) error {
	if err := f.record("WithdrawListing"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok {
		return &marketplace.APIError{Operation: "withdraw listing", StatusCode: 404, Message: "listing not found"}
	}
	l.Status = "withdrawn"
	f.listings[id] = l
	return nil
}

func (f *FakeMarketplace) UpdatePrice(ctx context.Context, id string, price float64) error {
	if err := f.record("UpdatePrice"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok {
		return &marketplace.APIError{Operation: "update price", StatusCode: 404, Message: "listing not found"}
	}
	l.Price = price
	f.listings[id] = l
	return nil
}

func (f *FakeMarketplace) GetAccountBalance(ctx context.Context) (float64, error) {
	if err := f.record("GetAccountBalance"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return 0, f.BalanceErr
	}
	return f.Balance, nil
}
