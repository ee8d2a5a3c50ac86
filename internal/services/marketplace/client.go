package marketplace

import "context"

// Payload is the listing document sent to the marketplace.
type Payload struct {
	SKU         string         `json:"sku"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Price       float64        `json:"price"`
	Quantity    int            `json:"quantity"`
	CategoryID  string         `json:"category_id"`
	Shipping    map[string]any `json:"shipping,omitempty"`
	PhotoIDs    []string       `json:"photo_ids,omitempty"`
}

// Listing is the marketplace view of a listing.
type Listing struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Price  float64 `json:"price"`
	Title  string  `json:"title"`
}

// Validation is the marketplace's verdict on a payload.
type Validation struct {
	OK       bool           `json:"ok"`
	Errors   []string       `json:"errors,omitempty"`
	Response map[string]any `json:"-"`
}

// Client is the set of marketplace calls used by command handlers.
type Client interface {
	UploadPhoto(ctx context.Context, data []byte) (string, error)
	ValidateListing(ctx context.Context, payload Payload) (Validation, error)
	PublishListing(ctx context.Context, payload Payload, idempotencyKey string) (string, error)
	GetListing(ctx context.Context, id string) (Listing, error)
	WithdrawListing(ctx context.Context, id string) error
	UpdatePrice(ctx context.Context, id string, price float64) error
	GetAccountBalance(ctx context.Context) (float64, error)
}
