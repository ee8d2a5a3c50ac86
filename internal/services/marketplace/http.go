package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"launchlock/internal/config"
	"launchlock/internal/services"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 4 << 10
)

// Config captures the runtime settings of the HTTP client.
type Config struct {
	BaseURL           string
	APIKey            string
	TimeoutSeconds    int
	RequestsPerSecond int
}

// ConfigFrom extracts client settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		BaseURL:           cfg.Marketplace.BaseURL,
		APIKey:            cfg.Marketplace.APIKey,
		TimeoutSeconds:    cfg.Marketplace.CallTimeoutSeconds,
		RequestsPerSecond: cfg.Marketplace.RequestsPerSecond,
	}
}

// HTTPClient implements Client over the marketplace REST API.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option customizes the client.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLimiter overrides the request limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *HTTPClient) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// NewHTTPClient constructs a client from cfg.
func NewHTTPClient(cfg Config, opts ...Option) *HTTPClient {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = cfg.RequestsPerSecond
	}
	client := &HTTPClient{
		cfg: Config{
			BaseURL:           strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:            strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds:    cfg.TimeoutSeconds,
			RequestsPerSecond: cfg.RequestsPerSecond,
		},
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// UploadPhoto posts raw image bytes and returns the marketplace photo id.
func (c *HTTPClient) UploadPhoto(ctx context.Context, data []byte) (string, error) {
	var out struct {
		PhotoID string `json:"photo_id"`
	}
	err := c.do(ctx, "upload photo", http.MethodPost, "/photos", "application/octet-stream", bytes.NewReader(data), nil, &out)
	if err != nil {
		return "", err
	}
	if out.PhotoID == "" {
		return "", services.Wrap(services.ErrTransient, "marketplace", "upload photo", "response missing photo_id", nil)
	}
	return out.PhotoID, nil
}

// ValidateListing asks the marketplace to check payload without creating a listing.
func (c *HTTPClient) ValidateListing(ctx context.Context, payload Payload) (Validation, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Validation{}, fmt.Errorf("marketplace validate listing: encode body: %w", err)
	}
	var raw map[string]any
	if err := c.do(ctx, "validate listing", http.MethodPost, "/listings/validate", "application/json", bytes.NewReader(body), nil, &raw); err != nil {
		return Validation{}, err
	}
	result := Validation{Response: raw}
	result.OK, _ = raw["ok"].(bool)
	if list, ok := raw["errors"].([]any); ok {
		for _, item := range list {
			result.Errors = append(result.Errors, fmt.Sprint(item))
		}
	}
	return result, nil
}

// PublishListing creates a listing and returns its external id. idempotencyKey
// is sent as the Idempotency-Key header.
func (c *HTTPClient) PublishListing(ctx context.Context, payload Payload, idempotencyKey string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marketplace publish listing: encode body: %w", err)
	}
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "publish listing", http.MethodPost, "/listings", "application/json", bytes.NewReader(body), headers, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", services.Wrap(services.ErrTransient, "marketplace", "publish listing", "response missing id", nil)
	}
	return out.ID, nil
}

// GetListing fetches the marketplace view of a listing.
func (c *HTTPClient) GetListing(ctx context.Context, id string) (Listing, error) {
	var out Listing
	if err := c.do(ctx, "get listing", http.MethodGet, "/listings/"+url.PathEscape(id), "", nil, nil, &out); err != nil {
		return Listing{}, err
	}
	return out, nil
}

// WithdrawListing ends a live listing.
func (c *HTTPClient) WithdrawListing(ctx context.Context, id string) error {
	return c.do(ctx, "withdraw listing", http.MethodPost, "/listings/"+url.PathEscape(id)+"/withdraw", "", nil, nil, nil)
}

// UpdatePrice sets the price of a live listing.
func (c *HTTPClient) UpdatePrice(ctx context.Context, id string, price float64) error {
	body, err := json.Marshal(map[string]float64{"price": price})
	if err != nil {
		return fmt.Errorf("marketplace update price: encode body: %w", err)
	}
	return c.do(ctx, "update price", http.MethodPatch, "/listings/"+url.PathEscape(id)+"/price", "application/json", bytes.NewReader(body), nil, nil)
}

// GetAccountBalance returns the available seller balance.
func (c *HTTPClient) GetAccountBalance(ctx context.Context) (float64, error) {
	var out struct {
		Available *float64 `json:"available"`
	}
	if err := c.do(ctx, "get account balance", http.MethodGet, "/account/balance", "", nil, nil, &out); err != nil {
		return 0, err
	}
	if out.Available == nil {
		return 0, services.Wrap(services.ErrTransient, "marketplace", "get account balance", "balance unavailable", nil)
	}
	return *out.Available, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path, contentType string, body io.Reader, headers map[string]string, out any) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "marketplace", op, "api key required", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return c.transportError(ctx, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("marketplace %s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "marketplace", op, "decode response", err)
	}
	return nil
}

func (c *HTTPClient) transportError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return services.Wrap(services.ErrTimeout, "marketplace", op, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return services.Wrap(services.ErrTransient, "marketplace", op, "request failed", err)
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

func decodeAPIError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Operation: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &parsed) == nil {
		apiErr.Code = parsed.Code
		switch {
		case parsed.Message != "":
			apiErr.Message = parsed.Message
		case parsed.Error != "":
			apiErr.Message = parsed.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
