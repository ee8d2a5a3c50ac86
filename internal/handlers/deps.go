package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"launchlock/internal/catalog"
	"launchlock/internal/clock"
	"launchlock/internal/config"
	"launchlock/internal/gatekeeper"
	"launchlock/internal/guardrails"
	"launchlock/internal/idempotency"
	"launchlock/internal/listings"
	"launchlock/internal/locks"
	"launchlock/internal/logging"
	"launchlock/internal/pricing"
	"launchlock/internal/queue"
	"launchlock/internal/services"
	"launchlock/internal/services/marketplace"
	"launchlock/internal/stage"
)

// Guard runs the guardrail checks for a command.
type Guard interface {
	Check(ctx context.Context, req guardrails.Request) error
}

// Validator runs the publish gates.
type Validator interface {
	Validate(ctx context.Context, p catalog.Product) (gatekeeper.Approval, error)
}

// PhotoUploader uploads image bytes at most once per content hash.
type PhotoUploader interface {
	Upload(ctx context.Context, data []byte) (idempotency.UploadResult, error)
}

// MarginValidator checks a proposed price against cost.
type MarginValidator interface {
	ValidateMargin(cost, price float64) pricing.MarginCheck
}

// ProgressRecorder persists the latest progress snapshot of a command.
type ProgressRecorder interface {
	SetProgress(ctx context.Context, id string, progress queue.Progress) error
}

// Dependencies groups the collaborators shared by all handlers. Progress is
// optional.
type Dependencies struct {
	Config      *config.Config
	Sources     guardrails.SourceStore
	Listings    *listings.Store
	Guardrails  Guard
	Gatekeeper  Validator
	Photos      PhotoUploader
	Images      catalog.ImageSource
	Locker      locks.Locker
	Marketplace marketplace.Client
	Margins     MarginValidator
	Progress    ProgressRecorder
	Clock       clock.Clock
	Logger      *slog.Logger
}

type base struct {
	Dependencies
	logger *slog.Logger
}

func newBase(deps Dependencies, component string) base {
	deps.Clock = clock.OrReal(deps.Clock)
	return base{Dependencies: deps, logger: logging.NewComponentLogger(deps.Logger, component)}
}

func (b base) health(name string) stage.Health {
	switch {
	case b.Marketplace == nil:
		return stage.Unhealthy(name, "marketplace client not configured")
	case b.Listings == nil:
		return stage.Unhealthy(name, "listing store not configured")
	case b.Locker == nil:
		return stage.Unhealthy(name, "resource locker not configured")
	}
	return stage.Healthy(name)
}

// call runs one marketplace request under the configured call timeout.
func (b base) call(ctx context.Context, fn func(context.Context) error) error {
	timeout := b.Config.CallTimeout()
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, services.ErrTimeout) {
		err = services.Wrap(services.ErrTimeout, "marketplace", "call", "request exceeded call timeout", err)
	}
	return err
}

// progress records a phase of cmd. Write failures are logged and otherwise
// ignored so a busy database never fails a marketplace mutation.
func (b base) progress(ctx context.Context, logger *slog.Logger, cmd *queue.Command, phase string, done, total int, message string) {
	if b.Progress == nil || cmd == nil {
		return
	}
	err := b.Progress.SetProgress(context.WithoutCancel(ctx), cmd.ID, queue.Progress{
		Phase:   phase,
		Done:    done,
		Total:   total,
		Message: message,
	})
	if err != nil {
		logging.WarnWithContext(logger, "failed to record command progress", "progress_write_failed",
			logging.String("phase", phase),
			logging.Error(err),
			logging.String(logging.FieldImpact, "queue show reports stale progress"),
		)
	}
}

func (b base) lockTTL() time.Duration {
	return b.Config.LockTTL()
}

func (b base) loadProduct(ctx context.Context, id string) (*catalog.Product, error) {
	product, err := b.Sources.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, services.NewFailure(services.ErrValidation, services.CodeSourceNotFound, "source product "+id+" not found").WithCause(err)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "handlers", "load source product", "Failed to read source product", err)
	}
	return product, nil
}

func (b base) loadListing(ctx context.Context, id string) (*listings.Listing, error) {
	listing, err := b.Listings.Get(ctx, id)
	if errors.Is(err, listings.ErrNotFound) {
		return nil, services.NewFailure(services.ErrValidation, services.CodeListingNotFound, "listing "+id+" not found").WithCause(err)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "handlers", "load listing", "Failed to read listing", err)
	}
	return listing, nil
}

// readBack fetches the marketplace view of a listing, records it, and warns
// when the reported price is outside the configured tolerance.
func (b base) readBack(ctx context.Context, logger *slog.Logger, listing *listings.Listing, externalID string, wantPrice float64) error {
	var remote marketplace.Listing
	err := b.call(ctx, func(ctx context.Context) error {
		var err error
		remote, err = b.Marketplace.GetListing(ctx, externalID)
		return err
	})
	if err != nil {
		return marketplaceFailure("read back listing", err)
	}
	if err := b.Listings.RecordReadBack(context.WithoutCancel(ctx), listing.ID, remoteState(remote.Status), remote.Price); err != nil {
		return err
	}
	if diff := math.Abs(remote.Price - wantPrice); diff > b.Config.Marketplace.PriceTolerance {
		logging.WarnWithContext(logger, "marketplace price differs from desired price", "listing_price_drift",
			logging.String("listing_id", listing.ID),
			logging.String("external_id", externalID),
			logging.Float64("desired_price", wantPrice),
			logging.Float64("actual_price", remote.Price),
			logging.String(logging.FieldErrorHint, "inspect the listing on the marketplace and re-run a price update"),
			logging.String(logging.FieldImpact, "listing is live at the actual price"),
		)
	}
	return nil
}

// marketplaceFailure keeps the classification of err and tags it with a code.
func marketplaceFailure(op string, err error) error {
	if _, ok := services.AsFailure(err); ok {
		return err
	}
	marker := services.ErrTransient
	switch services.Classify(err) {
	case services.KindValidation:
		marker = services.ErrValidation
	case services.KindPolicy:
		marker = services.ErrPolicy
	case services.KindFatal:
		marker = services.ErrFatal
	}
	code := services.CodeMarketplaceError
	var apiErr *marketplace.APIError
	if errors.As(err, &apiErr) && apiErr.Rejected() {
		code = services.CodeMarketplaceRejected
	}
	return services.NewFailure(marker, code, "marketplace "+op+" failed").WithCause(err)
}

func remoteState(status string) listings.State {
	switch s := strings.ToLower(strings.TrimSpace(status)); s {
	case "active", "live", "published":
		return listings.StateLive
	case "withdrawn", "ended", "inactive", "deleted":
		return listings.StateWithdrawn
	default:
		return listings.State(s)
	}
}
