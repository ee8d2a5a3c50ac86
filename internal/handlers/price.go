package handlers

import (
	"context"
	"fmt"

	"launchlock/internal/guardrails"
	"launchlock/internal/listings"
	"launchlock/internal/locks"
	"launchlock/internal/logging"
	"launchlock/internal/queue"
	"launchlock/internal/services"
	"launchlock/internal/stage"
)

// PriceUpdateHandler changes the price of live listings.
type PriceUpdateHandler struct {
	base
}

// NewPriceUpdateHandler builds the price update handler.
func NewPriceUpdateHandler(deps Dependencies) *PriceUpdateHandler {
	return &PriceUpdateHandler{base: newBase(deps, "price_update")}
}

// HealthCheck reports whether the handler's collaborators are wired.
func (h *PriceUpdateHandler) HealthCheck(context.Context) stage.Health {
	if h.Margins == nil || h.Guardrails == nil {
		return stage.Unhealthy("price_update", "pricing or guardrails not configured")
	}
	return h.health("price_update")
}

// Execute validates and applies a new price, then reads it back.
func (h *PriceUpdateHandler) Execute(ctx context.Context, cmd *queue.Command) error {
	payload, err := stage.DecodePayload[queue.PriceUpdatePayload](cmd)
	if err != nil {
		return err
	}
	logger := logging.WithContext(ctx, h.logger).With(logging.String("listing_id", payload.ListingID))

	listing, err := h.loadListing(ctx, payload.ListingID)
	if err != nil {
		return err
	}
	if listing.State != listings.StateLive || !listing.HasExternalID() {
		return services.NewFailure(services.ErrValidation, services.CodeListingNotLive,
			"listing "+listing.ID+" is "+string(listing.State)+"; only live listings can be repriced")
	}

	h.progress(ctx, logger, cmd, phaseGuardrails, 0, 0, "checking guardrails")
	if err := h.Guardrails.Check(ctx, guardrails.Request{
		Kind:            guardrails.KindPriceUpdate,
		SourceProductID: listing.SourceProductID,
	}); err != nil {
		return err
	}
	product, err := h.loadProduct(ctx, listing.SourceProductID)
	if err != nil {
		return err
	}
	if check := h.Margins.ValidateMargin(product.Cost, payload.NewPrice); !check.Safe {
		return services.PolicyFailure(check.Code, "%s", check.Reason)
	}

	key := locks.Key{EntityType: locks.EntityListing, EntityID: listing.ID}
	return locks.WithLock(ctx, h.Locker, key, cmd.ID, h.lockTTL(), func(ctx context.Context) error {
		if err := stage.CheckCancelled(ctx); err != nil {
			return err
		}
		if err := h.Listings.SetDesiredPrice(ctx, listing.ID, payload.NewPrice); err != nil {
			return err
		}
		h.progress(ctx, logger, cmd, phaseUpdate, 0, 1, fmt.Sprintf("setting price to %.2f", payload.NewPrice))
		err := h.call(ctx, func(ctx context.Context) error {
			return h.Marketplace.UpdatePrice(ctx, listing.ExternalID, payload.NewPrice)
		})
		if err != nil {
			return marketplaceFailure("update price", err)
		}
		logger.InfoContext(ctx, "listing price updated",
			logging.String(logging.FieldEventType, "listing_price_updated"),
			logging.String("external_id", listing.ExternalID),
			logging.Float64("old_price", listing.DesiredPrice),
			logging.Float64("new_price", payload.NewPrice),
		)
		h.progress(ctx, logger, cmd, phaseReadBack, 0, 1, "reading back "+listing.ExternalID)
		if err := h.readBack(ctx, logger, listing, listing.ExternalID, payload.NewPrice); err != nil {
			return err
		}
		h.progress(ctx, logger, cmd, phaseDone, 1, 1, fmt.Sprintf("price is %.2f", payload.NewPrice))
		return nil
	})
}
