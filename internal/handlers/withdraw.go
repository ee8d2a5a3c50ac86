package handlers

import (
	"context"
	"errors"

	"launchlock/internal/listings"
	"launchlock/internal/locks"
	"launchlock/internal/logging"
	"launchlock/internal/queue"
	"launchlock/internal/services"
	"launchlock/internal/stage"
)

// WithdrawHandler removes listings from the marketplace.
type WithdrawHandler struct {
	base
}

// NewWithdrawHandler builds the withdraw handler.
func NewWithdrawHandler(deps Dependencies) *WithdrawHandler {
	return &WithdrawHandler{base: newBase(deps, "withdraw")}
}

// HealthCheck reports whether the handler's collaborators are wired.
func (h *WithdrawHandler) HealthCheck(context.Context) stage.Health {
	return h.health("withdraw")
}

// Execute withdraws the listing. Listings that never reached the marketplace
// are withdrawn locally; already withdrawn listings succeed without a call.
func (h *WithdrawHandler) Execute(ctx context.Context, cmd *queue.Command) error {
	payload, err := stage.DecodePayload[queue.WithdrawPayload](cmd)
	if err != nil {
		return err
	}
	logger := logging.WithContext(ctx, h.logger).With(logging.String("listing_id", payload.ListingID))

	listing, err := h.loadListing(ctx, payload.ListingID)
	if err != nil {
		return err
	}
	switch {
	case listing.State == listings.StateWithdrawn:
		logger.InfoContext(ctx, "listing already withdrawn", logging.String(logging.FieldEventType, "withdraw_noop"))
		return nil
	case listing.State == listings.StatePublishing && listing.ExternalID == "":
		return outcomeUnknown(listing, nil)
	}

	key := locks.Key{EntityType: locks.EntityListing, EntityID: listing.ID}
	return locks.WithLock(ctx, h.Locker, key, cmd.ID, h.lockTTL(), func(ctx context.Context) error {
		if err := stage.CheckCancelled(ctx); err != nil {
			return err
		}
		if listing.HasExternalID() {
			h.progress(ctx, logger, cmd, phaseWithdraw, 0, 1, "withdrawing "+listing.ExternalID)
			err := h.call(ctx, func(ctx context.Context) error {
				return h.Marketplace.WithdrawListing(ctx, listing.ExternalID)
			})
			switch {
			case errors.Is(err, services.ErrNotFound):
				logging.WarnWithContext(logger, "listing missing on marketplace; recording withdrawal", "withdraw_remote_missing",
					logging.String("external_id", listing.ExternalID),
					logging.String(logging.FieldErrorHint, "confirm the listing was removed on the marketplace"),
					logging.String(logging.FieldImpact, "local listing marked withdrawn"),
				)
			case err != nil:
				return marketplaceFailure("withdraw listing", err)
			}
		}
		if err := h.Listings.MarkWithdrawn(context.WithoutCancel(ctx), listing.ID, payload.Reason); err != nil {
			return err
		}
		logger.InfoContext(ctx, "listing withdrawn",
			logging.String(logging.FieldEventType, "listing_withdrawn"),
			logging.String("external_id", listing.ExternalID),
			logging.String("reason", payload.Reason),
		)
		h.progress(ctx, logger, cmd, phaseDone, 1, 1, "listing withdrawn")
		return nil
	})
}
