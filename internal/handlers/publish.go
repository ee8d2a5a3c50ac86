package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"launchlock/internal/catalog"
	"launchlock/internal/guardrails"
	"launchlock/internal/idempotency"
	"launchlock/internal/listings"
	"launchlock/internal/locks"
	"launchlock/internal/logging"
	"launchlock/internal/queue"
	"launchlock/internal/services"
	"launchlock/internal/services/marketplace"
	"launchlock/internal/stage"
)

// Progress phases reported by the handlers.
const (
	phaseGuardrails = "guardrails"
	phaseGates      = "gates"
	phaseDryRun     = "dry_run"
	phasePhotos     = "photos"
	phaseValidate   = "validate"
	phaseCreate     = "create"
	phaseReadBack   = "read_back"
	phaseUpdate     = "update"
	phaseWithdraw   = "withdraw"
	phaseDone       = "done"
)

// PublishHandler runs publish commands.
type PublishHandler struct {
	base
}

// NewPublishHandler builds the publish handler.
func NewPublishHandler(deps Dependencies) *PublishHandler {
	return &PublishHandler{base: newBase(deps, "publish")}
}

// HealthCheck reports whether the handler's collaborators are wired.
func (h *PublishHandler) HealthCheck(context.Context) stage.Health {
	if h.Gatekeeper == nil || h.Guardrails == nil {
		return stage.Unhealthy("publish", "gatekeeper or guardrails not configured")
	}
	return h.health("publish")
}

// Execute runs a dry run or a real publish depending on the payload.
func (h *PublishHandler) Execute(ctx context.Context, cmd *queue.Command) error {
	payload, err := stage.DecodePayload[queue.PublishPayload](cmd)
	if err != nil {
		return err
	}
	logger := logging.WithContext(ctx, h.logger).With(logging.String("source_product_id", payload.SourceProductID))
	if payload.DryRun {
		return h.dryRun(ctx, logger, cmd, payload)
	}
	return h.publish(ctx, logger, cmd, payload)
}

func (h *PublishHandler) dryRun(ctx context.Context, logger *slog.Logger, cmd *queue.Command, req queue.PublishPayload) error {
	product, err := h.loadProduct(ctx, req.SourceProductID)
	if err != nil {
		return err
	}
	h.progress(ctx, logger, cmd, phaseGates, 0, 0, "validating "+product.ID)
	approval, err := h.Gatekeeper.Validate(ctx, *product)
	if err != nil {
		failure, ok := services.AsFailure(err)
		if !ok || failure.Gate == "" {
			return err
		}
		if err := h.recordDryRunBlock(ctx, cmd, product, failure); err != nil {
			return err
		}
		stage.RequireHuman(cmd, failure)
		return nil
	}

	listingPayload := buildPayload(product, approval)
	payloadJSON, payloadHash, err := encodePayload(listingPayload)
	if err != nil {
		return err
	}
	if err := h.Listings.SaveDraft(ctx, listings.Draft{
		CommandID:       cmd.ID,
		SourceProductID: product.ID,
		PayloadJSON:     payloadJSON,
		PayloadHash:     payloadHash,
		SnapshotHash:    product.SnapshotHash,
		Validation:      &listings.Validation{Passed: true},
	}); err != nil {
		return err
	}
	listing, err := h.Listings.SaveDryRun(ctx, listings.Record{
		CommandID:       cmd.ID,
		SourceProductID: product.ID,
		PayloadJSON:     payloadJSON,
		PayloadHash:     payloadHash,
		SnapshotHash:    product.SnapshotHash,
		DesiredPrice:    approval.SellPrice,
		TrustScore:      approval.TrustScore,
	})
	if err != nil {
		return err
	}
	h.progress(ctx, logger, cmd, phaseDryRun, 1, 1, "dry run recorded; awaiting approval")
	logger.InfoContext(ctx, "dry run recorded",
		logging.String(logging.FieldEventType, "dry_run_recorded"),
		logging.String("listing_id", listing.ID),
		logging.String("payload_hash", payloadHash),
		logging.Float64("sell_price", approval.SellPrice),
	)
	return nil
}

func (h *PublishHandler) recordDryRunBlock(ctx context.Context, cmd *queue.Command, product *catalog.Product, failure *services.Failure) error {
	if err := h.Listings.SaveDraft(ctx, listings.Draft{
		CommandID:       cmd.ID,
		SourceProductID: product.ID,
		SnapshotHash:    product.SnapshotHash,
		Validation: &listings.Validation{
			Gate:    failure.Gate,
			Code:    string(failure.Code),
			Message: failure.Message,
		},
	}); err != nil {
		return err
	}
	_, err := h.Listings.RecordBlocked(ctx, listings.Block{
		CommandID:       cmd.ID,
		SourceProductID: product.ID,
		Code:            string(failure.Code),
		Reason:          failure.Message,
		DryRun:          true,
	})
	return err
}

// approvedDraft loads the dry run a real publish was approved from. A dry run
// already consumed by commandID stays approvable for that command's retries.
func (h *PublishHandler) approvedDraft(ctx context.Context, commandID string, req queue.PublishPayload) (*listings.Draft, error) {
	dryRunID := req.ApprovedFromDryRun
	listing, err := h.Listings.GetByCommand(ctx, dryRunID)
	if errors.Is(err, listings.ErrNotFound) {
		return nil, services.PolicyFailure(services.CodeDryRunNotApprovable, "dry run %s does not exist", dryRunID)
	}
	if err != nil {
		return nil, err
	}
	if listing.State == listings.StateApproved && listing.ApprovedBy != commandID {
		return nil, services.PolicyFailure(services.CodeDryRunNotApprovable,
			"dry run %s was already approved by command %s", dryRunID, listing.ApprovedBy)
	}
	if listing.State != listings.StateDryRun && listing.State != listings.StateApproved {
		return nil, services.PolicyFailure(services.CodeDryRunNotApprovable, "dry run %s is %s, not an approvable dry run", dryRunID, listing.State)
	}
	if listing.SourceProductID != req.SourceProductID {
		return nil, services.PolicyFailure(services.CodeDryRunNotApprovable,
			"dry run %s is for source product %s, not %s", dryRunID, listing.SourceProductID, req.SourceProductID)
	}
	draft, err := h.Listings.GetDraft(ctx, dryRunID)
	if errors.Is(err, listings.ErrDraftNotFound) {
		return nil, services.PolicyFailure(services.CodeDryRunNotApprovable, "dry run %s has no draft", dryRunID)
	}
	if err != nil {
		return nil, err
	}
	if draft.Validation == nil || !draft.Validation.Passed || draft.PayloadHash == "" {
		return nil, services.PolicyFailure(services.CodeDryRunNotApprovable, "dry run %s did not pass validation", dryRunID)
	}
	return draft, nil
}

func (h *PublishHandler) publish(ctx context.Context, logger *slog.Logger, cmd *queue.Command, req queue.PublishPayload) error {
	// A previous attempt of this command may already have reached the marketplace.
	existing, err := h.Listings.GetByCommand(ctx, cmd.ID)
	switch {
	case errors.Is(err, listings.ErrNotFound):
	case err != nil:
		return err
	case existing.HasExternalID():
		logger.InfoContext(ctx, "listing already created by an earlier attempt; reading back",
			logging.String(logging.FieldEventType, "publish_resumed"),
			logging.String("listing_id", existing.ID),
			logging.String("external_id", existing.ExternalID),
		)
		return h.finish(ctx, logger, cmd, existing, existing.ExternalID, existing.DesiredPrice)
	case existing.State == listings.StatePublishing:
		return outcomeUnknown(existing, nil)
	}

	var (
		draft    *listings.Draft
		approval *guardrails.Approval
	)
	if req.ApprovedFromDryRun != "" {
		draft, err = h.approvedDraft(ctx, cmd.ID, req)
		if err != nil {
			return h.block(ctx, cmd, req.SourceProductID, err)
		}
		approval = &guardrails.Approval{DryRunCommandID: req.ApprovedFromDryRun, SnapshotHash: draft.SnapshotHash}
	}

	h.progress(ctx, logger, cmd, phaseGuardrails, 0, 0, "checking guardrails")
	if err := h.Guardrails.Check(ctx, guardrails.Request{
		Kind:            guardrails.KindPublish,
		SourceProductID: req.SourceProductID,
		DryRunApproval:  approval,
	}); err != nil {
		return h.block(ctx, cmd, req.SourceProductID, err)
	}

	product, err := h.loadProduct(ctx, req.SourceProductID)
	if err != nil {
		return err
	}
	h.progress(ctx, logger, cmd, phaseGates, 0, 0, "validating "+product.ID)
	gates, err := h.Gatekeeper.Validate(ctx, *product)
	if err != nil {
		return h.block(ctx, cmd, product.ID, err)
	}

	listingPayload := buildPayload(product, gates)
	payloadJSON, payloadHash, err := encodePayload(listingPayload)
	if err != nil {
		return err
	}
	if draft != nil {
		if err := idempotency.CheckPayloadDrift(draft.PayloadHash, payloadHash); err != nil {
			return h.block(ctx, cmd, product.ID, err)
		}
	}

	rec := listings.Record{
		CommandID:          cmd.ID,
		SourceProductID:    product.ID,
		ApprovedFromDryRun: req.ApprovedFromDryRun,
		PayloadJSON:        payloadJSON,
		PayloadHash:        payloadHash,
		SnapshotHash:       product.SnapshotHash,
		DesiredPrice:       gates.SellPrice,
		TrustScore:         gates.TrustScore,
	}
	key := locks.Key{EntityType: locks.EntitySourceProduct, EntityID: product.ID}
	return locks.WithLock(ctx, h.Locker, key, cmd.ID, h.lockTTL(), func(ctx context.Context) error {
		return h.create(ctx, logger, cmd, rec, listingPayload, gates.Images)
	})
}

func (h *PublishHandler) create(ctx context.Context, logger *slog.Logger, cmd *queue.Command, rec listings.Record, payload marketplace.Payload, images []string) error {
	if err := stage.CheckCancelled(ctx); err != nil {
		return err
	}
	photoIDs, err := h.uploadPhotos(ctx, logger, cmd, images)
	if err != nil {
		return err
	}
	payload.PhotoIDs = photoIDs

	if h.Config.Marketplace.ValidateBeforePublish {
		h.progress(ctx, logger, cmd, phaseValidate, 0, 0, "marketplace validation")
		if err := h.validateRemotely(ctx, cmd, rec, payload); err != nil {
			return err
		}
	}
	if err := stage.CheckCancelled(ctx); err != nil {
		return err
	}

	listing, created, err := h.Listings.BeginPublish(ctx, rec)
	switch {
	case errors.Is(err, listings.ErrDryRunConsumed):
		return h.block(ctx, cmd, rec.SourceProductID, services.PolicyFailure(services.CodeDryRunNotApprovable,
			"dry run %s was already approved by another command", rec.ApprovedFromDryRun).WithCause(err))
	case errors.Is(err, listings.ErrSourceListed):
		return h.block(ctx, cmd, rec.SourceProductID, services.PolicyFailure(services.CodeSourceAlreadyListed,
			"source product %s already has an active listing; withdraw it before publishing again", rec.SourceProductID).WithCause(err))
	case err != nil:
		return err
	}
	if listing.HasExternalID() {
		return h.finish(ctx, logger, cmd, listing, listing.ExternalID, listing.DesiredPrice)
	}
	if !created {
		return outcomeUnknown(listing, nil)
	}

	h.progress(ctx, logger, cmd, phaseCreate, 0, 1, "creating listing "+listing.ID)
	var externalID string
	err = h.call(ctx, func(ctx context.Context) error {
		var err error
		externalID, err = h.Marketplace.PublishListing(ctx, payload, cmd.ID)
		return err
	})
	if err != nil {
		var apiErr *marketplace.APIError
		if errors.As(err, &apiErr) && apiErr.Rejected() {
			failure := services.NewFailure(services.ErrValidation, services.CodeMarketplaceRejected, apiErr.Error()).WithCause(err)
			if markErr := h.Listings.MarkBlocked(context.WithoutCancel(ctx), listing.ID, string(failure.Code), failure.Message); markErr != nil {
				return errors.Join(failure, markErr)
			}
			return failure
		}
		return outcomeUnknown(listing, err)
	}

	if err := h.Listings.MarkPublished(context.WithoutCancel(ctx), listing.ID, externalID); err != nil {
		return outcomeUnknown(listing, fmt.Errorf("record external id %s: %w", externalID, err))
	}
	logger.InfoContext(ctx, "listing published",
		logging.String(logging.FieldEventType, "listing_published"),
		logging.String("listing_id", listing.ID),
		logging.String("external_id", externalID),
		logging.Float64("price", payload.Price),
		logging.Int("photos", len(photoIDs)),
	)
	return h.finish(ctx, logger, cmd, listing, externalID, rec.DesiredPrice)
}

// finish reads back a created listing and records the final phase.
func (h *PublishHandler) finish(ctx context.Context, logger *slog.Logger, cmd *queue.Command, listing *listings.Listing, externalID string, price float64) error {
	h.progress(ctx, logger, cmd, phaseReadBack, 0, 1, "reading back "+externalID)
	if err := h.readBack(ctx, logger, listing, externalID, price); err != nil {
		return err
	}
	h.progress(ctx, logger, cmd, phaseDone, 1, 1, "listing "+externalID+" is live")
	return nil
}

func (h *PublishHandler) uploadPhotos(ctx context.Context, logger *slog.Logger, cmd *queue.Command, images []string) ([]string, error) {
	ids := make([]string, 0, len(images))
	cached := 0
	for i, ref := range images {
		if err := stage.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		h.progress(ctx, logger, cmd, phasePhotos, i, len(images), "uploading "+ref)
		data, err := h.Images.Read(ctx, ref)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "publish", "read image", "Failed to read product image "+ref, err)
		}
		var result idempotency.UploadResult
		err = h.call(ctx, func(ctx context.Context) error {
			var err error
			result, err = h.Photos.Upload(ctx, data)
			return err
		})
		if err != nil {
			return nil, marketplaceFailure("upload photo", err)
		}
		if result.Cached {
			cached++
		}
		ids = append(ids, result.PhotoID)
	}
	h.progress(ctx, logger, cmd, phasePhotos, len(ids), len(images), fmt.Sprintf("%d photo(s) ready, %d cached", len(ids), cached))
	logger.DebugContext(ctx, "photos resolved",
		logging.Int("photos", len(ids)),
		logging.Int("cache_hits", cached),
	)
	return ids, nil
}

func (h *PublishHandler) validateRemotely(ctx context.Context, cmd *queue.Command, rec listings.Record, payload marketplace.Payload) error {
	var verdict marketplace.Validation
	err := h.call(ctx, func(ctx context.Context) error {
		var err error
		verdict, err = h.Marketplace.ValidateListing(ctx, payload)
		return err
	})
	if err != nil {
		return h.block(ctx, cmd, rec.SourceProductID, marketplaceFailure("validate listing", err))
	}
	validation := &listings.Validation{Passed: verdict.OK, Response: verdict.Response}
	if !verdict.OK {
		validation.Code = string(services.CodeMarketplaceRejected)
		validation.Message = fmt.Sprintf("marketplace validation failed: %v", verdict.Errors)
	}
	if err := h.Listings.SaveDraft(ctx, listings.Draft{
		CommandID:       cmd.ID,
		SourceProductID: rec.SourceProductID,
		PayloadJSON:     rec.PayloadJSON,
		PayloadHash:     rec.PayloadHash,
		SnapshotHash:    rec.SnapshotHash,
		Validation:      validation,
	}); err != nil {
		return err
	}
	if !verdict.OK {
		return h.block(ctx, cmd, rec.SourceProductID,
			services.NewFailure(services.ErrValidation, services.CodeMarketplaceRejected, validation.Message))
	}
	return nil
}

// block records a refused real publish and returns cause. Transient causes
// leave no listing row behind since the command will be retried.
func (h *PublishHandler) block(ctx context.Context, cmd *queue.Command, sourceProductID string, cause error) error {
	if services.Classify(cause) == services.KindTransient {
		return cause
	}
	detail := services.Details(cause)
	if _, err := h.Listings.RecordBlocked(context.WithoutCancel(ctx), listings.Block{
		CommandID:       cmd.ID,
		SourceProductID: sourceProductID,
		Code:            string(detail.Code),
		Reason:          detail.Message,
	}); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func outcomeUnknown(listing *listings.Listing, cause error) error {
	failure := services.PolicyFailure(services.CodePublishOutcomeUnknown,
		"create for listing %s returned no definitive answer; check the marketplace, then run `launchlock listings resolve`", listing.ID)
	if cause != nil {
		return failure.WithCause(cause)
	}
	return failure
}
