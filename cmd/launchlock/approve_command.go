package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"launchlock/internal/listings"
	"launchlock/internal/queue"
)

func newApproveCommand(ctx *commandContext) *cobra.Command {
	var flags enqueueFlags
	cmd := &cobra.Command{
		Use:   "approve <dry-run-command-id>",
		Short: "Queue a real publish approved from a successful dry run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRunID := strings.TrimSpace(args[0])
			return ctx.withStores(func(s *stores) error {
				sourceID, err := approvableDryRun(cmd, s, dryRunID)
				if err != nil {
					return err
				}
				maxAttempts := flags.maxAttempts
				if maxAttempts <= 0 {
					maxAttempts = s.cfg.Worker.MaxAttempts
				}
				id, err := s.queue.Enqueue(cmd.Context(), queue.PublishPayload{
					SourceProductID:    sourceID,
					ApprovedFromDryRun: dryRunID,
				}, queue.EnqueueOptions{ID: flags.id, Priority: flags.priority, MaxAttempts: maxAttempts})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved dry run %s for %s; queued publish command %s\n", dryRunID, sourceID, id)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// approvableDryRun checks the operator-facing preconditions of an approval and
// returns the source product id. The publish handler re-checks them when it runs.
func approvableDryRun(cmd *cobra.Command, s *stores, dryRunID string) (string, error) {
	dry, err := s.queue.Get(cmd.Context(), dryRunID)
	if errors.Is(err, queue.ErrNotFound) {
		return "", fmt.Errorf("dry run %s not found", dryRunID)
	}
	if err != nil {
		return "", err
	}
	payload, err := dry.Payload()
	if err != nil {
		return "", err
	}
	publish, ok := payload.(queue.PublishPayload)
	if !ok || !publish.DryRun {
		return "", fmt.Errorf("command %s is not a dry-run publish", dryRunID)
	}
	if dry.Status != queue.StatusSucceeded {
		return "", fmt.Errorf("dry run %s is %s; only succeeded dry runs can be approved", dryRunID, dry.Status)
	}
	listing, err := s.listings.GetByCommand(cmd.Context(), dryRunID)
	if errors.Is(err, listings.ErrNotFound) {
		return "", fmt.Errorf("dry run %s produced no listing", dryRunID)
	}
	if err != nil {
		return "", err
	}
	switch listing.State {
	case listings.StateDryRun:
	case listings.StateApproved:
		return "", fmt.Errorf("dry run %s was already approved by command %s", dryRunID, listing.ApprovedBy)
	default:
		return "", fmt.Errorf("dry run %s listing is %s", dryRunID, listing.State)
	}
	return publish.SourceProductID, nil
}
