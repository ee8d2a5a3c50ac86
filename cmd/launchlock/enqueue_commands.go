package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"launchlock/internal/queue"
)

type enqueueFlags struct {
	id          string
	priority    int
	maxAttempts int
}

func (f *enqueueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", "", "Command id; re-enqueueing the same id is a no-op")
	cmd.Flags().IntVar(&f.priority, "priority", 0, "Higher priorities are claimed first")
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", 0, "Attempt budget (defaults to worker.max_attempts)")
}

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	enqueueCmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a marketplace command",
	}
	enqueueCmd.AddCommand(newEnqueuePublishCommand(ctx))
	enqueueCmd.AddCommand(newEnqueuePriceCommand(ctx))
	enqueueCmd.AddCommand(newEnqueueWithdrawCommand(ctx))
	return enqueueCmd
}

func newEnqueuePublishCommand(ctx *commandContext) *cobra.Command {
	var (
		flags  enqueueFlags
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "publish <source-product-id>",
		Short: "Publish a source product (use --dry-run to stage it for approval)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := queue.PublishPayload{SourceProductID: strings.TrimSpace(args[0]), DryRun: dryRun}
			return enqueueAndReport(cmd, ctx, payload, flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build and validate the listing without touching the marketplace")
	return cmd
}

func newEnqueuePriceCommand(ctx *commandContext) *cobra.Command {
	var flags enqueueFlags
	cmd := &cobra.Command{
		Use:   "price <listing-id> <new-price>",
		Short: "Change the price of a live listing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", args[1], err)
			}
			payload := queue.PriceUpdatePayload{ListingID: strings.TrimSpace(args[0]), NewPrice: price}
			return enqueueAndReport(cmd, ctx, payload, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func newEnqueueWithdrawCommand(ctx *commandContext) *cobra.Command {
	var (
		flags  enqueueFlags
		reason string
	)
	cmd := &cobra.Command{
		Use:   "withdraw <listing-id>",
		Short: "Remove a listing from the marketplace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := queue.WithdrawPayload{ListingID: strings.TrimSpace(args[0]), Reason: strings.TrimSpace(reason)}
			return enqueueAndReport(cmd, ctx, payload, flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&reason, "reason", "", "Why the listing is being withdrawn")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func enqueueAndReport(cmd *cobra.Command, ctx *commandContext, payload queue.Payload, flags enqueueFlags) error {
	return ctx.withStores(func(s *stores) error {
		maxAttempts := flags.maxAttempts
		if maxAttempts <= 0 {
			maxAttempts = s.cfg.Worker.MaxAttempts
		}
		id, err := s.queue.Enqueue(cmd.Context(), payload, queue.EnqueueOptions{
			ID:          flags.id,
			Priority:    flags.priority,
			MaxAttempts: maxAttempts,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %s command %s\n", payload.CommandType(), id)
		return nil
	})
}
