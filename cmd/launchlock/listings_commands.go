package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"launchlock/internal/listings"
)

func newListingsCommand(ctx *commandContext) *cobra.Command {
	listingsCmd := &cobra.Command{
		Use:   "listings",
		Short: "Inspect local listing records",
	}
	listingsCmd.AddCommand(newListingsListCommand(ctx))
	listingsCmd.AddCommand(newListingsResolveCommand(ctx))
	return listingsCmd
}

func newListingsListCommand(ctx *commandContext) *cobra.Command {
	var (
		stateFlags []string
		source     string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List listings and their desired/actual state",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := listings.Filter{SourceProductID: strings.TrimSpace(source), Limit: limit}
			for _, raw := range stateFlags {
				filter.States = append(filter.States, listings.State(strings.ToLower(strings.TrimSpace(raw))))
			}
			return ctx.withStores(func(s *stores) error {
				items, err := s.listings.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No listings")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(items))
				for _, l := range items {
					rows = append(rows, []string{
						shortID(l.ID),
						l.SourceProductID,
						paint(string(l.State), stateColor(l.State), colorize),
						dash(l.ExternalID),
						strconv.FormatFloat(l.DesiredPrice, 'f', 2, 64),
						strconv.FormatFloat(l.ActualPrice, 'f', 2, 64),
						dash(l.BlockCode),
						formatTimestamp(l.UpdatedAt),
					})
				}
				headers := []string{"ID", "Source", "State", "External", "Desired", "Actual", "Block", "Updated"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&stateFlags, "state", "s", nil, "Filter by state (repeatable)")
	cmd.Flags().StringVar(&source, "source", "", "Filter by source product id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of listings")
	return cmd
}

func newListingsResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <publish-command-id> [external-id]",
		Short: "Settle a publish whose outcome was unknown",
		Long: "Settle a listing left in publishing after a crash or an ambiguous marketplace response.\n" +
			"Pass the external id if the listing exists on the marketplace; omit it to mark the attempt blocked.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			externalID := ""
			if len(args) == 2 {
				externalID = strings.TrimSpace(args[1])
			}
			return ctx.withStores(func(s *stores) error {
				listing, err := s.listings.ResolveIntent(cmd.Context(), strings.TrimSpace(args[0]), externalID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Listing %s is now %s\n", listing.ID, listing.State)
				return nil
			})
		},
	}
}
