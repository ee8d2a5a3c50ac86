package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newSourceCommand(ctx *commandContext) *cobra.Command {
	sourceCmd := &cobra.Command{
		Use:   "source",
		Short: "Manage scraped source products",
	}
	sourceCmd.AddCommand(newSourceImportCommand(ctx))
	sourceCmd.AddCommand(newSourceListCommand(ctx))
	return sourceCmd
}

func newSourceImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import source products from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open import file: %w", err)
			}
			defer f.Close()
			return ctx.withStores(func(s *stores) error {
				n, err := s.catalog.Import(cmd.Context(), f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d source product(s)\n", n)
				return nil
			})
		},
	}
}

func newSourceListCommand(ctx *commandContext) *cobra.Command {
	var (
		supplier string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List source products",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				products, err := s.catalog.List(cmd.Context(), strings.TrimSpace(supplier), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, products)
				}
				out := cmd.OutOrStdout()
				if len(products) == 0 {
					fmt.Fprintln(out, "No source products")
					return nil
				}
				rows := make([][]string, 0, len(products))
				for _, p := range products {
					rows = append(rows, []string{
						p.ID,
						p.Supplier,
						dash(p.Title),
						strconv.FormatFloat(p.Cost, 'f', 2, 64),
						strconv.Itoa(p.Stock),
						formatTimestamp(p.RefreshedAt),
					})
				}
				headers := []string{"ID", "Supplier", "Title", "Cost", "Stock", "Refreshed"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&supplier, "supplier", "", "Only list products from this supplier")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of products")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
