package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"launchlock/internal/clock"
	"launchlock/internal/locks"
	"launchlock/internal/logging"
	"launchlock/internal/queue"
	"launchlock/internal/scheduler"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the command queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueLogsCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueReclaimCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlags []string
		typeFlag    string
		limit       int
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.ListFilter{Type: queue.Type(strings.TrimSpace(typeFlag)), Limit: limit}
			for _, raw := range statusFlags {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withStores(func(s *stores) error {
				commands, err := s.queue.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, commandViews(commands))
				}
				out := cmd.OutOrStdout()
				if len(commands) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(commands))
				for _, c := range commands {
					rows = append(rows, []string{
						shortID(c.ID),
						string(c.Type),
						paint(string(c.Status), statusColor(c.Status), colorize),
						fmt.Sprintf("%d/%d", c.Attempts, c.MaxAttempts),
						strconv.Itoa(c.Priority),
						dash(c.ErrorCode),
						formatTimestamp(c.UpdatedAt),
					})
				}
				headers := []string{"ID", "Type", "Status", "Attempts", "Priority", "Error", "Updated"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVarP(&typeFlag, "type", "t", "", "Filter by command type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of commands to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <command-id>",
		Short: "Show one command with its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				c, err := getCommand(cmd, s, args[0])
				if err != nil {
					return err
				}
				progress, hasProgress, err := s.queue.GetProgress(cmd.Context(), c.ID)
				if err != nil {
					return err
				}
				view := newCommandView(c)
				if hasProgress {
					view.Progress = &progressView{
						Phase:      progress.Phase,
						Done:       progress.Done,
						Total:      progress.Total,
						ETASeconds: progress.ETASeconds,
						Message:    progress.Message,
					}
				}
				if asJSON {
					return writeJSON(cmd, view)
				}
				printCommandView(cmd, view)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		after int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "logs <command-id>",
		Short: "Print the execution log of a command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				c, err := getCommand(cmd, s, args[0])
				if err != nil {
					return err
				}
				entries, err := s.queue.Logs(cmd.Context(), c.ID, after, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No log entries")
					return nil
				}
				for _, entry := range entries {
					line := fmt.Sprintf("%s %-5s %s", formatTimestamp(entry.Time), entry.Level, entry.Message)
					if attrs := strings.TrimSpace(entry.AttrsJSON); attrs != "" && attrs != "{}" {
						line += " " + attrs
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "Only show entries after this log id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 200, "Maximum number of entries")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count commands by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				stats, err := s.queue.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					counts := make(map[string]int, len(stats))
					for status, n := range stats {
						counts[string(status)] = n
					}
					return writeJSON(cmd, counts)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(queue.AllStatuses()))
				total := 0
				for _, status := range queue.AllStatuses() {
					total += stats[status]
					rows = append(rows, []string{paint(string(status), statusColor(status), colorize), strconv.Itoa(stats[status])})
				}
				rows = append(rows, []string{"total", strconv.Itoa(total)})
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <command-id>...",
		Short: "Return human_required commands to the queue with a fresh attempt budget",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				out := cmd.OutOrStdout()
				var failed []error
				for _, id := range args {
					if err := s.queue.Acknowledge(cmd.Context(), strings.TrimSpace(id)); err != nil {
						failed = append(failed, fmt.Errorf("%s: %w", id, err))
						continue
					}
					fmt.Fprintf(out, "Command %s returned to pending\n", id)
				}
				return errors.Join(failed...)
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <command-id>...",
		Short: "Cancel commands that have not finished",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				out := cmd.OutOrStdout()
				var failed []error
				for _, id := range args {
					if err := s.queue.Cancel(cmd.Context(), strings.TrimSpace(id), strings.TrimSpace(reason)); err != nil {
						failed = append(failed, fmt.Errorf("%s: %w", id, err))
						continue
					}
					fmt.Fprintf(out, "Command %s cancelled\n", id)
				}
				return errors.Join(failed...)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the command")
	return cmd
}

func newQueueReclaimCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Reclaim expired command leases and sweep expired resource locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				clk := clock.Real()
				locker, err := locks.New(s.cfg, s.db, clk)
				if err != nil {
					return err
				}
				if closer, ok := locker.(interface{ Close() error }); ok {
					defer closer.Close()
				}
				hk := scheduler.New(s.cfg.Scheduler.HousekeepingCron, s.queue, locker, clk, logging.NewNop())
				result, err := hk.RunNow(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d expired lease(s), swept %d expired lock(s)\n", result.ReclaimedLeases, result.SweptLocks)
				return err
			})
		},
	}
}

func getCommand(cmd *cobra.Command, s *stores, id string) (*queue.Command, error) {
	c, err := s.queue.Get(cmd.Context(), strings.TrimSpace(id))
	if errors.Is(err, queue.ErrNotFound) {
		return nil, fmt.Errorf("command %s not found", id)
	}
	return c, err
}
