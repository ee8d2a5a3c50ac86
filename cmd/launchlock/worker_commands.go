package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"launchlock/internal/daemonrun"
	"launchlock/internal/logging"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the command worker",
	}
	workerCmd.AddCommand(newWorkerRunCommand(ctx))
	workerCmd.AddCommand(newWorkerOnceCommand(ctx))
	return workerCmd
}

func newWorkerRunCommand(ctx *commandContext) *cobra.Command {
	var (
		logLevel string
		dev      bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the worker in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel, Development: dev})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&dev, "dev", false, "Include source locations in log output")
	return cmd
}

func newWorkerOnceCommand(ctx *commandContext) *cobra.Command {
	var (
		drain    bool
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Claim and execute the next runnable command, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg, daemonrun.LogFileName(cfg), logging.ConfigOverrides{
				Level:   logLevel,
				Console: "stderr",
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			components, err := daemonrun.Build(cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			processed := 0
			for {
				ran, err := components.Workflow.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				if !ran {
					break
				}
				processed++
				if !drain {
					break
				}
			}

			out := cmd.OutOrStdout()
			if processed == 0 {
				fmt.Fprintln(out, "No runnable commands")
				return nil
			}
			if last := components.Workflow.Status(cmd.Context()).LastCommand; last != nil && !drain {
				fmt.Fprintf(out, "Command %s (%s) finished as %s\n", last.ID, last.Type, last.Status)
				return nil
			}
			fmt.Fprintf(out, "Processed %d command(s)\n", processed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&drain, "drain", false, "Keep executing until no command is runnable")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}
