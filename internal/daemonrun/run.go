package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"launchlock/internal/config"
	"launchlock/internal/daemon"
	"launchlock/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the launchlock daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg, LogFileName(cfg), logging.ConfigOverrides{
		Level:       opts.LogLevel,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, fmt.Sprintf("launchlockd-%s.pid", cfg.Worker.ID))
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	components, err := Build(cfg, logger)
	if err != nil {
		logger.Error("wire worker components", logging.Error(err))
		return err
	}
	defer components.Close()
	logger = components.Logger
	logConfigSnapshot(logger, cfg)

	d, err := daemon.New(cfg, logger, components.Workflow, components.Housekeeper)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("launchlock daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// LogFileName is the daemon log file of the configured worker.
func LogFileName(cfg *config.Config) string {
	return fmt.Sprintf("launchlockd-%s.log", cfg.Worker.ID)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String(logging.FieldWorkerID, cfg.Worker.ID),
		logging.String("store_mode", cfg.Guardrails.StoreMode),
		logging.Bool("publishing_enabled", cfg.Guardrails.PublishingEnabled),
		logging.Int("max_publishes_per_day", cfg.Guardrails.MaxPublishesPerDay),
		logging.String("marketplace_base_url", cfg.Marketplace.BaseURL),
		logging.Bool("marketplace_key_present", strings.TrimSpace(cfg.Marketplace.APIKey) != ""),
		logging.Bool("validate_before_publish", cfg.Marketplace.ValidateBeforePublish),
		logging.String("lock_backend", cfg.Locks.Backend),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("gatekeeper_test_mode", cfg.Gatekeeper.TestMode),
		logging.String("images_dir", cfg.ImagesDir()),
		logging.String("housekeeping_cron", cfg.Scheduler.HousekeepingCron),
	)
}
