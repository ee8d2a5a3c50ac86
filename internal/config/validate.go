package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateGuardrails(); err != nil {
		return err
	}
	if err := c.validateGatekeeper(); err != nil {
		return err
	}
	if err := c.validatePricing(); err != nil {
		return err
	}
	if err := c.validateMarketplace(); err != nil {
		return err
	}
	if err := c.validateLocks(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.QueuePollInterval <= 0 {
		return errors.New("worker.queue_poll_interval must be positive")
	}
	if c.Worker.ErrorRetryInterval <= 0 {
		return errors.New("worker.error_retry_interval must be positive")
	}
	if c.Worker.HeartbeatInterval <= 0 {
		return errors.New("worker.heartbeat_interval must be positive")
	}
	if c.Worker.LeaseSeconds <= 0 {
		return errors.New("worker.lease_seconds must be positive")
	}
	if c.Worker.LeaseSeconds <= c.Worker.HeartbeatInterval {
		return errors.New("worker.lease_seconds must exceed worker.heartbeat_interval")
	}
	if c.Worker.MaxAttempts <= 0 {
		return errors.New("worker.max_attempts must be positive")
	}
	if c.Worker.RetryBackoffSeconds < 0 {
		return errors.New("worker.retry_backoff_seconds must be non-negative")
	}
	if c.Worker.MaxRetryBackoffSeconds < c.Worker.RetryBackoffSeconds {
		return errors.New("worker.max_retry_backoff_seconds must be at least worker.retry_backoff_seconds")
	}
	return nil
}

func (c *Config) validateGuardrails() error {
	switch c.Guardrails.StoreMode {
	case StoreModeLive, StoreModePaused, StoreModeHoliday:
	default:
		return fmt.Errorf("guardrails.store_mode: unsupported value %q (expected live, paused, or holiday)", c.Guardrails.StoreMode)
	}
	if c.Guardrails.MaxSourceAgeHours <= 0 {
		return errors.New("guardrails.max_source_age_hours must be positive")
	}
	if c.Guardrails.MaxPublishesPerDay < 0 {
		return errors.New("guardrails.max_publishes_per_day must be non-negative")
	}
	if c.Guardrails.MaxPublishesPerMinute < 0 {
		return errors.New("guardrails.max_publishes_per_minute must be non-negative")
	}
	if c.Guardrails.RateLimitMaxWaitSeconds < 0 {
		return errors.New("guardrails.rate_limit_max_wait_seconds must be non-negative")
	}
	if c.Guardrails.MinBalance < 0 {
		return errors.New("guardrails.min_balance must be non-negative")
	}
	return nil
}

func (c *Config) validateGatekeeper() error {
	if c.Gatekeeper.MinTrustScore < 0 || c.Gatekeeper.MinTrustScore > 100 {
		return errors.New("gatekeeper.min_trust_score must be between 0 and 100")
	}
	if c.Gatekeeper.MinMarginPct < 0 || c.Gatekeeper.MinMarginPct >= 1 {
		return errors.New("gatekeeper.min_margin_pct must be between 0 and 1")
	}
	if c.Gatekeeper.MinDescriptionLength < 0 {
		return errors.New("gatekeeper.min_description_length must be non-negative")
	}
	return nil
}

func (c *Config) validatePricing() error {
	if err := validateMarkup("pricing.default", Markup{Pct: c.Pricing.DefaultPct, Flat: c.Pricing.DefaultFlat}); err != nil {
		return err
	}
	for key, markup := range c.Pricing.CategoryOverrides {
		if err := validateMarkup("pricing.category_overrides."+key, markup); err != nil {
			return err
		}
	}
	for key, markup := range c.Pricing.SupplierOverrides {
		if err := validateMarkup("pricing.supplier_overrides."+key, markup); err != nil {
			return err
		}
	}
	return nil
}

func validateMarkup(name string, markup Markup) error {
	if markup.Pct < 0 {
		return fmt.Errorf("%s.pct must be non-negative", name)
	}
	if markup.Flat < 0 {
		return fmt.Errorf("%s.flat must be non-negative", name)
	}
	return nil
}

func (c *Config) validateMarketplace() error {
	if c.Marketplace.CallTimeoutSeconds <= 0 {
		return errors.New("marketplace.call_timeout_seconds must be positive")
	}
	if c.Marketplace.RequestsPerSecond <= 0 {
		return errors.New("marketplace.requests_per_second must be positive")
	}
	if c.Marketplace.PriceTolerance < 0 {
		return errors.New("marketplace.price_tolerance must be non-negative")
	}
	return nil
}

func (c *Config) validateLocks() error {
	switch c.Locks.Backend {
	case LockBackendSQLite:
	case LockBackendRedis:
		if c.Locks.RedisAddr == "" {
			return errors.New("locks.redis_addr is required when locks.backend is redis")
		}
	default:
		return fmt.Errorf("locks.backend: unsupported value %q (expected sqlite or redis)", c.Locks.Backend)
	}
	if c.Locks.TTLSeconds <= 0 {
		return errors.New("locks.ttl_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.HousekeepingCron == "" {
		return errors.New("scheduler.housekeeping_cron must be set")
	}
	if _, err := cron.ParseStandard(c.Scheduler.HousekeepingCron); err != nil {
		return fmt.Errorf("scheduler.housekeeping_cron: %w", err)
	}
	return nil
}
