package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorker()
	c.normalizeGuardrails()
	c.normalizeGatekeeper()
	c.normalizePricing()
	c.normalizeMarketplace()
	c.normalizeLocks()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ImageDir) != "" {
		if c.Paths.ImageDir, err = expandPath(c.Paths.ImageDir); err != nil {
			return fmt.Errorf("paths.image_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeWorker() {
	c.Worker.ID = strings.TrimSpace(c.Worker.ID)
	if c.Worker.ID == "" {
		if value, ok := os.LookupEnv("LAUNCHLOCK_WORKER_ID"); ok && strings.TrimSpace(value) != "" {
			c.Worker.ID = strings.TrimSpace(value)
		} else {
			c.Worker.ID = defaultWorkerID
		}
	}
}

func (c *Config) normalizeGuardrails() {
	mode := strings.ToLower(strings.TrimSpace(c.Guardrails.StoreMode))
	if mode == "" {
		mode = StoreModeLive
	}
	c.Guardrails.StoreMode = mode
	c.Guardrails.DisabledSuppliers = normalizeStringSlice(c.Guardrails.DisabledSuppliers)
}

func (c *Config) normalizeGatekeeper() {
	c.Gatekeeper.TrustedSources = normalizeStringSlice(c.Gatekeeper.TrustedSources)
	c.Gatekeeper.UnmappedCategoryIDs = normalizeStringSlice(c.Gatekeeper.UnmappedCategoryIDs)
	phrases := make([]string, 0, len(c.Gatekeeper.BannedPhrases))
	for _, phrase := range normalizeStringSlice(c.Gatekeeper.BannedPhrases) {
		phrases = append(phrases, strings.ToLower(phrase))
	}
	c.Gatekeeper.BannedPhrases = phrases
}

func (c *Config) normalizePricing() {
	c.Pricing.CategoryOverrides = normalizeMarkupMap(c.Pricing.CategoryOverrides)
	c.Pricing.SupplierOverrides = normalizeMarkupMap(c.Pricing.SupplierOverrides)
}

func (c *Config) normalizeMarketplace() {
	c.Marketplace.BaseURL = strings.TrimRight(strings.TrimSpace(c.Marketplace.BaseURL), "/")
	if c.Marketplace.BaseURL == "" {
		c.Marketplace.BaseURL = defaultMarketplaceBaseURL
	}
	if c.Marketplace.APIKey == "" {
		if value, ok := os.LookupEnv("LAUNCHLOCK_MARKETPLACE_API_KEY"); ok {
			c.Marketplace.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLocks() {
	backend := strings.ToLower(strings.TrimSpace(c.Locks.Backend))
	if backend == "" {
		backend = defaultLocksBackend
	}
	c.Locks.Backend = backend
	c.Locks.RedisAddr = strings.TrimSpace(c.Locks.RedisAddr)
	if c.Locks.RedisAddr == "" {
		if value, ok := os.LookupEnv("LAUNCHLOCK_REDIS_ADDR"); ok {
			c.Locks.RedisAddr = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
		c.Logging.Format = "json"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func normalizeMarkupMap(values map[string]Markup) map[string]Markup {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]Markup, len(values))
	for key, markup := range values {
		trimmed := strings.ToLower(strings.TrimSpace(key))
		if trimmed == "" {
			continue
		}
		out[trimmed] = markup
	}
	return out
}
