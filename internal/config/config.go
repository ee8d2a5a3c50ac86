package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Store modes understood by the guardrail engine.
const (
	StoreModeLive    = "live"
	StoreModePaused  = "paused"
	StoreModeHoliday = "holiday"
)

// Lock backends.
const (
	LockBackendSQLite = "sqlite"
	LockBackendRedis  = "redis"
)

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	// ImageDir holds supplier product images referenced by source records.
	// Empty means <data_dir>/images.
	ImageDir string `toml:"image_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Worker contains configuration for the command worker loop.
type Worker struct {
	ID                     string `toml:"id"`
	QueuePollInterval      int    `toml:"queue_poll_interval"`
	ErrorRetryInterval     int    `toml:"error_retry_interval"`
	HeartbeatInterval      int    `toml:"heartbeat_interval"`
	LeaseSeconds           int    `toml:"lease_seconds"`
	MaxAttempts            int    `toml:"max_attempts"`
	RetryBackoffSeconds    int    `toml:"retry_backoff_seconds"`
	MaxRetryBackoffSeconds int    `toml:"max_retry_backoff_seconds"`
}

// Guardrails contains the operational policy limits applied before
// marketplace-mutating commands.
type Guardrails struct {
	StoreMode               string   `toml:"store_mode"`
	PublishingEnabled       bool     `toml:"publishing_enabled"`
	DisabledSuppliers       []string `toml:"disabled_suppliers"`
	MaxSourceAgeHours       int      `toml:"max_source_age_hours"`
	MaxPublishesPerDay      int      `toml:"max_publishes_per_day"`
	MaxPublishesPerMinute   int      `toml:"max_publishes_per_minute"`
	RateLimitMaxWaitSeconds int      `toml:"rate_limit_max_wait_seconds"`
	MinBalance              float64  `toml:"min_balance"`
}

// Gatekeeper contains thresholds for the publish gates.
type Gatekeeper struct {
	MinTrustScore        float64  `toml:"min_trust_score"`
	MinMarginPct         float64  `toml:"min_margin_pct"`
	TrustedSources       []string `toml:"trusted_sources"`
	UnmappedCategoryIDs  []string `toml:"unmapped_category_ids"`
	MinDescriptionLength int      `toml:"min_description_length"`
	BannedPhrases        []string `toml:"banned_phrases"`

	// TestMode skips the trust gate. Without AllowTestMode the gate fails closed.
	TestMode      bool `toml:"test_mode"`
	AllowTestMode bool `toml:"allow_test_mode"`
}

// Markup is a percentage-or-flat markup rule; the larger of the two wins.
type Markup struct {
	Pct  float64 `toml:"pct"`
	Flat float64 `toml:"flat"`
}

// Pricing contains markup rules for the pricing engine.
type Pricing struct {
	DefaultPct               float64           `toml:"default_pct"`
	DefaultFlat              float64           `toml:"default_flat"`
	CategoryOverridesEnabled bool              `toml:"category_overrides_enabled"`
	CategoryOverrides        map[string]Markup `toml:"category_overrides"`
	SupplierOverrides        map[string]Markup `toml:"supplier_overrides"`
}

// Marketplace contains connection settings for the marketplace API.
type Marketplace struct {
	BaseURL               string  `toml:"base_url"`
	APIKey                string  `toml:"api_key"`
	CallTimeoutSeconds    int     `toml:"call_timeout_seconds"`
	RequestsPerSecond     int     `toml:"requests_per_second"`
	PriceTolerance        float64 `toml:"price_tolerance"`
	ValidateBeforePublish bool    `toml:"validate_before_publish"`
}

// Locks selects the ResourceLock backend.
type Locks struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTLSeconds    int    `toml:"ttl_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	HumanRequired  bool   `toml:"human_required"`
	FailedFatal    bool   `toml:"failed_fatal"`
}

// Scheduler contains housekeeping schedule configuration.
type Scheduler struct {
	HousekeepingCron string `toml:"housekeeping_cron"`
}

// Config encapsulates all configuration values for LaunchLock.
//
// Configuration sections by subsystem:
//   - Paths: database and log directories
//   - Logging: log format and level
//   - Worker: polling, leases, retry budget
//   - Guardrails: store mode, quotas, staleness, balance preflight
//   - Gatekeeper: trust/margin thresholds, trusted sources, test mode
//   - Pricing: default, category, and supplier markups
//   - Marketplace: API endpoint, credentials, timeouts
//   - Locks: resource lock backend (sqlite or redis)
//   - Notifications: ntfy push notification settings
//   - Scheduler: housekeeping cron spec
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Worker        Worker        `toml:"worker"`
	Guardrails    Guardrails    `toml:"guardrails"`
	Gatekeeper    Gatekeeper    `toml:"gatekeeper"`
	Pricing       Pricing       `toml:"pricing"`
	Marketplace   Marketplace   `toml:"marketplace"`
	Locks         Locks         `toml:"locks"`
	Notifications Notifications `toml:"notifications"`
	Scheduler     Scheduler     `toml:"scheduler"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/launchlock/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("launchlock.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ImagesDir returns the directory product image references resolve against.
func (c *Config) ImagesDir() string {
	if c.Paths.ImageDir != "" {
		return c.Paths.ImageDir
	}
	return filepath.Join(c.Paths.DataDir, "images")
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "launchlock.db")
}

// WorkerLockPath returns the single-instance lock file for the configured worker id.
func (c *Config) WorkerLockPath() string {
	return filepath.Join(c.Paths.DataDir, fmt.Sprintf("launchlockd-%s.lock", c.Worker.ID))
}

// PollInterval returns the idle wait between queue polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Worker.QueuePollInterval) * time.Second
}

// HeartbeatInterval returns how often a running command extends its lease.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Worker.HeartbeatInterval) * time.Second
}

// ErrorRetryInterval returns the pause after a failed worker cycle.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Worker.ErrorRetryInterval) * time.Second
}

// RetryBackoff returns the delay before attempt number attempts+1 of a
// transiently failed command: the base backoff doubled per spent attempt,
// capped at the configured maximum.
func (c *Config) RetryBackoff(attempts int) time.Duration {
	delay := time.Duration(c.Worker.RetryBackoffSeconds) * time.Second
	if delay <= 0 {
		return 0
	}
	limit := time.Duration(c.Worker.MaxRetryBackoffSeconds) * time.Second
	for i := 1; i < attempts; i++ {
		delay *= 2
		if limit > 0 && delay >= limit {
			return limit
		}
	}
	if limit > 0 && delay > limit {
		return limit
	}
	return delay
}

// LeaseDuration returns how long a claimed command stays owned without a heartbeat.
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.Worker.LeaseSeconds) * time.Second
}

// CallTimeout returns the per-call timeout applied to every marketplace request.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Marketplace.CallTimeoutSeconds) * time.Second
}

// LockTTL returns the resource lock expiry.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Locks.TTLSeconds) * time.Second
}

// MaxSourceAge returns the freshness threshold for source records.
func (c *Config) MaxSourceAge() time.Duration {
	return time.Duration(c.Guardrails.MaxSourceAgeHours) * time.Hour
}

// IsTrustedSource reports whether a supplier is exempt from the policy gate.
func (c *Config) IsTrustedSource(supplier string) bool {
	return containsFold(c.Gatekeeper.TrustedSources, supplier)
}

// IsSupplierDisabled reports whether publishing is disabled for a supplier.
func (c *Config) IsSupplierDisabled(supplier string) bool {
	return containsFold(c.Guardrails.DisabledSuppliers, supplier)
}

func containsFold(values []string, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), needle) {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
