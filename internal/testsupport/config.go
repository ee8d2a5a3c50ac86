package testsupport

import (
	"path/filepath"
	"testing"

	"launchlock/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Marketplace.APIKey = "test"
	cfgVal.Marketplace.BaseURL = "http://127.0.0.1:0"
	cfgVal.Worker.ID = "test-worker"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithConfig applies an arbitrary mutation to the test config.
func WithConfig(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}

// WithStoreMode sets the guardrail store mode.
func WithStoreMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Guardrails.StoreMode = mode
	}
}

// WithSupplierMarkup registers a supplier pricing override.
func WithSupplierMarkup(supplier string, markup config.Markup) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Pricing.SupplierOverrides == nil {
			b.cfg.Pricing.SupplierOverrides = map[string]config.Markup{}
		}
		b.cfg.Pricing.SupplierOverrides[supplier] = markup
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
