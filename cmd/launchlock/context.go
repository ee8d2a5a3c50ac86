package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"launchlock/internal/catalog"
	"launchlock/internal/clock"
	"launchlock/internal/config"
	"launchlock/internal/listings"
	"launchlock/internal/queue"
	"launchlock/internal/storage"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// stores bundles the persistence layers a CLI command works with.
type stores struct {
	cfg      *config.Config
	db       *storage.DB
	queue    *queue.Store
	catalog  *catalog.Store
	listings *listings.Store
}

// withStores opens the database for the duration of fn.
func (c *commandContext) withStores(fn func(*stores) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	db, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	clk := clock.Real()
	return fn(&stores{
		cfg:      cfg,
		db:       db,
		queue:    queue.NewStore(db, clk),
		catalog:  catalog.NewStore(db, clk),
		listings: listings.NewStore(db, clk),
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
