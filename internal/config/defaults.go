package config

const (
	defaultDataDir                 = "~/.local/share/launchlock"
	defaultLogDir                  = "~/.local/share/launchlock/logs"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultWorkerID                = "worker-1"
	defaultQueuePollInterval       = 5
	defaultErrorRetryInterval      = 10
	defaultHeartbeatInterval       = 15
	defaultLeaseSeconds            = 120
	defaultMaxAttempts             = 3
	defaultRetryBackoffSeconds     = 30
	defaultMaxRetryBackoffSeconds  = 900
	defaultMaxSourceAgeHours       = 24
	defaultMaxPublishesPerDay      = 50
	defaultMaxPublishesPerMinute   = 2
	defaultRateLimitMaxWaitSeconds = 90
	defaultMinBalance              = 5.0
	defaultMinTrustScore           = 95
	defaultMinMarginPct            = 0.10
	defaultMinDescriptionLength    = 80
	defaultPricingPct              = 0.20
	defaultPricingFlat             = 4.00
	defaultMarketplaceBaseURL      = "https://api.marketplace.invalid/v1"
	defaultCallTimeoutSeconds      = 30
	defaultRequestsPerSecond       = 4
	defaultPriceTolerance          = 0.01
	defaultLocksBackend            = "sqlite"
	defaultLockTTLSeconds          = 300
	defaultNotifyRequestTimeout    = 10
	defaultHousekeepingCron        = "@every 1m"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Worker: Worker{
			ID:                     defaultWorkerID,
			QueuePollInterval:      defaultQueuePollInterval,
			ErrorRetryInterval:     defaultErrorRetryInterval,
			HeartbeatInterval:      defaultHeartbeatInterval,
			LeaseSeconds:           defaultLeaseSeconds,
			MaxAttempts:            defaultMaxAttempts,
			RetryBackoffSeconds:    defaultRetryBackoffSeconds,
			MaxRetryBackoffSeconds: defaultMaxRetryBackoffSeconds,
		},
		Guardrails: Guardrails{
			StoreMode:               StoreModeLive,
			PublishingEnabled:       true,
			MaxSourceAgeHours:       defaultMaxSourceAgeHours,
			MaxPublishesPerDay:      defaultMaxPublishesPerDay,
			MaxPublishesPerMinute:   defaultMaxPublishesPerMinute,
			RateLimitMaxWaitSeconds: defaultRateLimitMaxWaitSeconds,
			MinBalance:              defaultMinBalance,
		},
		Gatekeeper: Gatekeeper{
			MinTrustScore:        defaultMinTrustScore,
			MinMarginPct:         defaultMinMarginPct,
			UnmappedCategoryIDs:  []string{"0", "unmapped", "default"},
			MinDescriptionLength: defaultMinDescriptionLength,
			BannedPhrases:        []string{"replica", "counterfeit", "knockoff"},
		},
		Pricing: Pricing{
			DefaultPct:  defaultPricingPct,
			DefaultFlat: defaultPricingFlat,
		},
		Marketplace: Marketplace{
			BaseURL:               defaultMarketplaceBaseURL,
			CallTimeoutSeconds:    defaultCallTimeoutSeconds,
			RequestsPerSecond:     defaultRequestsPerSecond,
			PriceTolerance:        defaultPriceTolerance,
			ValidateBeforePublish: true,
		},
		Locks: Locks{
			Backend:    defaultLocksBackend,
			TTLSeconds: defaultLockTTLSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			HumanRequired:  true,
			FailedFatal:    true,
		},
		Scheduler: Scheduler{
			HousekeepingCron: defaultHousekeepingCron,
		},
	}
}
