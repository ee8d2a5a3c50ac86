package guardrails

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"launchlock/internal/catalog"
	"launchlock/internal/clock"
	"launchlock/internal/config"
	"launchlock/internal/idempotency"
	"launchlock/internal/logging"
	"launchlock/internal/services"
)

const decisionType = "guardrail"

// rateWindow is the sliding window of the per-minute publish limit.
const rateWindow = time.Minute

// Kind selects which checks apply.
type Kind string

const (
	KindPublish     Kind = "publish"
	KindPriceUpdate Kind = "price_update"
)

// Approval pins the source snapshot an operator approved in a dry run.
type Approval struct {
	DryRunCommandID string
	SnapshotHash    string
}

// Request describes the command being checked.
type Request struct {
	Kind            Kind
	SourceProductID string
	DryRunApproval  *Approval
}

// SourceStore reads source products.
type SourceStore interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
}

// PublishLedger reports successful real publishes.
type PublishLedger interface {
	CountPublishedSince(ctx context.Context, since time.Time) (int, error)
	PublishTimesSince(ctx context.Context, since time.Time) ([]time.Time, error)
}

// BalanceSource fetches the available marketplace account balance.
type BalanceSource interface {
	GetAccountBalance(ctx context.Context) (float64, error)
}

// Engine evaluates guardrails.
type Engine struct {
	cfg      *config.Config
	sources  SourceStore
	ledger   PublishLedger
	balance  BalanceSource
	clock    clock.Clock
	location *time.Location
	logger   *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLocation sets the time zone that defines "today" for the daily quota.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// NewEngine wires an engine to its collaborators.
func NewEngine(cfg *config.Config, sources SourceStore, ledger PublishLedger, balance BalanceSource, clk clock.Clock, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		sources:  sources,
		ledger:   ledger,
		balance:  balance,
		clock:    clock.OrReal(clk),
		location: time.Local,
		logger:   logging.NewComponentLogger(logger, "guardrails"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check runs the guardrails for req. It returns nil when the command may
// proceed, or the first blocking *services.Failure.
func (e *Engine) Check(ctx context.Context, req Request) error {
	logger := logging.WithContext(ctx, e.logger)
	if err := e.check(ctx, logger, req); err != nil {
		detail := services.Details(err)
		attrs := logging.DecisionAttrs(decisionType, "blocked", detail.Message)
		attrs = append(attrs,
			logging.String(logging.FieldErrorCode, string(detail.Code)),
			logging.String("source_product_id", req.SourceProductID),
			logging.String("guardrail_kind", string(req.Kind)),
		)
		logger.WarnContext(ctx, "guardrail blocked command", logging.Args(attrs...)...)
		return err
	}
	logger.DebugContext(ctx, "guardrails passed", logging.Args(logging.DecisionAttrs(decisionType, "allowed", string(req.Kind))...)...)
	return nil
}

func (e *Engine) check(ctx context.Context, logger *slog.Logger, req Request) error {
	g := e.cfg.Guardrails
	if g.StoreMode == config.StoreModePaused || g.StoreMode == config.StoreModeHoliday {
		return services.PolicyFailure(services.CodePublishDisabledStoreMode, "store mode is %s", g.StoreMode)
	}
	if !g.PublishingEnabled {
		return services.PolicyFailure(services.CodePublishDisabled, "publishing is disabled")
	}

	product, err := e.sources.Get(ctx, req.SourceProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return services.NewFailure(services.ErrValidation, services.CodeSourceNotFound,
				fmt.Sprintf("source product %s not found", req.SourceProductID))
		}
		return fmt.Errorf("load source product: %w", err)
	}
	if e.cfg.IsSupplierDisabled(product.Supplier) {
		return services.PolicyFailure(services.CodeSupplierDisabled, "supplier %s is disabled", product.Supplier)
	}
	if req.Kind != KindPublish {
		// Repricing mutates a listing, so the balance preflight still applies.
		return e.checkBalance(ctx)
	}

	now := e.clock.Now()
	if maxAge := e.cfg.MaxSourceAge(); maxAge > 0 && now.Sub(product.RefreshedAt) > maxAge {
		return services.PolicyFailure(services.CodeStaleSupplierTruth,
			"source %s last refreshed %s ago (limit %s)", product.ID, now.Sub(product.RefreshedAt).Round(time.Minute), maxAge)
	}
	if req.DryRunApproval != nil {
		if err := idempotency.CheckDrift(req.DryRunApproval.SnapshotHash, product.SnapshotHash); err != nil {
			return err
		}
	}
	if err := e.checkDailyQuota(ctx, now); err != nil {
		return err
	}
	if err := e.throttle(ctx, logger, now); err != nil {
		return err
	}
	return e.checkBalance(ctx)
}

func (e *Engine) checkDailyQuota(ctx context.Context, now time.Time) error {
	limit := e.cfg.Guardrails.MaxPublishesPerDay
	if limit <= 0 {
		return nil
	}
	local := now.In(e.location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.location)
	count, err := e.ledger.CountPublishedSince(ctx, midnight)
	if err != nil {
		return fmt.Errorf("count daily publishes: %w", err)
	}
	if count >= limit {
		return services.PolicyFailure(services.CodePublishDailyQuotaReached,
			"%d of %d daily publishes used", count, limit)
	}
	return nil
}

// throttle sleeps until the per-minute window has room, bounded by the
// configured maximum wait. It only fails when ctx is cancelled.
func (e *Engine) throttle(ctx context.Context, logger *slog.Logger, now time.Time) error {
	limit := e.cfg.Guardrails.MaxPublishesPerMinute
	if limit <= 0 {
		return nil
	}
	times, err := e.ledger.PublishTimesSince(ctx, now.Add(-rateWindow))
	if err != nil {
		return fmt.Errorf("list recent publishes: %w", err)
	}
	if len(times) < limit {
		return nil
	}
	wait := times[len(times)-limit].Add(rateWindow).Sub(now)
	maxWait := time.Duration(e.cfg.Guardrails.RateLimitMaxWaitSeconds) * time.Second
	if wait > maxWait {
		wait = maxWait
	}
	if wait <= 0 {
		return nil
	}
	attrs := logging.DecisionAttrs(decisionType, "throttled", fmt.Sprintf("%d publishes in the last minute", len(times)))
	attrs = append(attrs,
		logging.Duration("wait", wait),
		logging.String(logging.FieldEventType, "rate_limit_throttle"),
	)
	logger.InfoContext(ctx, "publish rate limit reached; throttling", logging.Args(attrs...)...)
	return e.clock.Sleep(ctx, wait)
}

func (e *Engine) checkBalance(ctx context.Context) error {
	if e.balance == nil {
		return services.PolicyFailure(services.CodeBalanceCheckFailed, "no balance source configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout())
	defer cancel()
	balance, err := e.balance.GetAccountBalance(callCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.PolicyFailure(services.CodeBalanceCheckFailed, "account balance unavailable").WithCause(err)
	}
	if minBalance := e.cfg.Guardrails.MinBalance; balance < minBalance {
		return services.PolicyFailure(services.CodeInsufficientBalance,
			"account balance %.2f below minimum %.2f", balance, minBalance)
	}
	return nil
}
