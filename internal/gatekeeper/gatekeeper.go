package gatekeeper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"launchlock/internal/catalog"
	"launchlock/internal/config"
	"launchlock/internal/enrichment"
	"launchlock/internal/logging"
	"launchlock/internal/pricing"
	"launchlock/internal/services"
)

// Gate names.
const (
	GateStructural = "structural"
	GateTrust      = "trust"
	GatePolicy     = "policy"
	GateMargin     = "margin"
)

const decisionType = "gate"

// TrustScorer rates a product on a 0-100 scale.
type TrustScorer interface {
	Score(ctx context.Context, p catalog.Product) (float64, []string, error)
}

// PolicyEvaluator checks marketplace content policy.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, p catalog.Product) (bool, []string, error)
}

// Pricer computes sell prices and validates margins.
type Pricer interface {
	Price(cost float64, category, source string) (float64, error)
	ValidateMargin(cost, price float64) pricing.MarginCheck
}

// Approval is everything the gates resolved for a product that passed.
type Approval struct {
	Title           string
	Description     string
	CategoryID      string
	Images          []string
	SellPrice       float64
	MarginPct       float64
	TrustScore      float64
	TrustSkipped    bool
	PolicyExemption string
}

// Dependencies groups the collaborators of LaunchLock.
type Dependencies struct {
	Enricher enrichment.Provider
	Trust    TrustScorer
	Policy   PolicyEvaluator
	Pricer   Pricer
	Images   catalog.ImageSource
}

// LaunchLock validates products for publishing.
type LaunchLock struct {
	cfg    *config.Config
	deps   Dependencies
	logger *slog.Logger
}

// New builds a LaunchLock validator.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *LaunchLock {
	return &LaunchLock{cfg: cfg, deps: deps, logger: logging.NewComponentLogger(logger, "gatekeeper")}
}

// Validate runs every gate against p.
func (l *LaunchLock) Validate(ctx context.Context, p catalog.Product) (Approval, error) {
	logger := logging.WithContext(ctx, l.logger).With(logging.String("source_product_id", p.ID))

	approval, err := l.validate(ctx, logger, p)
	if err != nil {
		if ctx.Err() != nil {
			return Approval{}, ctx.Err()
		}
		if failure, ok := services.AsFailure(err); ok {
			attrs := logging.DecisionAttrs(decisionType, "blocked", failure.Message)
			attrs = append(attrs,
				logging.String("gate", failure.Gate),
				logging.String(logging.FieldErrorCode, string(failure.Code)),
			)
			logger.WarnContext(ctx, "publish gate blocked product", logging.Args(attrs...)...)
		}
		return Approval{}, err
	}
	logger.InfoContext(ctx, "publish gates passed",
		logging.Args(append(logging.DecisionAttrs(decisionType, "passed", "all gates passed"),
			logging.Float64("trust_score", approval.TrustScore),
			logging.Float64("sell_price", approval.SellPrice),
		)...)...,
	)
	return approval, nil
}

func (l *LaunchLock) validate(ctx context.Context, logger *slog.Logger, p catalog.Product) (Approval, error) {
	approval, err := l.structural(ctx, p)
	if err != nil {
		return Approval{}, err
	}

	// Trust and policy judge the copy that would actually be published.
	candidate := p
	candidate.Title = approval.Title
	candidate.RawDescription = approval.Description

	if err := l.trust(ctx, logger, candidate, &approval); err != nil {
		return Approval{}, err
	}
	if err := l.policy(ctx, logger, candidate, &approval); err != nil {
		return Approval{}, err
	}
	if err := l.margin(p, &approval); err != nil {
		return Approval{}, err
	}
	return approval, nil
}

func (l *LaunchLock) structural(ctx context.Context, p catalog.Product) (Approval, error) {
	if strings.TrimSpace(p.SourceRef) == "" {
		return Approval{}, services.GateFailure(GateStructural, services.CodeMissingSourceRef, "product has no source reference")
	}
	if strings.TrimSpace(p.Title) == "" {
		return Approval{}, services.GateFailure(GateStructural, services.CodeMissingTitle, "product has no title")
	}
	if !(p.Cost > 0) {
		return Approval{}, services.GateFailure(GateStructural, services.CodeInvalidCost, "source cost %.2f is not positive", p.Cost)
	}

	if l.deps.Enricher == nil {
		return Approval{}, services.GateFailure(GateStructural, services.CodeEnrichmentMissing, "no enrichment provider configured")
	}
	enriched, err := l.deps.Enricher.Enrich(ctx, p.Title, p.RawDescription, p.Specs)
	if err != nil {
		return Approval{}, services.GateFailure(GateStructural, services.CodeEnrichmentMissing, "enrichment failed").WithCause(err)
	}
	switch {
	case enriched.Fallback:
		return Approval{}, services.GateFailure(GateStructural, services.CodeEnrichmentMissing, "enrichment fell back to raw supplier content")
	case strings.TrimSpace(enriched.Title) == "":
		return Approval{}, services.GateFailure(GateStructural, services.CodeEnrichmentMissing, "enriched title is empty")
	case strings.TrimSpace(enriched.Description) == "":
		return Approval{}, services.GateFailure(GateStructural, services.CodeEnrichmentMissing, "enriched description is empty")
	}

	var images []string
	if l.deps.Images != nil {
		images = catalog.AvailableImages(ctx, l.deps.Images, p.Images)
	}
	if len(images) == 0 {
		return Approval{}, services.GateFailure(GateStructural, services.CodeNoAvailableImages,
			"none of %d image(s) is available", len(p.Images))
	}

	category := strings.TrimSpace(p.CategoryID)
	if category == "" || l.isUnmapped(category) {
		return Approval{}, services.GateFailure(GateStructural, services.CodeCategoryUnresolved,
			"category %q (%s) is not mapped to a marketplace category", p.Category, displayCategory(category))
	}

	return Approval{
		Title:       enriched.Title,
		Description: enriched.Description,
		CategoryID:  category,
		Images:      images,
	}, nil
}

func (l *LaunchLock) trust(ctx context.Context, logger *slog.Logger, p catalog.Product, approval *Approval) error {
	gk := l.cfg.Gatekeeper
	if gk.TestMode {
		if !gk.AllowTestMode {
			return services.GateFailure(GateTrust, services.CodeTrustCheckFailed,
				"test mode requested without allow_test_mode; trust gate cannot be skipped")
		}
		logging.WarnWithContext(logger, "trust gate skipped in test mode", "trust_gate_test_mode",
			logging.String(logging.FieldDecisionType, decisionType),
			logging.String("gate", GateTrust),
			logging.String(logging.FieldErrorHint, "disable gatekeeper.test_mode for production"),
			logging.String(logging.FieldImpact, "product published without a trust score"),
			logging.Alert("test_mode"),
		)
		approval.TrustSkipped = true
		return nil
	}
	if l.deps.Trust == nil {
		return services.GateFailure(GateTrust, services.CodeTrustCheckFailed, "no trust scorer configured")
	}
	score, blockers, err := l.deps.Trust.Score(ctx, p)
	if err != nil {
		return services.GateFailure(GateTrust, services.CodeTrustCheckFailed, "trust scoring failed").WithCause(err)
	}
	approval.TrustScore = score
	if score < gk.MinTrustScore {
		return services.GateFailure(GateTrust, services.CodeTrustScoreTooLow,
			"trust score %.1f below minimum %.1f%s", score, gk.MinTrustScore, formatBlockers(blockers))
	}
	return nil
}

func (l *LaunchLock) policy(ctx context.Context, logger *slog.Logger, p catalog.Product, approval *Approval) error {
	if l.cfg.IsTrustedSource(p.Supplier) {
		approval.PolicyExemption = fmt.Sprintf("trusted source %s", p.Supplier)
		logger.InfoContext(ctx, "policy gate skipped for trusted source",
			logging.Args(append(logging.DecisionAttrs(decisionType, "exempt", approval.PolicyExemption),
				logging.String("gate", GatePolicy),
				logging.String("supplier", p.Supplier),
			)...)...,
		)
		return nil
	}
	if l.deps.Policy == nil {
		return services.GateFailure(GatePolicy, services.CodePolicyCheckFailed, "no policy evaluator configured")
	}
	passed, blockers, err := l.deps.Policy.Evaluate(ctx, p)
	if err != nil {
		return services.GateFailure(GatePolicy, services.CodePolicyCheckFailed, "policy evaluation failed").WithCause(err)
	}
	if !passed {
		return services.GateFailure(GatePolicy, services.CodePolicyBlocked, "policy violations%s", formatBlockers(blockers))
	}
	return nil
}

func (l *LaunchLock) margin(p catalog.Product, approval *Approval) error {
	if l.deps.Pricer == nil {
		return services.GateFailure(GateMargin, services.CodePricingFailed, "no pricing engine configured")
	}
	price, err := l.deps.Pricer.Price(p.Cost, p.Category, p.Supplier)
	if err != nil {
		return services.GateFailure(GateMargin, services.CodePricingFailed, "pricing failed").WithCause(err)
	}
	check := l.deps.Pricer.ValidateMargin(p.Cost, price)
	if !check.Safe {
		code := check.Code
		if code == "" {
			code = services.CodeMarginTooLow
		}
		return services.GateFailure(GateMargin, code, "%s", check.Reason)
	}
	approval.SellPrice = price
	approval.MarginPct = check.MarginPct
	return nil
}

func (l *LaunchLock) isUnmapped(categoryID string) bool {
	for _, unmapped := range l.cfg.Gatekeeper.UnmappedCategoryIDs {
		if strings.EqualFold(strings.TrimSpace(unmapped), categoryID) {
			return true
		}
	}
	return false
}

func displayCategory(id string) string {
	if id == "" {
		return "no id"
	}
	return "id " + id
}

func formatBlockers(blockers []string) string {
	if len(blockers) == 0 {
		return ""
	}
	return ": " + strings.Join(blockers, "; ")
}
