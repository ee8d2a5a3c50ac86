// Package pricing turns supplier cost into a marketplace sell price and
// checks that the result leaves an acceptable margin.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"launchlock/internal/config"
	"launchlock/internal/services"
)

// ErrInvalidCost is returned for non-positive or non-finite costs.
var ErrInvalidCost = errors.New("cost must be a positive finite number")

// Engine prices products from configured markup rules.
//
// Markup precedence: category override (only when category overrides are
// enabled) > supplier override > default. A rule adds the larger of its
// percentage and flat components.
type Engine struct {
	defaults     config.Markup
	categories   map[string]config.Markup
	suppliers    map[string]config.Markup
	useCategory  bool
	minMarginPct float64
}

// NewEngine builds an engine from the pricing and gatekeeper configuration.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		defaults:     config.Markup{Pct: cfg.Pricing.DefaultPct, Flat: cfg.Pricing.DefaultFlat},
		categories:   lowerKeys(cfg.Pricing.CategoryOverrides),
		suppliers:    lowerKeys(cfg.Pricing.SupplierOverrides),
		useCategory:  cfg.Pricing.CategoryOverridesEnabled,
		minMarginPct: cfg.Gatekeeper.MinMarginPct,
	}
}

// Markup returns the rule that applies to a category and source.
func (e *Engine) Markup(category, source string) config.Markup {
	if e.useCategory {
		if m, ok := e.categories[normalizeKey(category)]; ok {
			return m
		}
	}
	if m, ok := e.suppliers[normalizeKey(source)]; ok {
		return m
	}
	return e.defaults
}

// RawPrice applies the markup without rounding.
func (e *Engine) RawPrice(cost float64, category, source string) (float64, error) {
	if cost <= 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCost, cost)
	}
	m := e.Markup(category, source)
	return cost + math.Max(cost*m.Pct, m.Flat), nil
}

// Price returns the rounded sell price for cost.
func (e *Engine) Price(cost float64, category, source string) (float64, error) {
	raw, err := e.RawPrice(cost, category, source)
	if err != nil {
		return 0, err
	}
	return Round(raw), nil
}

// MarginCheck is the outcome of ValidateMargin.
type MarginCheck struct {
	Safe      bool
	Code      services.Code
	Reason    string
	MarginPct float64
}

// ValidateMargin checks that price exceeds cost by at least the configured
// minimum margin, measured as a fraction of the sell price.
func (e *Engine) ValidateMargin(cost, price float64) MarginCheck {
	if price <= cost {
		return MarginCheck{
			Code:   services.CodeMarginLossLeader,
			Reason: fmt.Sprintf("sell price %.2f does not exceed cost %.2f", price, cost),
		}
	}
	margin := (price - cost) / price
	if margin < e.minMarginPct {
		return MarginCheck{
			Code:      services.CodeMarginTooLow,
			Reason:    fmt.Sprintf("margin %.1f%% below minimum %.1f%%", margin*100, e.minMarginPct*100),
			MarginPct: margin,
		}
	}
	return MarginCheck{Safe: true, MarginPct: margin}
}

func lowerKeys(in map[string]config.Markup) map[string]config.Markup {
	out := make(map[string]config.Markup, len(in))
	for k, v := range in {
		out[normalizeKey(k)] = v
	}
	return out
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
