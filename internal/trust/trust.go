// Package trust scores how far a source product can be trusted for
// unattended publishing.
package trust

import (
	"context"
	"strings"
	"time"

	"launchlock/internal/catalog"
	"launchlock/internal/clock"
	"launchlock/internal/config"
)

// Scorer is a rule-based trust scorer on a 0-100 scale. Each rule that fires
// deducts its penalty and reports a blocker.
type Scorer struct {
	maxAge time.Duration
	clock  clock.Clock
}

// NewScorer builds a scorer using the configured source age limit.
func NewScorer(cfg *config.Config, clk clock.Clock) *Scorer {
	return &Scorer{maxAge: cfg.MaxSourceAge(), clock: clock.OrReal(clk)}
}

type rule struct {
	penalty float64
	blocker string
	fires   func(p catalog.Product, s *Scorer) bool
}

var rules = []rule{
	{40, "missing source reference", func(p catalog.Product, _ *Scorer) bool {
		return strings.TrimSpace(p.SourceRef) == ""
	}},
	{30, "no stock reported", func(p catalog.Product, _ *Scorer) bool {
		return p.Stock <= 0
	}},
	{20, "no images", func(p catalog.Product, _ *Scorer) bool {
		return len(p.Images) == 0
	}},
	{10, "no specifications", func(p catalog.Product, _ *Scorer) bool {
		return len(p.Specs) == 0
	}},
	{5, "no shipping information", func(p catalog.Product, _ *Scorer) bool {
		return len(p.Shipping) == 0
	}},
	{20, "source data is stale", func(p catalog.Product, s *Scorer) bool {
		return s.maxAge > 0 && !p.RefreshedAt.IsZero() && s.clock.Now().Sub(p.RefreshedAt) > s.maxAge
	}},
}

// Score returns the trust score of p and the reasons for every deduction.
func (s *Scorer) Score(ctx context.Context, p catalog.Product) (float64, []string, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	score := 100.0
	var blockers []string
	for _, r := range rules {
		if r.fires(p, s) {
			score -= r.penalty
			blockers = append(blockers, r.blocker)
		}
	}
	if score < 0 {
		score = 0
	}
	return score, blockers, nil
}
