package trust_test

import (
	"context"
	"testing"
	"time"

	"launchlock/internal/catalog"
	"launchlock/internal/clock"
	"launchlock/internal/testsupport"
	"launchlock/internal/trust"
)

func TestScore(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cfg := testsupport.NewConfig(t)
	cfg.Guardrails.MaxSourceAgeHours = 24
	scorer := trust.NewScorer(cfg, clock.NewFake(now))

	complete := catalog.Product{
		SourceRef:   "https://acme.example/p/1",
		Stock:       2,
		Images:      []string{"a.jpg"},
		Specs:       map[string]string{"length": "30m"},
		Shipping:    map[string]any{"method": "standard"},
		RefreshedAt: now.Add(-time.Hour),
	}

	cases := []struct {
		name     string
		mutate   func(*catalog.Product)
		want     float64
		blockers int
	}{
		{"complete", func(*catalog.Product) {}, 100, 0},
		{"no specs", func(p *catalog.Product) { p.Specs = nil }, 90, 1},
		{"stale", func(p *catalog.Product) { p.RefreshedAt = now.Add(-48 * time.Hour) }, 80, 1},
		{"bare", func(p *catalog.Product) { *p = catalog.Product{} }, 0, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := complete
			tc.mutate(&p)
			score, blockers, err := scorer.Score(context.Background(), p)
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if score != tc.want || len(blockers) != tc.blockers {
				t.Fatalf("Score = %v %v, want %v with %d blockers", score, blockers, tc.want, tc.blockers)
			}
		})
	}
}
