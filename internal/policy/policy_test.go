package policy_test

import (
	"context"
	"strings"
	"testing"

	"launchlock/internal/catalog"
	"launchlock/internal/config"
	"launchlock/internal/policy"
	"launchlock/internal/testsupport"
)

func TestEvaluate(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(c *config.Config) {
		c.Gatekeeper.BannedPhrases = []string{"Replica", "free shipping worldwide"}
		c.Gatekeeper.MinDescriptionLength = 20
	}))
	evaluator := policy.NewEvaluator(cfg)
	ok := catalog.Product{Title: "Garden Hose", RawDescription: "A flexible thirty metre hose.", Stock: 3}

	cases := []struct {
		name    string
		mutate  func(*catalog.Product)
		passed  bool
		blocker string
	}{
		{"clean", func(*catalog.Product) {}, true, ""},
		{"out of stock", func(p *catalog.Product) { p.Stock = 0 }, false, "out of stock"},
		{"short", func(p *catalog.Product) { p.RawDescription = "Hose." }, false, "description too short"},
		{"restated title", func(p *catalog.Product) { p.RawDescription = "Garden hose. Garden hose, garden HOSE!" }, false, "description only restates the title"},
		{"banned in title", func(p *catalog.Product) { p.Title = "REPLICA hose" }, false, `banned phrase "replica"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := ok
			tc.mutate(&p)
			passed, blockers, err := evaluator.Evaluate(context.Background(), p)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if passed != tc.passed {
				t.Fatalf("passed = %v, blockers %v", passed, blockers)
			}
			if tc.blocker != "" && (len(blockers) == 0 || !strings.HasPrefix(blockers[0], tc.blocker)) {
				t.Fatalf("blockers = %v, want prefix %q", blockers, tc.blocker)
			}
		})
	}
}
