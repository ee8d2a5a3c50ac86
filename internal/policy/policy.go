// Package policy evaluates marketplace content rules against a product.
package policy

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"launchlock/internal/catalog"
	"launchlock/internal/config"
	"launchlock/internal/textutil"
)

// maxTitleSimilarity flags descriptions that only restate the title.
const maxTitleSimilarity = 0.9

// Evaluator applies banned-phrase, stock, and description rules.
type Evaluator struct {
	bannedPhrases        []string
	minDescriptionLength int
}

// NewEvaluator builds an evaluator from gatekeeper configuration.
func NewEvaluator(cfg *config.Config) *Evaluator {
	phrases := make([]string, 0, len(cfg.Gatekeeper.BannedPhrases))
	for _, p := range cfg.Gatekeeper.BannedPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Evaluator{bannedPhrases: phrases, minDescriptionLength: cfg.Gatekeeper.MinDescriptionLength}
}

// Evaluate returns passed=false with one blocker per violated rule.
func (e *Evaluator) Evaluate(ctx context.Context, p catalog.Product) (bool, []string, error) {
	if err := ctx.Err(); err != nil {
		return false, nil, err
	}
	var blockers []string
	if p.Stock <= 0 {
		blockers = append(blockers, "out of stock")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(p.RawDescription)); n < e.minDescriptionLength {
		blockers = append(blockers, fmt.Sprintf("description too short (%d < %d characters)", n, e.minDescriptionLength))
	}
	if textutil.Similarity(p.Title, p.RawDescription) >= maxTitleSimilarity {
		blockers = append(blockers, "description only restates the title")
	}
	text := strings.ToLower(p.Title + "\n" + p.RawDescription)
	for _, phrase := range e.bannedPhrases {
		if strings.Contains(text, phrase) {
			blockers = append(blockers, fmt.Sprintf("banned phrase %q", phrase))
		}
	}
	return len(blockers) == 0, blockers, nil
}
