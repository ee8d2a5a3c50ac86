// Package enrichment produces listing copy from raw supplier text.
//
// Real copywriting is delegated to an external Provider. Content that did not
// go through enrichment is always marked with Result.Fallback so the publish
// gatekeeper can refuse it.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"launchlock/internal/logging"
)

// Result is enriched listing copy.
type Result struct {
	Title       string
	Description string
	// Fallback marks unenriched content copied from the raw supplier text.
	Fallback bool
}

// Provider enriches raw supplier content.
type Provider interface {
	Enrich(ctx context.Context, title, rawDescription string, specs map[string]string) (Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, title, rawDescription string, specs map[string]string) (Result, error)

func (f ProviderFunc) Enrich(ctx context.Context, title, rawDescription string, specs map[string]string) (Result, error) {
	return f(ctx, title, rawDescription, specs)
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
)

// Cleaner is a deterministic provider: it strips markup, normalizes Unicode
// and whitespace, and appends specs as sorted "Key: value" lines. An empty
// cleaned description is reported as fallback content.
type Cleaner struct{}

func (Cleaner) Enrich(ctx context.Context, title, rawDescription string, specs map[string]string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res := Result{
		Title:       cleanLine(title),
		Description: cleanText(rawDescription),
	}
	if res.Description == "" {
		res.Fallback = true
		return res, nil
	}
	if len(specs) > 0 {
		keys := make([]string, 0, len(specs))
		for k := range specs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(res.Description)
		b.WriteString("\n\n")
		for _, k := range keys {
			value := cleanLine(specs[k])
			if value == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", cleanLine(k), value)
		}
		res.Description = strings.TrimSpace(b.String())
	}
	return res, nil
}

// WithFallback wraps p so that a provider error yields the raw content marked
// as fallback instead of failing. The error is logged.
func WithFallback(p Provider, logger *slog.Logger) Provider {
	if logger == nil {
		logger = logging.NewNop()
	}
	return ProviderFunc(func(ctx context.Context, title, rawDescription string, specs map[string]string) (Result, error) {
		res, err := p.Enrich(ctx, title, rawDescription, specs)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		logger.WarnContext(ctx, "enrichment failed; using raw content marked as fallback",
			logging.Error(err),
			logging.String(logging.FieldEventType, "enrichment_fallback"),
		)
		return Result{Title: cleanLine(title), Description: cleanText(rawDescription), Fallback: true}, nil
	})
}

func cleanLine(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

func cleanText(s string) string {
	s = norm.NFC.String(s)
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespacePattern.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLinesPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
