package enrichment_test

import (
	"context"
	"errors"
	"testing"

	"launchlock/internal/enrichment"
)

func TestCleaner(t *testing.T) {
	res, err := enrichment.Cleaner{}.Enrich(context.Background(),
		"  Garden   Hose ",
		"<p>Flexible   hose</p>\n\n\n\n<b>Brass</b> fittings",
		map[string]string{"length": "30m", "color": " green ", "empty": ""},
	)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Fallback {
		t.Fatal("cleaned content must not be marked fallback")
	}
	if res.Title != "Garden Hose" {
		t.Fatalf("title = %q", res.Title)
	}
	want := "Flexible hose\n\nBrass fittings\n\ncolor: green\nlength: 30m"
	if res.Description != want {
		t.Fatalf("description = %q, want %q", res.Description, want)
	}
}

func TestCleanerMarksEmptyDescription(t *testing.T) {
	res, err := enrichment.Cleaner{}.Enrich(context.Background(), "Hose", "<br/>  ", nil)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if !res.Fallback {
		t.Fatal("empty description must be marked fallback")
	}
}

func TestWithFallback(t *testing.T) {
	failing := enrichment.ProviderFunc(func(context.Context, string, string, map[string]string) (enrichment.Result, error) {
		return enrichment.Result{}, errors.New("llm unavailable")
	})
	res, err := enrichment.WithFallback(failing, nil).Enrich(context.Background(), "Hose", "raw text", nil)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if !res.Fallback || res.Description != "raw text" {
		t.Fatalf("unexpected fallback result: %+v", res)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := enrichment.WithFallback(failing, nil).Enrich(ctx, "Hose", "raw", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled enrichment must fail, got %v", err)
	}
}
