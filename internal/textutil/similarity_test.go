package textutil_test

import (
	"math"
	"testing"

	"launchlock/internal/textutil"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "Cast iron skillet", "cast IRON skillet!", 1, 1},
		{"disjoint", "garden hose", "wool blanket", 0, 0},
		{"partial", "twelve inch cast iron skillet", "cast iron dutch oven", 0.01, 0.99},
		{"empty", "", "garden hose", 0, 0},
		{"only short tokens", "a b c", "a b c", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := textutil.Similarity(tt.a, tt.b)
			if got < tt.min-1e-9 || got > tt.max+1e-9 {
				t.Fatalf("Similarity(%q, %q) = %v, want [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestSimilarityIsSymmetric(t *testing.T) {
	a := "durable garden hose with brass fittings"
	b := "brass hose fittings for the garden"
	if math.Abs(textutil.Similarity(a, b)-textutil.Similarity(b, a)) > 1e-12 {
		t.Fatal("similarity should be symmetric")
	}
}

func TestTokenizeKeepsUnicodeLetters(t *testing.T) {
	tokens := textutil.Tokenize("Crème brûlée set, 4x ramekins")
	want := []string{"crème", "brûlée", "set", "ramekins"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("tokens = %v, want %v", tokens, want)
		}
	}
	if fp := textutil.NewFingerprint("ok"); fp.TokenCount() != 0 {
		t.Fatalf("expected nil fingerprint for short text")
	}
}
