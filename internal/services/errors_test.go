package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"launchlock/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "marketplace", "publish", "failed", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"marketplace", "publish", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"validation", services.Wrap(services.ErrValidation, "queue", "enqueue", "bad", nil), services.KindValidation},
		{"not found", services.Wrap(services.ErrNotFound, "catalog", "get", "missing", nil), services.KindValidation},
		{"policy", services.PolicyFailure(services.CodeSupplierDisabled, "supplier %s", "acme"), services.KindPolicy},
		{"fatal", services.NewFailure(services.ErrFatal, services.CodeUnknownCommandType, "nope"), services.KindFatal},
		{"configuration", services.Wrap(services.ErrConfiguration, "", "", "", nil), services.KindFatal},
		{"timeout", services.Wrap(services.ErrTimeout, "marketplace", "get", "slow", nil), services.KindTransient},
		{"plain", errors.New("io"), services.KindTransient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFailureDetailsSurviveWrapping(t *testing.T) {
	cause := errors.New("quota store offline")
	failure := services.GateFailure("margin", services.CodeMarginTooLow, "margin %.2f below %.2f", 0.05, 0.10).WithCause(cause)
	wrapped := fmt.Errorf("publish: %w", failure)

	if !errors.Is(wrapped, services.ErrPolicy) {
		t.Fatal("expected policy marker in chain")
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected cause in chain")
	}
	if !services.HasCode(wrapped, services.CodeMarginTooLow) {
		t.Fatal("expected margin code")
	}

	detail := services.Details(wrapped)
	if detail.Code != services.CodeMarginTooLow || detail.Kind != services.KindPolicy {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if detail.Message != "margin 0.05 below 0.10" {
		t.Fatalf("unexpected message: %q", detail.Message)
	}
	if !strings.Contains(failure.Error(), "[margin]") {
		t.Fatalf("expected gate in error string, got %q", failure.Error())
	}
}

func TestDetailsForUncodedErrors(t *testing.T) {
	if detail := services.Details(nil); detail.Code != "" {
		t.Fatalf("expected empty detail for nil, got %+v", detail)
	}
	detail := services.Details(errors.New("socket closed"))
	if detail.Code != services.CodeTransientError || detail.Kind != services.KindTransient {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	detail = services.Details(services.Wrap(services.ErrValidation, "queue", "enqueue", "bad", nil))
	if detail.Code != services.CodeInternalError || detail.Kind != services.KindValidation {
		t.Fatalf("unexpected detail: %+v", detail)
	}
}
