package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrPolicy        = errors.New("policy violation")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrFatal         = errors.New("fatal failure")
)

// Kind is the failure classification driving the command status decision.
type Kind string

const (
	KindTransient  Kind = "transient"
	KindPolicy     Kind = "policy"
	KindValidation Kind = "validation"
	KindFatal      Kind = "fatal"
)

// Wrap builds an error message that includes component context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its failure kind. Unmarked errors are transient so
// that unexpected faults are retried within the attempt budget.
func Classify(err error) Kind {
	var failure *Failure
	if errors.As(err, &failure) && failure.marker != nil {
		return classifyMarker(failure.marker)
	}
	return classifyMarker(err)
}

func classifyMarker(err error) Kind {
	switch {
	case err == nil:
		return KindTransient
	case errors.Is(err, ErrPolicy):
		return KindPolicy
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return KindValidation
	case errors.Is(err, ErrFatal), errors.Is(err, ErrConfiguration):
		return KindFatal
	default:
		return KindTransient
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
