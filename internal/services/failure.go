package services

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a machine-readable failure reason. The set is closed: every code a
// component can emit is declared here.
type Code string

const (
	// Structural gate
	CodeMissingSourceRef   Code = "MISSING_SOURCE_REF"
	CodeMissingTitle       Code = "MISSING_TITLE"
	CodeInvalidCost        Code = "INVALID_COST"
	CodeEnrichmentMissing  Code = "ENRICHMENT_MISSING"
	CodeNoAvailableImages  Code = "NO_AVAILABLE_IMAGES"
	CodeCategoryUnresolved Code = "CATEGORY_UNRESOLVED"

	// Trust and policy gates
	CodeTrustScoreTooLow  Code = "TRUST_SCORE_TOO_LOW"
	CodeTrustCheckFailed  Code = "TRUST_CHECK_FAILED"
	CodePolicyBlocked     Code = "POLICY_BLOCKED"
	CodePolicyCheckFailed Code = "POLICY_CHECK_FAILED"

	// Margin gate
	CodePricingFailed    Code = "PRICING_FAILED"
	CodeMarginLossLeader Code = "MARGIN_LOSS_LEADER"
	CodeMarginTooLow     Code = "MARGIN_TOO_LOW"

	// Guardrails
	CodePublishDisabledStoreMode Code = "PUBLISH_DISABLED_STORE_MODE"
	CodePublishDisabled          Code = "PUBLISH_DISABLED"
	CodeSupplierDisabled         Code = "SUPPLIER_DISABLED"
	CodeStaleSupplierTruth       Code = "STALE_SUPPLIER_TRUTH"
	CodeDryRunDriftDetected      Code = "DRYRUN_DRIFT_DETECTED"
	CodePublishDailyQuotaReached Code = "PUBLISH_DAILY_QUOTA_REACHED"
	CodeInsufficientBalance      Code = "INSUFFICIENT_BALANCE"
	CodeBalanceCheckFailed       Code = "BALANCE_CHECK_FAILED"

	// Command execution
	CodeDryRunNotApprovable   Code = "DRYRUN_NOT_APPROVABLE"
	CodeSourceAlreadyListed   Code = "SOURCE_ALREADY_LISTED"
	CodePublishOutcomeUnknown Code = "PUBLISH_OUTCOME_UNKNOWN"
	CodeRetriesExhausted      Code = "RETRIES_EXHAUSTED"
	CodeUnknownCommandType    Code = "UNKNOWN_COMMAND_TYPE"
	CodeInvalidPayload        Code = "INVALID_PAYLOAD"
	CodeSourceNotFound        Code = "SOURCE_NOT_FOUND"
	CodeListingNotFound       Code = "LISTING_NOT_FOUND"
	CodeListingNotLive        Code = "LISTING_NOT_LIVE"
	CodeMarketplaceRejected   Code = "MARKETPLACE_REJECTED"
	CodeMarketplaceError      Code = "MARKETPLACE_ERROR"
	CodeResourceLocked        Code = "RESOURCE_LOCKED"
	CodeHandlerPanic          Code = "HANDLER_PANIC"
	CodeCancelled             Code = "CANCELLED"
	CodeTransientError        Code = "TRANSIENT_ERROR"
	CodeInternalError         Code = "INTERNAL_ERROR"
)

// Failure is a coded, classified error. Gate is set when a publish gate
// produced it.
type Failure struct {
	Code    Code
	Gate    string
	Message string
	marker  error
	cause   error
}

// NewFailure constructs a coded failure tagged with the given marker.
func NewFailure(marker error, code Code, message string) *Failure {
	if marker == nil {
		marker = ErrTransient
	}
	return &Failure{Code: code, Message: strings.TrimSpace(message), marker: marker}
}

// PolicyFailure is shorthand for a policy-class failure.
func PolicyFailure(code Code, format string, args ...any) *Failure {
	return NewFailure(ErrPolicy, code, fmt.Sprintf(format, args...))
}

// GateFailure records a policy-class failure produced by a named publish gate.
func GateFailure(gate string, code Code, format string, args ...any) *Failure {
	f := PolicyFailure(code, format, args...)
	f.Gate = gate
	return f
}

// WithCause attaches an underlying error and returns the receiver.
func (f *Failure) WithCause(err error) *Failure {
	f.cause = err
	return f
}

// Marker returns the sentinel the failure was tagged with.
func (f *Failure) Marker() error {
	return f.marker
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(string(f.Code))
	if f.Gate != "" {
		b.WriteString(" [")
		b.WriteString(f.Gate)
		b.WriteString("]")
	}
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	if f.cause != nil {
		b.WriteString(": ")
		b.WriteString(f.cause.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, 2)
	if f.marker != nil {
		errs = append(errs, f.marker)
	}
	if f.cause != nil {
		errs = append(errs, f.cause)
	}
	return errs
}

// Detail is the persisted/logged summary of a failure.
type Detail struct {
	Kind    Kind
	Code    Code
	Message string
}

// Details extracts the failure code, message, and kind from any error. Errors
// without a Failure in their chain receive a code derived from their kind.
func Details(err error) Detail {
	if err == nil {
		return Detail{}
	}
	var failure *Failure
	if errors.As(err, &failure) {
		msg := failure.Message
		if msg == "" {
			msg = failure.Error()
		}
		return Detail{Kind: Classify(failure), Code: failure.Code, Message: msg}
	}
	kind := Classify(err)
	code := CodeTransientError
	if kind != KindTransient {
		code = CodeInternalError
	}
	return Detail{Kind: kind, Code: code, Message: err.Error()}
}

// AsFailure returns the first Failure in the error chain.
func AsFailure(err error) (*Failure, bool) {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}

// HasCode reports whether the error chain carries a Failure with the given code.
func HasCode(err error, code Code) bool {
	failure, ok := AsFailure(err)
	return ok && failure.Code == code
}
