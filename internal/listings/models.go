package listings

import (
	"errors"
	"time"
)

// State is the local lifecycle of a listing row.
type State string

const (
	StateDryRun     State = "dry_run"
	StateApproved   State = "approved"
	StateBlocked    State = "blocked"
	StatePublishing State = "publishing"
	StateLive       State = "live"
	StateWithdrawn  State = "withdrawn"
)

// Lifecycle is the performance classification maintained by the strategy
// component. This package only stores it.
type Lifecycle string

const (
	LifecycleNew     Lifecycle = "new"
	LifecycleProving Lifecycle = "proving"
	LifecycleStable  Lifecycle = "stable"
	LifecycleFading  Lifecycle = "fading"
	LifecycleKill    Lifecycle = "kill"
)

// DryRunPrefix marks synthetic external ids assigned to dry runs.
const DryRunPrefix = "dryrun-"

var (
	ErrNotFound         = errors.New("listing not found")
	ErrDraftNotFound    = errors.New("listing draft not found")
	ErrInvalidLifecycle = errors.New("invalid lifecycle")

	// ErrDryRunConsumed means the dry run was already approved into another
	// publish command.
	ErrDryRunConsumed = errors.New("dry run already approved by another command")

	// ErrSourceListed means the source product already has a publishing or
	// live listing owned by another command.
	ErrSourceListed = errors.New("source product already has an active listing")
)

// ParseLifecycle validates a lifecycle value.
func ParseLifecycle(value string) (Lifecycle, error) {
	switch l := Lifecycle(value); l {
	case LifecycleNew, LifecycleProving, LifecycleStable, LifecycleFading, LifecycleKill:
		return l, nil
	}
	return "", ErrInvalidLifecycle
}

// Listing is the local mirror of one marketplace listing.
type Listing struct {
	ID              string
	SourceProductID string
	CommandID       string
	ExternalID      string
	State           State
	DesiredState    State
	ActualState     State
	DesiredPrice    float64
	ActualPrice     float64
	PayloadJSON     string
	PayloadHash     string
	SnapshotHash    string
	DryRun          bool
	Lifecycle       Lifecycle
	BlockCode       string
	BlockReason     string
	TrustScore      float64
	ApprovedBy      string
	PublishedAt     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasExternalID reports whether the marketplace assigned a real id.
func (l *Listing) HasExternalID() bool {
	return l.ExternalID != "" && !l.DryRun
}

// Validation records the outcome of gatekeeper and marketplace validation.
type Validation struct {
	Passed   bool           `json:"passed"`
	Gate     string         `json:"gate,omitempty"`
	Code     string         `json:"code,omitempty"`
	Message  string         `json:"message,omitempty"`
	Response map[string]any `json:"marketplace_response,omitempty"`
}

// Draft is the proposed payload of one publish command.
type Draft struct {
	CommandID       string
	SourceProductID string
	PayloadJSON     string
	PayloadHash     string
	SnapshotHash    string
	Validation      *Validation
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Filter narrows List results.
type Filter struct {
	States          []State
	SourceProductID string
	Limit           int
}

// Record carries the fields written when a listing row is created or
// overwritten by a publish command. ApprovedFromDryRun names the dry-run
// command whose listing the publish consumes.
type Record struct {
	CommandID          string
	SourceProductID    string
	ApprovedFromDryRun string
	PayloadJSON        string
	PayloadHash        string
	SnapshotHash       string
	DesiredPrice       float64
	TrustScore         float64
}

// Block describes why a publish command was refused.
type Block struct {
	CommandID       string
	SourceProductID string
	Code            string
	Reason          string
	DryRun          bool
	TrustScore      float64
}
