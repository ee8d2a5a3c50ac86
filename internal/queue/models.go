package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a command.
type Status string

const (
	StatusPending         Status = "pending"
	StatusExecuting       Status = "executing"
	StatusSucceeded       Status = "succeeded"
	StatusFailedRetryable Status = "failed_retryable"
	StatusFailedFatal     Status = "failed_fatal"
	StatusHumanRequired   Status = "human_required"
	StatusCancelled       Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusExecuting,
	StatusSucceeded,
	StatusFailedRetryable,
	StatusFailedFatal,
	StatusHumanRequired,
	StatusCancelled,
}

// legalTransitions is the complete status graph. Anything absent is illegal.
var legalTransitions = map[Status][]Status{
	StatusPending:         {StatusExecuting, StatusCancelled},
	StatusExecuting:       {StatusSucceeded, StatusFailedRetryable, StatusFailedFatal, StatusHumanRequired, StatusCancelled, StatusPending},
	StatusFailedRetryable: {StatusExecuting, StatusHumanRequired, StatusCancelled},
	StatusHumanRequired:   {StatusPending, StatusCancelled},
}

// cancellableStatuses are the states an operator may cancel from.
var cancellableStatuses = []Status{
	StatusPending,
	StatusExecuting,
	StatusFailedRetryable,
	StatusHumanRequired,
}

// AllStatuses returns every known status in display order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts user input to a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, candidate := range legalTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return len(legalTransitions[s]) == 0
}

// Command is one persisted intent.
type Command struct {
	ID             string
	Seq            int64
	Type           Type
	PayloadJSON    string
	Status         Status
	Priority       int
	Attempts       int
	MaxAttempts    int
	LastError      string
	ErrorCode      string
	ErrorMessage   string
	ClaimedBy      string
	LeaseExpiresAt time.Time
	NextAttemptAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Payload decodes and validates the stored payload.
func (c *Command) Payload() (Payload, error) {
	return DecodePayload(c.Type, []byte(c.PayloadJSON))
}

// Progress is the latest progress snapshot reported by a handler.
type Progress struct {
	Phase      string
	Done       int
	Total      int
	ETASeconds int
	Message    string
	UpdatedAt  time.Time
}

// LogEntry is one line of a command's execution log.
type LogEntry struct {
	ID        int64
	CommandID string
	Time      time.Time
	Level     string
	Message   string
	AttrsJSON string
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Statuses []Status
	Type     Type
	Limit    int
}

// EnqueueOptions tunes a new command.
type EnqueueOptions struct {
	// ID makes enqueueing idempotent: a second Enqueue with the same ID
	// returns the existing command untouched.
	ID          string
	Priority    int
	MaxAttempts int
}

// DefaultMaxAttempts applies when EnqueueOptions.MaxAttempts is zero.
const DefaultMaxAttempts = 3
