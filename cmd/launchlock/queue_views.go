package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"launchlock/internal/queue"
)

// commandView is the JSON shape of a command printed by the CLI.
type commandView struct {
	ID             string          `json:"id"`
	Seq            int64           `json:"seq"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	Priority       int             `json:"priority"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	Payload        json.RawMessage `json:"payload"`
	ErrorCode      string          `json:"error_code,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	ClaimedBy      string          `json:"claimed_by,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	NextAttemptAt  *time.Time      `json:"next_attempt_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Progress       *progressView   `json:"progress,omitempty"`
}

type progressView struct {
	Phase      string `json:"phase"`
	Done       int    `json:"done"`
	Total      int    `json:"total"`
	ETASeconds int    `json:"eta_seconds"`
	Message    string `json:"message,omitempty"`
}

func newCommandView(c *queue.Command) commandView {
	view := commandView{
		ID:           c.ID,
		Seq:          c.Seq,
		Type:         string(c.Type),
		Status:       string(c.Status),
		Priority:     c.Priority,
		Attempts:     c.Attempts,
		MaxAttempts:  c.MaxAttempts,
		Payload:      json.RawMessage(c.PayloadJSON),
		ErrorCode:    c.ErrorCode,
		ErrorMessage: c.ErrorMessage,
		LastError:    c.LastError,
		ClaimedBy:    c.ClaimedBy,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if !json.Valid(view.Payload) {
		view.Payload = json.RawMessage("null")
	}
	if !c.LeaseExpiresAt.IsZero() {
		t := c.LeaseExpiresAt
		view.LeaseExpiresAt = &t
	}
	if !c.NextAttemptAt.IsZero() {
		t := c.NextAttemptAt
		view.NextAttemptAt = &t
	}
	return view
}

func commandViews(commands []*queue.Command) []commandView {
	views := make([]commandView, 0, len(commands))
	for _, c := range commands {
		views = append(views, newCommandView(c))
	}
	return views
}

func printCommandView(cmd *cobra.Command, v commandView) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintf(out, "Command %s (#%d)\n", v.ID, v.Seq)
	fmt.Fprintf(out, "  Type:      %s\n", v.Type)
	fmt.Fprintf(out, "  Status:    %s\n", paint(v.Status, statusColor(queue.Status(v.Status)), colorize))
	fmt.Fprintf(out, "  Attempts:  %d/%d\n", v.Attempts, v.MaxAttempts)
	fmt.Fprintf(out, "  Priority:  %d\n", v.Priority)
	fmt.Fprintf(out, "  Payload:   %s\n", string(v.Payload))
	if v.ErrorCode != "" || v.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:     %s: %s\n", dash(v.ErrorCode), dash(v.ErrorMessage))
	}
	if v.ClaimedBy != "" {
		fmt.Fprintf(out, "  Worker:    %s\n", v.ClaimedBy)
	}
	if v.LeaseExpiresAt != nil {
		fmt.Fprintf(out, "  Lease:     %s\n", formatTimestamp(*v.LeaseExpiresAt))
	}
	if v.NextAttemptAt != nil {
		fmt.Fprintf(out, "  Retry at:  %s\n", formatTimestamp(*v.NextAttemptAt))
	}
	if p := v.Progress; p != nil {
		line := fmt.Sprintf("%s %d/%d", p.Phase, p.Done, p.Total)
		if p.Message != "" {
			line += " - " + p.Message
		}
		fmt.Fprintf(out, "  Progress:  %s\n", line)
	}
	fmt.Fprintf(out, "  Created:   %s\n", formatTimestamp(v.CreatedAt))
	fmt.Fprintf(out, "  Updated:   %s\n", formatTimestamp(v.UpdatedAt))
}
