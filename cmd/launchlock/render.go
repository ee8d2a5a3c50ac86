package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"launchlock/internal/listings"
	"launchlock/internal/queue"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// shouldColorize reports whether w is an interactive terminal that accepts ANSI colours.
func shouldColorize(w io.Writer) bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusColor(status queue.Status) string {
	switch status {
	case queue.StatusSucceeded:
		return ansiGreen
	case queue.StatusExecuting:
		return ansiBlue
	case queue.StatusFailedRetryable, queue.StatusHumanRequired:
		return ansiYellow
	case queue.StatusFailedFatal:
		return ansiRed
	default:
		return ""
	}
}

func stateColor(state listings.State) string {
	switch state {
	case listings.StateLive:
		return ansiGreen
	case listings.StatePublishing:
		return ansiBlue
	case listings.StateBlocked:
		return ansiRed
	case listings.StateDryRun, listings.StateApproved:
		return ansiYellow
	default:
		return ""
	}
}

func paint(value, color string, colorize bool) string {
	if !colorize || color == "" {
		return value
	}
	return color + value + ansiReset
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
