// Package clock abstracts wall time so that leases, quotas, backoff, and rate
// limit sleeps can be driven deterministically in tests.
package clock

import (
	"context"
	"time"
)

// Clock is injected wherever production code would call time.Now or sleep.
type Clock interface {
	Now() time.Time
	// Sleep pauses for d or until ctx is done, whichever happens first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OrReal returns c, or the real clock when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real()
	}
	return c
}
