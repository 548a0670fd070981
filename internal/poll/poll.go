// Package poll provides the single bounded wait loop used everywhere the
// orchestrator blocks on remote state: fixed interval, explicit timeout,
// context cancellation. Keeping it in one place makes the timeout semantics
// testable in isolation instead of embedded ad hoc at each call site.
package poll

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError is returned when the condition did not become true within
// the bound. Eligible for fallback; never retried in place.
type TimeoutError struct {
	Op       string
	Timeout  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("poll: %s not done after %s (%d attempts)", e.Op, e.Timeout, e.Attempts)
}

// Policy bounds one wait: check every Interval, give up after Timeout.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Wait calls check immediately and then once per interval until it reports
// done, returns an error, the timeout elapses, or ctx is cancelled.
// The first check runs before any sleep, so conditions that are already
// true never wait.
func Wait(ctx context.Context, p Policy, op string, check func(ctx context.Context) (done bool, err error)) error {
	deadline := time.Now().Add(p.Timeout)
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().Add(p.Interval).After(deadline) {
			return &TimeoutError{Op: op, Timeout: p.Timeout, Attempts: attempts}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
