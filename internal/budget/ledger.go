// Package budget tracks running spend against a configured limit. The ledger
// is the single gate in front of every paid resource: provisioning reserves
// projected cost before any provider call happens.
package budget

import (
	"fmt"
	"sync"
)

// ExceededError is returned when a reservation would push spend past the
// limit. Terminal: the caller must not retry or fall back on it.
type ExceededError struct {
	Projected float64
	Spent     float64
	Limit     float64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("budget: projected %.2f + spent %.2f exceeds limit %.2f",
		e.Projected, e.Spent, e.Limit)
}

// Ledger is the process-wide spend state. All methods are safe for
// concurrent use; Reserve is all-or-nothing.
type Ledger struct {
	mu    sync.Mutex
	spent float64
	limit float64
}

// NewLedger creates a ledger with the given spend limit.
func NewLedger(limit float64) *Ledger {
	return &Ledger{limit: limit}
}

// Reserve atomically checks and commits a projected charge. On success the
// amount counts as spent immediately, so concurrent reservations cannot
// jointly overshoot the limit.
func (l *Ledger) Reserve(amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.spent+amount > l.limit {
		return &ExceededError{Projected: amount, Spent: l.spent, Limit: l.limit}
	}
	l.spent += amount
	return nil
}

// Charge records spend unconditionally. Used for costs that are already
// sunk (completed fast-service calls, accrued instance hours beyond the
// reservation) — the guard only applies before provisioning.
func (l *Ledger) Charge(amount float64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	l.spent += amount
	l.mu.Unlock()
}

// Release undoes a reservation whose provisioning never happened (the
// provider rejected the create call). Floored at zero.
func (l *Ledger) Release(amount float64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	l.spent -= amount
	if l.spent < 0 {
		l.spent = 0
	}
	l.mu.Unlock()
}

// Spent returns the running total.
func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent
}

// Limit returns the configured limit.
func (l *Ledger) Limit() float64 { return l.limit }

// Remaining returns limit minus spend, floored at zero.
func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r := l.limit - l.spent; r > 0 {
		return r
	}
	return 0
}
