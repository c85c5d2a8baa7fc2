package common

import "time"

// Backoff implements the exponential backoff schedule spec.md §7
// mandates for transient network errors: base 100ms, factor 2, cap
// 5s, at most 5 attempts.
type Backoff struct {
	Base    time.Duration
	Factor  float64
	Cap     time.Duration
	MaxAttempts int

	attempt int
}

// DefaultBackoff returns the schedule from spec.md §7.
func DefaultBackoff() *Backoff {
	return &Backoff{
		Base:        100 * time.Millisecond,
		Factor:      2,
		Cap:         5 * time.Second,
		MaxAttempts: 5,
	}
}

// Next returns the delay for the next attempt and whether the caller
// should retry at all (false once MaxAttempts is exhausted).
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempt >= b.MaxAttempts {
		return 0, false
	}
	delay := float64(b.Base)
	for i := 0; i < b.attempt; i++ {
		delay *= b.Factor
	}
	b.attempt++
	d := time.Duration(delay)
	if d > b.Cap {
		d = b.Cap
	}
	return d, true
}

// Reset restarts the schedule from the first attempt.
func (b *Backoff) Reset() {
	b.attempt = 0
}
