package backoff

import (
	"time"
)

// Exponential produces a deterministic doubling delay sequence, starting at
// Min and capped at Max. Determinism (no jitter) keeps the reconnect
// schedule assertable in tests. Not safe for concurrent use; the supervisor
// owns one instance per stream.
type Exponential struct {
	min  time.Duration
	max  time.Duration
	next time.Duration
}

func New(min, max time.Duration) *Exponential {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	return &Exponential{min: min, max: max, next: min}
}

// Next returns the delay to wait before the next attempt and advances the
// sequence: min, 2*min, 4*min, ... capped at max.
func (b *Exponential) Next() time.Duration {
	d := b.next
	doubled := b.next * 2
	if doubled <= 0 || doubled > b.max { // the multiply overflows on long outages
		doubled = b.max
	}
	b.next = doubled
	return d
}

// Reset restarts the sequence at the minimum delay. Called after a period
// of sustained connectivity.
func (b *Exponential) Reset() {
	b.next = b.min
}
