// Package backoff defines the reconnect delay sequence (prime numbers for optimal distribution).
package backoff

import (
	"fmt"
	"sync"
	"time"
)

// Primes is the default step sequence, in units.
var Primes = []int{1, 2, 3, 5, 11, 23, 47, 61}

// DefaultMax caps every delay.
const DefaultMax = 59 * time.Second

// Sequence hands out successive delays: Primes[i] * Unit, capped at Max.
// Once the primes are exhausted it stays at Max.
type Sequence struct {
	mu    sync.Mutex
	steps []int
	unit  time.Duration
	max   time.Duration
	index int
}

// New creates a Sequence. Zero unit means one second, zero max means DefaultMax.
func New(unit, max time.Duration) *Sequence {
	if unit <= 0 {
		unit = time.Second
	}
	if max <= 0 {
		max = DefaultMax
	}
	return &Sequence{
		steps: Primes,
		unit:  unit,
		max:   max,
	}
}

// Next returns the current delay and advances the sequence.
func (s *Sequence) Next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.steps) {
		return s.max
	}

	d := time.Duration(s.steps[s.index]) * s.unit
	s.index++
	if d > s.max {
		d = s.max
	}
	return d
}

// Reset starts the sequence over (called after a successful connect).
func (s *Sequence) Reset() {
	s.mu.Lock()
	s.index = 0
	s.mu.Unlock()
}

// String returns string representation.
func (s *Sequence) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("Sequence(step=%d/%d, unit=%s, max=%s)", s.index, len(s.steps), s.unit, s.max)
}
