// Package circuit implements a consecutive-failure circuit breaker shared by
// the source adapters. Open circuits short-circuit calls to a failing
// upstream; periodic probes test for recovery and close the circuit after a
// run of successes.
package circuit

import (
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
)

// StateChange reports a transition caused by a Record call so callers can
// log open/close events exactly once.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker tracks consecutive failures against one upstream.
//   - Open after N consecutive failures.
//   - While open, Allow admits one probe per cooldown window.
//   - Close after M consecutive successes.
type Breaker struct {
	mu               sync.Mutex
	name             string
	state            State
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	lastProbe        time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithSuccessThreshold sets how many consecutive successes close it again.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) { b.successThreshold = n }
}

// WithCooldown sets the minimum interval between probes while open.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) { b.cooldown = d }
}

// New creates a closed breaker with default thresholds (5 failures to open,
// 3 successes to close, 30s between probes).
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 3,
		cooldown:         30 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker's upstream name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether the circuit is open.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen
}

// Allow reports whether a call may proceed. Closed circuits always allow;
// open circuits admit a single probe once per cooldown window so recovery
// can be detected without hammering a failing upstream.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return true
	}
	now := time.Now()
	if now.Sub(b.lastProbe) >= b.cooldown {
		b.lastProbe = now
		return true
	}
	return false
}

// RecordFailure notes a failed call. It returns whether callers should use
// their fallback path, plus the state transition if this failure opened the
// circuit.
func (b *Breaker) RecordFailure() (bool, StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.successCount = 0

	if b.state == StateOpen {
		return true, StateChange{}
	}
	if b.failureCount >= b.failureThreshold {
		b.state = StateOpen
		b.lastProbe = time.Now()
		return true, StateChange{Opened: true}
	}
	return false, StateChange{}
}

// RecordSuccess notes a successful call. It returns whether callers should
// trust the primary path, plus the state transition if this success closed
// the circuit.
func (b *Breaker) RecordSuccess() (bool, StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			return true, StateChange{Closed: true}
		}
		return false, StateChange{}
	}
	b.failureCount = 0
	return true, StateChange{}
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
}
