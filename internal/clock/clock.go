package clock

import (
	"sync"
	"time"
)

// Clock provides current time abstraction for deterministic tests.
// Every duration comparison in the engine (cooldown windows, escalation
// age, suppression expiry) goes through this interface so wall-clock
// reads happen in exactly one place.
// Params: none.
// Returns: current wall-clock time.
type Clock interface {
	Now() time.Time
}

// RealClock reads current UTC time from system clock.
// Params: none.
// Returns: current UTC timestamp.
type RealClock struct{}

// Now returns current UTC time.
// Params: none.
// Returns: current UTC timestamp.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a settable clock for tests and replay tooling.
// Params: explicit current time advanced by the owner.
// Returns: deterministic Now() reads.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates manual clock pinned to the given instant.
// Params: initial time.
// Returns: initialized manual clock.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now.UTC()}
}

// Now returns the pinned time.
// Params: none.
// Returns: current manual timestamp.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the pinned time forward.
// Params: non-negative step duration.
// Returns: clock advanced in place.
func (m *Manual) Advance(step time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(step)
}

// Set pins the clock to an explicit instant.
// Params: replacement time.
// Returns: clock repinned in place.
func (m *Manual) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now.UTC()
}
