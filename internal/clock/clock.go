// Package clock abstracts the time source so timestamp-sensitive logic is
// testable.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time

	// EpochMillis returns the current time in milliseconds since the Unix
	// epoch, the resolution used for event origin timestamps.
	EpochMillis() int64
}

// System is a Clock backed by time.Now.
type System struct{}

// NewSystem creates a system clock.
func NewSystem() *System {
	return &System{}
}

// Now returns the current wall-clock time.
func (s *System) Now() time.Time {
	return time.Now().UTC()
}

// EpochMillis returns the current Unix time in milliseconds.
func (s *System) EpochMillis() int64 {
	return time.Now().UnixMilli()
}

// Fake is a manually advanced Clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// EpochMillis returns the fake current Unix time in milliseconds.
func (f *Fake) EpochMillis() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.UnixMilli()
}

// Advance moves the fake clock forward.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
