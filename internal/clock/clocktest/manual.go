// Package clocktest provides a controllable clock.Clock for tests.
package clocktest

import (
	"sync"
	"time"

	"pharmapos/backend/internal/clock"
)

var _ clock.Clock = (*Manual)(nil)

// Manual is a settable clock. Each call to Now advances it by Step
// so consecutive records get distinct, ordered timestamps.
type Manual struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewManual(start time.Time, step time.Duration) *Manual {
	return &Manual{now: start.UTC(), Step: step}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.now
	m.now = m.now.Add(m.Step)
	return current
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
