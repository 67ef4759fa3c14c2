package pipeline

import (
	"sync"
	"time"
)

// DefaultFPS is used when neither the source nor the caller provides a frame rate
const DefaultFPS = 30.0

// Scheduler arranges for fn to run once at the next frame boundary. The
// returned cancel func prevents fn from running if it has not started yet.
type Scheduler interface {
	Schedule(fn func()) (cancel func())
}

// IntervalScheduler is a fixed-rate timer. Deadlines advance from the previous
// deadline instead of from the call time, so render cost does not lower the rate.
type IntervalScheduler struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func NewIntervalScheduler(fps float64) *IntervalScheduler {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &IntervalScheduler{
		interval: time.Duration(float64(time.Second) / fps),
	}
}

func (s *IntervalScheduler) Schedule(fn func()) func() {
	s.mu.Lock()
	now := time.Now()
	// more than a frame behind: resync instead of bursting to catch up
	if s.next.IsZero() || now.Sub(s.next) > s.interval {
		s.next = now
	}
	s.next = s.next.Add(s.interval)
	delay := s.next.Sub(now)
	s.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}
