package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// fpsSmoothing is the weight of the newest interval in the frame rate average
const fpsSmoothing = 0.1

// Stats counts what happens to pipeline ticks. Safe for concurrent use.
type Stats struct {
	ticks    atomic.Uint64
	rendered atomic.Uint64
	failed   atomic.Uint64
	missed   atomic.Uint64
	resizes  atomic.Uint64
	lastCost atomic.Int64

	mu         sync.Mutex
	lastRender time.Time
	fps        float64
	lastErr    string
}

// Snapshot is a point-in-time copy of Stats
type Snapshot struct {
	Ticks        uint64        `json:"ticks"`
	Rendered     uint64        `json:"rendered"`
	Failed       uint64        `json:"failed"`
	SourceMiss   uint64        `json:"source_miss"`
	Resizes      uint64        `json:"resizes"`
	RenderCost   time.Duration `json:"render_cost_ns"`
	FPS          float64       `json:"fps"`
	LastError    string        `json:"last_error,omitempty"`
	LastRendered time.Time     `json:"last_rendered"`
}

func (s *Stats) Tick()   { s.ticks.Add(1) }
func (s *Stats) Miss()   { s.missed.Add(1) }
func (s *Stats) Resize() { s.resizes.Add(1) }

// Rendered records a successful tick that took cost and finished at now
func (s *Stats) Rendered(cost time.Duration, now time.Time) {
	s.rendered.Add(1)
	s.lastCost.Store(int64(cost))

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastRender.IsZero() {
		if dt := now.Sub(s.lastRender).Seconds(); dt > 0 {
			inst := 1 / dt
			if s.fps == 0 {
				s.fps = inst
			} else {
				s.fps += fpsSmoothing * (inst - s.fps)
			}
		}
	}
	s.lastRender = now
}

// Failed records a tick aborted by a render error or panic
func (s *Stats) Failed(err error) {
	s.failed.Add(1)
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	fps, last, lastErr := s.fps, s.lastRender, s.lastErr
	s.mu.Unlock()

	return Snapshot{
		Ticks:        s.ticks.Load(),
		Rendered:     s.rendered.Load(),
		Failed:       s.failed.Load(),
		SourceMiss:   s.missed.Load(),
		Resizes:      s.resizes.Load(),
		RenderCost:   time.Duration(s.lastCost.Load()),
		FPS:          fps,
		LastError:    lastErr,
		LastRendered: last,
	}
}
