package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// manualScheduler queues callbacks until the test fires them
type manualScheduler struct {
	mu      sync.Mutex
	nextID  int
	pending map[int]func()
}

func (s *manualScheduler) Schedule(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = map[int]func(){}
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.pending, id)
	}
}

func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Fire runs every pending callback once
func (s *manualScheduler) Fire() {
	s.mu.Lock()
	fns := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// fakeSource returns its current frame, or err when set
type fakeSource struct {
	mu    sync.Mutex
	frame gocv.Mat
	err   error
	reads int
}

func newFakeSource(rows, cols int, v float64) *fakeSource {
	return &fakeSource{frame: solid(rows, cols, v)}
}

func (s *fakeSource) ReadFrame(dst *gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return s.err
	}
	s.frame.CopyTo(dst)
	return nil
}

func (s *fakeSource) set(m gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame.Close()
	s.frame = m
}

func solid(rows, cols int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func invert(dst *gocv.Mat, src gocv.Mat) error {
	gocv.BitwiseNot(src, dst)
	return nil
}

func newTestPipeline(src Source, sched Scheduler, opts ...Option) *Pipeline {
	logger, _ := test.NewNullLogger()
	return New(src, sched, append([]Option{WithLogger(logger)}, opts...)...)
}

func isRunning(p *Pipeline) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func TestPipeline_RendersAndPresents(t *testing.T) {
	sched := &manualScheduler{}
	src := newFakeSource(20, 30, 10)
	hooked := 0
	p := newTestPipeline(src, sched, withFrameHook(func() { hooked++ }))
	defer p.Close()

	out := gocv.NewMat()
	defer out.Close()
	assert.False(t, p.Snapshot(&out))

	p.Start(invert)
	require.True(t, isRunning(p))
	require.Equal(t, 1, sched.Pending())

	sched.Fire()
	require.True(t, p.Snapshot(&out))
	assert.Equal(t, 30, out.Cols())
	assert.Equal(t, 20, out.Rows())
	assert.Equal(t, uint8(245), out.GetVecbAt(0, 0)[0])
	assert.Equal(t, 1, hooked)

	in := gocv.NewMat()
	defer in.Close()
	require.True(t, p.SnapshotInput(&in))
	assert.Equal(t, uint8(10), in.GetVecbAt(0, 0)[0])

	// rescheduled exactly once
	assert.Equal(t, 1, sched.Pending())

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Ticks)
	assert.Equal(t, uint64(1), stats.Rendered)
	assert.Equal(t, uint64(1), stats.Resizes)
}

func TestPipeline_StartIsIdempotent(t *testing.T) {
	sched := &manualScheduler{}
	p := newTestPipeline(newFakeSource(4, 4, 0), sched)
	defer p.Close()

	p.Start(invert)
	p.Start(invert)
	assert.Equal(t, 1, sched.Pending())
}

func TestPipeline_StopPreventsRescheduling(t *testing.T) {
	sched := &manualScheduler{}
	src := newFakeSource(4, 4, 0)
	p := newTestPipeline(src, sched)
	defer p.Close()

	p.Start(invert)
	sched.Fire()
	require.Equal(t, 1, sched.Pending())

	p.Stop()
	assert.False(t, isRunning(p))
	assert.Zero(t, sched.Pending())

	sched.Fire()
	assert.Equal(t, 1, src.reads)
}

func TestPipeline_StopDuringTick(t *testing.T) {
	sched := &manualScheduler{}
	var p *Pipeline
	p = newTestPipeline(newFakeSource(4, 4, 0), sched)
	defer p.Close()

	p.Start(func(dst *gocv.Mat, src gocv.Mat) error {
		p.Stop()
		return invert(dst, src)
	})
	sched.Fire()

	out := gocv.NewMat()
	defer out.Close()
	// the in-flight tick completes
	assert.True(t, p.Snapshot(&out))
	assert.Zero(t, sched.Pending())
}

func TestPipeline_RenderErrorKeepsPreviousFrame(t *testing.T) {
	sched := &manualScheduler{}
	src := newFakeSource(8, 8, 0)
	p := newTestPipeline(src, sched)
	defer p.Close()

	fail := false
	p.Start(func(dst *gocv.Mat, s gocv.Mat) error {
		if fail {
			dst.SetTo(gocv.NewScalar(7, 7, 7, 0))
			return errors.New("broken effect")
		}
		return invert(dst, s)
	})
	sched.Fire()

	fail = true
	src.set(solid(8, 8, 100))
	sched.Fire()

	out := gocv.NewMat()
	defer out.Close()
	require.True(t, p.Snapshot(&out))
	assert.Equal(t, uint8(255), out.GetVecbAt(3, 3)[0])

	// loop keeps going
	assert.Equal(t, 1, sched.Pending())
	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, "broken effect", stats.LastError)
}

func TestPipeline_RenderPanicIsRecovered(t *testing.T) {
	sched := &manualScheduler{}
	p := newTestPipeline(newFakeSource(8, 8, 0), sched)
	defer p.Close()

	p.Start(func(dst *gocv.Mat, s gocv.Mat) error {
		panic("boom")
	})
	assert.NotPanics(t, sched.Fire)
	assert.Equal(t, 1, sched.Pending())
	assert.Equal(t, uint64(1), p.Stats().Failed)
}

func TestPipeline_SourceMissSkipsTick(t *testing.T) {
	sched := &manualScheduler{}
	src := newFakeSource(8, 8, 0)
	src.err = ErrNoFrame
	p := newTestPipeline(src, sched)
	defer p.Close()

	p.Start(invert)
	sched.Fire()

	out := gocv.NewMat()
	defer out.Close()
	assert.False(t, p.Snapshot(&out))
	assert.Equal(t, uint64(1), p.Stats().SourceMiss)
	assert.Equal(t, 1, sched.Pending())
}

func TestPipeline_ResizeFollowsInput(t *testing.T) {
	sched := &manualScheduler{}
	src := newFakeSource(10, 20, 0)
	p := newTestPipeline(src, sched)
	defer p.Close()

	fail := false
	p.Start(func(dst *gocv.Mat, s gocv.Mat) error {
		if fail {
			return errors.New("nope")
		}
		return invert(dst, s)
	})
	sched.Fire()
	w, h := p.Size()
	assert.Equal(t, 20, w)
	assert.Equal(t, 10, h)

	// a failed tick at the new size keeps the previous frame and its input
	fail = true
	src.set(solid(30, 40, 0))
	sched.Fire()
	w, h = p.Size()
	assert.Equal(t, 20, w)
	assert.Equal(t, 10, h)

	out := gocv.NewMat()
	defer out.Close()
	in := gocv.NewMat()
	defer in.Close()
	require.True(t, p.Snapshot(&out))
	assert.Equal(t, 20, out.Cols())
	assert.Equal(t, uint8(255), out.GetVecbAt(0, 0)[0])
	require.True(t, p.SnapshotInput(&in))
	assert.Equal(t, out.Cols(), in.Cols())
	assert.Equal(t, out.Rows(), in.Rows())
	assert.Equal(t, uint64(1), p.Stats().Resizes)

	// the first successful render adopts the new size
	fail = false
	sched.Fire()
	w, h = p.Size()
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)
	require.True(t, p.Snapshot(&out))
	assert.Equal(t, 40, out.Cols())
	assert.Equal(t, 30, out.Rows())
	assert.Equal(t, uint8(255), out.GetVecbAt(29, 39)[0])
	require.True(t, p.SnapshotInput(&in))
	assert.Equal(t, 40, in.Cols())
	assert.Equal(t, uint64(2), p.Stats().Resizes)
}

func TestPipeline_RejectsSizeChangingRender(t *testing.T) {
	sched := &manualScheduler{}
	p := newTestPipeline(newFakeSource(10, 10, 0), sched)
	defer p.Close()

	p.Start(func(dst *gocv.Mat, s gocv.Mat) error {
		small := solid(5, 5, 1)
		defer small.Close()
		small.CopyTo(dst)
		return nil
	})
	sched.Fire()
	assert.Equal(t, uint64(1), p.Stats().Failed)
}

func TestPipeline_CloseStopsEverything(t *testing.T) {
	sched := &manualScheduler{}
	src := newFakeSource(4, 4, 0)
	p := newTestPipeline(src, sched)

	p.Start(invert)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	sched.Fire()
	assert.Zero(t, src.reads)

	p.Start(invert)
	assert.False(t, isRunning(p))
}

func TestNormalize(t *testing.T) {
	dst := gocv.NewMat()
	defer dst.Close()

	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(50, 0, 0, 0), 4, 6, gocv.MatTypeCV8U)
	defer gray.Close()
	require.NoError(t, normalize(&dst, gray))
	assert.Equal(t, gocv.MatTypeCV8UC3, dst.Type())
	assert.Equal(t, []uint8{50, 50, 50}, []uint8(dst.GetVecbAt(1, 1)))

	bgra := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 2, 3, 255), 4, 6, gocv.MatTypeCV8UC4)
	defer bgra.Close()
	require.NoError(t, normalize(&dst, bgra))
	assert.Equal(t, []uint8{1, 2, 3}, []uint8(dst.GetVecbAt(0, 0)))

	empty := gocv.NewMat()
	defer empty.Close()
	assert.ErrorIs(t, normalize(&dst, empty), ErrInvalidFrame)
}

func TestIntervalScheduler(t *testing.T) {
	s := NewIntervalScheduler(50)
	assert.Equal(t, 20*time.Millisecond, s.interval)
	defaultFPS := DefaultFPS
	assert.Equal(t, time.Duration(float64(time.Second)/defaultFPS), NewIntervalScheduler(0).interval)

	done := make(chan struct{})
	s.Schedule(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled callback did not run")
	}

	ran := make(chan struct{}, 1)
	cancel := s.Schedule(func() { ran <- struct{}{} })
	cancel()
	select {
	case <-ran:
		t.Fatal("cancelled callback ran")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestPipeline_WithIntervalScheduler(t *testing.T) {
	src := newFakeSource(6, 6, 0)
	p := newTestPipeline(src, NewIntervalScheduler(200))
	defer p.Close()

	p.Start(invert)
	require.Eventually(t, func() bool { return p.Stats().Rendered >= 3 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()
}
