// Package pipeline runs the per-frame loop: pull a frame from a source, render
// it into a working buffer and present the result.
//
// Exactly one tick is pending or running at a time. The next tick is only
// scheduled once the current one has finished, so a slow render lowers the
// frame rate instead of queueing work. A failed tick keeps the previously
// presented frame.
package pipeline

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects/internal/metrics"
)

// Source delivers the current frame of a live stream
type Source interface {
	ReadFrame(dst *gocv.Mat) error
}

// RenderFunc writes the processed version of src into dst
type RenderFunc func(dst *gocv.Mat, src gocv.Mat) error

// Option configures a Pipeline
type Option func(*Pipeline)

func WithLogger(logger *logrus.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// withFrameHook registers fn to be called after every presented frame.
// It runs on the tick goroutine and must not block.
func withFrameHook(fn func()) Option {
	return func(p *Pipeline) {
		p.hook = fn
	}
}

type Pipeline struct {
	source Source
	sched  Scheduler
	logger *logrus.Logger
	hook   func()
	stats  metrics.Stats

	mu      sync.Mutex
	running bool
	closed  bool
	gen     uint64
	render  RenderFunc
	cancel  func()

	// tick-owned buffers, guarded by tickMu
	tickMu sync.Mutex
	raw    gocv.Mat
	input  gocv.Mat
	work   gocv.Mat

	out *frameBuffer
}

func New(source Source, sched Scheduler, opts ...Option) *Pipeline {
	p := &Pipeline{
		source: source,
		sched:  sched,
		logger: logrus.StandardLogger(),
		raw:    gocv.NewMat(),
		input:  gocv.NewMat(),
		work:   gocv.NewMat(),
		out:    newFrameBuffer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sched == nil {
		p.sched = NewIntervalScheduler(DefaultFPS)
	}
	return p
}

// Start begins the frame loop. Calling Start while running, or after Close, does nothing.
func (p *Pipeline) Start(render RenderFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.closed || render == nil {
		return
	}
	p.running = true
	p.gen++
	p.render = render
	gen := p.gen
	p.cancel = p.sched.Schedule(func() { p.tick(gen) })

	p.logger.WithFields(logrus.Fields{
		"function": "Pipeline.Start",
	}).Debug("Frame loop started")
}

// Stop cancels the pending tick. A tick already running completes but does
// not schedule another one.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	p.logger.WithFields(logrus.Fields{
		"function": "Pipeline.Stop",
	}).Debug("Frame loop stopped")
}

// Close stops the loop, waits for an in-flight tick and releases the buffers
func (p *Pipeline) Close() error {
	p.Stop()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	p.raw.Close()
	p.input.Close()
	p.work.Close()
	p.out.close()
	return nil
}

// Size reports the dimensions of the presented frame
func (p *Pipeline) Size() (width, height int) {
	return p.out.size()
}

// Snapshot copies the presented frame into dst. It reports false before the
// first frame has been seen.
func (p *Pipeline) Snapshot(dst *gocv.Mat) bool {
	return p.out.copyPresented(dst)
}

// SnapshotInput copies the input frame the presented frame was rendered from
func (p *Pipeline) SnapshotInput(dst *gocv.Mat) bool {
	return p.out.copyInput(dst)
}

func (p *Pipeline) Stats() metrics.Snapshot {
	return p.stats.Snapshot()
}

func (p *Pipeline) tick(gen uint64) {
	p.mu.Lock()
	if !p.running || p.gen != gen {
		p.mu.Unlock()
		return
	}
	render := p.render
	p.mu.Unlock()

	p.tickMu.Lock()
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if !closed {
		p.runTick(render)
	}
	p.tickMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && p.gen == gen {
		p.cancel = p.sched.Schedule(func() { p.tick(gen) })
	}
}

func (p *Pipeline) runTick(render RenderFunc) {
	p.stats.Tick()

	if err := p.source.ReadFrame(&p.raw); err != nil {
		p.stats.Miss()
		if !errors.Is(err, ErrNoFrame) {
			p.logger.WithFields(logrus.Fields{
				"function": "Pipeline.tick",
				"error":    err.Error(),
			}).Debug("Source read failed, skipping tick")
		}
		return
	}

	if err := normalize(&p.input, p.raw); err != nil {
		p.fail(err)
		return
	}

	width, height := p.input.Cols(), p.input.Rows()
	if p.work.Cols() != width || p.work.Rows() != height {
		p.work.Close()
		p.work = blank(width, height)
	}

	start := time.Now()
	if err := p.safeRender(render); err != nil {
		p.fail(err)
		return
	}
	if p.work.Cols() != width || p.work.Rows() != height || p.work.Type() != gocv.MatTypeCV8UC3 {
		p.fail(fmt.Errorf("render produced %dx%d %v for %dx%d input",
			p.work.Cols(), p.work.Rows(), p.work.Type(), width, height))
		return
	}
	p.stats.Rendered(time.Since(start), time.Now())

	oldWidth, oldHeight := p.out.size()
	if p.out.present(&p.work, p.input) {
		p.stats.Resize()
		p.logger.WithFields(logrus.Fields{
			"function":   "Pipeline.tick",
			"width":      width,
			"height":     height,
			"old_width":  oldWidth,
			"old_height": oldHeight,
		}).Info("Frame size changed")
	}
	if p.hook != nil {
		p.hook()
	}
}

func (p *Pipeline) safeRender(render RenderFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"function": "Pipeline.safeRender",
				"panic":    fmt.Sprint(r),
				"stack":    string(debug.Stack()),
			}).Error("Render panicked")
			err = fmt.Errorf("render panic: %v", r)
		}
	}()
	return render(&p.work, p.input)
}

func (p *Pipeline) fail(err error) {
	p.stats.Failed(err)
	p.logger.WithFields(logrus.Fields{
		"function": "Pipeline.tick",
		"error":    err.Error(),
	}).Warn("Tick skipped, keeping previous frame")
}
