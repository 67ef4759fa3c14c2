// Package stream wraps a stream acquisition entry point so that callers
// receive a processed video track instead of the raw camera track.
//
// Adapter.Acquire has the same signature as the AcquireFunc it wraps. Whenever
// the processed output cannot be built the raw stream is returned unchanged,
// so wrapping never breaks a caller that worked before.
package stream

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"camera-effects/internal/effects"
	"camera-effects/internal/pipeline"
)

// SessionFactory builds the pipeline that feeds a processed track
type SessionFactory func(source pipeline.Source, fps float64) (*pipeline.Pipeline, error)

// Option configures an Adapter
type Option func(*Adapter)

func WithLogger(logger *logrus.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithSessionFactory replaces the default pipeline construction
func WithSessionFactory(f SessionFactory) Option {
	return func(a *Adapter) {
		a.factory = f
	}
}

// WithRendererOptions passes options to every session renderer
func WithRendererOptions(opts ...effects.Option) Option {
	return func(a *Adapter) {
		a.rendererOpts = append(a.rendererOpts, opts...)
	}
}

// WithScheduler sets how the default factory creates a scheduler for a frame rate
func WithScheduler(f func(fps float64) pipeline.Scheduler) Option {
	return func(a *Adapter) {
		a.scheduler = f
	}
}

// WithSessionHook is called with every session that starts successfully
func WithSessionHook(fn func(*Session)) Option {
	return func(a *Adapter) {
		a.onSession = fn
	}
}

type Adapter struct {
	acquire      AcquireFunc
	state        StateReader
	logger       *logrus.Logger
	factory      SessionFactory
	scheduler    func(fps float64) pipeline.Scheduler
	rendererOpts []effects.Option
	onSession    func(*Session)
}

func NewAdapter(acquire AcquireFunc, state StateReader, opts ...Option) *Adapter {
	a := &Adapter{
		acquire: acquire,
		state:   state,
		logger:  logrus.StandardLogger(),
		scheduler: func(fps float64) pipeline.Scheduler {
			return pipeline.NewIntervalScheduler(fps)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.factory == nil {
		a.factory = a.defaultFactory
	}
	return a
}

func (a *Adapter) defaultFactory(source pipeline.Source, fps float64) (*pipeline.Pipeline, error) {
	return pipeline.New(source, a.scheduler(fps), pipeline.WithLogger(a.logger)), nil
}

// Acquire obtains the raw stream and returns a processed copy of it. Errors
// from the wrapped AcquireFunc are returned unchanged.
func (a *Adapter) Acquire(ctx context.Context, c Constraints) (*MediaStream, error) {
	raw, err := a.acquire(ctx, c)
	if err != nil {
		return nil, err
	}
	if raw == nil || !c.WantsVideo() {
		return raw, nil
	}
	if len(raw.VideoTracks()) == 0 {
		a.logger.WithFields(logrus.Fields{
			"function": "Adapter.Acquire",
			"stream":   raw.ID(),
		}).Debug("Raw stream has no video track, passing through")
		return raw, nil
	}

	out, err := a.build(ctx, raw, c)
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"function": "Adapter.Acquire",
			"stream":   raw.ID(),
			"error":    err.Error(),
		}).Warn("Failed to build processed stream, returning raw stream")
		return raw, nil
	}
	return out, nil
}

func (a *Adapter) build(ctx context.Context, raw *MediaStream, c Constraints) (out *MediaStream, err error) {
	var (
		p        *pipeline.Pipeline
		renderer *effects.Renderer
	)
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithFields(logrus.Fields{
				"function": "Adapter.build",
				"panic":    fmt.Sprint(r),
				"stack":    string(debug.Stack()),
			}).Error("Processed stream construction panicked")
			err = fmt.Errorf("build panic: %v", r)
		}
		if err != nil {
			if p != nil {
				p.Close()
			}
			if renderer != nil {
				renderer.Close()
			}
		}
	}()

	source := raw.VideoTracks()[0]
	if player, ok := source.(Player); ok {
		if err := player.Play(ctx); err != nil {
			return nil, fmt.Errorf("start source playback: %w", err)
		}
	}

	fps := frameRate(source.Settings(), c)
	p, err = a.factory(source, fps)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("create pipeline: factory returned nil")
	}

	renderer = effects.NewRenderer(append([]effects.Option{effects.WithLogger(a.logger)}, a.rendererOpts...)...)
	session := newSession(raw, source, p, renderer, a.state, fps, a.logger)

	out = NewMediaStream(session.Track())
	for _, t := range raw.AudioTracks() {
		out.AddTrack(t)
	}
	session.start()

	a.logger.WithFields(logrus.Fields{
		"function":   "Adapter.build",
		"session":    session.ID(),
		"raw_stream": raw.ID(),
		"stream":     out.ID(),
		"fps":        fps,
		"audio":      len(raw.AudioTracks()),
	}).Info("Processed stream ready")

	if a.onSession != nil {
		a.onSession(session)
	}
	return out, nil
}
