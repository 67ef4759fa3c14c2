package stream

import (
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects/internal/effects"
	"camera-effects/internal/metrics"
	"camera-effects/internal/pipeline"
)

// Session owns everything one processed stream needs: the pipeline, the
// renderer with its offscreen buffers, and the raw tracks it consumes.
type Session struct {
	id       string
	fps      float64
	raw      *MediaStream
	pipeline *pipeline.Pipeline
	renderer *effects.Renderer
	state    StateReader
	track    *ProcessedTrack
	logger   *logrus.Logger

	closeOnce sync.Once
}

func newSession(raw *MediaStream, source VideoTrack, p *pipeline.Pipeline, r *effects.Renderer,
	state StateReader, fps float64, logger *logrus.Logger) *Session {
	s := &Session{
		raw:      raw,
		pipeline: p,
		renderer: r,
		state:    state,
		fps:      fps,
		logger:   logger,
	}

	settings := source.Settings()
	s.track = &ProcessedTrack{
		TrackBase: NewTrackBase(KindVideo, TrackSettings{DeviceID: settings.DeviceID, FrameRate: fps}),
		session:   s,
	}
	s.id = s.track.ID()
	s.track.OnStop(s.close)

	// a source that goes away ends the processed track too
	go func() {
		select {
		case <-source.Ended():
			s.track.Stop()
		case <-s.track.Ended():
		}
	}()
	return s
}

func (s *Session) ID() string             { return s.id }
func (s *Session) FrameRate() float64     { return s.fps }
func (s *Session) Track() *ProcessedTrack { return s.track }

func (s *Session) Snapshot(dst *gocv.Mat) bool      { return s.pipeline.Snapshot(dst) }
func (s *Session) SnapshotInput(dst *gocv.Mat) bool { return s.pipeline.SnapshotInput(dst) }
func (s *Session) Stats() metrics.Snapshot          { return s.pipeline.Stats() }

func (s *Session) render(dst *gocv.Mat, src gocv.Mat) error {
	return s.renderer.Render(dst, src, s.state.State())
}

func (s *Session) start() {
	s.pipeline.Start(s.render)
}

// Close ends the processed track, which releases the session
func (s *Session) Close() {
	s.track.Stop()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.pipeline.Close()
		if err := s.renderer.Close(); err != nil {
			s.logger.WithFields(logrus.Fields{
				"function": "Session.close",
				"session":  s.id,
				"error":    err.Error(),
			}).Warn("Failed to release renderer")
		}
		s.raw.Stop()

		s.logger.WithFields(logrus.Fields{
			"function": "Session.close",
			"session":  s.id,
		}).Info("Processed stream ended, raw tracks stopped")
	})
}

// ProcessedTrack is the video track of a processed stream. It has the same
// shape as a native video track.
type ProcessedTrack struct {
	*TrackBase
	session *Session
}

// Settings reports the current output size and the session frame rate
func (t *ProcessedTrack) Settings() TrackSettings {
	settings := t.TrackBase.Settings()
	settings.Width, settings.Height = t.session.pipeline.Size()
	return settings
}

func (t *ProcessedTrack) ReadFrame(dst *gocv.Mat) error {
	if t.IsEnded() {
		return ErrTrackEnded
	}
	if !t.session.pipeline.Snapshot(dst) {
		return pipeline.ErrNoFrame
	}
	return nil
}

func (t *ProcessedTrack) Session() *Session {
	return t.session
}
