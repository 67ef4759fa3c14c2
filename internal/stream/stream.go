package stream

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"camera-effects/internal/effects"
	"camera-effects/internal/pipeline"
)

// VideoConstraints is what the caller asked for when requesting video
type VideoConstraints struct {
	DeviceID  string  `json:"device_id,omitempty" yaml:"device_id"`
	Width     int     `json:"width,omitempty" yaml:"width"`
	Height    int     `json:"height,omitempty" yaml:"height"`
	FrameRate float64 `json:"frame_rate,omitempty" yaml:"frame_rate"`
}

// Constraints describes a stream request. A nil Video means video was not requested.
type Constraints struct {
	Video *VideoConstraints `json:"video,omitempty"`
	Audio bool              `json:"audio"`
}

func (c Constraints) WantsVideo() bool {
	return c.Video != nil
}

// AcquireFunc produces a live stream for the given constraints
type AcquireFunc func(ctx context.Context, c Constraints) (*MediaStream, error)

// StateReader provides the filter state for the next frame
type StateReader interface {
	State() effects.State
}

// MediaStream groups the tracks delivered to a consumer
type MediaStream struct {
	id string

	mu     sync.RWMutex
	tracks []Track
}

func NewMediaStream(tracks ...Track) *MediaStream {
	return &MediaStream{
		id:     uuid.NewString(),
		tracks: append([]Track(nil), tracks...),
	}
}

func (s *MediaStream) ID() string {
	return s.id
}

func (s *MediaStream) AddTrack(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

func (s *MediaStream) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Track(nil), s.tracks...)
}

// VideoTracks returns the video tracks that can deliver frames
func (s *MediaStream) VideoTracks() []VideoTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []VideoTrack
	for _, t := range s.tracks {
		if vt, ok := t.(VideoTrack); ok && t.Kind() == KindVideo {
			out = append(out, vt)
		}
	}
	return out
}

func (s *MediaStream) AudioTracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == KindAudio {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every track of the stream
func (s *MediaStream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// frameRate picks the source frame rate: track settings, then the request, then the default
func frameRate(settings TrackSettings, c Constraints) float64 {
	if settings.FrameRate > 0 {
		return settings.FrameRate
	}
	if c.Video != nil && c.Video.FrameRate > 0 {
		return c.Video.FrameRate
	}
	return pipeline.DefaultFPS
}
