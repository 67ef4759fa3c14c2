package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// ErrTrackEnded is returned when reading from a stopped track
var ErrTrackEnded = errors.New("track ended")

// TrackKind is the media type of a track
type TrackKind string

const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

// TrackSettings are the effective properties of a live track
type TrackSettings struct {
	DeviceID  string  `json:"device_id,omitempty"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
}

// Track is one media track of a stream
type Track interface {
	ID() string
	Kind() TrackKind
	Settings() TrackSettings
	// Stop ends the track. Stopping twice is a no-op.
	Stop()
	// Ended is closed once the track has stopped
	Ended() <-chan struct{}
}

// VideoTrack is a track whose current frame can be read as BGR
type VideoTrack interface {
	Track
	ReadFrame(dst *gocv.Mat) error
}

// Player is implemented by tracks that need to be started before frames flow
type Player interface {
	Play(ctx context.Context) error
}

// TrackBase implements the lifecycle part of Track. Embed it and add ReadFrame
// to get a VideoTrack.
type TrackBase struct {
	id       string
	kind     TrackKind
	settings TrackSettings

	mu     sync.Mutex
	ended  chan struct{}
	onStop []func()
}

func NewTrackBase(kind TrackKind, settings TrackSettings) *TrackBase {
	return &TrackBase{
		id:       uuid.NewString(),
		kind:     kind,
		settings: settings,
		ended:    make(chan struct{}),
	}
}

func (t *TrackBase) ID() string              { return t.id }
func (t *TrackBase) Kind() TrackKind         { return t.kind }
func (t *TrackBase) Settings() TrackSettings { return t.settings }
func (t *TrackBase) Ended() <-chan struct{}  { return t.ended }

// IsEnded reports whether Stop has been called
func (t *TrackBase) IsEnded() bool {
	select {
	case <-t.ended:
		return true
	default:
		return false
	}
}

// OnStop registers fn to run once when the track stops. If the track has
// already stopped fn runs immediately.
func (t *TrackBase) OnStop(fn func()) {
	t.mu.Lock()
	if t.IsEnded() {
		t.mu.Unlock()
		fn()
		return
	}
	t.onStop = append(t.onStop, fn)
	t.mu.Unlock()
}

func (t *TrackBase) Stop() {
	t.mu.Lock()
	if t.IsEnded() {
		t.mu.Unlock()
		return
	}
	close(t.ended)
	fns := t.onStop
	t.onStop = nil
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
