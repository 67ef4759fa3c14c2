// Package capture provides acquisition entry points backed by gocv: a live
// camera and a still image. Both return stream.AcquireFunc values that the
// stream adapter can wrap.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects/internal/config"
	"camera-effects/internal/pipeline"
	"camera-effects/internal/stream"
)

var (
	ErrNothingRequested = errors.New("neither audio nor video requested")
	ErrNoFirstFrame     = errors.New("camera delivered no frame")
)

// consecutive failed reads before the device is considered gone
const maxReadFailures = 50

// frameReader is the part of gocv.VideoCapture the camera track uses
type frameReader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// CameraTrack is a live video track. A background reader keeps the latest
// decoded frame; ReadFrame copies it.
type CameraTrack struct {
	*stream.TrackBase
	reader  frameReader
	timeout time.Duration
	logger  *logrus.Logger

	mu      sync.RWMutex
	latest  gocv.Mat
	hasData bool
	started bool

	first     chan struct{}
	firstOnce sync.Once
	done      chan struct{}
}

func newCameraTrack(reader frameReader, settings stream.TrackSettings, timeout time.Duration, logger *logrus.Logger) *CameraTrack {
	t := &CameraTrack{
		TrackBase: stream.NewTrackBase(stream.KindVideo, settings),
		reader:    reader,
		timeout:   timeout,
		logger:    logger,
		latest:    gocv.NewMat(),
		first:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	t.OnStop(t.release)
	return t
}

// Play starts the reader and waits for the first frame
func (t *CameraTrack) Play(ctx context.Context) error {
	t.mu.Lock()
	if t.IsEnded() {
		t.mu.Unlock()
		return stream.ErrTrackEnded
	}
	if !t.started {
		t.started = true
		go t.readLoop()
	}
	t.mu.Unlock()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case <-t.first:
		return nil
	case <-t.Ended():
		return stream.ErrTrackEnded
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w within %v", ErrNoFirstFrame, t.timeout)
	}
}

func (t *CameraTrack) ReadFrame(dst *gocv.Mat) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.IsEnded() {
		return stream.ErrTrackEnded
	}
	if !t.hasData {
		return pipeline.ErrNoFrame
	}
	t.latest.CopyTo(dst)
	return nil
}

func (t *CameraTrack) readLoop() {
	defer close(t.done)
	defer t.reader.Close()

	buf := gocv.NewMat()
	defer buf.Close()

	failures := 0
	for !t.IsEnded() {
		if !t.reader.Read(&buf) || buf.Empty() {
			failures++
			if failures >= maxReadFailures {
				t.logger.WithFields(logrus.Fields{
					"function": "CameraTrack.readLoop",
					"track":    t.ID(),
					"failures": failures,
				}).Warn("Camera stopped delivering frames, ending track")
				go t.Stop()
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		failures = 0

		t.mu.Lock()
		if t.IsEnded() {
			t.mu.Unlock()
			return
		}
		t.latest, buf = buf, t.latest
		t.hasData = true
		t.mu.Unlock()

		t.firstOnce.Do(func() { close(t.first) })
	}
}

// release runs once when the track stops
func (t *CameraTrack) release() {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()

	if started {
		<-t.done
	} else if err := t.reader.Close(); err != nil {
		t.logger.WithFields(logrus.Fields{
			"function": "CameraTrack.release",
			"error":    err.Error(),
		}).Debug("Failed to close camera")
	}

	t.mu.Lock()
	t.latest.Close()
	t.hasData = false
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"function": "CameraTrack.release",
		"track":    t.ID(),
	}).Info("Camera released")
}

// NewCameraAcquirer opens the configured camera for every video request.
// Requested constraints override the configured size and frame rate.
func NewCameraAcquirer(cfg config.CameraConfig, logger *logrus.Logger) stream.AcquireFunc {
	return func(ctx context.Context, c stream.Constraints) (*stream.MediaStream, error) {
		if !c.WantsVideo() && !c.Audio {
			return nil, ErrNothingRequested
		}
		if !c.WantsVideo() {
			// no audio capture here; the stream is empty
			return stream.NewMediaStream(), nil
		}

		device := cfg.Device
		width, height, fps := cfg.Width, cfg.Height, cfg.FrameRate
		if v := c.Video; v != nil {
			if v.DeviceID != "" {
				device = v.DeviceID
			}
			if v.Width > 0 {
				width = v.Width
			}
			if v.Height > 0 {
				height = v.Height
			}
			if v.FrameRate > 0 {
				fps = v.FrameRate
			}
		}

		vc, err := openDevice(device)
		if err != nil {
			return nil, err
		}
		if width > 0 {
			vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		}
		if height > 0 {
			vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
		}
		if fps > 0 {
			vc.Set(gocv.VideoCaptureFPS, fps)
		}

		settings := stream.TrackSettings{
			DeviceID:  device,
			Width:     int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:    int(vc.Get(gocv.VideoCaptureFrameHeight)),
			FrameRate: vc.Get(gocv.VideoCaptureFPS),
		}
		track := newCameraTrack(vc, settings, cfg.FirstFrameTimeout, logger)

		logger.WithFields(logrus.Fields{
			"function": "NewCameraAcquirer",
			"device":   device,
			"width":    settings.Width,
			"height":   settings.Height,
			"fps":      settings.FrameRate,
			"track":    track.ID(),
		}).Info("Camera opened")

		return stream.NewMediaStream(track), nil
	}
}

// openDevice accepts a device index or a path/URL
func openDevice(device string) (*gocv.VideoCapture, error) {
	if id, err := strconv.Atoi(device); err == nil {
		vc, err := gocv.VideoCaptureDevice(id)
		if err != nil {
			return nil, fmt.Errorf("failed to open camera %d: %w", id, err)
		}
		return vc, nil
	}
	vc, err := gocv.VideoCaptureFile(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %q: %w", device, err)
	}
	return vc, nil
}
