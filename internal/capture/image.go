package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects/internal/stream"
)

var supportedFormats = []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp"}

// ImageTrack serves the same still image as every frame
type ImageTrack struct {
	*stream.TrackBase
	mu    sync.RWMutex
	frame gocv.Mat
}

func (t *ImageTrack) ReadFrame(dst *gocv.Mat) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.IsEnded() {
		return stream.ErrTrackEnded
	}
	t.frame.CopyTo(dst)
	return nil
}

func (t *ImageTrack) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frame.Close()
}

// LoadImage reads a still image as BGR
func LoadImage(path string) (gocv.Mat, error) {
	if !isSupportedImageFormat(path) {
		return gocv.NewMat(), fmt.Errorf("unsupported image format: %s", path)
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("failed to load image: %s", path)
	}
	return mat, nil
}

// NewImageAcquirer returns an acquisition function that serves a still image
// as a video track. It is used for demos and when no camera is present.
func NewImageAcquirer(path string, logger *logrus.Logger) stream.AcquireFunc {
	return func(ctx context.Context, c stream.Constraints) (*stream.MediaStream, error) {
		if !c.WantsVideo() && !c.Audio {
			return nil, ErrNothingRequested
		}
		if !c.WantsVideo() {
			return stream.NewMediaStream(), nil
		}

		mat, err := LoadImage(path)
		if err != nil {
			return nil, err
		}

		fps := 0.0
		if c.Video != nil {
			fps = c.Video.FrameRate
		}
		track := &ImageTrack{
			TrackBase: stream.NewTrackBase(stream.KindVideo, stream.TrackSettings{
				DeviceID:  path,
				Width:     mat.Cols(),
				Height:    mat.Rows(),
				FrameRate: fps,
			}),
			frame: mat,
		}
		track.OnStop(track.release)

		logger.WithFields(logrus.Fields{
			"function": "NewImageAcquirer",
			"path":     path,
			"width":    mat.Cols(),
			"height":   mat.Rows(),
			"channels": mat.Channels(),
		}).Info("Image loaded successfully")

		return stream.NewMediaStream(track), nil
	}
}

func isSupportedImageFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// SaveImage writes a frame to disk; the format follows the extension
func SaveImage(mat gocv.Mat, path string) error {
	if mat.Empty() {
		return fmt.Errorf("cannot save empty image")
	}
	if !isSupportedImageFormat(path) {
		return fmt.Errorf("unsupported image format: %s", path)
	}
	if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("failed to save image: %s", path)
	}
	return nil
}
