package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// maxDimension bounds accepted frames to keep allocations sane
const maxDimension = 16384

var (
	// ErrNoFrame is returned by a Source that has nothing to deliver yet
	ErrNoFrame = errors.New("no frame available")
	// ErrInvalidFrame is returned for frames that cannot be normalised to BGR
	ErrInvalidFrame = errors.New("invalid frame")
)

// normalize converts a decoded frame of 1, 3 or 4 channels into 8-bit BGR
func normalize(dst *gocv.Mat, src gocv.Mat) error {
	if src.Empty() || src.Cols() <= 0 || src.Rows() <= 0 {
		return fmt.Errorf("%w: empty", ErrInvalidFrame)
	}
	if src.Cols() > maxDimension || src.Rows() > maxDimension {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrInvalidFrame, src.Cols(), src.Rows(), maxDimension)
	}

	switch src.Channels() {
	case 1:
		gocv.CvtColor(src, dst, gocv.ColorGrayToBGR)
	case 3:
		src.CopyTo(dst)
	case 4:
		gocv.CvtColor(src, dst, gocv.ColorBGRAToBGR)
	default:
		return fmt.Errorf("%w: unsupported channel count %d", ErrInvalidFrame, src.Channels())
	}

	if dst.Type() != gocv.MatTypeCV8UC3 {
		dst.ConvertTo(dst, gocv.MatTypeCV8UC3)
	}
	return nil
}

// frameBuffer holds the presented frame and the input it was rendered from.
// Readers never observe a partially written frame.
type frameBuffer struct {
	mu            sync.RWMutex
	presented     gocv.Mat
	input         gocv.Mat
	width, height int
}

func newFrameBuffer() *frameBuffer {
	return &frameBuffer{
		presented: gocv.NewMat(),
		input:     gocv.NewMat(),
	}
}

// present swaps the freshly rendered work buffer in and adopts its size.
// work receives the previous presented frame for reuse. It reports whether
// the presented size changed.
func (f *frameBuffer) present(work *gocv.Mat, input gocv.Mat) (resized bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	width, height := work.Cols(), work.Rows()
	resized = width != f.width || height != f.height
	f.presented, *work = *work, f.presented
	input.CopyTo(&f.input)
	f.width, f.height = width, height
	return resized
}

func (f *frameBuffer) copyPresented(dst *gocv.Mat) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.presented.Empty() {
		return false
	}
	f.presented.CopyTo(dst)
	return true
}

func (f *frameBuffer) copyInput(dst *gocv.Mat) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.input.Empty() {
		return false
	}
	f.input.CopyTo(dst)
	return true
}

func (f *frameBuffer) size() (int, int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.width, f.height
}

func (f *frameBuffer) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presented.Close()
	f.input.Close()
	f.presented = gocv.NewMat()
	f.input = gocv.NewMat()
	f.width, f.height = 0, 0
}

func blank(width, height int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)
}
