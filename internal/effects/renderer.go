// Per-session effect renderer with enum dispatch
package effects

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects/internal/overlay"
)

var (
	// ErrEmptyFrame is returned when the source frame has no pixels
	ErrEmptyFrame = errors.New("empty frame")
	// ErrUnsupportedFrame is returned for anything other than 8-bit BGR
	ErrUnsupportedFrame = errors.New("unsupported frame type")
	// ErrSegmentationUnavailable is returned when no segmenter is configured
	ErrSegmentationUnavailable = errors.New("segmentation unavailable")
)

// Renderer applies the active effect of a State to frames. It owns the offscreen
// buffers some effects need, so one Renderer belongs to exactly one session and
// must not be shared between pipelines.
type Renderer struct {
	logger    *logrus.Logger
	rng       *rand.Rand
	now       func() time.Time
	segmenter Segmenter

	work gocv.Mat // pixelate downscale target
	blur gocv.Mat // background blur layer

	mask       maskCache
	grain      grainState
	vignette   vignetteCache
	sim        *overlay.Simulator
	overlayCfg overlay.Config
	lastTick   time.Time

	segmentationWarned bool
}

// Option configures a Renderer
type Option func(*Renderer)

// WithLogger sets the logger used for degraded-path diagnostics
func WithLogger(logger *logrus.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// WithRand sets the random source for grain, sprites and paw prints
func WithRand(rng *rand.Rand) Option {
	return func(r *Renderer) {
		r.rng = rng
	}
}

// WithClock overrides the time source used by animated effects
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		r.now = now
	}
}

// WithSegmenter enables model-based background masks
func WithSegmenter(s Segmenter) Option {
	return func(r *Renderer) {
		r.segmenter = s
	}
}

// WithOverlayConfig sets the sprite population policy
func WithOverlayConfig(cfg overlay.Config) Option {
	return func(r *Renderer) {
		r.overlayCfg = cfg
	}
}

// NewRenderer creates a renderer with its own buffers
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		logger:     logrus.StandardLogger(),
		now:        time.Now,
		overlayCfg: overlay.DefaultConfig(),
		work:       gocv.NewMat(),
		blur:       gocv.NewMat(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	r.sim = overlay.New(r.overlayCfg, r.rng)
	return r
}

// Render writes the effect selected by st applied to src into dst.
// dst is reallocated by the underlying operations when its size differs.
func (r *Renderer) Render(dst *gocv.Mat, src gocv.Mat, st State) error {
	if err := validateFrame(src); err != nil {
		return err
	}
	if !st.Enabled {
		src.CopyTo(dst)
		return nil
	}

	p := st.Params.Normalize()
	switch st.Effect {
	case KindGrayscale:
		return applyGrayscale(dst, src)
	case KindBlur:
		return applyBlur(dst, src, p.BlurRadius)
	case KindPixelate:
		return r.applyPixelate(dst, src, p.PixelSize)
	case KindBackgroundBlur:
		return r.applyBackgroundBlur(dst, src, p)
	case KindVintage:
		return r.applyVintage(dst, src, p.VintageIntensity)
	case KindEdgeEnhance:
		return applyEdgeEnhance(dst, src, p.EdgeIntensity)
	case KindOverlay:
		return r.applyOverlay(dst, src, p)
	case KindMirror:
		return applyMirror(dst, src)
	default:
		return applyNone(dst, src)
	}
}

// Close releases the offscreen buffers and the segmenter
func (r *Renderer) Close() error {
	r.work.Close()
	r.blur.Close()
	if r.segmenter != nil {
		return r.segmenter.Close()
	}
	return nil
}

func validateFrame(src gocv.Mat) error {
	if src.Empty() || src.Rows() <= 0 || src.Cols() <= 0 {
		return ErrEmptyFrame
	}
	if src.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("%w: %v", ErrUnsupportedFrame, src.Type())
	}
	return nil
}

// writeBGR copies raw BGR pixels into dst
func writeBGR(dst *gocv.Mat, rows, cols int, data []byte) error {
	m, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC3, data)
	if err != nil {
		return fmt.Errorf("wrap pixels: %w", err)
	}
	defer m.Close()
	m.CopyTo(dst)
	return nil
}
