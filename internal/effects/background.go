// Background blur with soft foreground masks
package effects

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

const (
	maskCenterX    = 0.5
	maskCenterY    = 0.35
	maskRadiusX    = 0.25
	maskRadiusY    = 0.4
	fallbackFactor = 0.3
	fallbackMax    = 5.0
)

var (
	badgeActive   = "BG Blur Active"
	badgeFallback = "Simple Mode"
	badgeGreen    = color.RGBA{R: 0x4C, G: 0xAF, B: 0x50, A: 0xFF}
)

// maskCache keeps the ellipse mask for the last seen frame size
type maskCache struct {
	width, height int
	weights       []float32
}

func (c *maskCache) ellipse(width, height int) []float32 {
	if c.width == width && c.height == height && c.weights != nil {
		return c.weights
	}
	c.width, c.height = width, height
	c.weights = ellipseMask(width, height)
	return c.weights
}

// ellipseMask builds a [0,1] foreground weight per pixel centred slightly above
// the frame centre, with a soft rim between 1.0 and 1.3 ellipse radii.
func ellipseMask(width, height int) []float32 {
	weights := make([]float32, width*height)
	cx := float64(width) * maskCenterX
	cy := float64(height) * maskCenterY
	rx := math.Max(float64(width)*maskRadiusX, 0.5)
	ry := math.Max(float64(height)*maskRadiusY, 0.5)

	for y := 0; y < height; y++ {
		dy := (float64(y) - cy) / ry
		for x := 0; x < width; x++ {
			dx := (float64(x) - cx) / rx
			d := math.Sqrt(dx*dx + dy*dy)

			var v float64
			switch {
			case d < 1.0:
				v = 255 * (1.2 - d)
			case d < 1.3:
				v = 255 * (1.3 - d) * 3
			}
			weights[y*width+x] = float32(math.Min(255, math.Max(0, v)) / 255)
		}
	}
	return weights
}

func (r *Renderer) applyBackgroundBlur(dst *gocv.Mat, src gocv.Mat, p Params) error {
	sigma := math.Max(1, p.BackgroundBlur)

	weights, err := r.foregroundMask(src, p.MaskSource)
	if err != nil {
		r.warnSegmentation(err)
		gaussian(dst, src, math.Min(sigma*fallbackFactor, fallbackMax))
		drawBadge(dst, badgeFallback)
		return nil
	}

	gaussian(&r.blur, src, sigma)
	if err := composite(dst, src, r.blur, weights); err != nil {
		return err
	}
	drawBadge(dst, badgeActive)
	return nil
}

func (r *Renderer) foregroundMask(src gocv.Mat, source MaskSource) ([]float32, error) {
	width, height := src.Cols(), src.Rows()
	if source != MaskSegmentation {
		return r.mask.ellipse(width, height), nil
	}
	if r.segmenter == nil {
		return nil, ErrSegmentationUnavailable
	}

	mask := gocv.NewMat()
	defer mask.Close()
	if err := r.segmenter.Segment(src, &mask); err != nil {
		return nil, fmt.Errorf("segment frame: %w", err)
	}
	if mask.Rows() != height || mask.Cols() != width || mask.Type() != gocv.MatTypeCV8U {
		return nil, fmt.Errorf("segmenter returned %dx%d %v mask for %dx%d frame",
			mask.Cols(), mask.Rows(), mask.Type(), width, height)
	}

	raw := mask.ToBytes()
	weights := make([]float32, len(raw))
	for i, v := range raw {
		weights[i] = float32(v) / 255
	}
	return weights, nil
}

func (r *Renderer) warnSegmentation(err error) {
	if r.segmentationWarned {
		return
	}
	r.segmentationWarned = true
	r.logger.WithError(err).Warn("Background blur degraded to uniform blur")
}

// composite blends fg over bg with per-pixel foreground weights
func composite(dst *gocv.Mat, fg, bg gocv.Mat, weights []float32) error {
	width, height := fg.Cols(), fg.Rows()
	if bg.Cols() != width || bg.Rows() != height {
		return fmt.Errorf("composite size mismatch: %dx%d vs %dx%d", width, height, bg.Cols(), bg.Rows())
	}
	if len(weights) != width*height {
		return fmt.Errorf("mask has %d weights for %d pixels", len(weights), width*height)
	}

	fgData := fg.ToBytes()
	bgData := bg.ToBytes()
	out := make([]byte, len(fgData))
	for i, m := range weights {
		w := float64(m)
		for c := 0; c < 3; c++ {
			j := i*3 + c
			out[j] = clampByte(float64(fgData[j])*w + float64(bgData[j])*(1-w))
		}
	}
	return writeBGR(dst, height, width, out)
}

// drawBadge paints a small status label in the top right corner
func drawBadge(dst *gocv.Mat, text string) {
	const badgeW, badgeH, margin = 100, 20, 10
	if dst.Cols() < badgeW+margin || dst.Rows() < badgeH+margin {
		return
	}

	rect := image.Rect(dst.Cols()-badgeW, margin, dst.Cols()-margin, margin+badgeH)
	roi := dst.Region(rect)
	roi.ConvertToWithParams(&roi, gocv.MatTypeCV8UC3, 0.4, 0)
	roi.Close()

	gocv.PutText(dst, text, image.Pt(rect.Min.X+4, rect.Max.Y-6), gocv.FontHersheySimplex, 0.35, badgeGreen, 1)
}
