package overlay

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"gocv.io/x/gocv"
)

const (
	shadowAlpha   = 0.2
	pawPrintAlpha = 0.3
	tailSamples   = 16
)

var (
	eyeColor   = rgb(0xFF, 0xD7, 0x00)
	pupilColor = rgb(0x00, 0x00, 0x00)
	noseColor  = rgb(0xFF, 0xB6, 0xC1)
	pawColor   = rgb(0x8B, 0x45, 0x13)
)

// Draw renders every sprite onto dst (BGR). Sprites partly outside the frame
// are clipped.
func (s *Simulator) Draw(dst *gocv.Mat) {
	if dst == nil || dst.Empty() {
		return
	}
	frame := image.Rect(0, 0, dst.Cols(), dst.Rows())
	for _, sp := range s.sprites {
		drawSprite(dst, frame, sp)
	}
}

func drawSprite(dst *gocv.Mat, frame image.Rectangle, sp *Sprite) {
	size := sp.Size
	if size <= 0 || sp.Opacity <= 0 {
		return
	}
	ox, oy := sp.Pos.X, sp.Pos.Y+sp.Bob

	// one sprite of margin around the box covers the tail and the shadow
	box := image.Rect(
		int(math.Floor(ox-size)), int(math.Floor(oy-size)),
		int(math.Ceil(ox+2*size)), int(math.Ceil(oy+2*size)),
	).Intersect(frame)
	if box.Empty() {
		return
	}
	roi := dst.Region(box)
	defer roi.Close()

	p := pen{
		origin: Vec{ox - float64(box.Min.X), oy - float64(box.Min.Y)},
		size:   size,
		flip:   sp.Trajectory == RightToLeft,
	}
	blend(&roi, shadowAlpha*sp.Opacity, p.shadow)
	blend(&roi, sp.Opacity, func(layer *gocv.Mat) { p.cat(layer, sp) })
}

// blend paints onto a copy of roi and mixes it back with the given alpha
func blend(roi *gocv.Mat, alpha float64, paint func(*gocv.Mat)) {
	if alpha >= 1 {
		paint(roi)
		return
	}
	layer := roi.Clone()
	defer layer.Close()
	paint(&layer)
	gocv.AddWeighted(layer, alpha, *roi, 1-alpha, 0, roi)
}

// pen maps sprite-local coordinates, in fractions of the sprite size, to
// pixels. Sprites walking right to left are drawn mirrored.
type pen struct {
	origin Vec
	size   float64
	flip   bool
}

func (p pen) pt(x, y float64) image.Point {
	if p.flip {
		x = 1 - x
	}
	return image.Pt(
		int(math.Round(p.origin.X+x*p.size)),
		int(math.Round(p.origin.Y+y*p.size)),
	)
}

func (p pen) px(f float64) int {
	return max(1, int(math.Round(f*p.size)))
}

func (p pen) ellipse(dst *gocv.Mat, cx, cy, rx, ry float64, c color.RGBA) {
	gocv.Ellipse(dst, p.pt(cx, cy), image.Pt(p.px(rx), p.px(ry)), 0, 0, 360, c, -1)
}

func (p pen) triangle(dst *gocv.Mat, c color.RGBA, a, b, d Vec) {
	pts := gocv.NewPointsVectorFromPoints([][]image.Point{{
		p.pt(a.X, a.Y), p.pt(b.X, b.Y), p.pt(d.X, d.Y),
	}})
	defer pts.Close()
	gocv.FillPoly(dst, pts, c)
}

func (p pen) shadow(dst *gocv.Mat) {
	p.ellipse(dst, 0.5, 0.9, 0.6, 0.1, pupilColor)
}

func (p pen) cat(dst *gocv.Mat, sp *Sprite) {
	body, stripe := sp.Palette.Body, sp.Palette.Stripe

	p.tail(dst, sp.TailPhase, body)

	p.ellipse(dst, 0.5, 0.5, 0.35, 0.25, body)
	p.ellipse(dst, 0.5, 0.3, 0.25, 0.25, body)

	p.triangle(dst, body, Vec{0.35, 0.15}, Vec{0.45, 0.05}, Vec{0.25, 0.05})
	p.triangle(dst, body, Vec{0.65, 0.15}, Vec{0.55, 0.05}, Vec{0.75, 0.05})

	for i := 0; i < 3; i++ {
		y := 0.4 + float64(i)*0.08
		r := image.Rectangle{Min: p.pt(0.2, y), Max: p.pt(0.8, y+0.03)}.Canon()
		gocv.Rectangle(dst, r, stripe, -1)
	}

	for _, dx := range []float64{-0.08, 0.08} {
		p.ellipse(dst, 0.5+dx, 0.25, 0.04, 0.06, eyeColor)
		p.ellipse(dst, 0.5+dx, 0.25, 0.015, 0.03, pupilColor)
	}

	p.triangle(dst, noseColor, Vec{0.5, 0.32}, Vec{0.48, 0.28}, Vec{0.52, 0.28})

	for _, x := range []float64{0.3, 0.45, 0.55, 0.7} {
		p.ellipse(dst, x, 0.7, 0.04, 0.15, body)
	}
}

// tail strokes a cubic Bézier whose control points swing with the phase
func (p pen) tail(dst *gocv.Mat, phase float64, c color.RGBA) {
	swish := math.Sin(phase) * 0.3
	p0 := Vec{0.15, 0.5}
	p1 := Vec{p0.X - 0.2 + swish, p0.Y - 0.2}
	p2 := Vec{p0.X - 0.4 + swish*0.5, p0.Y - 0.4}
	p3 := Vec{p0.X - 0.3 + swish, p0.Y - 0.6}

	curve := make([]image.Point, 0, tailSamples+1)
	for i := 0; i <= tailSamples; i++ {
		b := bezier(p0, p1, p2, p3, float64(i)/tailSamples)
		curve = append(curve, p.pt(b.X, b.Y))
	}
	pts := gocv.NewPointsVectorFromPoints([][]image.Point{curve})
	defer pts.Close()
	gocv.Polylines(dst, pts, false, c, p.px(0.08))
}

func bezier(p0, p1, p2, p3 Vec, t float64) Vec {
	u := 1 - t
	return p0.Scale(u * u * u).
		Add(p1.Scale(3 * u * u * t)).
		Add(p2.Scale(3 * u * t * t)).
		Add(p3.Scale(t * t * t))
}

// DrawPawPrint stamps a faint paw print at a random spot of dst
func DrawPawPrint(dst *gocv.Mat, rng *rand.Rand) {
	if dst == nil || dst.Empty() || rng == nil {
		return
	}
	x := rng.Float64() * float64(dst.Cols())
	y := rng.Float64() * float64(dst.Rows())
	size := 8 + rng.Float64()*12

	p := pen{origin: Vec{x, y}, size: size}
	blend(dst, pawPrintAlpha, func(layer *gocv.Mat) {
		p.ellipse(layer, 0, 0, 0.4, 0.3, pawColor)
		for _, toe := range []Vec{{-0.3, -0.4}, {0, -0.5}, {0.3, -0.4}} {
			p.ellipse(layer, toe.X, toe.Y, 0.15, 0.1, pawColor)
		}
	})
}
