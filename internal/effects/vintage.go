// Vintage film look: sepia tone curve, animated grain and vignette
package effects

import (
	"math"
	"time"

	"gocv.io/x/gocv"
)

const (
	grainRefresh  = 100 * time.Millisecond
	grainAlpha    = 0.15
	vignetteAlpha = 0.3
	vignetteReach = 0.7
)

type grainState struct {
	width, height int
	noise         []uint8
	updated       time.Time
}

// refresh regenerates the grain when it is stale or the frame size changed
func (g *grainState) refresh(width, height int, now time.Time, next func() uint8) []uint8 {
	resized := g.width != width || g.height != height
	if !resized && g.noise != nil && now.Sub(g.updated) <= grainRefresh {
		return g.noise
	}
	if resized || len(g.noise) != width*height {
		g.noise = make([]uint8, width*height)
		g.width, g.height = width, height
	}
	for i := range g.noise {
		g.noise[i] = next()
	}
	g.updated = now
	return g.noise
}

type vignetteCache struct {
	width, height int
	falloff       []float32 // distance / reach, clamped to 1
}

func (v *vignetteCache) get(width, height int) []float32 {
	if v.width == width && v.height == height && v.falloff != nil {
		return v.falloff
	}
	v.width, v.height = width, height
	v.falloff = make([]float32, width*height)

	cx, cy := float64(width)/2, float64(height)/2
	reach := math.Max(float64(width), float64(height)) * vignetteReach
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy) / reach
			v.falloff[y*width+x] = float32(math.Min(d, 1))
		}
	}
	return v.falloff
}

// sepiaKernel returns the CSS sepia(amount) matrix in BGR order
func sepiaKernel(amount float64) gocv.Mat {
	k := 1 - amount
	rows := [3][3]float64{
		{0.131 + 0.869*k, 0.534 - 0.534*k, 0.272 - 0.272*k}, // B'
		{0.168 - 0.168*k, 0.686 + 0.314*k, 0.349 - 0.349*k}, // G'
		{0.189 - 0.189*k, 0.769 - 0.769*k, 0.393 + 0.607*k}, // R'
	}
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.SetFloatAt(i, j, float32(rows[i][j]))
		}
	}
	return m
}

func (r *Renderer) applyVintage(dst *gocv.Mat, src gocv.Mat, intensity float64) error {
	a := intensity / 100
	width, height := src.Cols(), src.Rows()

	kernel := sepiaKernel(a)
	defer kernel.Close()
	toned := gocv.NewMat()
	defer toned.Close()
	gocv.Transform(src, &toned, kernel)

	contrast := 0.9 + 0.2*a
	brightness := 0.9 + 0.1*a
	toned.ConvertToWithParams(&toned, gocv.MatTypeCV8UC3,
		float32(contrast*brightness), float32(127.5*(1-contrast)*brightness))

	noise := r.grain.refresh(width, height, r.now(), func() uint8 { return uint8(r.rng.Intn(256)) })
	falloff := r.vignette.get(width, height)
	grain := a * grainAlpha
	vignette := a * vignetteAlpha

	data := toned.ToBytes()
	for i := 0; i < width*height; i++ {
		// multiply-blended grain then a black radial gradient on top
		scale := (1 - grain + grain*float64(noise[i])/255) * (1 - vignette*float64(falloff[i]))
		for c := 0; c < 3; c++ {
			j := i*3 + c
			data[j] = clampByte(float64(data[j]) * scale)
		}
	}
	return writeBGR(dst, height, width, data)
}
