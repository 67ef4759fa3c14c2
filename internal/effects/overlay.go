package effects

import (
	"image"
	"time"

	"gocv.io/x/gocv"

	"camera-effects/internal/overlay"
)

const (
	// maxOverlayStep caps the simulated time between two frames so a stalled
	// pipeline does not teleport the sprites.
	maxOverlayStep = 250 * time.Millisecond
	pawPrintChance = 0.001
)

func (r *Renderer) applyOverlay(dst *gocv.Mat, src gocv.Mat, p Params) error {
	src.CopyTo(dst)

	now := r.now()
	var dt time.Duration
	if !r.lastTick.IsZero() {
		dt = now.Sub(r.lastTick)
	}
	r.lastTick = now
	if dt < 0 {
		dt = 0
	}
	if dt > maxOverlayStep {
		dt = maxOverlayStep
	}

	if r.sim.AlwaysVisible() != p.AlwaysVisible {
		r.sim.SetAlwaysVisible(p.AlwaysVisible)
	}
	r.sim.Update(image.Pt(src.Cols(), src.Rows()), dt, p.OverlaySpeed, p.OverlaySize)
	r.sim.Draw(dst)

	if r.rng.Float64() < pawPrintChance {
		overlay.DrawPawPrint(dst, r.rng)
	}
	return nil
}
