package effects

import (
	"image"

	"gocv.io/x/gocv"
)

// blockGrid returns the downscaled size for a block edge of b pixels
func blockGrid(width, height, b int) (int, int) {
	b = clampInt(b, MinPixelSize, MaxPixelSize)
	cols := (width + b - 1) / b
	rows := (height + b - 1) / b
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

func (r *Renderer) applyPixelate(dst *gocv.Mat, src gocv.Mat, block int) error {
	width, height := src.Cols(), src.Rows()
	cols, rows := blockGrid(width, height, block)
	if cols == width && rows == height {
		src.CopyTo(dst)
		return nil
	}

	gocv.Resize(src, &r.work, image.Pt(cols, rows), 0, 0, gocv.InterpolationNearestNeighbor)
	gocv.Resize(r.work, dst, image.Pt(width, height), 0, 0, gocv.InterpolationNearestNeighbor)
	return nil
}
