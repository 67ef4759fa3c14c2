package effects

import (
	"image"

	"gocv.io/x/gocv"
)

func applyNone(dst *gocv.Mat, src gocv.Mat) error {
	src.CopyTo(dst)
	return nil
}

func applyGrayscale(dst *gocv.Mat, src gocv.Mat) error {
	gray := gocv.NewMat()
	defer gray.Close()

	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	gocv.CvtColor(gray, dst, gocv.ColorGrayToBGR)
	return nil
}

// applyBlur treats radius as the Gaussian sigma, the way a CSS blur() does
func applyBlur(dst *gocv.Mat, src gocv.Mat, radius float64) error {
	if radius <= 0 {
		src.CopyTo(dst)
		return nil
	}
	gaussian(dst, src, radius)
	return nil
}

func gaussian(dst *gocv.Mat, src gocv.Mat, sigma float64) {
	gocv.GaussianBlur(src, dst, image.Pt(0, 0), sigma, sigma, gocv.BorderReflect101)
}

func applyMirror(dst *gocv.Mat, src gocv.Mat) error {
	gocv.Flip(src, dst, 1)
	return nil
}
