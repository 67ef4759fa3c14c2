package effects

import (
	"gocv.io/x/gocv"
)

// edgeGain is how much a full-strength edge brightens a channel at intensity 100
const edgeGain = 100.0

// applyEdgeEnhance adds the Sobel gradient magnitude of the luminance to every
// channel. The one-pixel border has no full 3x3 neighbourhood and is copied as is.
func applyEdgeEnhance(dst *gocv.Mat, src gocv.Mat, intensity float64) error {
	width, height := src.Cols(), src.Rows()
	a := intensity / 100
	if a <= 0 || width < 3 || height < 3 {
		src.CopyTo(dst)
		return nil
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()
	gocv.Sobel(gray, &gx, gocv.MatTypeCV32F, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gy, gocv.MatTypeCV32F, 0, 1, 3, 1, 0, gocv.BorderDefault)

	mag := gocv.NewMat()
	defer mag.Close()
	gocv.Magnitude(gx, gy, &mag)

	// saturating conversion gives min(255, |G|)
	edges := gocv.NewMat()
	defer edges.Close()
	mag.ConvertTo(&edges, gocv.MatTypeCV8U)

	edge := edges.ToBytes()
	data := src.ToBytes()
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			if edge[i] == 0 {
				continue
			}
			boost := float64(edge[i]) / 255 * a * edgeGain
			for c := 0; c < 3; c++ {
				j := i*3 + c
				data[j] = clampByte(float64(data[j]) + boost)
			}
		}
	}
	return writeBGR(dst, height, width, data)
}
