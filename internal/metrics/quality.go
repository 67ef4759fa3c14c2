// Frame quality metrics comparing a rendered frame with its source
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

var (
	ErrEmptyImage        = errors.New("empty images")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Metric compares an original frame with a processed one
type Metric interface {
	Calculate(original, processed gocv.Mat) (float64, error)
	Name() string
	Description() string
	Range() (float64, float64)
	HigherIsCloser() bool
}

// Info describes a registered metric
type Info struct {
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Range          [2]float64 `json:"range"`
	HigherIsCloser bool       `json:"higher_is_closer"`
}

// Evaluator manages and calculates multiple metrics
type Evaluator struct {
	metrics map[string]Metric
}

func NewEvaluator() *Evaluator {
	e := &Evaluator{
		metrics: make(map[string]Metric),
	}
	e.Register("psnr", PSNR{})
	e.Register("ssim", SSIM{})
	e.Register("mse", MSE{})
	return e
}

func (e *Evaluator) Register(key string, metric Metric) {
	e.metrics[key] = metric
}

// Keys returns the registered metric keys in sorted order
func (e *Evaluator) Keys() []string {
	keys := make([]string, 0, len(e.metrics))
	for k := range e.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Evaluator) Calculate(key string, original, processed gocv.Mat) (float64, error) {
	metric, ok := e.metrics[key]
	if !ok {
		return 0, fmt.Errorf("metric not found: %s", key)
	}
	return metric.Calculate(original, processed)
}

// CalculateAll returns every metric that could be computed. The first failure
// is returned alongside the partial result.
func (e *Evaluator) CalculateAll(original, processed gocv.Mat) (map[string]float64, error) {
	results := make(map[string]float64, len(e.metrics))
	var firstErr error
	for _, key := range e.Keys() {
		v, err := e.metrics[key].Calculate(original, processed)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", key, err)
			}
			continue
		}
		results[key] = v
	}
	return results, firstErr
}

func (e *Evaluator) Info() map[string]Info {
	info := make(map[string]Info, len(e.metrics))
	for key, m := range e.metrics {
		lo, hi := m.Range()
		info[key] = Info{
			Name:           m.Name(),
			Description:    m.Description(),
			Range:          [2]float64{lo, hi},
			HigherIsCloser: m.HigherIsCloser(),
		}
	}
	return info
}

// grayPair validates both frames and returns single channel views. release
// closes whatever had to be converted.
func grayPair(original, processed gocv.Mat) (a, b gocv.Mat, release func(), err error) {
	if original.Empty() || processed.Empty() {
		return a, b, nil, ErrEmptyImage
	}
	if original.Rows() != processed.Rows() || original.Cols() != processed.Cols() {
		return a, b, nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch,
			original.Cols(), original.Rows(), processed.Cols(), processed.Rows())
	}

	var owned []gocv.Mat
	toGray := func(m gocv.Mat) gocv.Mat {
		if m.Channels() == 1 {
			return m
		}
		g := gocv.NewMat()
		gocv.CvtColor(m, &g, gocv.ColorBGRToGray)
		owned = append(owned, g)
		return g
	}
	a, b = toGray(original), toGray(processed)
	return a, b, func() {
		for _, m := range owned {
			m.Close()
		}
	}, nil
}

// PSNR is the peak signal-to-noise ratio, capped at 100 for identical frames
type PSNR struct{}

func (PSNR) Calculate(original, processed gocv.Mat) (float64, error) {
	mse, err := MSE{}.Calculate(original, processed)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return 100, nil
	}
	return math.Min(100, 10*math.Log10(255*255/mse)), nil
}

func (PSNR) Name() string              { return "PSNR" }
func (PSNR) Description() string       { return "Peak Signal-to-Noise Ratio" }
func (PSNR) Range() (float64, float64) { return 0, 100 }
func (PSNR) HigherIsCloser() bool      { return true }

// SSIM is a single-window structural similarity index
type SSIM struct{}

func (SSIM) Calculate(original, processed gocv.Mat) (float64, error) {
	a, b, release, err := grayPair(original, processed)
	if err != nil {
		return 0, err
	}
	defer release()

	f1, f2 := gocv.NewMat(), gocv.NewMat()
	defer f1.Close()
	defer f2.Close()
	a.ConvertTo(&f1, gocv.MatTypeCV32F)
	b.ConvertTo(&f2, gocv.MatTypeCV32F)

	const c1, c2 = 6.5025, 58.5225

	mu1 := f1.Mean().Val1
	mu2 := f2.Mean().Val1

	f1Sq, f2Sq, f1f2 := gocv.NewMat(), gocv.NewMat(), gocv.NewMat()
	defer f1Sq.Close()
	defer f2Sq.Close()
	defer f1f2.Close()
	gocv.Multiply(f1, f1, &f1Sq)
	gocv.Multiply(f2, f2, &f2Sq)
	gocv.Multiply(f1, f2, &f1f2)

	sigma1Sq := f1Sq.Mean().Val1 - mu1*mu1
	sigma2Sq := f2Sq.Mean().Val1 - mu2*mu2
	sigma12 := f1f2.Mean().Val1 - mu1*mu2

	num := (2*mu1*mu2 + c1) * (2*sigma12 + c2)
	den := (mu1*mu1 + mu2*mu2 + c1) * (sigma1Sq + sigma2Sq + c2)
	if den == 0 {
		return 1, nil
	}
	return num / den, nil
}

func (SSIM) Name() string              { return "SSIM" }
func (SSIM) Description() string       { return "Structural Similarity Index" }
func (SSIM) Range() (float64, float64) { return 0, 1 }
func (SSIM) HigherIsCloser() bool      { return true }

// MSE is the mean squared luminance difference
type MSE struct{}

func (MSE) Calculate(original, processed gocv.Mat) (float64, error) {
	a, b, release, err := grayPair(original, processed)
	if err != nil {
		return 0, err
	}
	defer release()

	fa, fb := gocv.NewMat(), gocv.NewMat()
	defer fa.Close()
	defer fb.Close()
	a.ConvertTo(&fa, gocv.MatTypeCV32F)
	b.ConvertTo(&fb, gocv.MatTypeCV32F)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(fa, fb, &diff)

	diffSq := gocv.NewMat()
	defer diffSq.Close()
	gocv.Multiply(diff, diff, &diffSq)
	return diffSq.Mean().Val1, nil
}

func (MSE) Name() string              { return "MSE" }
func (MSE) Description() string       { return "Mean Squared Error" }
func (MSE) Range() (float64, float64) { return 0, 65025 }
func (MSE) HigherIsCloser() bool      { return false }
