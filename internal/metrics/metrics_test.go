package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func solid(rows, cols int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func TestEvaluator_IdenticalFrames(t *testing.T) {
	a := solid(16, 16, 90)
	defer a.Close()
	b := solid(16, 16, 90)
	defer b.Close()

	res, err := NewEvaluator().CalculateAll(a, b)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res["psnr"])
	assert.InDelta(t, 1.0, res["ssim"], 1e-9)
	assert.Equal(t, 0.0, res["mse"])
}

func TestEvaluator_DifferentFrames(t *testing.T) {
	a := solid(16, 16, 100)
	defer a.Close()
	b := solid(16, 16, 110)
	defer b.Close()

	e := NewEvaluator()
	mse, err := e.Calculate("mse", a, b)
	require.NoError(t, err)
	assert.InDelta(t, 100, mse, 1e-6)

	psnr, err := e.Calculate("psnr", a, b)
	require.NoError(t, err)
	// 10 * log10(255^2 / 100)
	assert.InDelta(t, 28.13, psnr, 0.01)
}

func TestEvaluator_Errors(t *testing.T) {
	a := solid(16, 16, 0)
	defer a.Close()
	b := solid(8, 16, 0)
	defer b.Close()
	empty := gocv.NewMat()
	defer empty.Close()

	e := NewEvaluator()
	_, err := e.Calculate("ssim", a, b)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = e.Calculate("psnr", empty, a)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = e.Calculate("nope", a, a)
	assert.Error(t, err)

	res, err := e.CalculateAll(a, b)
	assert.Error(t, err)
	assert.Empty(t, res)
}

func TestEvaluator_Info(t *testing.T) {
	e := NewEvaluator()
	assert.Equal(t, []string{"mse", "psnr", "ssim"}, e.Keys())

	info := e.Info()
	require.Contains(t, info, "mse")
	assert.False(t, info["mse"].HigherIsCloser)
	assert.Equal(t, [2]float64{0, 100}, info["psnr"].Range)
}

func TestStats(t *testing.T) {
	var s Stats
	start := time.Unix(100, 0)

	s.Tick()
	s.Rendered(3*time.Millisecond, start)
	s.Tick()
	s.Rendered(4*time.Millisecond, start.Add(100*time.Millisecond))
	s.Tick()
	s.Miss()
	s.Tick()
	s.Failed(errors.New("boom"))
	s.Resize()

	snap := s.Snapshot()
	assert.Equal(t, uint64(4), snap.Ticks)
	assert.Equal(t, uint64(2), snap.Rendered)
	assert.Equal(t, uint64(1), snap.SourceMiss)
	assert.Equal(t, uint64(1), snap.Failed)
	assert.Equal(t, uint64(1), snap.Resizes)
	assert.Equal(t, 4*time.Millisecond, snap.RenderCost)
	assert.InDelta(t, 10, snap.FPS, 1e-9)
	assert.Equal(t, "boom", snap.LastError)
	assert.Equal(t, start.Add(100*time.Millisecond), snap.LastRendered)
}

func TestStats_Concurrent(t *testing.T) {
	var s Stats
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Tick()
				s.Rendered(time.Millisecond, time.Now())
			}
		}()
	}
	wg.Wait()
	snap := s.Snapshot()
	assert.Equal(t, uint64(800), snap.Ticks)
	assert.Equal(t, uint64(800), snap.Rendered)
}
