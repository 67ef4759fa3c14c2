package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camera-effects/internal/effects"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, effects.DefaultState(), cfg.Filters)
	assert.Equal(t, 2, cfg.Overlay.MinCount)
	assert.Equal(t, 3, cfg.Overlay.MaxCount)
	assert.Equal(t, 30.0, cfg.Camera.FrameRate)
	assert.Equal(t, "ffmpeg", cfg.VirtualCamera.FFmpegPath)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
log:
  level: debug
  format: text
camera:
  device: /dev/video2
  frame_rate: 24
filters:
  enabled: true
  effect: background_blur
  params:
    background_blur: 14
    mask_source: segmentation
overlay:
  spawn_interval: 500ms
segmentation:
  enabled: true
  model: models/selfie.onnx
virtual_camera:
  enabled: true
  ffmpeg_path: /opt/ffmpeg/bin/ffmpeg
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/dev/video2", cfg.Camera.Device)
	assert.Equal(t, 24.0, cfg.Camera.FrameRate)
	assert.Equal(t, 640, cfg.Camera.Width)

	assert.Equal(t, effects.KindBackgroundBlur, cfg.Filters.Effect)
	assert.Equal(t, 14.0, cfg.Filters.Params.BackgroundBlur)
	assert.Equal(t, effects.MaskSegmentation, cfg.Filters.Params.MaskSource)
	// unspecified params keep their defaults
	assert.Equal(t, effects.DefaultParams().PixelSize, cfg.Filters.Params.PixelSize)

	assert.Equal(t, 500*time.Millisecond, cfg.Overlay.SpawnInterval)
	assert.Equal(t, 8*time.Second, cfg.Overlay.Lifetime)
	assert.Equal(t, 256, cfg.Segmentation.InputSize)
	assert.True(t, cfg.VirtualCamera.Enabled)
	assert.Equal(t, "/dev/video10", cfg.VirtualCamera.Device)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.VirtualCamera.FFmpegPath)
}

func TestParseClampsFilters(t *testing.T) {
	cfg, err := Parse([]byte("filters:\n  effect: pixelate\n  params:\n    pixel_size: 900\n"))
	require.NoError(t, err)
	assert.Equal(t, effects.MaxPixelSize, cfg.Filters.Params.PixelSize)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"no source", func(c *Config) { c.Camera.Device = ""; c.Camera.Image = "" }},
		{"frame rate", func(c *Config) { c.Camera.FrameRate = 1000 }},
		{"overlay counts", func(c *Config) { c.Overlay.MinCount = 5 }},
		{"overlay interval", func(c *Config) { c.Overlay.SpawnInterval = 0 }},
		{"segmentation model", func(c *Config) { c.Segmentation.Enabled = true }},
		{"control listen", func(c *Config) { c.Control.Listen = "" }},
		{"jpeg quality", func(c *Config) { c.Control.JPEGQuality = 0 }},
		{"vcam device", func(c *Config) { c.VirtualCamera.Enabled = true; c.VirtualCamera.Device = "" }},
		{"preview size", func(c *Config) { c.Preview.Width = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidateAllowsImageOnly(t *testing.T) {
	cfg := Default()
	cfg.Camera.Device = ""
	cfg.Camera.Image = "demo.png"
	assert.NoError(t, Validate(cfg))
}

func TestParseRejectsBadEffect(t *testing.T) {
	_, err := Parse([]byte("filters:\n  effect: sparkles\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("control:\n  listen: 0.0.0.0:9000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Control.Listen)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
