package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"camera-effects/internal/effects"
	"camera-effects/internal/overlay"
)

// Config represents the complete application configuration
type Config struct {
	Log           LogConfig           `yaml:"log"`
	Camera        CameraConfig        `yaml:"camera"`
	Filters       effects.State       `yaml:"filters"` // initial filter state
	Overlay       overlay.Config      `yaml:"overlay"`
	Segmentation  SegmentationConfig  `yaml:"segmentation"`
	Control       ControlConfig       `yaml:"control"`
	VirtualCamera VirtualCameraConfig `yaml:"virtual_camera"`
	Preview       PreviewConfig       `yaml:"preview"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // logrus level name
	Format string `yaml:"format"` // text, json
}

// CameraConfig selects the capture source
type CameraConfig struct {
	Device            string        `yaml:"device"` // index ("0") or device path
	Image             string        `yaml:"image"`  // still image used instead of a camera
	Width             int           `yaml:"width"`
	Height            int           `yaml:"height"`
	FrameRate         float64       `yaml:"frame_rate"`
	FirstFrameTimeout time.Duration `yaml:"first_frame_timeout"`
}

// SegmentationConfig points at an OpenCV DNN person segmentation model
type SegmentationConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	Config    string `yaml:"config"`
	InputSize int    `yaml:"input_size"`
}

type ControlConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// VirtualCameraConfig feeds the processed stream to ffmpeg
type VirtualCameraConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Device      string `yaml:"device"`       // output target, e.g. /dev/video10
	Format      string `yaml:"format"`       // ffmpeg output format
	PixelFormat string `yaml:"pixel_format"` // output pixel format
	FFmpegPath  string `yaml:"ffmpeg_path"`
}

type PreviewConfig struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Camera: CameraConfig{
			Device:            "0",
			Width:             640,
			Height:            480,
			FrameRate:         30,
			FirstFrameTimeout: 5 * time.Second,
		},
		Filters: effects.DefaultState(),
		Overlay: overlay.DefaultConfig(),
		Segmentation: SegmentationConfig{
			InputSize: 256,
		},
		Control: ControlConfig{
			Enabled:     true,
			Listen:      "127.0.0.1:8089",
			JPEGQuality: 85,
		},
		VirtualCamera: VirtualCameraConfig{
			Device:      "/dev/video10",
			Format:      "v4l2",
			PixelFormat: "yuv420p",
			FFmpegPath:  "ffmpeg",
		},
		Preview: PreviewConfig{
			Enabled: true,
			Title:   "Camera Effects",
			Width:   960,
			Height:  640,
		},
	}
}

// Load reads a YAML file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate reports every invalid field. Filter parameters are clamped rather
// than rejected.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format))
	}

	if cfg.Camera.Device == "" && cfg.Camera.Image == "" {
		errs = append(errs, errors.New("camera.device or camera.image is required"))
	}
	if cfg.Camera.Width < 0 || cfg.Camera.Height < 0 {
		errs = append(errs, fmt.Errorf("camera size must not be negative, got %dx%d", cfg.Camera.Width, cfg.Camera.Height))
	}
	if cfg.Camera.FrameRate < 0 || cfg.Camera.FrameRate > 240 {
		errs = append(errs, fmt.Errorf("camera.frame_rate must be within [0, 240], got %v", cfg.Camera.FrameRate))
	}
	if cfg.Camera.FirstFrameTimeout <= 0 {
		cfg.Camera.FirstFrameTimeout = Default().Camera.FirstFrameTimeout
	}

	cfg.Filters = cfg.Filters.Normalize()

	if cfg.Overlay.MinCount < 0 || cfg.Overlay.MaxCount < 1 || cfg.Overlay.MinCount > cfg.Overlay.MaxCount {
		errs = append(errs, fmt.Errorf("overlay counts must satisfy 0 <= min <= max, max >= 1, got min=%d max=%d",
			cfg.Overlay.MinCount, cfg.Overlay.MaxCount))
	}
	if cfg.Overlay.SpawnInterval <= 0 || cfg.Overlay.Lifetime <= 0 {
		errs = append(errs, errors.New("overlay.spawn_interval and overlay.lifetime must be positive"))
	}

	if cfg.Segmentation.Enabled {
		if cfg.Segmentation.Model == "" {
			errs = append(errs, errors.New("segmentation.model is required when segmentation is enabled"))
		}
		if cfg.Segmentation.InputSize < 32 {
			errs = append(errs, fmt.Errorf("segmentation.input_size must be at least 32, got %d", cfg.Segmentation.InputSize))
		}
	}

	if cfg.Control.Enabled && cfg.Control.Listen == "" {
		errs = append(errs, errors.New("control.listen is required when the control server is enabled"))
	}
	if cfg.Control.JPEGQuality < 1 || cfg.Control.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("control.jpeg_quality must be within [1, 100], got %d", cfg.Control.JPEGQuality))
	}

	if cfg.VirtualCamera.Enabled && (cfg.VirtualCamera.Device == "" || cfg.VirtualCamera.Format == "") {
		errs = append(errs, errors.New("virtual_camera.device and virtual_camera.format are required when enabled"))
	}

	if cfg.Preview.Enabled && (cfg.Preview.Width <= 0 || cfg.Preview.Height <= 0) {
		errs = append(errs, fmt.Errorf("preview size must be positive, got %dx%d", cfg.Preview.Width, cfg.Preview.Height))
	}

	return errors.Join(errs...)
}
