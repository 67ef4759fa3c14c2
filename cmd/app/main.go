// Camera Effects - live camera filters with a virtual camera output
// Version: 1.0.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"camera-effects/internal/capture"
	"camera-effects/internal/config"
	"camera-effects/internal/control"
	"camera-effects/internal/effects"
	"camera-effects/internal/gui"
	"camera-effects/internal/sink"
	"camera-effects/internal/stream"
)

const (
	AppName    = "Camera Effects"
	AppID      = "com.camera-effects.app"
	AppVersion = "1.0.0"
)

type options struct {
	configPath string
	debug      bool
	camera     string
	image      string
	listen     string
	effect     string
	noPreview  bool
	vcam       string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug mode with verbose logging")
	flag.StringVar(&opts.camera, "camera", "", "Camera index, device path or video URL")
	flag.StringVar(&opts.image, "image", "", "Use a still image instead of a camera")
	flag.StringVar(&opts.listen, "listen", "", "Control server address, empty keeps the configured one")
	flag.StringVar(&opts.effect, "effect", "", "Initial effect name")
	flag.BoolVar(&opts.noPreview, "no-preview", false, "Run without the preview window")
	flag.StringVar(&opts.vcam, "vcam", "", "Virtual camera output device, enables the virtual camera")
	flag.Parse()

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(2)
	}

	logger := initLogger(cfg.Log, opts.debug)
	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": opts.debug,
		"config":     opts.configPath,
	}).Info("Starting Camera Effects")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Application failed")
		os.Exit(1)
	}

	logger.Info("Application shutting down gracefully")
	os.Exit(0)
}

// loadConfig reads the configuration file and applies command line overrides
func loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.camera != "" {
		cfg.Camera.Device = opts.camera
		cfg.Camera.Image = ""
	}
	if opts.image != "" {
		cfg.Camera.Image = opts.image
	}
	if opts.listen != "" {
		cfg.Control.Enabled = true
		cfg.Control.Listen = opts.listen
	}
	if opts.effect != "" {
		kind, err := effects.ParseKind(opts.effect)
		if err != nil {
			return nil, err
		}
		cfg.Filters.Effect = kind
		cfg.Filters.Enabled = true
	}
	if opts.noPreview {
		cfg.Preview.Enabled = false
	}
	if opts.vcam != "" {
		cfg.VirtualCamera.Enabled = true
		cfg.VirtualCamera.Device = opts.vcam
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	store := control.NewStore(cfg.Filters)

	var server *control.Server
	if cfg.Control.Enabled {
		server = control.NewServer(store,
			control.WithServerLogger(logger),
			control.WithJPEGQuality(cfg.Control.JPEGQuality))
	}

	var ui *gui.Application
	if cfg.Preview.Enabled {
		fyneApp := app.NewWithID(AppID)
		fyneApp.SetIcon(theme.MediaVideoIcon())
		fyneApp.Settings().SetTheme(theme.DefaultTheme())
		ui = gui.NewApplication(fyneApp, store, cfg.Preview, logger)
		ui.OnClose(cancel)
	}

	rendererOpts := []effects.Option{effects.WithOverlayConfig(cfg.Overlay)}
	var segmenter *effects.DNNSegmenter
	if cfg.Segmentation.Enabled {
		seg, err := effects.NewDNNSegmenter(cfg.Segmentation.Model, cfg.Segmentation.Config, cfg.Segmentation.InputSize)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"model": cfg.Segmentation.Model,
				"error": err.Error(),
			}).Warn("Segmentation model unavailable, background blur falls back to the blur-only mode")
		} else {
			segmenter = seg
			rendererOpts = append(rendererOpts, effects.WithSegmenter(seg))
		}
	}

	var acquire stream.AcquireFunc
	if cfg.Camera.Image != "" {
		acquire = capture.NewImageAcquirer(cfg.Camera.Image, logger)
	} else {
		acquire = capture.NewCameraAcquirer(cfg.Camera, logger)
	}

	started := false
	adapter := stream.NewAdapter(acquire, store,
		stream.WithLogger(logger),
		stream.WithRendererOptions(rendererOpts...),
		stream.WithSessionHook(func(s *stream.Session) {
			started = true
			if server != nil {
				server.SetSource(s)
			}
			if ui != nil {
				ui.SetSource(s, s.FrameRate())
			}
			go func() {
				<-s.Track().Ended()
				if server != nil {
					server.SetSource(nil)
				}
				if ui != nil {
					ui.SetSource(nil, 0)
				}
			}()
		}),
	)

	out, err := adapter.Acquire(ctx, stream.Constraints{
		Video: &stream.VideoConstraints{
			DeviceID:  cfg.Camera.Device,
			Width:     cfg.Camera.Width,
			Height:    cfg.Camera.Height,
			FrameRate: cfg.Camera.FrameRate,
		},
	})
	if err != nil {
		if segmenter != nil {
			segmenter.Close()
		}
		return fmt.Errorf("acquire camera stream: %w", err)
	}
	defer out.Stop()

	// without a session the renderer never took ownership of the model
	if !started && segmenter != nil {
		segmenter.Close()
	}

	tracks := out.VideoTracks()
	if len(tracks) == 0 {
		return errors.New("camera stream has no video track")
	}
	track := tracks[0]
	if _, ok := track.(*stream.ProcessedTrack); !ok {
		logger.WithField("track", track.ID()).Warn("Effects unavailable, serving the raw camera stream")
	}

	fps := track.Settings().FrameRate
	if fps <= 0 {
		fps = cfg.Camera.FrameRate
	}

	g, gctx := errgroup.WithContext(ctx)
	if server != nil {
		g.Go(func() error {
			return server.ListenAndServe(gctx, cfg.Control.Listen)
		})
	}
	var vcam *sink.VirtualCamera
	if cfg.VirtualCamera.Enabled {
		vcam = sink.NewVirtualCamera(cfg.VirtualCamera, sink.WithLogger(logger))
		g.Go(func() error {
			return vcam.Run(gctx, track, fps)
		})
	}

	if ui != nil {
		ui.Run(gctx)
		cancel()
	} else {
		select {
		case <-gctx.Done():
		case <-track.Ended():
			logger.WithField("track", track.ID()).Info("Camera stream ended")
			cancel()
		}
	}

	err = g.Wait()
	if vcam != nil {
		logger.WithFields(logrus.Fields{
			"device": cfg.VirtualCamera.Device,
			"frames": vcam.Frames(),
		}).Info("Virtual camera stopped")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// initLogger initializes the logger with appropriate level
func initLogger(cfg config.LogConfig, debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
		return logger
	}

	logger.SetLevel(level)
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return logger
}
