// Package sink feeds a processed video track into an ffmpeg process, usually
// writing to a v4l2loopback device so other programs see a virtual camera.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"gocv.io/x/gocv"

	"camera-effects/internal/config"
	"camera-effects/internal/pipeline"
	"camera-effects/internal/stream"
)

// EncoderFactory starts an encoder that accepts raw bgr24 frames of the given size
type EncoderFactory func(ctx context.Context, width, height int, fps float64) (io.WriteCloser, error)

type Option func(*VirtualCamera)

func WithLogger(logger *logrus.Logger) Option {
	return func(v *VirtualCamera) {
		v.logger = logger
	}
}

// WithEncoderFactory replaces the ffmpeg process
func WithEncoderFactory(f EncoderFactory) Option {
	return func(v *VirtualCamera) {
		v.newEncoder = f
	}
}

type VirtualCamera struct {
	cfg        config.VirtualCameraConfig
	logger     *logrus.Logger
	newEncoder EncoderFactory

	encoder io.WriteCloser
	width   int
	height  int
	frames  atomic.Uint64
}

func NewVirtualCamera(cfg config.VirtualCameraConfig, opts ...Option) *VirtualCamera {
	v := &VirtualCamera{
		cfg:    cfg,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.newEncoder == nil {
		v.newEncoder = v.startFFmpeg
	}
	return v
}

// Frames reports how many frames were written
func (v *VirtualCamera) Frames() uint64 {
	return v.frames.Load()
}

// Run copies frames from track to the encoder at fps until ctx is done or the
// track ends. The encoder is restarted whenever the frame size changes.
func (v *VirtualCamera) Run(ctx context.Context, track stream.VideoTrack, fps float64) error {
	if fps <= 0 {
		fps = pipeline.DefaultFPS
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()
	defer v.closeEncoder()

	frame := gocv.NewMat()
	defer frame.Close()

	v.logger.WithFields(logrus.Fields{
		"function": "VirtualCamera.Run",
		"device":   v.cfg.Device,
		"track":    track.ID(),
		"fps":      fps,
	}).Info("Virtual camera started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-track.Ended():
			return nil
		case <-ticker.C:
		}

		if err := track.ReadFrame(&frame); err != nil {
			if errors.Is(err, stream.ErrTrackEnded) {
				return nil
			}
			continue
		}
		if err := v.write(ctx, frame, fps); err != nil {
			return err
		}
	}
}

func (v *VirtualCamera) write(ctx context.Context, frame gocv.Mat, fps float64) error {
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("virtual camera: unsupported frame type %v", frame.Type())
	}
	width, height := frame.Cols(), frame.Rows()
	if v.encoder == nil || width != v.width || height != v.height {
		v.closeEncoder()
		enc, err := v.newEncoder(ctx, width, height, fps)
		if err != nil {
			return fmt.Errorf("virtual camera: start encoder: %w", err)
		}
		v.encoder, v.width, v.height = enc, width, height

		v.logger.WithFields(logrus.Fields{
			"function": "VirtualCamera.write",
			"width":    width,
			"height":   height,
		}).Info("Encoder started")
	}

	if _, err := v.encoder.Write(frame.ToBytes()); err != nil {
		v.closeEncoder()
		return fmt.Errorf("virtual camera: write frame: %w", err)
	}
	v.frames.Add(1)
	return nil
}

func (v *VirtualCamera) closeEncoder() {
	if v.encoder == nil {
		return
	}
	if err := v.encoder.Close(); err != nil {
		v.logger.WithFields(logrus.Fields{
			"function": "VirtualCamera.closeEncoder",
			"error":    err.Error(),
		}).Debug("Encoder exited with error")
	}
	v.encoder = nil
}

// Command builds the ffmpeg invocation for frames of the given size. The
// process is killed when ctx is done.
func (v *VirtualCamera) Command(ctx context.Context, width, height int, fps float64) *ffmpeg.Stream {
	out := ffmpeg.KwArgs{"format": v.cfg.Format}
	if v.cfg.PixelFormat != "" {
		out["pix_fmt"] = v.cfg.PixelFormat
	}
	in := ffmpeg.Input("pipe:0", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "bgr24",
		"s":         fmt.Sprintf("%dx%d", width, height),
		"framerate": fmt.Sprintf("%g", fps),
	})
	// stdin and overwrite are stored on the stream context, so ctx goes in first
	st := ffmpeg.OutputContext(ctx, []*ffmpeg.Stream{in}, v.cfg.Device, out).OverWriteOutput()
	if v.cfg.FFmpegPath != "" {
		st = st.SetFfmpegPath(v.cfg.FFmpegPath)
	}
	return st
}

func (v *VirtualCamera) startFFmpeg(ctx context.Context, width, height int, fps float64) (io.WriteCloser, error) {
	r, w := io.Pipe()
	cmd := v.Command(ctx, width, height, fps).WithInput(r).Silent(true).Compile()
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	v.logger.WithFields(logrus.Fields{
		"function": "VirtualCamera.startFFmpeg",
		"args":     cmd.Args,
	}).Debug("ffmpeg started")

	p := &process{w: w, exited: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		// unblock writers once nobody reads the pipe any more
		if p.err != nil {
			r.CloseWithError(fmt.Errorf("ffmpeg exited: %w", p.err))
		} else {
			r.CloseWithError(errors.New("ffmpeg exited"))
		}
		close(p.exited)
	}()
	return p, nil
}

// process is a running ffmpeg fed through a pipe
type process struct {
	w      *io.PipeWriter
	exited chan struct{}
	err    error
}

func (p *process) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

// Close ends the input and waits for ffmpeg to exit
func (p *process) Close() error {
	p.w.Close()
	<-p.exited
	return p.err
}
