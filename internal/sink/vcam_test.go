package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"camera-effects/internal/config"
	"camera-effects/internal/pipeline"
	"camera-effects/internal/stream"
)

type fakeTrack struct {
	*stream.TrackBase
	mu    sync.Mutex
	frame gocv.Mat
	ready bool
}

func newFakeTrack() *fakeTrack {
	return &fakeTrack{
		TrackBase: stream.NewTrackBase(stream.KindVideo, stream.TrackSettings{}),
		frame:     gocv.NewMat(),
	}
}

func (t *fakeTrack) set(rows, cols int, v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frame.Close()
	t.frame = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
	t.ready = true
}

func (t *fakeTrack) ReadFrame(dst *gocv.Mat) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.IsEnded() {
		return stream.ErrTrackEnded
	}
	if !t.ready {
		return pipeline.ErrNoFrame
	}
	t.frame.CopyTo(dst)
	return nil
}

type fakeEncoder struct {
	width, height int
	buf           bytes.Buffer
	closed        bool
	failWrites    bool
}

func (e *fakeEncoder) Write(b []byte) (int, error) {
	if e.failWrites {
		return 0, errors.New("broken pipe")
	}
	return e.buf.Write(b)
}

func (e *fakeEncoder) Close() error {
	e.closed = true
	return nil
}

type recorder struct {
	mu       sync.Mutex
	encoders []*fakeEncoder
	fail     bool
}

func (r *recorder) factory(ctx context.Context, width, height int, fps float64) (io.WriteCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &fakeEncoder{width: width, height: height, failWrites: r.fail}
	r.encoders = append(r.encoders, e)
	return e, nil
}

func (r *recorder) snapshot() []*fakeEncoder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeEncoder(nil), r.encoders...)
}

func newTestCamera(rec *recorder) *VirtualCamera {
	logger, _ := test.NewNullLogger()
	return NewVirtualCamera(config.Default().VirtualCamera, WithLogger(logger), WithEncoderFactory(rec.factory))
}

func TestVirtualCamera_WritesFramesAndRestartsOnResize(t *testing.T) {
	rec := &recorder{}
	vcam := newTestCamera(rec)
	track := newFakeTrack()
	track.set(4, 6, 9)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- vcam.Run(ctx, track, 200) }()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	track.set(8, 10, 3)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	encs := rec.snapshot()
	assert.Equal(t, 6, encs[0].width)
	assert.Equal(t, 4, encs[0].height)
	assert.True(t, encs[0].closed)
	assert.Zero(t, encs[0].buf.Len()%(4*6*3))
	assert.Equal(t, byte(9), encs[0].buf.Bytes()[0])

	assert.Equal(t, 10, encs[1].width)
	assert.True(t, encs[1].closed)
	assert.Positive(t, vcam.Frames())
}

func TestVirtualCamera_StopsWhenTrackEnds(t *testing.T) {
	rec := &recorder{}
	vcam := newTestCamera(rec)
	track := newFakeTrack()

	done := make(chan error, 1)
	go func() { done <- vcam.Run(context.Background(), track, 100) }()
	track.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the track ended")
	}
	assert.Empty(t, rec.snapshot())
}

func TestVirtualCamera_WriteError(t *testing.T) {
	rec := &recorder{fail: true}
	vcam := newTestCamera(rec)
	track := newFakeTrack()
	track.set(4, 4, 0)

	err := vcam.Run(context.Background(), track, 100)
	assert.Error(t, err)
	encs := rec.snapshot()
	require.Len(t, encs, 1)
	assert.True(t, encs[0].closed)
}

func TestVirtualCamera_Command(t *testing.T) {
	cfg := config.Default().VirtualCamera
	vcam := NewVirtualCamera(cfg)

	st := vcam.Command(context.Background(), 640, 480, 30).WithInput(strings.NewReader(""))
	cmd := st.Compile()
	args := cmd.Args

	assert.Contains(t, args, "rawvideo")
	assert.Contains(t, args, "bgr24")
	assert.Contains(t, args, "640x480")
	assert.Contains(t, args, "v4l2")
	assert.Contains(t, args, "yuv420p")
	assert.Contains(t, args, "/dev/video10")
	assert.Contains(t, args, "-y")
	assert.NotNil(t, cmd.Stdin)
}

// fakeFFmpeg writes an executable shell script standing in for ffmpeg
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newFFmpegCamera(t *testing.T, ffmpegPath string) *VirtualCamera {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cfg := config.Default().VirtualCamera
	cfg.FFmpegPath = ffmpegPath
	return NewVirtualCamera(cfg, WithLogger(logger))
}

func TestVirtualCamera_FFmpegReceivesFrames(t *testing.T) {
	out := filepath.Join(t.TempDir(), "frames.raw")
	vcam := newFFmpegCamera(t, fakeFFmpeg(t, `cat > "`+out+`"`))

	enc, err := vcam.startFFmpeg(context.Background(), 4, 2, 30)
	require.NoError(t, err)

	frame := bytes.Repeat([]byte{7}, 4*2*3)
	for i := 0; i < 3; i++ {
		_, err := enc.Write(frame)
		require.NoError(t, err)
	}
	require.NoError(t, enc.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Len(t, data, 3*len(frame))
}

func TestVirtualCamera_FFmpegExitFailsWrites(t *testing.T) {
	vcam := newFFmpegCamera(t, fakeFFmpeg(t, "exit 3"))

	enc, err := vcam.startFFmpeg(context.Background(), 4, 2, 30)
	require.NoError(t, err)

	failed := make(chan error, 1)
	go func() {
		frame := make([]byte, 4*2*3)
		for {
			if _, err := enc.Write(frame); err != nil {
				failed <- err
				return
			}
		}
	}()

	select {
	case err := <-failed:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("writes kept blocking after ffmpeg exited")
	}
	assert.Error(t, enc.Close())
}

func TestVirtualCamera_FFmpegStopsWithContext(t *testing.T) {
	vcam := newFFmpegCamera(t, fakeFFmpeg(t, "exec sleep 30"))

	ctx, cancel := context.WithCancel(context.Background())
	enc, err := vcam.startFFmpeg(ctx, 4, 2, 30)
	require.NoError(t, err)

	cancel()
	closed := make(chan error, 1)
	go func() { closed <- enc.Close() }()
	select {
	case err := <-closed:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ffmpeg was not killed when the context ended")
	}
}

func TestVirtualCamera_RunShutsDownWithFFmpeg(t *testing.T) {
	vcam := newFFmpegCamera(t, fakeFFmpeg(t, "exec cat > /dev/null"))
	track := newFakeTrack()
	track.set(4, 6, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- vcam.Run(ctx, track, 100) }()

	require.Eventually(t, func() bool { return vcam.Frames() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
