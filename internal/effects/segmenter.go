package effects

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Segmenter produces a foreground mask for a frame: CV_8U, same size as src,
// 255 = person, 0 = background.
type Segmenter interface {
	Segment(src gocv.Mat, mask *gocv.Mat) error
	Close() error
}

// DNNSegmenter runs a selfie-segmentation network through the OpenCV DNN module.
// The network must take a single RGB image and produce one probability channel.
type DNNSegmenter struct {
	mu        sync.Mutex
	net       gocv.Net
	inputSize int
}

// NewDNNSegmenter loads a model (ONNX, TensorFlow, Caffe... whatever ReadNet accepts)
func NewDNNSegmenter(modelPath, configPath string, inputSize int) (*DNNSegmenter, error) {
	if modelPath == "" {
		return nil, errors.New("segmentation model path is empty")
	}
	if inputSize <= 0 {
		inputSize = 256
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("failed to load segmentation model: %s", modelPath)
	}

	return &DNNSegmenter{net: net, inputSize: inputSize}, nil
}

func (s *DNNSegmenter) Segment(src gocv.Mat, mask *gocv.Mat) error {
	if src.Empty() {
		return ErrEmptyFrame
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	size := image.Pt(s.inputSize, s.inputSize)
	blob := gocv.BlobFromImage(src, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	out := s.net.Forward("")
	defer out.Close()
	if out.Empty() {
		return errors.New("segmentation network returned no output")
	}

	prob := gocv.GetBlobChannel(out, 0, 0)
	defer prob.Close()
	if prob.Empty() {
		return errors.New("segmentation output has no channel 0")
	}

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(prob, &scaled, image.Pt(src.Cols(), src.Rows()), 0, 0, gocv.InterpolationLinear)
	scaled.ConvertToWithParams(mask, gocv.MatTypeCV8U, 255, 0)
	return nil
}

func (s *DNNSegmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}
