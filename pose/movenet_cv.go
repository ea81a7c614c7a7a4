//go:build withcv
// +build withcv

package pose

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/opd-ai/facemask/video"
)

// MoveNetEstimator runs a MoveNet single-pose model through the
// OpenCV DNN module. Built only under the withcv tag so the default
// build carries no cgo dependency.
type MoveNetEstimator struct {
	net    gocv.Net
	inSize int
}

// NewMoveNetEstimator loads a MoveNet ONNX model from modelPath.
// inputSize is the square model input edge (192 for Lightning,
// 256 for Thunder).
func NewMoveNetEstimator(modelPath string, inputSize int) (Estimator, error) {
	logrus.WithFields(logrus.Fields{
		"function":   "NewMoveNetEstimator",
		"model_path": modelPath,
		"input_size": inputSize,
	}).Info("Loading MoveNet model")

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("loading MoveNet model from %s failed", modelPath)
	}
	return &MoveNetEstimator{net: net, inSize: inputSize}, nil
}

// Estimate runs one forward pass. The input blob and output mat are
// device-side state scoped to this call; both are released via defer
// whether or not inference succeeds.
func (m *MoveNetEstimator) Estimate(ctx context.Context, t *video.Tensor, opts EstimateOptions) ([]Pose, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Width != m.inSize || t.Height != m.inSize {
		return nil, fmt.Errorf("tensor is %dx%d, model expects %dx%d",
			t.Width, t.Height, m.inSize, m.inSize)
	}

	blob, err := gocv.NewMatWithSizesFromBytes(
		[]int{1, t.Height, t.Width, 3}, gocv.MatTypeCV32F, float32Bytes(t.Data))
	if err != nil {
		return nil, fmt.Errorf("building input blob: %w", err)
	}
	defer blob.Close()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	raw, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading model output: %w", err)
	}
	if len(raw) < len(JointNames)*3 {
		return nil, fmt.Errorf("unexpected output length %d", len(raw))
	}

	// MoveNet output layout: [1,1,17,3] of (y, x, score), normalized.
	p := Pose{Keypoints: make(map[string]Keypoint, len(JointNames))}
	var sum float64
	for i, name := range JointNames {
		y := float64(raw[i*3])
		x := float64(raw[i*3+1])
		score := float64(raw[i*3+2])
		if opts.Flip {
			x = 1 - x
		}
		p.Keypoints[name] = Keypoint{
			Name:  name,
			X:     x * float64(t.Width),
			Y:     y * float64(t.Height),
			Score: score,
		}
		sum += score
	}
	p.Score = sum / float64(len(JointNames))

	if p.Score < opts.ScoreThreshold {
		return nil, nil
	}
	return []Pose{p}, nil
}

// Close releases the DNN network.
func (m *MoveNetEstimator) Close() error {
	return m.net.Close()
}

func float32Bytes(data []float32) []byte {
	buf := make([]byte, len(data)*4)
	for i, v := range data {
		bits := math.Float32bits(v)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}
