package mask

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/facemask/pose"
	"github.com/opd-ai/facemask/video"
)

// testConfig builds a 64x64 configuration whose detector resolution
// equals the frame resolution, so fabricated keypoint coordinates map
// onto the frame one to one.
func testConfig() Config {
	cfg := NewConfig()
	cfg.Width = 64
	cfg.Height = 64
	cfg.DetectSize = 64
	cfg.LumaOnly = true
	return cfg
}

// testPose fabricates a frontal face around the frame center.
func testPose(score float64) pose.Pose {
	return pose.Pose{
		Score: score,
		Keypoints: map[string]pose.Keypoint{
			"nose":     {Name: "nose", X: 32, Y: 32, Score: score},
			"leftEar":  {Name: "leftEar", X: 44, Y: 30, Score: score},
			"rightEar": {Name: "rightEar", X: 20, Y: 30, Score: score},
		},
	}
}

// grayStream builds n identical 64x64 YUV420 frames: luma 200,
// neutral chroma.
func grayStream(t *testing.T, n int) []byte {
	t.Helper()
	size, err := video.FrameSize(64, 64, video.FormatYUV420)
	require.NoError(t, err)

	frame := make([]byte, size)
	for i := 0; i < 64*64; i++ {
		frame[i] = 200
	}
	for i := 64 * 64; i < size; i++ {
		frame[i] = 128
	}
	return bytes.Repeat(frame, n)
}

// outputFrames splits the masked stream back into per-frame slices.
func outputFrames(t *testing.T, stream []byte, n int) [][]byte {
	t.Helper()
	size := len(stream) / n
	require.Equal(t, 0, len(stream)%n)

	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = stream[i*size : (i+1)*size]
	}
	return frames
}

func zeroLuma(frame []byte) int {
	n := 0
	for _, b := range frame[:64*64] {
		if b == 0 {
			n++
		}
	}
	return n
}

func TestNew(t *testing.T) {
	t.Run("nil estimator rejected", func(t *testing.T) {
		cfg := testConfig()
		_, err := New(cfg, nil)
		assert.ErrorIs(t, err, ErrNoEstimator)
	})

	t.Run("invalid config rejected", func(t *testing.T) {
		cfg := testConfig()
		cfg.Width = 63 // odd, yuv420
		_, err := New(cfg, &pose.StaticEstimator{})
		assert.ErrorIs(t, err, video.ErrOddDimensions)
	})
}

func TestMasker_StableFaceMasksEveryFrame(t *testing.T) {
	const frames = 10

	est := &pose.StaticEstimator{Poses: []pose.Pose{testPose(1.0)}}
	m, err := New(testConfig(), est)
	require.NoError(t, err)

	var out bytes.Buffer
	input := grayStream(t, frames)
	require.NoError(t, m.Run(context.Background(), bytes.NewReader(input), &out))

	got := outputFrames(t, out.Bytes(), frames)

	// Same face, same frame, every frame: the mask footprint must be
	// nonzero and bit-identical across the whole run.
	first := zeroLuma(got[0])
	assert.Greater(t, first, 0)
	for i, frame := range got {
		assert.Equal(t, first, zeroLuma(frame), "frame %d", i+1)
		assert.Equal(t, got[0], frame, "frame %d", i+1)
	}

	assert.Equal(t, uint64(frames), m.FramesProcessed())
	assert.Equal(t, uint64(frames), m.FramesMasked())
	assert.Equal(t, uint64(frames), m.Detections())
}

func TestMasker_LowConfidencePassesThrough(t *testing.T) {
	const frames = 3

	est := &pose.StaticEstimator{Poses: []pose.Pose{testPose(0.5)}}
	cfg := testConfig()
	cfg.MinPoseConfidence = 0.99
	m, err := New(cfg, est)
	require.NoError(t, err)

	var out bytes.Buffer
	input := grayStream(t, frames)
	require.NoError(t, m.Run(context.Background(), bytes.NewReader(input), &out))

	// No pose clears the bar and history is empty, so every frame
	// passes through byte-identical.
	assert.Equal(t, input, out.Bytes())
	assert.Equal(t, uint64(frames), m.FramesProcessed())
	assert.Equal(t, uint64(0), m.FramesMasked())
}

func TestMasker_IntervalReusesLastPose(t *testing.T) {
	const frames = 5

	est := &pose.StaticEstimator{Poses: []pose.Pose{testPose(1.0)}}
	cfg := testConfig()
	cfg.Schedule.DetectEvery = 5 // fires on frame 1 only within this run
	m, err := New(cfg, est)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, m.Run(context.Background(), bytes.NewReader(grayStream(t, frames)), &out))

	got := outputFrames(t, out.Bytes(), frames)

	// One inference, five masked frames, all identical to frame 1.
	assert.Equal(t, uint64(1), m.Detections())
	assert.Equal(t, 1, est.Calls())
	assert.Equal(t, uint64(frames), m.FramesMasked())
	assert.Greater(t, zeroLuma(got[0]), 0)
	for i := 1; i < frames; i++ {
		assert.Equal(t, got[0], got[i], "frame %d", i+1)
	}
}

func TestMasker_ClipAboveNoseShrinksMask(t *testing.T) {
	est := &pose.StaticEstimator{Poses: []pose.Pose{testPose(1.0)}}

	full, err := New(testConfig(), est)
	require.NoError(t, err)
	var fullOut bytes.Buffer
	require.NoError(t, full.Run(context.Background(), bytes.NewReader(grayStream(t, 1)), &fullOut))

	cfg := testConfig()
	cfg.ClipAboveNose = true
	clipped, err := New(cfg, &pose.StaticEstimator{Poses: []pose.Pose{testPose(1.0)}})
	require.NoError(t, err)
	var clipOut bytes.Buffer
	require.NoError(t, clipped.Run(context.Background(), bytes.NewReader(grayStream(t, 1)), &clipOut))

	fullCount := zeroLuma(fullOut.Bytes())
	clipCount := zeroLuma(clipOut.Bytes())
	assert.Greater(t, clipCount, 0)
	assert.Less(t, clipCount, fullCount)
}

func TestMasker_SuperellipseContour(t *testing.T) {
	cfg := testConfig()
	cfg.Contour = ContourSuperellipse

	m, err := New(cfg, &pose.StaticEstimator{Poses: []pose.Pose{testPose(1.0)}})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, m.Run(context.Background(), bytes.NewReader(grayStream(t, 1)), &out))
	assert.Greater(t, zeroLuma(out.Bytes()), 0)
}

func TestMasker_TruncatedInput(t *testing.T) {
	m, err := New(testConfig(), &pose.StaticEstimator{})
	require.NoError(t, err)

	input := grayStream(t, 1)
	err = m.Run(context.Background(), bytes.NewReader(input[:len(input)-7]), &bytes.Buffer{})
	assert.ErrorIs(t, err, video.ErrTruncatedStream)
}

func TestMasker_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := New(testConfig(), &pose.StaticEstimator{})
	require.NoError(t, err)

	err = m.Run(ctx, bytes.NewReader(grayStream(t, 3)), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContourFamily_String(t *testing.T) {
	assert.Equal(t, "liquid", ContourLiquid.String())
	assert.Equal(t, "superellipse", ContourSuperellipse.String())
	assert.Equal(t, "unknown(9)", ContourFamily(9).String())
}
