package pose

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJoint(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already canonical", in: "leftEar", want: "leftEar"},
		{name: "snake case", in: "left_ear", want: "leftEar"},
		{name: "hyphenated upper", in: "LEFT-EAR", want: "leftEar"},
		{name: "space separated title", in: "Left Ear", want: "leftEar"},
		{name: "single word", in: "nose", want: "nose"},
		{name: "single word capitalized", in: "Nose", want: "nose"},
		{name: "three parts", in: "left_big_toe", want: "leftBigToe"},
		{name: "empty", in: "", want: ""},
		{name: "only separators", in: "__", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalJoint(tt.in))
		})
	}
}

func TestCanonicalize(t *testing.T) {
	p := Pose{
		Score: 0.9,
		Keypoints: map[string]Keypoint{
			"left_ear":  {Name: "left_ear", X: 1, Y: 2, Score: 0.8},
			"Right Ear": {Name: "Right Ear", X: 3, Y: 4, Score: 0.7},
		},
	}

	got := Canonicalize(p)
	require.Len(t, got.Keypoints, 2)
	assert.Equal(t, 0.9, got.Score)

	le, ok := got.Keypoint(JointLeftEar)
	require.True(t, ok)
	assert.Equal(t, JointLeftEar, le.Name)
	assert.Equal(t, 1.0, le.X)

	_, ok = got.Keypoint(JointRightEar)
	assert.True(t, ok)
}

func facePose(score float64) Pose {
	return Pose{
		Score: score,
		Keypoints: map[string]Keypoint{
			JointNose:     {Name: JointNose, X: 32, Y: 32, Score: score},
			JointLeftEar:  {Name: JointLeftEar, X: 44, Y: 30, Score: score},
			JointRightEar: {Name: JointRightEar, X: 20, Y: 30, Score: score},
		},
	}
}

func TestPose_HasFace(t *testing.T) {
	t.Run("all joints above threshold", func(t *testing.T) {
		assert.True(t, facePose(0.8).HasFace(0.3))
	})

	t.Run("joints below threshold", func(t *testing.T) {
		assert.False(t, facePose(0.2).HasFace(0.3))
	})

	t.Run("missing ear", func(t *testing.T) {
		p := facePose(0.8)
		delete(p.Keypoints, JointLeftEar)
		assert.False(t, p.HasFace(0.3))
	})

	t.Run("no keypoints at all", func(t *testing.T) {
		assert.False(t, Pose{Score: 1}.HasFace(0.3))
	})
}

func TestExtractFaceGeometry(t *testing.T) {
	cfg := GeometryConfig{
		ScoreThreshold: 0.3,
		MaskScaleW:     1.0,
		MaskScaleH:     1.0,
		FrameWidth:     640,
		FrameHeight:    480,
	}

	t.Run("valid face at unity scale", func(t *testing.T) {
		g, ok := ExtractFaceGeometry(facePose(0.9), 1, 1, cfg)
		require.True(t, ok)

		assert.InDelta(t, 32, g.Nose.X, 1e-9)
		assert.InDelta(t, 32, g.Nose.Y, 1e-9)
		assert.InDelta(t, 24, g.FaceWidth, 1e-9) // |44-20| level ears
		assert.InDelta(t, 0, g.Angle, 1e-9)
		assert.InDelta(t, 24*1.8, g.MaskWidth, 1e-9)
		assert.InDelta(t, 24*2.2, g.MaskHeight, 1e-9)
	})

	t.Run("keypoints scale to frame resolution", func(t *testing.T) {
		g, ok := ExtractFaceGeometry(facePose(0.9), 10, 7.5, cfg)
		require.True(t, ok)

		assert.InDelta(t, 320, g.Nose.X, 1e-9)
		assert.InDelta(t, 240, g.Nose.Y, 1e-9)
		assert.InDelta(t, 240, g.FaceWidth, 1e-9)
	})

	t.Run("mask scale knobs apply", func(t *testing.T) {
		scaled := cfg
		scaled.MaskScaleW = 2
		scaled.MaskScaleH = 0.5
		g, ok := ExtractFaceGeometry(facePose(0.9), 1, 1, scaled)
		require.True(t, ok)

		assert.InDelta(t, 24*1.8*2, g.MaskWidth, 1e-9)
		assert.InDelta(t, 24*2.2*0.5, g.MaskHeight, 1e-9)
	})

	t.Run("low score rejected", func(t *testing.T) {
		_, ok := ExtractFaceGeometry(facePose(0.1), 1, 1, cfg)
		assert.False(t, ok)
	})

	t.Run("coincident ears rejected", func(t *testing.T) {
		p := facePose(0.9)
		kp := p.Keypoints[JointLeftEar]
		kp.X = 20
		kp.Y = 30
		p.Keypoints[JointLeftEar] = kp

		_, ok := ExtractFaceGeometry(p, 1, 1, cfg)
		assert.False(t, ok)
	})

	t.Run("nose clamped into frame", func(t *testing.T) {
		p := facePose(0.9)
		kp := p.Keypoints[JointNose]
		kp.X = -10
		p.Keypoints[JointNose] = kp

		g, ok := ExtractFaceGeometry(p, 1, 1, cfg)
		require.True(t, ok)
		assert.Equal(t, 0.0, g.Nose.X)
	})

	t.Run("tilted head yields nonzero roll", func(t *testing.T) {
		p := facePose(0.9)
		kp := p.Keypoints[JointLeftEar]
		kp.Y = 40
		p.Keypoints[JointLeftEar] = kp

		g, ok := ExtractFaceGeometry(p, 1, 1, cfg)
		require.True(t, ok)
		assert.Greater(t, g.Angle, 0.0)
	})
}

func TestStaticEstimator(t *testing.T) {
	t.Run("filters by score and caps poses", func(t *testing.T) {
		est := &StaticEstimator{Poses: []Pose{
			{Score: 0.9, Keypoints: map[string]Keypoint{"left_ear": {Name: "left_ear"}}},
			{Score: 0.5},
			{Score: 0.1},
		}}

		got, err := est.Estimate(context.Background(), nil, EstimateOptions{
			MaxPoses:       1,
			ScoreThreshold: 0.3,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 0.9, got[0].Score)

		// Canonicalization happened on the way out.
		_, ok := got[0].Keypoint(JointLeftEar)
		assert.True(t, ok)
		assert.Equal(t, 1, est.Calls())
	})

	t.Run("propagates configured error", func(t *testing.T) {
		boom := errors.New("detector exploded")
		est := &StaticEstimator{Err: boom}

		_, err := est.Estimate(context.Background(), nil, EstimateOptions{})
		assert.ErrorIs(t, err, boom)
	})
}
