package schedule

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/facemask/geometry"
	"github.com/opd-ai/facemask/pose"
)

func geomAt(x, y float64) pose.FaceGeometry {
	return pose.FaceGeometry{
		Nose:       geometry.Point{X: x, Y: y},
		LeftEar:    geometry.Point{X: x + 12, Y: y - 2},
		RightEar:   geometry.Point{X: x - 12, Y: y - 2},
		FaceWidth:  24,
		MaskWidth:  24 * 1.8,
		MaskHeight: 24 * 2.2,
	}
}

func TestScheduler_Interval(t *testing.T) {
	t.Run("every frame by default", func(t *testing.T) {
		s := New(NewConfig())
		for i := uint64(1); i <= 5; i++ {
			assert.True(t, s.Decide(i, nil), "frame %d", i)
		}
	})

	t.Run("every third frame fires on 1 4 7", func(t *testing.T) {
		cfg := NewConfig()
		cfg.DetectEvery = 3
		s := New(cfg)

		var fired []uint64
		for i := uint64(1); i <= 9; i++ {
			if s.Decide(i, nil) {
				fired = append(fired, i)
			}
		}
		assert.Equal(t, []uint64{1, 4, 7}, fired)
	})
}

func TestScheduler_HistoryFallback(t *testing.T) {
	s := New(NewConfig())

	t.Run("empty history passes frame through", func(t *testing.T) {
		_, ok := s.Detected(1, pose.FaceGeometry{}, false)
		assert.False(t, ok)
	})

	t.Run("failed detection replays newest snapshot", func(t *testing.T) {
		g1 := geomAt(100, 100)
		g2 := geomAt(110, 100)
		_, ok := s.Detected(2, g1, true)
		require.True(t, ok)
		_, ok = s.Detected(3, g2, true)
		require.True(t, ok)

		got, ok := s.Detected(4, pose.FaceGeometry{}, false)
		require.True(t, ok)
		assert.Equal(t, g2, got)
	})
}

func TestScheduler_HistoryEviction(t *testing.T) {
	cfg := NewConfig()
	cfg.HistorySize = 3
	s := New(cfg)

	for i := uint64(1); i <= 5; i++ {
		s.Detected(i, geomAt(float64(i)*10, 50), true)
	}
	assert.Equal(t, 3, s.HistoryLen())

	// The newest entry survives; older ones were evicted FIFO.
	got, ok := s.Detected(6, pose.FaceGeometry{}, false)
	require.True(t, ok)
	assert.Equal(t, geomAt(50, 50), got)
}

func TestScheduler_SkippedReusesLast(t *testing.T) {
	s := New(NewConfig())
	g := geomAt(100, 100)
	s.Detected(1, g, true)

	got, ok := s.Skipped(2)
	require.True(t, ok)
	assert.Equal(t, g, got)
}

func TestScheduler_Prediction(t *testing.T) {
	cfg := NewConfig()
	cfg.DetectEvery = 100 // interval never fires after frame 1
	cfg.Predict = true
	cfg.MaxSkipFrames = 2
	cfg.DecayFactor = 0.5
	s := New(cfg)

	// Two detections moving +10px/frame in x.
	s.Detected(1, geomAt(100, 100), true)
	s.Detected(2, geomAt(110, 100), true)

	t.Run("first skip extrapolates one velocity step", func(t *testing.T) {
		require.False(t, s.Decide(3, nil))
		got, ok := s.Skipped(3)
		require.True(t, ok)
		assert.InDelta(t, 120, got.Nose.X, 1e-9)
		assert.InDelta(t, 100, got.Nose.Y, 1e-9)
		assert.InDelta(t, 0.5, s.PredictedConfidence(), 1e-9)
	})

	t.Run("second skip extrapolates two steps and decays again", func(t *testing.T) {
		got, ok := s.Skipped(4)
		require.True(t, ok)
		assert.InDelta(t, 130, got.Nose.X, 1e-9)
		assert.InDelta(t, 0.25, s.PredictedConfidence(), 1e-9)
	})

	t.Run("expired prediction forces detection", func(t *testing.T) {
		// skipped == MaxSkipFrames; one more skip falls back to last
		// unchanged, then the counter exceeds the bound and Decide
		// forces a real detection.
		got, ok := s.Skipped(5)
		require.True(t, ok)
		assert.InDelta(t, 110, got.Nose.X, 1e-9) // raw last, no prediction

		assert.True(t, s.Decide(6, nil))
	})
}

func TestScheduler_PredictionNeedsTwoDetections(t *testing.T) {
	cfg := NewConfig()
	cfg.DetectEvery = 100
	cfg.Predict = true
	s := New(cfg)

	g := geomAt(100, 100)
	s.Detected(1, g, true)

	// Only one detection on record: skip reuses it verbatim.
	got, ok := s.Skipped(2)
	require.True(t, ok)
	assert.Equal(t, g, got)
}

func TestScheduler_AdaptiveMotion(t *testing.T) {
	const w, h = 32, 32

	cfg := NewConfig()
	cfg.DetectEvery = 100
	cfg.Adaptive = true
	cfg.MotionThreshold = 6.0
	cfg.MotionStep = 1
	s := New(cfg)

	still := bytes.Repeat([]byte{100}, w*h)

	t.Run("first frame reads as full motion", func(t *testing.T) {
		assert.True(t, s.Decide(1, still))
	})

	// Seed two detections so the stillness gate has displacement data.
	s.Detected(1, geomAt(100, 100), true)
	s.Detected(2, geomAt(100.5, 100), true)

	t.Run("identical frame with still face skips the interval", func(t *testing.T) {
		assert.False(t, s.Decide(2, still))
	})

	t.Run("large luma delta forces detection", func(t *testing.T) {
		moved := bytes.Repeat([]byte{200}, w*h)
		assert.True(t, s.Decide(3, moved))
	})
}

func TestNew_NormalizesBadKnobs(t *testing.T) {
	s := New(Config{
		MotionStep:    -1,
		HistorySize:   0,
		DecayFactor:   5,
		MaxSkipFrames: -2,
	})

	assert.Equal(t, DefaultMotionStep, s.cfg.MotionStep)
	assert.Equal(t, DefaultHistorySize, s.cfg.HistorySize)
	assert.Equal(t, DefaultDecayFactor, s.cfg.DecayFactor)
	assert.Equal(t, DefaultMaxSkipFrames, s.cfg.MaxSkipFrames)
}
