// Package schedule decides, per frame, whether to run pose inference
// and supplies fallback face geometry when inference is skipped or
// yields nothing usable.
//
// Precedence per frame:
//
//  1. Fixed interval: detect when frameIndex % DetectEvery == 1
//     (frames are 1-based, so DetectEvery=3 fires on 1, 4, 7, ...).
//  2. Adaptive: strong frame motion forces detection regardless of
//     interval; a near-still face lets the interval be skipped and
//     the last pose reused.
//  3. Prediction: skipped frames may extrapolate the last two known
//     positions, decaying confidence per frame; after MaxSkipFrames
//     the prediction is discarded and detection forced.
//  4. History: when nothing live is usable, the most recent valid
//     snapshot is replayed unmodified. Only with empty history does a
//     frame pass through unmasked.
package schedule

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/facemask/geometry"
	"github.com/opd-ai/facemask/pose"
)

// Defaults used by NewConfig.
const (
	DefaultDetectEvery     = 1
	DefaultMotionThreshold = 6.0
	DefaultMotionStep      = 7
	DefaultStillnessPixels = 2.0
	DefaultDecayFactor     = 0.8
	DefaultMaxSkipFrames   = 3
	DefaultHistorySize     = 8
)

// Config enumerates every scheduling knob explicitly.
type Config struct {
	// DetectEvery runs detection every Nth frame; <=1 means every frame.
	DetectEvery int
	// Adaptive enables motion-gated skipping on top of the interval.
	Adaptive bool
	// MotionThreshold is the mean absolute luma difference above which
	// detection is forced.
	MotionThreshold float64
	// MotionStep subsamples every Nth pixel for the motion signal.
	MotionStep int
	// StillnessPixels is the keypoint displacement below which the
	// last pose is reused without detecting.
	StillnessPixels float64
	// Predict extrapolates skipped frames from the last two detections.
	Predict bool
	// DecayFactor multiplies predicted confidence once per skipped frame.
	DecayFactor float64
	// MaxSkipFrames bounds consecutive predicted frames.
	MaxSkipFrames int
	// HistorySize bounds the valid-pose FIFO used as a last resort.
	HistorySize int
}

// NewConfig returns a Config with documented defaults: detection on
// every frame, adaptive gating and prediction off, history depth 8.
func NewConfig() Config {
	return Config{
		DetectEvery:     DefaultDetectEvery,
		MotionThreshold: DefaultMotionThreshold,
		MotionStep:      DefaultMotionStep,
		StillnessPixels: DefaultStillnessPixels,
		DecayFactor:     DefaultDecayFactor,
		MaxSkipFrames:   DefaultMaxSkipFrames,
		HistorySize:     DefaultHistorySize,
	}
}

type historyEntry struct {
	frame uint64
	geom  pose.FaceGeometry
}

// Scheduler is the per-stream detection state machine. It is not safe
// for concurrent use; the masking pipeline drives it from one
// goroutine in frame order.
type Scheduler struct {
	cfg Config

	prevSample []byte // subsampled luma of the previous frame
	haveSample bool

	last      pose.FaceGeometry
	prev      pose.FaceGeometry
	haveLast  bool
	havePrev  bool
	skipped   int     // consecutive frames since last real detection
	predConf  float64 // decayed confidence of the current prediction

	history []historyEntry
}

// New creates a scheduler. Out-of-range knobs fall back to defaults.
func New(cfg Config) *Scheduler {
	if cfg.MotionStep <= 0 {
		cfg.MotionStep = DefaultMotionStep
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor > 1 {
		cfg.DecayFactor = DefaultDecayFactor
	}
	if cfg.MaxSkipFrames < 0 {
		cfg.MaxSkipFrames = DefaultMaxSkipFrames
	}
	return &Scheduler{
		cfg:     cfg,
		history: make([]historyEntry, 0, cfg.HistorySize),
	}
}

// Decide reports whether pose inference should run for this frame.
// frameIndex is 1-based; luma is the frame's luma plane and may be
// nil when adaptive gating is disabled.
func (s *Scheduler) Decide(frameIndex uint64, luma []byte) bool {
	motion := -1.0
	if s.cfg.Adaptive && luma != nil {
		motion = s.motionSignal(luma)
	}

	decision := s.decide(frameIndex, motion)
	if decision {
		logrus.WithFields(logrus.Fields{
			"function": "Scheduler.Decide",
			"frame":    frameIndex,
			"motion":   motion,
		}).Debug("Detection scheduled")
	}
	return decision
}

func (s *Scheduler) decide(frameIndex uint64, motion float64) bool {
	// An expired prediction forces a real detection.
	if s.cfg.Predict && s.haveLast && s.skipped > s.cfg.MaxSkipFrames {
		return true
	}

	if s.cfg.Adaptive && motion >= 0 {
		if motion > s.cfg.MotionThreshold {
			return true
		}
		if s.haveLast && s.havePrev && s.displacement() < s.cfg.StillnessPixels {
			return false
		}
	}

	return s.intervalDue(frameIndex)
}

func (s *Scheduler) intervalDue(frameIndex uint64) bool {
	if s.cfg.DetectEvery <= 1 {
		return true
	}
	return frameIndex%uint64(s.cfg.DetectEvery) == 1
}

// Detected records the outcome of a live detection attempt and
// returns the geometry to mask this frame with.
//
// ok=true pushes the geometry into history and resets the skip
// counter. ok=false (detection ran, no valid face) falls back to the
// most recent history snapshot, replayed unmodified.
func (s *Scheduler) Detected(frameIndex uint64, g pose.FaceGeometry, ok bool) (pose.FaceGeometry, bool) {
	if ok {
		s.prev, s.havePrev = s.last, s.haveLast
		s.last, s.haveLast = g, true
		s.skipped = 0
		s.predConf = 1
		s.push(frameIndex, g)
		return g, true
	}
	return s.fromHistory(frameIndex)
}

// Skipped records that detection did not run this frame and returns
// the geometry to mask with: a linear extrapolation when prediction
// is enabled and fresh enough, otherwise the last pose unchanged,
// otherwise a history snapshot.
func (s *Scheduler) Skipped(frameIndex uint64) (pose.FaceGeometry, bool) {
	if !s.haveLast {
		return s.fromHistory(frameIndex)
	}

	s.skipped++

	if s.cfg.Predict && s.havePrev && s.skipped <= s.cfg.MaxSkipFrames {
		s.predConf *= s.cfg.DecayFactor
		return s.extrapolate(), true
	}

	return s.last, true
}

// PredictedConfidence exposes the decayed confidence of the current
// prediction, for diagnostics.
func (s *Scheduler) PredictedConfidence() float64 {
	return s.predConf
}

// HistoryLen returns the number of buffered valid snapshots.
func (s *Scheduler) HistoryLen() int {
	return len(s.history)
}

func (s *Scheduler) fromHistory(frameIndex uint64) (pose.FaceGeometry, bool) {
	if len(s.history) == 0 {
		return pose.FaceGeometry{}, false
	}
	entry := s.history[len(s.history)-1]
	logrus.WithFields(logrus.Fields{
		"function":     "Scheduler.fromHistory",
		"frame":        frameIndex,
		"source_frame": entry.frame,
	}).Debug("Masking from pose history")
	return entry.geom, true
}

func (s *Scheduler) push(frameIndex uint64, g pose.FaceGeometry) {
	if len(s.history) == s.cfg.HistorySize {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, historyEntry{frame: frameIndex, geom: g})
}

// extrapolate advances the last geometry by the per-frame velocity of
// the last two detections, scaled by the number of skipped frames.
// Size and angle are carried, not extrapolated.
func (s *Scheduler) extrapolate() pose.FaceGeometry {
	k := float64(s.skipped)
	g := s.last
	g.Nose = advance(s.last.Nose, s.prev.Nose, k)
	g.LeftEar = advance(s.last.LeftEar, s.prev.LeftEar, k)
	g.RightEar = advance(s.last.RightEar, s.prev.RightEar, k)
	return g
}

func advance(last, prev geometry.Point, k float64) geometry.Point {
	return geometry.Point{
		X: last.X + (last.X-prev.X)*k,
		Y: last.Y + (last.Y-prev.Y)*k,
	}
}

// displacement measures how far the face moved between the last two
// detections, as the largest joint displacement in pixels.
func (s *Scheduler) displacement() float64 {
	d := dist(s.last.Nose, s.prev.Nose)
	if e := dist(s.last.LeftEar, s.prev.LeftEar); e > d {
		d = e
	}
	if e := dist(s.last.RightEar, s.prev.RightEar); e > d {
		d = e
	}
	return d
}

func dist(a, b geometry.Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// motionSignal computes the mean absolute luma difference against the
// previous frame, sampling every MotionStep-th pixel. The first frame
// always reads as full motion.
func (s *Scheduler) motionSignal(luma []byte) float64 {
	step := s.cfg.MotionStep
	n := (len(luma) + step - 1) / step

	if !s.haveSample || len(s.prevSample) != n {
		s.prevSample = make([]byte, n)
		for i := 0; i < n; i++ {
			s.prevSample[i] = luma[i*step]
		}
		s.haveSample = true
		return 255
	}

	var sum int
	for i := 0; i < n; i++ {
		v := luma[i*step]
		d := int(v) - int(s.prevSample[i])
		if d < 0 {
			d = -d
		}
		sum += d
		s.prevSample[i] = v
	}
	return float64(sum) / float64(n)
}
