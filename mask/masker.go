package mask

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/facemask/geometry"
	"github.com/opd-ai/facemask/pose"
	"github.com/opd-ai/facemask/raster"
	"github.com/opd-ai/facemask/schedule"
	"github.com/opd-ai/facemask/video"
)

// Masker is the per-stream masking state machine.
//
// It owns the reusable scratch buffers (detector tensor, scan-line
// intersections) and passes them down the call chain each frame;
// neither the geometry engine nor the rasterizer retains them.
type Masker struct {
	cfg   Config
	est   pose.Estimator
	sched *schedule.Scheduler

	tensor  *video.Tensor
	scratch *raster.Scratch
	lumaBuf []byte

	framesIn     atomic.Uint64
	framesMasked atomic.Uint64
	detections   atomic.Uint64
}

// New validates the configuration and builds a masker around the
// given estimator.
func New(cfg Config, est pose.Estimator) (*Masker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if est == nil {
		return nil, ErrNoEstimator
	}

	logrus.WithFields(logrus.Fields{
		"function":    "mask.New",
		"width":       cfg.Width,
		"height":      cfg.Height,
		"format":      cfg.Format.String(),
		"contour":     cfg.Contour.String(),
		"detect_size": cfg.DetectSize,
	}).Info("Creating frame masker")

	return &Masker{
		cfg:     cfg,
		est:     est,
		sched:   schedule.New(cfg.Schedule),
		tensor:  video.NewTensor(cfg.DetectSize, cfg.DetectSize),
		scratch: &raster.Scratch{},
	}, nil
}

// FramesProcessed returns the number of frames emitted so far. Safe
// to read from another goroutine while Run is in flight.
func (m *Masker) FramesProcessed() uint64 {
	return m.framesIn.Load()
}

// FramesMasked returns how many emitted frames carried a mask.
func (m *Masker) FramesMasked() uint64 {
	return m.framesMasked.Load()
}

// Detections returns how many inference calls ran.
func (m *Masker) Detections() uint64 {
	return m.detections.Load()
}

// Run consumes raw frames from r, masks them in place and writes them
// to w, frame for frame, same count and ordering.
//
// Writes block when downstream applies backpressure; no frame is ever
// dropped to relieve it. Cancellation via ctx stops reading new input
// after the in-flight frame is emitted. Any estimator or stream error
// terminates the run; the masker does not resume.
func (m *Masker) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	sr, err := video.NewStreamReader(r, m.cfg.Width, m.cfg.Height, m.cfg.Format)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Masker.Run",
		"frame_size": sr.FrameSize(),
	}).Info("Masking pipeline started")

	var frameIndex uint64
	for {
		if err := ctx.Err(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Masker.Run",
				"frames":   frameIndex,
			}).Info("Masking pipeline cancelled")
			return err
		}

		frame, err := sr.Next()
		if err == io.EOF {
			logrus.WithFields(logrus.Fields{
				"function":      "Masker.Run",
				"frames":        frameIndex,
				"frames_masked": m.framesMasked.Load(),
				"detections":    m.detections.Load(),
			}).Info("Masking pipeline drained")
			return nil
		}
		if err != nil {
			return err
		}
		frameIndex++

		if err := m.processFrame(ctx, frameIndex, frame); err != nil {
			return fmt.Errorf("frame %d: %w", frameIndex, err)
		}

		if _, err := w.Write(frame.Bytes()); err != nil {
			return fmt.Errorf("emitting frame %d: %w", frameIndex, err)
		}
		m.framesIn.Add(1)
	}
}

// processFrame runs the detect/fallback decision and rasterizes every
// resulting mask into the frame in place.
func (m *Masker) processFrame(ctx context.Context, frameIndex uint64, frame *video.Frame) error {
	var (
		geoms []pose.FaceGeometry
		ok    bool
	)

	m.lumaBuf = frame.Luma(m.lumaBuf)
	if m.sched.Decide(frameIndex, m.lumaBuf) {
		detected, err := m.detect(ctx, frame)
		if err != nil {
			return err
		}
		geoms = detected

		var primary pose.FaceGeometry
		if len(detected) > 0 {
			primary, ok = detected[0], true
		}
		fallback, found := m.sched.Detected(frameIndex, primary, ok)
		if !ok && found {
			geoms = append(geoms, fallback)
		}
	} else {
		fallback, found := m.sched.Skipped(frameIndex)
		if found {
			geoms = append(geoms, fallback)
		}
	}

	if len(geoms) == 0 {
		return nil // pass through unmasked
	}

	for _, g := range geoms {
		m.applyMask(frame, g)
	}
	m.framesMasked.Add(1)
	return nil
}

// detect runs pose inference and extracts face geometry for every
// valid pose, best pose first.
func (m *Masker) detect(ctx context.Context, frame *video.Frame) ([]pose.FaceGeometry, error) {
	if err := frame.FillTensor(m.tensor, m.cfg.LumaOnly); err != nil {
		return nil, err
	}

	poses, err := m.est.Estimate(ctx, m.tensor, pose.EstimateOptions{
		MaxPoses:       m.cfg.MaxPoses,
		ScoreThreshold: m.cfg.MinPoseConfidence,
	})
	m.detections.Add(1)
	if err != nil {
		return nil, fmt.Errorf("pose estimation: %w", err)
	}

	gcfg := pose.GeometryConfig{
		ScoreThreshold: m.cfg.ScoreThreshold,
		MaskScaleW:     m.cfg.MaskScaleW,
		MaskScaleH:     m.cfg.MaskScaleH,
		FrameWidth:     m.cfg.Width,
		FrameHeight:    m.cfg.Height,
	}
	scaleX := float64(m.cfg.Width) / float64(m.tensor.Width)
	scaleY := float64(m.cfg.Height) / float64(m.tensor.Height)

	var out []pose.FaceGeometry
	best := -1.0
	for _, p := range poses {
		if p.Score < m.cfg.MinPoseConfidence {
			continue
		}
		g, valid := pose.ExtractFaceGeometry(p, scaleX, scaleY, gcfg)
		if !valid {
			continue
		}
		// Keep the highest-scoring pose first; the scheduler tracks it.
		if p.Score > best {
			out = append([]pose.FaceGeometry{g}, out...)
			best = p.Score
		} else {
			out = append(out, g)
		}
	}
	return out, nil
}

// applyMask builds, transforms, clips and rasterizes one mask.
func (m *Masker) applyMask(frame *video.Frame, g pose.FaceGeometry) {
	local := m.buildContour(g)
	if len(local) < 3 {
		return
	}

	pts := geometry.Transform(local, g.Nose.X, g.Nose.Y, g.Angle)
	if m.cfg.ClipAboveNose {
		pts = geometry.ClipBelow(pts, g.Nose.Y)
	}
	if len(pts) < 3 {
		return
	}

	raster.DrawMask(frame, pts, m.cfg.StrokeWidth, m.scratch)
}

func (m *Masker) buildContour(g pose.FaceGeometry) []geometry.Point {
	switch m.cfg.Contour {
	case ContourSuperellipse:
		return geometry.SuperellipseContour(
			g.MaskWidth, g.MaskHeight, m.cfg.SamplesPerCurve*2,
			m.cfg.UpperExponent, m.cfg.LowerExponent,
			m.cfg.UpperScale, m.cfg.LowerScale)
	default:
		return geometry.LiquidContour(g.MaskWidth, g.MaskHeight, m.cfg.SamplesPerCurve)
	}
}
