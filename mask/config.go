package mask

import (
	"errors"
	"fmt"

	"github.com/opd-ai/facemask/schedule"
	"github.com/opd-ai/facemask/video"
)

// Configuration errors.
var (
	// ErrNoEstimator indicates a masker was created without a detector.
	ErrNoEstimator = errors.New("pose estimator is required")
)

// ContourFamily selects the mask outline construction.
type ContourFamily uint8

const (
	// ContourLiquid is the two-Bezier-arc rounded-trapezoid mask.
	ContourLiquid ContourFamily = iota
	// ContourSuperellipse is the sampled superellipse mask.
	ContourSuperellipse
)

// String returns the family name.
func (c ContourFamily) String() string {
	switch c {
	case ContourLiquid:
		return "liquid"
	case ContourSuperellipse:
		return "superellipse"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Defaults used by NewConfig.
const (
	DefaultDetectSize      = 192
	DefaultSamplesPerCurve = 24
	DefaultScoreThreshold  = 0.3
	DefaultMinPoseScore    = 0.25
	DefaultMaxPoses        = 1
)

// Superellipse shape defaults: tighter forehead, rounder chin.
const (
	DefaultUpperExponent = 3.0
	DefaultLowerExponent = 2.2
	DefaultUpperScale    = 0.85
	DefaultLowerScale    = 1.1
)

// Config enumerates every masking knob explicitly. Zero values are
// not silently defaulted; use NewConfig and override.
type Config struct {
	// Width and Height are the full frame dimensions. Both must be
	// even when Format is YUV420.
	Width  int
	Height int
	// Format is the raw pixel layout of the stream.
	Format video.PixelFormat

	// DetectSize is the square detector input edge.
	DetectSize int
	// LumaOnly feeds the detector grayscale duplicated across
	// channels instead of full YUV→RGB conversion.
	LumaOnly bool
	// MaxPoses caps candidate poses per inference call.
	MaxPoses int
	// ScoreThreshold is the minimum per-keypoint confidence for the
	// nose and ears of a valid face.
	ScoreThreshold float64
	// MinPoseConfidence is the minimum overall pose score.
	MinPoseConfidence float64

	// MaskScaleW and MaskScaleH scale the derived mask size.
	MaskScaleW float64
	MaskScaleH float64
	// SamplesPerCurve is the sample count per contour curve.
	SamplesPerCurve int
	// StrokeWidth draws a white outline when positive; zero disables.
	StrokeWidth float64
	// Contour selects the outline family.
	Contour ContourFamily
	// ClipAboveNose restricts the mask to the half-plane at or above
	// the nose row.
	ClipAboveNose bool

	// Superellipse shape knobs, ignored by the liquid contour.
	UpperExponent float64
	LowerExponent float64
	UpperScale    float64
	LowerScale    float64

	// Schedule configures the detection scheduler.
	Schedule schedule.Config
}

// NewConfig returns a Config with documented defaults for everything
// except Width and Height, which the caller must set.
func NewConfig() Config {
	return Config{
		Format:            video.FormatYUV420,
		DetectSize:        DefaultDetectSize,
		MaxPoses:          DefaultMaxPoses,
		ScoreThreshold:    DefaultScoreThreshold,
		MinPoseConfidence: DefaultMinPoseScore,
		MaskScaleW:        1.0,
		MaskScaleH:        1.0,
		SamplesPerCurve:   DefaultSamplesPerCurve,
		Contour:           ContourLiquid,
		UpperExponent:     DefaultUpperExponent,
		LowerExponent:     DefaultLowerExponent,
		UpperScale:        DefaultUpperScale,
		LowerScale:        DefaultLowerScale,
		Schedule:          schedule.NewConfig(),
	}
}

// Validate fails fast on configuration the pipeline cannot run with.
func (c *Config) Validate() error {
	if _, err := video.FrameSize(c.Width, c.Height, c.Format); err != nil {
		return err
	}
	if c.DetectSize <= 0 {
		return fmt.Errorf("detect size must be positive, got %d", c.DetectSize)
	}
	if c.SamplesPerCurve <= 0 {
		return fmt.Errorf("samples per curve must be positive, got %d", c.SamplesPerCurve)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold must be in [0,1], got %g", c.ScoreThreshold)
	}
	if c.MinPoseConfidence < 0 || c.MinPoseConfidence > 1 {
		return fmt.Errorf("min pose confidence must be in [0,1], got %g", c.MinPoseConfidence)
	}
	if c.MaskScaleW <= 0 || c.MaskScaleH <= 0 {
		return fmt.Errorf("mask scale must be positive, got %gx%g", c.MaskScaleW, c.MaskScaleH)
	}
	return nil
}
