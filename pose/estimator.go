package pose

import (
	"context"
	"errors"

	"github.com/opd-ai/facemask/video"
)

// ErrBackendUnavailable indicates the binary was built without the
// withcv tag, so no OpenCV-backed estimator exists.
var ErrBackendUnavailable = errors.New("pose backend unavailable: rebuild with -tags withcv")

// EstimateOptions tunes one estimation call.
type EstimateOptions struct {
	// MaxPoses caps the number of candidate poses returned.
	MaxPoses int
	// ScoreThreshold drops candidate poses below this overall score.
	ScoreThreshold float64
	// Flip mirrors keypoints horizontally, for detectors trained on
	// mirrored input.
	Flip bool
}

// Estimator is the adapter around an external keypoint detector.
//
// Implementations may allocate device-side state per call; they must
// release it unconditionally before returning, on success or failure.
// An Estimator is used sequentially within one masking pipeline: a
// second Estimate call never starts before the previous one returns.
type Estimator interface {
	// Estimate runs inference on the tensor and returns candidate
	// poses with canonical joint names, in detection-resolution
	// pixel coordinates.
	Estimate(ctx context.Context, t *video.Tensor, opts EstimateOptions) ([]Pose, error)

	// Close releases the underlying model context.
	Close() error
}

// StaticEstimator returns the same fixed poses on every call. It
// backs synthetic runs and tests, where the detector is fabricated.
type StaticEstimator struct {
	Poses []Pose
	Err   error

	calls int
}

// Estimate returns the configured poses (canonicalized) or error.
func (s *StaticEstimator) Estimate(_ context.Context, _ *video.Tensor, opts EstimateOptions) ([]Pose, error) {
	s.calls++
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]Pose, 0, len(s.Poses))
	for _, p := range s.Poses {
		if p.Score < opts.ScoreThreshold {
			continue
		}
		out = append(out, Canonicalize(p))
		if opts.MaxPoses > 0 && len(out) >= opts.MaxPoses {
			break
		}
	}
	return out, nil
}

// Calls returns how many times Estimate ran.
func (s *StaticEstimator) Calls() int {
	return s.calls
}

// Close is a no-op.
func (s *StaticEstimator) Close() error {
	return nil
}
