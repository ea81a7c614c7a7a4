//go:build !withcv
// +build !withcv

package pose

// NewMoveNetEstimator is unavailable without the withcv build tag.
func NewMoveNetEstimator(modelPath string, inputSize int) (Estimator, error) {
	return nil, ErrBackendUnavailable
}
