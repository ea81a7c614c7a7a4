package facemask

import "errors"

// Sentinel errors for option validation. These enable reliable error
// classification using errors.Is().
var (
	// ErrNilOptions indicates Redact was called with nil options.
	ErrNilOptions = errors.New("options must not be nil")

	// ErrNoInput indicates the input path is unset.
	ErrNoInput = errors.New("input path is required")

	// ErrNoOutput indicates the output path is unset.
	ErrNoOutput = errors.New("output path is required")

	// ErrNoEstimator indicates no pose estimator was supplied.
	ErrNoEstimator = errors.New("pose estimator is required")

	// ErrBadOption indicates an out-of-range option value.
	ErrBadOption = errors.New("invalid option value")
)
