// Package facemask redacts identifiable facial regions in video.
//
// It detects human pose keypoints per frame, derives a face-region
// polygon from the nose/ear geometry, rasterizes an opaque mask
// directly into the raw pixel planes and re-muxes the modified frames
// into a deliverable video file, optionally uploading the result to
// object storage.
//
// # Getting Started
//
// Create options, attach a pose estimator and run the redaction:
//
//	opts := facemask.NewOptions()
//	opts.InputPath = "interview.mp4"
//	opts.OutputPath = "interview-masked.mp4"
//	opts.Width = 1280
//	opts.Height = 720
//	opts.Estimator = estimator // e.g. pose.NewMoveNetEstimator(...)
//
//	report, err := facemask.Redact(context.Background(), opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("masked %d of %d frames in %s\n",
//	    report.FramesMasked, report.Frames, report.Elapsed)
//
// The heavy lifting lives in the subpackages: video (raw frame
// codec), geometry (mask contours), raster (scan-line fill), pose
// (detector adapter), schedule (detection scheduling), mask (the
// streaming masking pipeline), pipeline (ffmpeg stage coordination)
// and storage (S3 upload).
package facemask

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/facemask/mask"
	"github.com/opd-ai/facemask/pipeline"
	"github.com/opd-ai/facemask/pose"
	"github.com/opd-ai/facemask/storage"
)

// Error categories reported in Report.ErrorCategory.
const (
	CategoryConfig = "config"
	CategoryStage  = "stage"
	CategoryUpload = "upload"
)

// Options contains every configuration knob for a redaction run,
// fully enumerated with documented defaults. There are no silent
// option bags: NewOptions sets the defaults and Validate rejects
// anything the pipeline cannot run with before any stage starts.
type Options struct {
	// InputPath is the source video. Required.
	InputPath string
	// OutputPath is the deliverable video. Required.
	OutputPath string
	// Width and Height are the processing resolution. Both required
	// and must be even (chroma subsampling invariant). Dimensions are
	// never rounded; odd values are rejected outright.
	Width  int
	Height int
	// FPS forced on the decode and encode pipe boundaries. Default 25.
	FPS int
	// CRF is the x264 quality for the encode stage. Default 23.
	CRF int

	// Mask holds the masking-stage configuration (contour family,
	// thresholds, scheduling). Width/Height are copied in by Redact.
	Mask mask.Config

	// Estimator is the pose detector. Required.
	Estimator pose.Estimator

	// Upload, when non-nil, uploads the finished file.
	Upload *UploadOptions

	// OnProgress, when set, is invoked periodically with the number
	// of frames emitted so far while the pipeline runs.
	OnProgress func(frames uint64)
}

// UploadOptions configures the optional post-encode upload.
type UploadOptions struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string
	// Resume fields, forwarded to storage.Options.
	UploadID       string
	CompletedParts map[int64]string
}

// NewOptions returns Options with documented defaults. InputPath,
// OutputPath, Width, Height and Estimator must still be set.
func NewOptions() *Options {
	return &Options{
		FPS:  25,
		CRF:  23,
		Mask: mask.NewConfig(),
	}
}

// Validate fails fast on unusable options.
func (o *Options) Validate() error {
	if o == nil {
		return ErrNilOptions
	}
	if o.InputPath == "" {
		return ErrNoInput
	}
	if o.OutputPath == "" {
		return ErrNoOutput
	}
	if o.Estimator == nil {
		return ErrNoEstimator
	}
	if o.FPS <= 0 {
		return fmt.Errorf("%w: fps %d", ErrBadOption, o.FPS)
	}
	cfg := o.Mask
	cfg.Width = o.Width
	cfg.Height = o.Height
	if err := cfg.Validate(); err != nil {
		return err
	}
	if o.Upload != nil && o.Upload.Bucket == "" {
		return storage.ErrNoBucket
	}
	return nil
}

// Report is the machine-readable result of one redaction run. It is
// returned for failures as well, so callers always get structured
// stage results and the aggregated diagnostic log, never a bare
// crash.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration

	Frames       uint64
	FramesMasked uint64
	Detections   uint64

	Stages []pipeline.StageResult
	Log    []string

	Upload *storage.Result

	Success       bool
	ErrorCategory string
	Error         string
}

// Redact runs the full decode → mask → encode (→ upload) flow.
//
// The returned Report is non-nil whenever the configuration was
// valid, even on failure.
func Redact(ctx context.Context, opts *Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return &Report{
			StartedAt:     time.Now(),
			FinishedAt:    time.Now(),
			ErrorCategory: CategoryConfig,
			Error:         err.Error(),
		}, err
	}

	maskCfg := opts.Mask
	maskCfg.Width = opts.Width
	maskCfg.Height = opts.Height

	coord, err := pipeline.New(pipeline.Config{
		InputPath:  opts.InputPath,
		OutputPath: opts.OutputPath,
		FPS:        opts.FPS,
		CRF:        opts.CRF,
		Mask:       maskCfg,
		Estimator:  opts.Estimator,
	})
	if err != nil {
		return &Report{
			StartedAt:     time.Now(),
			FinishedAt:    time.Now(),
			ErrorCategory: CategoryConfig,
			Error:         err.Error(),
		}, err
	}

	report := &Report{StartedAt: time.Now()}

	var stopProgress chan struct{}
	if opts.OnProgress != nil {
		stopProgress = make(chan struct{})
		go func() {
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					opts.OnProgress(coord.Masker().FramesProcessed())
				case <-stopProgress:
					return
				}
			}
		}()
	}

	res, runErr := coord.Run(ctx)
	if stopProgress != nil {
		close(stopProgress)
		opts.OnProgress(coord.Masker().FramesProcessed())
	}

	report.Frames = coord.Masker().FramesProcessed()
	report.FramesMasked = coord.Masker().FramesMasked()
	report.Detections = coord.Masker().Detections()
	if res != nil {
		report.Stages = res.Stages
		report.Log = res.Log
	}

	if runErr != nil {
		report.finish(CategoryStage, runErr)
		return report, runErr
	}

	if opts.Upload != nil {
		upload, upErr := uploadResult(ctx, opts)
		report.Upload = upload
		if upErr != nil {
			report.finish(CategoryUpload, upErr)
			return report, upErr
		}
	}

	report.finish("", nil)
	logrus.WithFields(logrus.Fields{
		"function":      "Redact",
		"frames":        report.Frames,
		"frames_masked": report.FramesMasked,
		"elapsed":       report.Elapsed.String(),
	}).Info("Redaction completed")
	return report, nil
}

func uploadResult(ctx context.Context, opts *Options) (*storage.Result, error) {
	sopts := storage.Options{
		Bucket:         opts.Upload.Bucket,
		Region:         opts.Upload.Region,
		Endpoint:       opts.Upload.Endpoint,
		UploadID:       opts.Upload.UploadID,
		CompletedParts: opts.Upload.CompletedParts,
	}
	up, err := storage.NewUploader(sopts)
	if err != nil {
		return nil, err
	}
	key := opts.Upload.Key
	if key == "" {
		key = opts.OutputPath
	}
	return up.Upload(ctx, opts.OutputPath, key, sopts)
}

func (r *Report) finish(category string, err error) {
	r.FinishedAt = time.Now()
	r.Elapsed = r.FinishedAt.Sub(r.StartedAt)
	r.Success = err == nil
	r.ErrorCategory = category
	if err != nil {
		r.Error = err.Error()
	}
}
