package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/opd-ai/facemask"
	"github.com/opd-ai/facemask/mask"
	"github.com/opd-ai/facemask/pose"
)

// maskFlags holds every CLI knob shared by the redact and pipe
// commands, mirroring facemask.Options one to one.
type maskFlags struct {
	Input  string
	Output string
	Width  int
	Height int
	FPS    int
	CRF    int

	ModelPath string
	ModelSize int
	LumaOnly  bool

	ScoreThreshold    float64
	MinPoseConfidence float64
	MaxPoses          int

	MaskScaleW      float64
	MaskScaleH      float64
	SamplesPerCurve int
	StrokeWidth     float64
	Contour         string
	ClipAboveNose   bool

	DetectEvery     int
	Adaptive        bool
	MotionThreshold float64
	Predict         bool
	DecayFactor     float64
	MaxSkipFrames   int

	UploadBucket   string
	UploadKey      string
	UploadRegion   string
	UploadEndpoint string
}

var redactFlags maskFlags

var redactCmd = &cobra.Command{
	Use:   "redact",
	Short: "Decode, mask and re-encode a video file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRedact(cmd.Context(), redactFlags)
	},
}

func init() {
	addMaskFlags(redactCmd, &redactFlags)
	redactCmd.Flags().StringVarP(&redactFlags.Input, "input", "i", "", "Path to source video")
	redactCmd.Flags().StringVarP(&redactFlags.Output, "output", "o", "", "Path to masked output video")
	redactCmd.Flags().IntVar(&redactFlags.FPS, "fps", 25, "Frame rate at the pipe boundaries")
	redactCmd.Flags().IntVar(&redactFlags.CRF, "crf", 23, "x264 quality (lower is better)")
	redactCmd.Flags().StringVar(&redactFlags.UploadBucket, "upload-bucket", "", "Upload the result to this S3 bucket")
	redactCmd.Flags().StringVar(&redactFlags.UploadKey, "upload-key", "", "Destination object key (defaults to the output filename)")
	redactCmd.Flags().StringVar(&redactFlags.UploadRegion, "upload-region", "", "Bucket region")
	redactCmd.Flags().StringVar(&redactFlags.UploadEndpoint, "upload-endpoint", "", "Custom S3 endpoint")
	redactCmd.MarkFlagRequired("input")
	redactCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(redactCmd)
}

// addMaskFlags registers the flags common to every masking command.
func addMaskFlags(c *cobra.Command, f *maskFlags) {
	c.Flags().IntVar(&f.Width, "width", 0, "Frame width (even, required)")
	c.Flags().IntVar(&f.Height, "height", 0, "Frame height (even, required)")
	c.Flags().StringVar(&f.ModelPath, "model", "", "Path to the MoveNet ONNX model")
	c.Flags().IntVar(&f.ModelSize, "model-size", mask.DefaultDetectSize, "Square model input edge")
	c.Flags().BoolVar(&f.LumaOnly, "luma-only", false, "Feed the detector grayscale input")
	c.Flags().Float64Var(&f.ScoreThreshold, "score-threshold", mask.DefaultScoreThreshold, "Minimum keypoint confidence for nose and ears")
	c.Flags().Float64Var(&f.MinPoseConfidence, "min-pose-confidence", mask.DefaultMinPoseScore, "Minimum overall pose confidence")
	c.Flags().IntVar(&f.MaxPoses, "max-poses", mask.DefaultMaxPoses, "Maximum poses per frame")
	c.Flags().Float64Var(&f.MaskScaleW, "mask-scale-w", 1.0, "Mask width scale")
	c.Flags().Float64Var(&f.MaskScaleH, "mask-scale-h", 1.0, "Mask height scale")
	c.Flags().IntVar(&f.SamplesPerCurve, "samples", mask.DefaultSamplesPerCurve, "Samples per contour curve")
	c.Flags().Float64Var(&f.StrokeWidth, "stroke-width", 0, "Outline thickness in pixels (0 disables)")
	c.Flags().StringVar(&f.Contour, "contour", "liquid", "Contour family: liquid or superellipse")
	c.Flags().BoolVar(&f.ClipAboveNose, "clip-above-nose", false, "Mask nose-and-above only")
	c.Flags().IntVar(&f.DetectEvery, "detect-every", 1, "Run detection every Nth frame")
	c.Flags().BoolVar(&f.Adaptive, "adaptive", false, "Motion-gated detection skipping")
	c.Flags().Float64Var(&f.MotionThreshold, "motion-threshold", 6.0, "Mean luma difference forcing detection")
	c.Flags().BoolVar(&f.Predict, "predict", false, "Extrapolate skipped frames")
	c.Flags().Float64Var(&f.DecayFactor, "decay", 0.8, "Prediction confidence decay per skipped frame")
	c.Flags().IntVar(&f.MaxSkipFrames, "max-skip", 3, "Maximum consecutive predicted frames")
	c.MarkFlagRequired("width")
	c.MarkFlagRequired("height")
}

// maskConfig translates flags into a mask.Config.
func (f *maskFlags) maskConfig() (mask.Config, error) {
	cfg := mask.NewConfig()
	cfg.Width = f.Width
	cfg.Height = f.Height
	cfg.DetectSize = f.ModelSize
	cfg.LumaOnly = f.LumaOnly
	cfg.MaxPoses = f.MaxPoses
	cfg.ScoreThreshold = f.ScoreThreshold
	cfg.MinPoseConfidence = f.MinPoseConfidence
	cfg.MaskScaleW = f.MaskScaleW
	cfg.MaskScaleH = f.MaskScaleH
	cfg.SamplesPerCurve = f.SamplesPerCurve
	cfg.StrokeWidth = f.StrokeWidth
	cfg.ClipAboveNose = f.ClipAboveNose

	switch f.Contour {
	case "liquid":
		cfg.Contour = mask.ContourLiquid
	case "superellipse":
		cfg.Contour = mask.ContourSuperellipse
	default:
		return cfg, fmt.Errorf("unknown contour family %q", f.Contour)
	}

	cfg.Schedule.DetectEvery = f.DetectEvery
	cfg.Schedule.Adaptive = f.Adaptive
	cfg.Schedule.MotionThreshold = f.MotionThreshold
	cfg.Schedule.Predict = f.Predict
	cfg.Schedule.DecayFactor = f.DecayFactor
	cfg.Schedule.MaxSkipFrames = f.MaxSkipFrames
	return cfg, nil
}

func (f *maskFlags) estimator() (pose.Estimator, error) {
	if f.ModelPath == "" {
		return nil, fmt.Errorf("--model is required")
	}
	return pose.NewMoveNetEstimator(f.ModelPath, f.ModelSize)
}

func runRedact(parent context.Context, f maskFlags) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	maskCfg, err := f.maskConfig()
	if err != nil {
		return err
	}
	est, err := f.estimator()
	if err != nil {
		return err
	}
	defer est.Close()

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription("Masking"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
	)

	opts := facemask.NewOptions()
	opts.InputPath = f.Input
	opts.OutputPath = f.Output
	opts.Width = f.Width
	opts.Height = f.Height
	opts.FPS = f.FPS
	opts.CRF = f.CRF
	opts.Mask = maskCfg
	opts.Estimator = est
	opts.OnProgress = func(frames uint64) {
		_ = bar.Set64(int64(frames))
	}
	if f.UploadBucket != "" {
		opts.Upload = &facemask.UploadOptions{
			Bucket:   f.UploadBucket,
			Key:      f.UploadKey,
			Region:   f.UploadRegion,
			Endpoint: f.UploadEndpoint,
		}
	}

	report, err := facemask.Redact(ctx, opts)
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	if err != nil {
		fmt.Fprintf(os.Stderr, "redaction failed (%s): %v\n", report.ErrorCategory, report.Error)
		for _, line := range report.Log {
			fmt.Fprintln(os.Stderr, line)
		}
		return err
	}

	fmt.Printf("masked %d of %d frames in %s (%d detections)\n",
		report.FramesMasked, report.Frames, report.Elapsed.Round(10*time.Millisecond), report.Detections)
	if report.Upload != nil {
		fmt.Printf("uploaded to s3://%s/%s (etag %s)\n",
			report.Upload.Bucket, report.Upload.Key, report.Upload.ETag)
	}
	return nil
}
