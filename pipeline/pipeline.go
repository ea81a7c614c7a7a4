// Package pipeline coordinates the decode, mask and encode stages as
// independently failable units connected by byte streams.
//
// The decoder and encoder are external ffmpeg subprocesses with a
// fixed argument contract (rawvideo frames over pipes); the masker
// runs in-process between them. All three stages run concurrently and
// are joined concurrently: data flows strictly downstream, errors and
// exit codes flow back up to the coordinator, which aggregates them
// into one Result with a fixed reporting precedence of
// decode > mask > encode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/facemask/mask"
	"github.com/opd-ai/facemask/pose"
)

// Stage names, in reporting precedence order.
const (
	StageDecode = "decode"
	StageMask   = "mask"
	StageEncode = "encode"
)

// killGrace is how long a stage gets to exit after a graceful
// termination signal before it is forcefully killed.
const killGrace = 5 * time.Second

// ErrStageFailed is wrapped by every stage-level failure.
var ErrStageFailed = errors.New("pipeline stage failed")

// StageResult is the terminal status of one stage.
type StageResult struct {
	Stage    string
	ExitCode int
	Signal   string // non-empty when the stage died to a signal
	Err      error
}

// Result aggregates the terminal state of all three stages.
type Result struct {
	Stages []StageResult // always decode, mask, encode order
	Log    []string
}

// Success reports whether every stage exited zero.
func (r *Result) Success() bool {
	for _, s := range r.Stages {
		if s.ExitCode != 0 || s.Err != nil {
			return false
		}
	}
	return true
}

// FirstFailure returns the failed stage with the highest reporting
// precedence, or nil on success.
func (r *Result) FirstFailure() *StageResult {
	for i := range r.Stages {
		if r.Stages[i].ExitCode != 0 || r.Stages[i].Err != nil {
			return &r.Stages[i]
		}
	}
	return nil
}

// Config describes one end-to-end transcode-and-mask run.
type Config struct {
	// InputPath is the source video file.
	InputPath string
	// OutputPath is the deliverable video file.
	OutputPath string
	// FPS is the frame rate forced on both pipe boundaries.
	FPS int
	// CRF is the x264 quality parameter for the encode stage.
	CRF int
	// Mask configures the in-process masking stage.
	Mask mask.Config
	// Estimator is the pose detector the masking stage uses.
	Estimator pose.Estimator
}

// Coordinator runs the three-stage pipeline.
type Coordinator struct {
	cfg    Config
	masker *mask.Masker
	log    *stageLog
}

// New validates the configuration and prepares a coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.InputPath == "" || cfg.OutputPath == "" {
		return nil, fmt.Errorf("input and output paths are required")
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %d", cfg.FPS)
	}
	m, err := mask.New(cfg.Mask, cfg.Estimator)
	if err != nil {
		return nil, err
	}
	return &Coordinator{cfg: cfg, masker: m, log: &stageLog{}}, nil
}

// Masker exposes the masking stage for progress inspection.
func (c *Coordinator) Masker() *mask.Masker {
	return c.masker
}

// Run executes the pipeline and blocks until all three stages reach a
// terminal state. It never times out on its own; callers wanting an
// overall deadline wrap ctx.
//
// On any spawn failure or non-zero terminal status the remaining
// stages are terminated gracefully, escalating to a kill after the
// grace period. The encoder writes to a temporary file (mp4 needs a
// seekable sink); the temp artifact is removed on every path and the
// finished file is moved to OutputPath only on success.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	logrus.WithFields(logrus.Fields{
		"function": "Coordinator.Run",
		"input":    c.cfg.InputPath,
		"output":   c.cfg.OutputPath,
		"fps":      c.cfg.FPS,
	}).Info("Starting masking pipeline")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	size := fmt.Sprintf("%dx%d", c.cfg.Mask.Width, c.cfg.Mask.Height)
	pixFmt := c.cfg.Mask.Format.String()

	// decode stdout -> masker stdin, masker stdout -> encode stdin.
	decR, decW := io.Pipe()
	encR, encW := io.Pipe()

	tmpOut := filepath.Join(filepath.Dir(c.cfg.OutputPath),
		".facemask-"+uuid.NewString()+filepath.Ext(c.cfg.OutputPath))
	defer func() {
		// Guaranteed cleanup of the encode artifact on every path;
		// on success the rename has already moved it away.
		if err := os.Remove(tmpOut); err != nil && !os.IsNotExist(err) {
			logrus.WithFields(logrus.Fields{
				"function": "Coordinator.Run",
				"temp":     tmpOut,
				"error":    err,
			}).Warn("Failed to remove temporary encode artifact")
		}
	}()

	decErr := newStageWriter(StageDecode, c.log)
	encErr := newStageWriter(StageEncode, c.log)

	decCmd := ffmpeg.Input(c.cfg.InputPath).
		Output("pipe:1", ffmpeg.KwArgs{
			"format":  "rawvideo",
			"pix_fmt": pixFmt,
			"s":       size,
			"r":       c.cfg.FPS,
		}).
		WithOutput(decW).
		WithErrorOutput(decErr).
		Compile()

	encCmd := ffmpeg.Input("pipe:0", ffmpeg.KwArgs{
		"format":  "rawvideo",
		"pix_fmt": pixFmt,
		"s":       size,
		"r":       c.cfg.FPS,
	}).
		Output(tmpOut, ffmpeg.KwArgs{
			"c:v":     "libx264",
			"crf":     c.cfg.CRF,
			"pix_fmt": "yuv420p",
		}).
		OverWriteOutput().
		WithInput(encR).
		WithErrorOutput(encErr).
		Compile()

	results := make([]StageResult, 3)
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		defer decW.Close()
		defer decErr.flush()
		results[0] = c.runProcess(ctx, StageDecode, decCmd)
		if results[0].Err != nil {
			cancel()
		}
	}()

	go func() {
		defer wg.Done()
		defer encW.Close()
		results[1] = c.runMask(ctx, decR, encW)
		if results[1].Err != nil {
			cancel()
			// Unblock both neighbors: the decoder if it is still
			// writing, the encoder if it is still reading.
			decR.CloseWithError(results[1].Err)
			encW.CloseWithError(results[1].Err)
		}
	}()

	go func() {
		defer wg.Done()
		defer encErr.flush()
		results[2] = c.runProcess(ctx, StageEncode, encCmd)
		if results[2].Err != nil {
			cancel()
			encR.CloseWithError(results[2].Err)
		}
	}()

	wg.Wait()

	res := &Result{Stages: results, Log: c.log.Lines()}
	if !res.Success() {
		f := res.FirstFailure()
		logrus.WithFields(logrus.Fields{
			"function":  "Coordinator.Run",
			"stage":     f.Stage,
			"exit_code": f.ExitCode,
		}).Error("Pipeline failed")
		return res, fmt.Errorf("%w: %s (exit %d)", ErrStageFailed, f.Stage, f.ExitCode)
	}

	if err := os.Rename(tmpOut, c.cfg.OutputPath); err != nil {
		return res, fmt.Errorf("moving encoded output into place: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Coordinator.Run",
		"frames":   c.masker.FramesProcessed(),
		"output":   c.cfg.OutputPath,
	}).Info("Pipeline completed")
	return res, nil
}

// runMask executes the in-process masking stage between the two pipes.
func (c *Coordinator) runMask(ctx context.Context, r io.Reader, w io.Writer) StageResult {
	res := StageResult{Stage: StageMask}
	if err := c.masker.Run(ctx, r, w); err != nil {
		c.log.append(StageMask, err.Error())
		res.ExitCode = 1
		res.Err = fmt.Errorf("%w: %s: %v", ErrStageFailed, StageMask, err)
	}
	return res
}

// runProcess starts one external stage and waits for it, translating
// spawn failures, exit codes and signals into a StageResult. When ctx
// is cancelled while the process still runs, it is terminated
// gracefully and killed after the grace period.
func (c *Coordinator) runProcess(ctx context.Context, stage string, cmd *exec.Cmd) StageResult {
	res := StageResult{Stage: stage}

	if err := cmd.Start(); err != nil {
		c.log.append(stage, "spawn failed: "+err.Error())
		res.ExitCode = -1
		res.Err = fmt.Errorf("%w: %s spawn: %v", ErrStageFailed, stage, err)
		return res
	}

	logrus.WithFields(logrus.Fields{
		"function": "Coordinator.runProcess",
		"stage":    stage,
		"pid":      cmd.Process.Pid,
	}).Debug("Stage process started")

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		logrus.WithFields(logrus.Fields{
			"function": "Coordinator.runProcess",
			"stage":    stage,
		}).Info("Terminating stage")
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case waitErr = <-done:
		case <-time.After(killGrace):
			logrus.WithFields(logrus.Fields{
				"function": "Coordinator.runProcess",
				"stage":    stage,
			}).Warn("Stage did not exit in grace period, killing")
			_ = cmd.Process.Kill()
			waitErr = <-done
		}
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				res.Signal = status.Signal().String()
			}
		} else {
			res.ExitCode = -1
		}
		res.Err = fmt.Errorf("%w: %s: %v", ErrStageFailed, stage, waitErr)
	}
	return res
}
