package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opd-ai/facemask/mask"
)

var pipeFlags maskFlags

// pipeCmd runs the masking stage alone as a subprocess boundary:
// concatenated raw frames on stdin, the same frames masked in place
// on stdout, frame for frame, no framing bytes. This is the stage the
// coordinator would otherwise run in-process, exposed for wiring into
// external pipelines.
var pipeCmd = &cobra.Command{
	Use:   "pipe",
	Short: "Mask a raw frame stream from stdin to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipe(cmd.Context(), pipeFlags)
	},
}

func init() {
	addMaskFlags(pipeCmd, &pipeFlags)
	rootCmd.AddCommand(pipeCmd)
}

func runPipe(parent context.Context, f maskFlags) error {
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

	m, err := mask.New(maskCfg, est)
	if err != nil {
		return err
	}
	return m.Run(ctx, os.Stdin, os.Stdout)
}
