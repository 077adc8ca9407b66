// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command kpdetect detects keypoints in images and benchmarks the
// closed-loop keypoint pipeline.
//
//	kpdetect detect --image frame.png --expected 300 --frames 20
//	kpdetect bench --width 640 --height 480 --frames 200
//
// Both commands print a JSON report on stdout and log to stderr.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "kpdetect",
		Usage: "GPU keypoint detection and pipeline benchmarks",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			detectCmd(),
			benchCmd(),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
