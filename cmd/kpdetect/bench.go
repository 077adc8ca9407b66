// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/urfave/cli/v3"
	"gonum.org/v1/gonum/stat"

	"github.com/gogpu/vision/detector"
	"github.com/gogpu/vision/engine"
)

func benchCmd() *cli.Command {
	var (
		s       settings
		width   int64
		height  int64
		cell    int64
		history bool
	)
	flags := append(commonFlags(&s),
		&cli.Int64Flag{
			Name:        "width",
			Usage:       "frame width",
			Value:       320,
			Destination: &width,
		},
		&cli.Int64Flag{
			Name:        "height",
			Usage:       "frame height",
			Value:       240,
			Destination: &height,
		},
		&cli.Int64Flag{
			Name:        "cell",
			Usage:       "checkerboard cell size in pixels",
			Value:       16,
			Destination: &cell,
		},
		&cli.BoolFlag{
			Name:        "history",
			Usage:       "include every frame in the report",
			Destination: &history,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Run a synthetic moving checkerboard through the closed loop",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !cmd.IsSet("frames") {
				s.frames = 100
			}
			if width < 8 || height < 8 || cell < 2 {
				return cli.Exit("error: frame must be at least 8x8 and cell at least 2", 1)
			}
			ss, err := newSession(cmd, &s)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer ss.Close()

			rep, err := runBench(ctx, ss, int(width), int(height), int(cell))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: bench: %v", err), 1)
			}
			if !history {
				rep.History = nil
			}
			return writeJSON(cmd.Root().Writer, rep)
		},
	}
}

// checkerboard returns RGBA8 pixels of a checkerboard shifted by shift
// pixels along both axes.
func checkerboard(w, h, cell, shift int) []byte {
	pix := make([]byte, w*h*4)
	for y := range h {
		for x := range w {
			v := byte(40)
			if ((x+shift)/cell+(y+shift)/cell)%2 == 0 {
				v = 215
			}
			i := (y*w + x) * 4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 255
		}
	}
	return pix
}

func runBench(ctx context.Context, ss *session, w, h, cell int) (*benchReport, error) {
	tex, err := engine.NewTexture(ss.gpu, w, h, checkerboard(w, h, cell, 0))
	if err != nil {
		return nil, err
	}
	defer tex.Release()

	d, err := detector.New(ss.gpu, ss.vision, w, h, ss.options()...)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	n := int(ss.settings.frames)
	rep := &benchReport{
		RunID:    ss.id,
		Backend:  ss.backend.Name(),
		Width:    w,
		Height:   h,
		Expected: int(ss.settings.expected),
		Frames:   n,
		Settled:  -1,
	}
	latencies := make([]float64, 0, n)
	start := time.Now()
	for i := range n {
		if err := tex.Write(checkerboard(w, h, cell, i%cell)); err != nil {
			return nil, err
		}
		t0 := time.Now()
		kps, err := d.Detect(ctx, tex)
		if err != nil {
			return nil, err
		}
		f := frameOf(i, d, len(kps), time.Since(t0))
		latencies = append(latencies, f.LatencyMS)
		rep.History = append(rep.History, f)
		if rep.Settled < 0 && settled(f.Keypoints, rep.Expected, ss.vision.Tuning.Tolerance) {
			rep.Settled = i
		}
		rep.Final = f
	}
	elapsed := time.Since(start)
	rep.Elapsed = elapsed.String()
	rep.FPS = float64(n) / elapsed.Seconds()
	rep.Latency = summarize(latencies)
	if rep.Metrics, err = ss.snapshot(); err != nil {
		return nil, err
	}
	ss.log.Info("kpdetect: bench done", "frames", n, "fps", rep.FPS, "threshold", rep.Final.Threshold)
	return rep, nil
}

// settled reports whether a keypoint count is within tolerance of the
// expected count.
func settled(n, expected int, tolerance float64) bool {
	if expected <= 0 {
		return false
	}
	return math.Abs(float64(n-expected)) <= tolerance*float64(expected)
}

func summarize(latencies []float64) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)
	return latencySummary{
		MeanMS: stat.Mean(sorted, nil),
		P50MS:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95MS:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
		MaxMS:  sorted[len(sorted)-1],
	}
}
