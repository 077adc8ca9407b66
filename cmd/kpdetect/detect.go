// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"time"

	// Image decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/urfave/cli/v3"

	"github.com/gogpu/vision/codec"
	"github.com/gogpu/vision/detector"
	"github.com/gogpu/vision/engine"
)

func detectCmd() *cli.Command {
	var (
		s         settings
		imagePath string
		all       bool
	)
	flags := append(commonFlags(&s),
		&cli.StringFlag{
			Name:        "image",
			Aliases:     []string{"i"},
			Usage:       "input image (png, jpeg, gif, bmp, tiff, webp)",
			Required:    true,
			Destination: &imagePath,
		},
		&cli.BoolFlag{
			Name:        "history",
			Usage:       "report every frame instead of the last one",
			Destination: &all,
		},
	)

	return &cli.Command{
		Name:  "detect",
		Usage: "Detect keypoints in an image",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			img, err := loadImage(imagePath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			ss, err := newSession(cmd, &s)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer ss.Close()

			rep, err := runDetect(ctx, ss, img)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: detect: %v", err), 1)
			}
			rep.Image = imagePath
			if !all && len(rep.Frames) > 1 {
				rep.Frames = rep.Frames[len(rep.Frames)-1:]
			}
			return writeJSON(cmd.Root().Writer, rep)
		},
	}
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// runDetect feeds the image through the detector settings.frames times so
// the tuners can settle, and reports the keypoints of the last frame.
func runDetect(ctx context.Context, ss *session, img image.Image) (*detectReport, error) {
	tex, err := engine.TextureFromImage(ss.gpu, img)
	if err != nil {
		return nil, err
	}
	defer tex.Release()

	w, h := tex.Size()
	d, err := detector.New(ss.gpu, ss.vision, w, h, ss.options()...)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	rep := &detectReport{
		RunID:    ss.id,
		Backend:  ss.backend.Name(),
		Width:    w,
		Height:   h,
		Expected: int(ss.settings.expected),
	}
	var kps []codec.Keypoint
	for i := range int(ss.settings.frames) {
		start := time.Now()
		kps, err = d.Detect(ctx, tex)
		if err != nil {
			return nil, err
		}
		rep.Frames = append(rep.Frames, frameOf(i, d, len(kps), time.Since(start)))
	}
	rep.Keypoints = keypoints(kps)
	if rep.Metrics, err = ss.snapshot(); err != nil {
		return nil, err
	}
	return rep, nil
}

func frameOf(i int, d *detector.Detector, n int, latency time.Duration) frame {
	return frame{
		Index:         i,
		Keypoints:     n,
		Threshold:     d.Threshold(),
		EncoderLength: d.Encoder().Length(),
		MaxIterations: d.Encoder().MaxIterations(),
		LatencyMS:     ms(latency),
	}
}
