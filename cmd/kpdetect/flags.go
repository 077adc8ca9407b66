// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"github.com/urfave/cli/v3"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/detector"
)

// settings holds the values shared by every command.
type settings struct {
	configPath   string
	backend      string
	expected     int64
	threshold    int64
	frames       int64
	pyramidDepth int64
	readbackMode string
	slots        int64
	seed         uint64
	logLevel     string
	metricsAddr  string
}

func commonFlags(s *settings) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to a YAML config file",
			Destination: &s.configPath,
		},
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "execution backend (auto, software, wgpu)",
			Value:       "auto",
			Destination: &s.backend,
		},
		&cli.Int64Flag{
			Name:        "expected",
			Aliases:     []string{"e"},
			Usage:       "number of keypoints the threshold tuner aims for (0 disables tuning)",
			Value:       300,
			Destination: &s.expected,
		},
		&cli.Int64Flag{
			Name:        "threshold",
			Usage:       "initial corner threshold in [1, 255]",
			Value:       detector.DefaultThreshold,
			Destination: &s.threshold,
		},
		&cli.Int64Flag{
			Name:        "frames",
			Aliases:     []string{"n"},
			Usage:       "number of frames to run",
			Value:       1,
			Destination: &s.frames,
		},
		&cli.Int64Flag{
			Name:        "pyramid-depth",
			Usage:       "octaves below native resolution",
			Value:       vision.DefaultPyramidDepth,
			Destination: &s.pyramidDepth,
		},
		&cli.StringFlag{
			Name:        "readback",
			Usage:       "readback mode (async, sync)",
			Value:       "async",
			Destination: &s.readbackMode,
		},
		&cli.Int64Flag{
			Name:        "slots",
			Usage:       "readback slots in async mode",
			Value:       vision.DefaultReadbackSlots,
			Destination: &s.slots,
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Usage:       "tuner random seed (0 for time based)",
			Destination: &s.seed,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "warn",
			Destination: &s.logLevel,
		},
		&cli.StringFlag{
			Name:        "metrics-addr",
			Usage:       "serve Prometheus metrics on this address while running",
			Destination: &s.metricsAddr,
		},
	}
}
