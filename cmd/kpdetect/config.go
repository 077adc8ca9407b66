// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/vision"
)

// Config represents a kpdetect configuration file.
// All fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	Backend      string  `yaml:"backend"`
	Expected     *int64  `yaml:"expected"`
	Threshold    *int64  `yaml:"threshold"`
	Frames       *int64  `yaml:"frames"`
	PyramidDepth *int64  `yaml:"pyramid_depth"`
	Readback     string  `yaml:"readback"`
	Slots        *int64  `yaml:"slots"`
	Seed         *uint64 `yaml:"seed"`

	// Tuning overrides
	LearningRate        *float64 `yaml:"learning_rate"`
	ReversalProbability *float64 `yaml:"reversal_probability"`
	Tolerance           *float64 `yaml:"tolerance"`

	// Output
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// LoadConfig reads a config file. An empty path yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// apply copies config file values into s when the corresponding CLI flag
// was not explicitly set.
func (cfg Config) apply(c *cli.Command, s *settings) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		s.backend = cfg.Backend
	}
	if cfg.Expected != nil && !c.IsSet("expected") {
		s.expected = *cfg.Expected
	}
	if cfg.Threshold != nil && !c.IsSet("threshold") {
		s.threshold = *cfg.Threshold
	}
	if cfg.Frames != nil && !c.IsSet("frames") {
		s.frames = *cfg.Frames
	}
	if cfg.PyramidDepth != nil && !c.IsSet("pyramid-depth") {
		s.pyramidDepth = *cfg.PyramidDepth
	}
	if cfg.Readback != "" && !c.IsSet("readback") {
		s.readbackMode = cfg.Readback
	}
	if cfg.Slots != nil && !c.IsSet("slots") {
		s.slots = *cfg.Slots
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		s.seed = *cfg.Seed
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		s.logLevel = cfg.LogLevel
	}
	if cfg.MetricsAddr != "" && !c.IsSet("metrics-addr") {
		s.metricsAddr = cfg.MetricsAddr
	}
}

// visionConfig builds and validates the pipeline configuration.
func (cfg Config) visionConfig(s *settings) (vision.Config, error) {
	vc := vision.DefaultConfig()
	vc.PyramidDepth = int(s.pyramidDepth)
	vc.ReadbackSlots = int(s.slots)
	vc.Seed = s.seed
	mode, err := vision.ParseReadbackMode(s.readbackMode)
	if err != nil {
		return vc, err
	}
	vc.ReadbackMode = mode
	if cfg.LearningRate != nil {
		vc.Tuning.LearningRate = *cfg.LearningRate
	}
	if cfg.ReversalProbability != nil {
		vc.Tuning.ReversalProbability = *cfg.ReversalProbability
	}
	if cfg.Tolerance != nil {
		vc.Tuning.Tolerance = *cfg.Tolerance
	}
	return vc, vc.Validate()
}
