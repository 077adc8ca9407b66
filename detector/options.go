// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package detector

import (
	"github.com/gogpu/vision/readback"
)

// Defaults used when no option overrides them.
const (
	// DefaultThreshold is the initial corner threshold on a 0-255 scale.
	DefaultThreshold = 20

	// DefaultCapacity is the encoder sizing used while no keypoint count
	// is expected.
	DefaultCapacity = 500

	// MinIterations is the lowest skip cap the iteration tuner explores.
	MinIterations = 8
)

// Option configures a Detector.
type Option func(*options)

type options struct {
	threshold int
	expected  int
	capacity  int
	metrics   *Metrics
	readback  []readback.Option
}

func defaultOptions() options {
	return options{
		threshold: DefaultThreshold,
		capacity:  DefaultCapacity,
	}
}

// WithThreshold sets the initial corner threshold, clamped to [1, 255].
func WithThreshold(t int) Option {
	return func(o *options) {
		o.threshold = min(max(t, 1), 255)
	}
}

// WithExpected enables threshold tuning toward n keypoints per frame.
func WithExpected(n int) Option {
	return func(o *options) {
		o.expected = max(n, 0)
	}
}

// WithCapacity sizes the encoder for n keypoints while no count is
// expected.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithMetrics publishes the loop state to m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithReadbackOptions forwards opts to the readback pipeline.
func WithReadbackOptions(opts ...readback.Option) Option {
	return func(o *options) {
		o.readback = append(o.readback, opts...)
	}
}
