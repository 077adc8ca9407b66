// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package detector

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "vision"
	subsystem = "detector"
)

// Metrics exports the state of the detection loop.
type Metrics struct {
	frames        prometheus.Counter
	keypoints     prometheus.Gauge
	expected      prometheus.Gauge
	threshold     prometheus.Gauge
	encoderLength prometheus.Gauge
	maxIterations prometheus.Gauge
	latency       prometheus.Histogram
}

// NewMetrics creates the detector collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_total",
			Help:      "Number of frames processed.",
		}),
		keypoints:     gauge("keypoints", "Keypoints found in the last frame."),
		expected:      gauge("expected_keypoints", "Keypoint count the threshold tuner aims for."),
		threshold:     gauge("threshold", "Corner threshold used for the last frame."),
		encoderLength: gauge("encoder_length", "Side of the keypoint encoder texture."),
		maxIterations: gauge("offset_iterations", "Skip cap of the encoder offsets pass."),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "readback_seconds",
			Help:      "Time from readback request to pickup.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	if reg == nil {
		return m, nil
	}
	var errs []error
	for _, c := range m.collectors() {
		errs = append(errs, reg.Register(c))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.frames, m.keypoints, m.expected, m.threshold,
		m.encoderLength, m.maxIterations, m.latency,
	}
}

// Unregister removes the collectors from reg.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

type frameStats struct {
	keypoints     int
	expected      int
	threshold     int
	encoderLength int
	maxIterations int
	latency       time.Duration
}

func (m *Metrics) observe(s frameStats) {
	if m == nil {
		return
	}
	m.frames.Inc()
	m.keypoints.Set(float64(s.keypoints))
	m.expected.Set(float64(s.expected))
	m.threshold.Set(float64(s.threshold))
	m.encoderLength.Set(float64(s.encoderLength))
	m.maxIterations.Set(float64(s.maxIterations))
	m.latency.Observe(s.latency.Seconds())
}
