// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tuner

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gogpu/vision"
)

// Sensitivity tracks the value at which an observed quantity matches a
// caller-supplied expected value, such as the detector threshold that
// yields a target keypoint count. The target may change at any time.
//
// Each dwell averages the squared relative error at the current value.
// The next value is one step away, with the step proportional to the RMS
// error and jittered by a Gaussian factor. The direction follows the
// recent change of the error and is reversed at random to escape local
// minima.
type Sensitivity struct {
	state

	rng    *rand.Rand
	jitter distuv.Normal

	tolerance    float64
	learningRate float64
	reversal     float64
	worldScale   float64

	hasExpected bool
	expected    float64

	hasPrev   bool
	prevErr   float64
	direction int

	best    int
	bestErr float64
}

var _ Tuner = (*Sensitivity)(nil)

// SensitivityOption configures a Sensitivity tuner.
type SensitivityOption func(*Sensitivity)

// WithWorldScale sets the step size of a 100% RMS error before the
// learning rate is applied. It defaults to half the range.
func WithWorldScale(s float64) SensitivityOption {
	return func(t *Sensitivity) { t.worldScale = s }
}

// WithInitialDirection sets the direction of the first move: +1 or -1.
func WithInitialDirection(d int) SensitivityOption {
	return func(t *Sensitivity) {
		if d < 0 {
			t.direction = -1
		} else {
			t.direction = 1
		}
	}
}

// NewSensitivity returns a tuner over [lo, hi] starting at initial that
// reports Finished while the best value's RMS relative error is within
// tolerance.
func NewSensitivity(lo, hi, initial int, tolerance float64, cfg vision.TuningConfig, rng *rand.Rand, opts ...SensitivityOption) (*Sensitivity, error) {
	s, err := newState(lo, hi, initial, cfg)
	if err != nil {
		return nil, err
	}
	if tolerance < 0 {
		return nil, vision.Configf("new sensitivity", "", "negative tolerance %v", tolerance)
	}
	t := &Sensitivity{
		state:        s,
		rng:          rng,
		jitter:       distuv.Normal{Mu: 1, Sigma: cfg.JitterSigma, Src: rng},
		tolerance:    tolerance,
		learningRate: cfg.LearningRate,
		reversal:     cfg.ReversalProbability,
		worldScale:   float64(hi-lo) / 2,
		direction:    1,
		best:         s.current,
		bestErr:      math.Inf(1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Expected returns the current target.
func (t *Sensitivity) Expected() float64 { return t.expected }

// Best returns the value with the lowest mean squared relative error
// since the last reset, and that error.
func (t *Sensitivity) Best() (int, float64) { return t.best, t.bestErr }

// Finished reports whether the best value is within tolerance of the
// target. It may become false again when the observed system drifts.
func (t *Sensitivity) Finished() bool {
	return t.hasExpected && math.Sqrt(t.bestErr) <= t.tolerance
}

// FeedObservation records an observation against the current target.
func (t *Sensitivity) FeedObservation(y float64) {
	if !t.hasExpected {
		return
	}
	t.FeedExpected(y, t.expected)
}

// FeedExpected records an observation and the value it should have had.
// A change of the expected value resets the search at the current value
// and discards the observation.
func (t *Sensitivity) FeedExpected(observed, expected float64) {
	if !t.hasExpected || expected != t.expected {
		t.hasExpected = true
		t.expected = expected
		t.reset()
		t.hasPrev = false
		t.best, t.bestErr = t.current, math.Inf(1)
		return
	}

	rel := (observed - expected) / math.Max(math.Abs(expected), 1)
	mse, ok := t.feed(rel * rel)
	if !ok {
		return
	}
	if mse < t.bestErr || t.current == t.best {
		t.best, t.bestErr = t.current, mse
	}
	rms := math.Sqrt(mse)

	if t.hasPrev && t.current != t.previous {
		switch trend := (mse - t.prevErr) * float64(t.current-t.previous); {
		case trend > 0:
			t.direction = -1
		case trend < 0:
			t.direction = 1
		}
	}
	t.prevErr, t.hasPrev = mse, true

	if rms <= t.tolerance {
		// Hold while on target; the dwell restarts so drift is noticed.
		t.advance(t.current)
		return
	}
	if t.rng.Float64() < t.reversal {
		t.direction = -t.direction
	}
	step := max(1, int(math.Round(t.learningRate*rms*t.worldScale*math.Max(t.jitter.Rand(), 0))))
	t.advance(t.current + t.direction*step)
}
