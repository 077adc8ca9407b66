// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tuner

import (
	"github.com/gogpu/vision"
)

// Tuner searches an integer domain for the minimizer of a noisy cost that
// it can only observe.
//
// CurrentValue is the input to present to the observed system now.
// FeedObservation reports the cost measured at that input. Once a dwell
// of observations has been collected for the current value the tuner may
// move to another value.
type Tuner interface {
	CurrentValue() int
	FeedObservation(y float64)
	Finished() bool
}

// state is the bookkeeping shared by every tuner: the current value, the
// two before it, and a bucket of observations per admissible value.
type state struct {
	min, max int

	current          int
	previous         int
	previousPrevious int

	epoch      int
	iterations int

	buckets []*Bucket
}

func newState(lo, hi, initial int, cfg vision.TuningConfig) (state, error) {
	if lo > hi {
		return state{}, vision.Configf("new tuner", "", "empty range [%d, %d]", lo, hi)
	}
	if cfg.BucketSize < 1 {
		return state{}, vision.Configf("new tuner", "", "bucket size %d must be positive", cfg.BucketSize)
	}
	s := state{min: lo, max: hi}
	s.buckets = make([]*Bucket, hi-lo+1)
	for i := range s.buckets {
		s.buckets[i] = NewBucket(cfg.BucketSize, cfg.MedianWindow)
	}
	s.current = s.clamp(initial)
	s.previous = s.current
	s.previousPrevious = s.current
	return s, nil
}

func (s *state) clamp(v int) int { return min(max(v, s.min), s.max) }

func (s *state) bucket(v int) *Bucket { return s.buckets[v-s.min] }

// CurrentValue returns the value to present to the observed system.
func (s *state) CurrentValue() int { return s.current }

// Epoch returns the number of moves since the last reset.
func (s *state) Epoch() int { return s.epoch }

// Iterations returns the number of observations fed since the last move.
func (s *state) Iterations() int { return s.iterations }

// Range returns the admissible values.
func (s *state) Range() (lo, hi int) { return s.min, s.max }

// feed records y for the current value and reports the smoothed average
// once the dwell is complete.
func (s *state) feed(y float64) (avg float64, dwelled bool) {
	b := s.bucket(s.current)
	b.Put(y)
	s.iterations++
	if !b.Full() {
		return 0, false
	}
	return b.Average(), true
}

// advance moves to next and starts a fresh dwell there.
func (s *state) advance(next int) {
	s.previousPrevious = s.previous
	s.previous = s.current
	s.current = s.clamp(next)
	s.bucket(s.current).Reset()
	s.epoch++
	s.iterations = 0
}

func (s *state) reset() {
	for _, b := range s.buckets {
		b.Reset()
	}
	s.previous = s.current
	s.previousPrevious = s.current
	s.epoch = 0
	s.iterations = 0
}
