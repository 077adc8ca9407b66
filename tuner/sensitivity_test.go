// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tuner

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/vision"
)

// keypoints models a detector: the count falls exponentially with the
// threshold.
func keypoints(threshold int) float64 {
	return 1000 * math.Exp(-float64(threshold)/30)
}

func TestSensitivityConverges(t *testing.T) {
	cfg := vision.DefaultTuningConfig()
	for _, initial := range []int{1, 20, 128, 250} {
		s, err := NewSensitivity(1, 255, initial, 0.1, cfg, rand.New(rand.NewPCG(9, uint64(initial))))
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 4000 && !s.Finished(); i++ {
			s.FeedExpected(keypoints(s.CurrentValue()), 100)
		}
		if !s.Finished() {
			best, mse := s.Best()
			t.Fatalf("initial %d: not finished, best %d with RMS error %v", initial, best, math.Sqrt(mse))
		}
		best, mse := s.Best()
		if math.Sqrt(mse) > 0.1 {
			t.Errorf("initial %d: best %d has RMS error %v", initial, best, math.Sqrt(mse))
		}
		if n := keypoints(best); n < 90 || n > 110 {
			t.Errorf("initial %d: best threshold %d gives %v keypoints", initial, best, n)
		}
	}
}

func TestSensitivityResetsOnNewTarget(t *testing.T) {
	cfg := vision.DefaultTuningConfig()
	s, err := NewSensitivity(1, 255, 20, 0.01, cfg, rand.New(rand.NewPCG(5, 5)))
	if err != nil {
		t.Fatal(err)
	}
	if s.Finished() {
		t.Fatal("finished before any observation")
	}
	for i := 0; i < 3*cfg.BucketSize+2; i++ {
		s.FeedExpected(keypoints(s.CurrentValue()), 100)
	}
	if s.Epoch() == 0 || s.Iterations() == 0 {
		t.Fatalf("no progress: epoch %d, iterations %d", s.Epoch(), s.Iterations())
	}
	at := s.CurrentValue()

	s.FeedExpected(keypoints(s.CurrentValue()), 50)
	if s.Epoch() != 0 || s.Iterations() != 0 {
		t.Errorf("after new target: epoch %d, iterations %d, want 0, 0", s.Epoch(), s.Iterations())
	}
	if s.CurrentValue() != at || s.Expected() != 50 {
		t.Errorf("after new target: value %d, expected %v", s.CurrentValue(), s.Expected())
	}
	if _, mse := s.Best(); !math.IsInf(mse, 1) {
		t.Errorf("best error after reset = %v, want +Inf", mse)
	}

	// FeedObservation uses the current target.
	s.FeedObservation(keypoints(s.CurrentValue()))
	if s.Iterations() != 1 {
		t.Errorf("Iterations = %d, want 1", s.Iterations())
	}
}

func TestSensitivityTracksDrift(t *testing.T) {
	cfg := vision.DefaultTuningConfig()
	s, err := NewSensitivity(1, 255, 128, 0.1, cfg, rand.New(rand.NewPCG(11, 11)))
	if err != nil {
		t.Fatal(err)
	}
	gain := 1000.0
	system := func(th int) float64 { return gain * math.Exp(-float64(th)/30) }
	for i := 0; i < 4000 && !s.Finished(); i++ {
		s.FeedExpected(system(s.CurrentValue()), 100)
	}
	if !s.Finished() {
		t.Fatal("not finished before drift")
	}

	// The scene changes: the same threshold now yields twice as many
	// keypoints. Re-measuring the held value clears Finished.
	gain = 2000
	for i := 0; i < 2*cfg.BucketSize && s.Finished(); i++ {
		s.FeedExpected(system(s.CurrentValue()), 100)
	}
	if s.Finished() {
		t.Fatal("still finished after drift")
	}
	for i := 0; i < 4000 && !s.Finished(); i++ {
		s.FeedExpected(system(s.CurrentValue()), 100)
	}
	if !s.Finished() {
		t.Fatal("did not reconverge after drift")
	}
	if n := system(s.CurrentValue()); n < 80 || n > 120 {
		t.Errorf("after drift: threshold %d gives %v keypoints", s.CurrentValue(), n)
	}
}
