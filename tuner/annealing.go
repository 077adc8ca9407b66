// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tuner

import (
	"math"
	"math/rand/v2"

	"github.com/gogpu/vision"
)

// NeighborFunc proposes a value near v. temperature falls from the initial
// temperature towards zero as the search cools.
type NeighborFunc func(v int, temperature float64, rng *rand.Rand) int

// Annealing minimizes a cost by simulated annealing. Improving proposals
// are always accepted and worsening ones with probability exp(-Δ/T). The
// temperature is multiplied by the cooling factor every K dwells and the
// search ends, at the best value seen, when it drops to epsilon.
type Annealing struct {
	state

	rng      *rand.Rand
	neighbor NeighborFunc

	t0          float64
	temperature float64
	cooling     float64
	dwells      int
	period      int
	epsilon     float64

	hasAccepted  bool
	accepted     int
	acceptedCost float64

	best     int
	bestCost float64
	finished bool
}

var _ Tuner = (*Annealing)(nil)

// AnnealingOption configures an Annealing tuner.
type AnnealingOption func(*Annealing)

// WithNeighbor replaces the default neighbor function, which draws
// uniformly within a radius shrinking with the temperature.
func WithNeighbor(fn NeighborFunc) AnnealingOption {
	return func(a *Annealing) { a.neighbor = fn }
}

// NewAnnealing returns an annealing tuner over [lo, hi] starting at
// initial. Cooling parameters come from cfg.
func NewAnnealing(lo, hi, initial int, cfg vision.TuningConfig, rng *rand.Rand, opts ...AnnealingOption) (*Annealing, error) {
	s, err := newState(lo, hi, initial, cfg)
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.AnnealingTemperature <= 0:
		return nil, vision.Configf("new annealing", "", "temperature %v must be positive", cfg.AnnealingTemperature)
	case cfg.AnnealingCooling <= 0 || cfg.AnnealingCooling >= 1:
		return nil, vision.Configf("new annealing", "", "cooling %v out of range (0, 1)", cfg.AnnealingCooling)
	case cfg.AnnealingDwells < 1:
		return nil, vision.Configf("new annealing", "", "dwells %d must be positive", cfg.AnnealingDwells)
	}
	a := &Annealing{
		state:       s,
		rng:         rng,
		t0:          cfg.AnnealingTemperature,
		temperature: cfg.AnnealingTemperature,
		cooling:     cfg.AnnealingCooling,
		period:      cfg.AnnealingDwells,
		epsilon:     cfg.AnnealingEpsilon,
		bestCost:    math.Inf(1),
	}
	a.neighbor = a.defaultNeighbor
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Annealing) defaultNeighbor(v int, temperature float64, rng *rand.Rand) int {
	r := max(1, int(math.Round(float64(a.max-a.min)/4*temperature/a.t0)))
	return v + rng.IntN(2*r+1) - r
}

// Temperature returns the current temperature.
func (a *Annealing) Temperature() float64 { return a.temperature }

// Best returns the lowest-cost value seen and its cost.
func (a *Annealing) Best() (int, float64) { return a.best, a.bestCost }

// Finished reports whether the search has cooled down.
func (a *Annealing) Finished() bool { return a.finished }

// FeedObservation records the cost of the current value.
func (a *Annealing) FeedObservation(y float64) {
	if a.finished {
		return
	}
	cost, ok := a.feed(y)
	if !ok {
		return
	}

	if !a.hasAccepted || cost <= a.acceptedCost ||
		a.rng.Float64() < math.Exp(-(cost-a.acceptedCost)/a.temperature) {
		a.hasAccepted = true
		a.accepted, a.acceptedCost = a.current, cost
	}
	if cost < a.bestCost {
		a.best, a.bestCost = a.current, cost
	}

	a.dwells++
	if a.dwells%a.period == 0 {
		a.temperature *= a.cooling
	}
	if a.temperature <= a.epsilon {
		a.finished = true
		a.advance(a.best)
		return
	}
	a.advance(a.neighbor(a.accepted, a.temperature, a.rng))
}

// Restart starts a new search from the current value, forgetting every
// cost seen so far.
func (a *Annealing) Restart() {
	a.temperature = a.t0
	a.dwells = 0
	a.finished = false
	a.hasAccepted = false
	a.bestCost = math.Inf(1)
	a.reset()
}
