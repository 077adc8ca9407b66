// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tuner

import (
	"math"

	"github.com/gogpu/vision"
)

// invPhi is 1/φ, the golden-section ratio.
var invPhi = (math.Sqrt(5) - 1) / 2

// GoldenSection minimizes a unimodal cost over an integer interval. Each
// step compares two interior points c < d and discards the part of the
// interval beyond the worse one. The surviving point keeps its cost, so
// every step after the first dwells on one new point only.
type GoldenSection struct {
	state

	a, b         int
	c, d         int
	fc, fd       float64
	haveC, haveD bool
	probingD     bool
	tolerance    int

	best     int
	bestCost float64
	finished bool
}

var _ Tuner = (*GoldenSection)(nil)

// NewGoldenSection returns a golden-section search over [lo, hi] that
// finishes once the interval is at most tolerance wide.
func NewGoldenSection(lo, hi, tolerance int, cfg vision.TuningConfig) (*GoldenSection, error) {
	s, err := newState(lo, hi, lo, cfg)
	if err != nil {
		return nil, err
	}
	g := &GoldenSection{
		state:     s,
		a:         lo,
		b:         hi,
		tolerance: max(tolerance, 1),
		best:      lo,
		bestCost:  math.Inf(1),
	}
	if g.b-g.a <= g.tolerance {
		g.finished = true
		g.current = (g.a + g.b) / 2
		return g, nil
	}
	g.probes()
	g.current = g.c
	return g, nil
}

// probes places c and d inside [a, b] with c < d.
func (g *GoldenSection) probes() {
	step := int(math.Round(float64(g.b-g.a) * invPhi))
	g.c = g.b - step
	g.d = g.a + step
	if g.d <= g.c {
		g.d = g.c + 1
	}
	g.haveC, g.haveD = false, false
}

// reuse places a probe mirroring k, whose cost is known, inside [a, b].
func (g *GoldenSection) reuse(k int, cost float64) {
	p := g.a + g.b - k
	if p == k {
		if k+1 <= g.b {
			p = k + 1
		} else {
			p = k - 1
		}
	}
	if p < k {
		g.c, g.d = p, k
		g.fd, g.haveC, g.haveD = cost, false, true
	} else {
		g.c, g.d = k, p
		g.fc, g.haveC, g.haveD = cost, true, false
	}
}

// Interval returns the remaining search interval.
func (g *GoldenSection) Interval() (lo, hi int) { return g.a, g.b }

// Finished reports whether the interval is within the tolerance.
func (g *GoldenSection) Finished() bool { return g.finished }

// FeedObservation records the cost of the current probe.
func (g *GoldenSection) FeedObservation(y float64) {
	if g.finished {
		return
	}
	cost, ok := g.feed(y)
	if !ok {
		return
	}
	if cost < g.bestCost {
		g.best, g.bestCost = g.current, cost
	}
	if g.probingD {
		g.fd, g.haveD = cost, true
	} else {
		g.fc, g.haveC = cost, true
	}
	if !g.haveD {
		g.probingD = true
		g.advance(g.d)
		return
	}
	if !g.haveC {
		g.probingD = false
		g.advance(g.c)
		return
	}

	// The interval shrinks on every comparison: b drops below d or a
	// rises above c.
	switch {
	case g.fc < g.fd:
		g.b = g.d - 1
		if g.b-g.a > g.tolerance {
			g.reuse(g.c, g.fc)
		}
	case g.fc > g.fd:
		g.a = g.c + 1
		if g.b-g.a > g.tolerance {
			g.reuse(g.d, g.fd)
		}
	default:
		if g.a == g.c && g.b == g.d {
			g.b--
		} else {
			g.a, g.b = g.c, g.d
		}
		if g.b-g.a > g.tolerance {
			g.probes()
		}
	}

	if g.b-g.a <= g.tolerance {
		g.finished = true
		next := g.best
		if next < g.a || next > g.b {
			next = (g.a + g.b) / 2
		}
		g.advance(next)
		return
	}
	if g.haveC {
		g.probingD = true
		g.advance(g.d)
	} else {
		g.probingD = false
		g.advance(g.c)
	}
}
