// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tuner

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Bucket is a fixed-capacity ring of observations. Its average is the mean
// of a median-filtered copy of the observations, so a single outlier does
// not move it.
type Bucket struct {
	data   []float64
	head   int
	n      int
	window int

	ordered  []float64
	filtered []float64
	scratch  []float64
}

// NewBucket returns a bucket holding capacity observations and smoothing
// them with a median filter of the given window. Even windows are widened
// by one; windows below 3 disable the filter.
func NewBucket(capacity, window int) *Bucket {
	capacity = max(capacity, 1)
	if window >= 3 && window%2 == 0 {
		window++
	}
	return &Bucket{
		data:     make([]float64, capacity),
		window:   window,
		ordered:  make([]float64, 0, capacity),
		filtered: make([]float64, 0, capacity),
		scratch:  make([]float64, max(window, 1)),
	}
}

// Put adds an observation, overwriting the oldest when full.
func (b *Bucket) Put(v float64) {
	b.data[b.head] = v
	b.head = (b.head + 1) % len(b.data)
	if b.n < len(b.data) {
		b.n++
	}
}

// Len returns the number of observations held.
func (b *Bucket) Len() int { return b.n }

// Cap returns the capacity.
func (b *Bucket) Cap() int { return len(b.data) }

// Full reports whether the bucket holds Cap() observations.
func (b *Bucket) Full() bool { return b.n == len(b.data) }

// Reset discards every observation.
func (b *Bucket) Reset() {
	b.head = 0
	b.n = 0
}

// Average returns the smoothed mean, or 0 when the bucket is empty.
func (b *Bucket) Average() float64 {
	if b.n == 0 {
		return 0
	}
	b.ordered = b.ordered[:0]
	start := (b.head - b.n + len(b.data)) % len(b.data)
	for i := 0; i < b.n; i++ {
		b.ordered = append(b.ordered, b.data[(start+i)%len(b.data)])
	}
	if b.window < 3 {
		return stat.Mean(b.ordered, nil)
	}

	half := b.window / 2
	b.filtered = b.filtered[:0]
	for i := range b.ordered {
		for j := 0; j < b.window; j++ {
			k := min(max(i+j-half, 0), b.n-1)
			b.scratch[j] = b.ordered[k]
		}
		b.filtered = append(b.filtered, median(b.scratch[:b.window]))
	}
	return stat.Mean(b.filtered, nil)
}

// median sorts v in place and returns its middle element.
func median(v []float64) float64 {
	switch len(v) {
	case 3:
		sort3(v)
	case 5:
		sort5(v)
	case 7:
		sort7(v)
	default:
		sort.Float64s(v)
		return stat.Quantile(0.5, stat.Empirical, v, nil)
	}
	return v[len(v)/2]
}

func cas(v []float64, i, j int) {
	if v[i] > v[j] {
		v[i], v[j] = v[j], v[i]
	}
}

func sort3(v []float64) {
	cas(v, 0, 1)
	cas(v, 1, 2)
	cas(v, 0, 1)
}

func sort5(v []float64) {
	cas(v, 0, 1)
	cas(v, 3, 4)
	cas(v, 2, 4)
	cas(v, 2, 3)
	cas(v, 0, 3)
	cas(v, 0, 2)
	cas(v, 1, 4)
	cas(v, 1, 3)
	cas(v, 1, 2)
}

func sort7(v []float64) {
	cas(v, 0, 6)
	cas(v, 2, 3)
	cas(v, 4, 5)
	cas(v, 0, 2)
	cas(v, 1, 4)
	cas(v, 3, 6)
	cas(v, 0, 1)
	cas(v, 2, 5)
	cas(v, 3, 4)
	cas(v, 1, 2)
	cas(v, 4, 6)
	cas(v, 2, 3)
	cas(v, 4, 5)
	cas(v, 1, 2)
	cas(v, 3, 4)
	cas(v, 5, 6)
}
