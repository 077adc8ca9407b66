// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import "math"

// Source is a readable texture seen by a CPU kernel.
type Source interface {
	// Size returns the texture dimensions.
	Size() (w, h int)

	// At returns the texel at (x, y). Coordinates are in range.
	At(x, y int) Pixel
}

// Invocation is the view a CPUFunc has of one draw: the output size, the
// bound samplers and the packed uniform block.
type Invocation struct {
	layout  *Layout
	block   []float32
	sources []Source
	width   int
	height  int
}

// NewInvocation binds a uniform block and sources (indexed by texture unit)
// for a draw of width×height pixels.
func NewInvocation(layout *Layout, width, height int, block []float32, sources []Source) *Invocation {
	return &Invocation{
		layout:  layout,
		block:   block,
		sources: sources,
		width:   width,
		height:  height,
	}
}

// Size returns the output dimensions.
func (in *Invocation) Size() (w, h int) { return in.width, in.height }

func (in *Invocation) source(name string) Source {
	unit, ok := in.layout.Unit(name)
	if !ok || unit >= len(in.sources) {
		return nil
	}
	return in.sources[unit]
}

// Sample reads sampler name at (x, y), clamping coordinates to the edge.
// An unbound sampler reads as transparent black.
func (in *Invocation) Sample(name string, x, y int) Pixel {
	src := in.source(name)
	if src == nil {
		return Pixel{}
	}
	w, h := src.Size()
	if w <= 0 || h <= 0 {
		return Pixel{}
	}
	return src.At(clampInt(x, 0, w-1), clampInt(y, 0, h-1))
}

// SampleSize returns the dimensions of sampler name.
func (in *Invocation) SampleSize(name string) (w, h int) {
	src := in.source(name)
	if src == nil {
		return 0, 0
	}
	return src.Size()
}

func (in *Invocation) slot(location string) []float32 {
	s, ok := in.layout.Slot(location)
	if !ok || s.Type == UniformSampler {
		return nil
	}
	off := s.Index * 4
	if off+4 > len(in.block) {
		return nil
	}
	return in.block[off : off+4]
}

// Float returns a float uniform location.
func (in *Invocation) Float(location string) float64 {
	v := in.slot(location)
	if v == nil {
		return 0
	}
	return float64(v[0])
}

// Int returns an int uniform location.
func (in *Invocation) Int(location string) int {
	return int(math.Round(in.Float(location)))
}

// Bool returns a bool uniform location.
func (in *Invocation) Bool(location string) bool {
	return in.Float(location) != 0
}

// Vec returns a vector uniform location; unused components are zero.
func (in *Invocation) Vec(location string) [4]float64 {
	v := in.slot(location)
	if v == nil {
		return [4]float64{}
	}
	return [4]float64{float64(v[0]), float64(v[1]), float64(v[2]), float64(v[3])}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
