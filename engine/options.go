// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

// Option configures a Program during creation.
// Use functional options to customize the output policy.
//
// Example:
//
//	// Default: render to a recycled texture
//	p, err := engine.NewProgram(ctx, kernel, 640, 480)
//
//	// Two alternating buffers so the program may consume its own output
//	p, err := engine.NewProgram(ctx, kernel, 640, 480, engine.WithPingPong())
type Option func(*options)

// options holds optional configuration for Program creation.
type options struct {
	toSurface bool
	clone     bool
	pingPong  bool
	scaleNum  int
	scaleDen  int
	constants []constant
}

type constant struct {
	name  string
	value any
}

// defaultOptions returns the default program options: render to texture,
// recycle the output, single buffer, output size equal to the group size.
func defaultOptions() options {
	return options{
		scaleNum: 1,
		scaleDen: 1,
	}
}

// ToSurface renders to the backend's presentation surface instead of a
// texture. Resizing the program resizes the surface.
func ToSurface() Option {
	return func(o *options) {
		o.toSurface = true
	}
}

// WithClone copies every result into a fresh texture owned by the caller,
// so it outlives later calls. The caller releases it with Texture.Release.
func WithClone() Option {
	return func(o *options) {
		o.clone = true
	}
}

// WithPingPong keeps two output buffers and alternates between them, so a
// program may consume its own previous output.
func WithPingPong() Option {
	return func(o *options) {
		o.pingPong = true
	}
}

// WithOutputScale sizes the output at num/den of the program size, rounded
// down and never below one pixel. Resampling kernels use it to produce
// their output at the next level's resolution.
func WithOutputScale(num, den int) Option {
	return func(o *options) {
		o.scaleNum = num
		o.scaleDen = den
	}
}

// WithConstant sets a uniform that is not a call argument. name is a
// uniform name or an array element location such as "weights[2]".
func WithConstant(name string, value any) Option {
	return func(o *options) {
		o.constants = append(o.constants, constant{name: name, value: value})
	}
}

// outputSize applies the output scale to a program size.
func (o *options) outputSize(w, h int) (int, int) {
	ow := w * o.scaleNum / o.scaleDen
	oh := h * o.scaleNum / o.scaleDen
	return max(ow, 1), max(oh, 1)
}
