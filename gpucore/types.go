// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"errors"
	"fmt"
	"math"
)

// Resource IDs
//
// These opaque IDs represent GPU resources. Each backend maintains a
// mapping between IDs and its own resources. IDs are uint64 to
// accommodate various backend handle sizes.

// TextureID is an opaque handle to a 2D RGBA8 texture.
type TextureID uint64

// FramebufferID is an opaque handle to a render target bound to a texture.
// The zero framebuffer is the backend's presentation surface.
type FramebufferID uint64

// ProgramID is an opaque handle to a compiled kernel.
type ProgramID uint64

// BufferID is an opaque handle to a host-readable transfer buffer.
type BufferID uint64

// FenceID is an opaque handle to a GPU completion signal.
type FenceID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// SurfaceFramebuffer targets the presentation surface.
const SurfaceFramebuffer FramebufferID = 0

// Errors returned by backends.
var (
	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("gpucore: unknown resource")

	// ErrContextLost is returned by backend operations while the graphics
	// context is lost. Callers treat it as a degradation, not a failure.
	ErrContextLost = errors.New("gpucore: context lost")
)

// UniformType is the declared type of a kernel uniform.
type UniformType uint8

// Uniform types.
const (
	// UniformSampler is an input texture.
	UniformSampler UniformType = iota + 1

	// UniformFloat is a 32-bit float.
	UniformFloat

	// UniformInt is a 32-bit signed integer.
	UniformInt

	// UniformBool is a boolean stored as 0 or 1.
	UniformBool

	// UniformVec2 is a 2-component float vector.
	UniformVec2

	// UniformVec3 is a 3-component float vector.
	UniformVec3

	// UniformVec4 is a 4-component float vector.
	UniformVec4
)

// String returns the WGSL-like type name.
func (t UniformType) String() string {
	switch t {
	case UniformSampler:
		return "sampler"
	case UniformFloat:
		return "float"
	case UniformInt:
		return "int"
	case UniformBool:
		return "bool"
	case UniformVec2:
		return "vec2"
	case UniformVec3:
		return "vec3"
	case UniformVec4:
		return "vec4"
	default:
		return fmt.Sprintf("UniformType(%d)", t)
	}
}

// Components returns the number of float components the type occupies.
// Samplers occupy none.
func (t UniformType) Components() int {
	switch t {
	case UniformFloat, UniformInt, UniformBool:
		return 1
	case UniformVec2:
		return 2
	case UniformVec3:
		return 3
	case UniformVec4:
		return 4
	default:
		return 0
	}
}

// Pixel is one RGBA8 texel.
type Pixel [4]uint8

// Vec4 returns the pixel normalized to [0, 1] per channel.
func (p Pixel) Vec4() [4]float64 {
	return [4]float64{
		float64(p[0]) / 255,
		float64(p[1]) / 255,
		float64(p[2]) / 255,
		float64(p[3]) / 255,
	}
}

// PixelFromVec4 packs normalized channels into a pixel, clamping to [0, 1]
// and rounding to nearest. It matches WGSL pack4x8unorm.
func PixelFromVec4(v [4]float64) Pixel {
	var p Pixel
	for i, c := range v {
		p[i] = UnormByte(c)
	}
	return p
}

// UnormByte quantizes a normalized value to a byte.
func UnormByte(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(math.Floor(v*255 + 0.5))
	}
}

// Capabilities describes what a backend supports.
type Capabilities struct {
	// Fences reports whether Fence/PollFence signal completion
	// asynchronously. Without fences readback falls back to sync mode.
	Fences bool

	// MaxTextureSize is the largest texture side the backend accepts.
	MaxTextureSize int
}
