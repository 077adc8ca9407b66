// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements gpucore.Backend on gogpu/wgpu, the Pure Go
// WebGPU implementation.
//
// # Architecture
//
// Every kernel is compiled to a compute shader. The WGSL body of a kernel is
// wrapped by a generated prelude (see Source) that binds the uniform block,
// one storage buffer per input texture and the output buffer:
//
//	binding 0: var<uniform> array<vec4<f32>, N>   layout slots, then input sizes
//	binding 1: var<storage, read_write> array<u32> output texels
//	binding 2+: var<storage, read> array<u32>      one per sampler, by unit
//
// Textures live in storage buffers of packed RGBA8 texels, so reads and
// writes go through pack4x8unorm and unpack4x8unorm and out-of-range
// samples clamp to the edge. Each draw dispatches 8×8 workgroups over the
// target.
//
// Generated sources are translated to SPIR-V by naga once per process and
// kept in an LRU cache (see ShaderCache), so pyramid levels sharing a
// kernel and programs rebuilt after a device loss skip translation.
//
// # Synchronization
//
// Fences map onto queue submission indices. PollFence compares a fence's
// index with the queue's completed index without blocking. Resources that
// may still be referenced by in-flight work (per-draw uniform buffers, bind
// groups, destroyed textures) are retired and freed once their submission
// completes.
//
// # Registration
//
// The backend registers itself as "wgpu" when this package is imported:
//
//	import _ "github.com/gogpu/vision/backend/wgpu"
//
// backend.Default prefers it over the software backend. When no GPU is
// available the factory fails and selection falls through to software.
//
// # Shared devices
//
// NewWithDevice and NewFromProvider run on a device owned by the host
// application. The backend never destroys a shared device.
package wgpu
