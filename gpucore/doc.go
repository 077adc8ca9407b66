// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpucore defines the boundary between the keypoint pipeline and a
// graphics backend.
//
// This package defines the [Backend] interface, which abstracts over
// different GPU implementations, allowing the same kernels to run on:
//   - gogpu/wgpu (Pure Go WebGPU via HAL, WGSL compute)
//   - the software backend (CPU reference functions)
//
// # Kernels
//
// A [Kernel] is a pure function of the output coordinate and its declared
// uniforms. Each kernel carries a WGSL body and a [CPUFunc] computing the
// same result on the host. [Kernel.Validate] checks the uniform schema and
// [NewLayout] assigns uniform locations to vec4 slots and samplers to
// texture units.
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([TextureID], [BufferID], etc.).
// Backends are responsible for tracking the mapping between IDs and actual
// resources. All IDs become invalid when the context is lost.
//
// # Context Loss
//
// [Context] wraps a backend with the state machine
//
//	Ready → Lost → Rebuilding → Ready
//
// driven by the backend's loss/restore callback. Resource owners register
// rebuild hooks with [Context.OnRebuild]; while the state is not Ready they
// must tolerate being called and degrade to no-ops.
package gpucore
