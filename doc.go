// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vision is the core of a GPU keypoint pipeline: it runs chains of
// image-processing kernels over a multi-scale pyramid, packs the detected
// keypoints into a compact square texture, and moves that texture back to
// the host without stalling the render thread.
//
// The root package holds what every layer shares: [Config], the
// [ConfigurationError] type, and the package logger. The work is split
// across sub-packages, leaves first:
//
//   - gpucore: the graphics backend boundary, kernel descriptors and the
//     context state machine (Ready, Lost, Rebuilding)
//   - engine: compiled kernels (Program) with output policies, and Group,
//     which declares kernels lazily and composes them into passes
//   - pyramid: octave and intra levels plus the alpha scale encoding
//   - codec: the keypoint wire format inside an L×L encoder texture
//   - readback: fence-guarded transfer slots between GPU and host
//   - tuner: closed-loop integer controllers under noisy feedback
//   - detector: a reference facade closing the loop end to end
//
// Two backends are provided. backend/software runs every kernel through its
// CPU reference function and is fully deterministic. backend/wgpu runs WGSL
// compute kernels on gogpu/wgpu.
//
// # Logging
//
// Logging is silent by default. Call [SetLogger] to route diagnostics to a
// slog handler:
//
//	vision.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
//
// # Context loss
//
// Losing the graphics context is routine. While the context is not ready,
// programs return their last good output and readback waits resolve with
// the last buffer they saw. Nothing in the pipeline returns an error for it.
package vision
