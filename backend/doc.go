// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend selects a graphics backend for the keypoint pipeline.
//
// # Backend Registration
//
// Backends register a [Factory] from init() functions and are selected at
// runtime:
//
//	import (
//		_ "github.com/gogpu/vision/backend/software"
//		_ "github.com/gogpu/vision/backend/wgpu"
//	)
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	b, err := backend.Default()
//
//	b, err := backend.Get("software")
//
// The returned value implements gpucore.Backend. Wrap it in a
// gpucore.Context before handing it to the engine.
package backend
