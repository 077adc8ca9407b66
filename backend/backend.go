// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"

	"github.com/gogpu/vision/gpucore"
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU reference backend.
	BackendSoftware = "software"
	// BackendWGPU is the name of the Pure Go GPU backend (gogpu/wgpu).
	BackendWGPU = "wgpu"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Factory creates and initializes a backend instance.
type Factory func() (gpucore.Backend, error)

// Closer is implemented by backends that own native resources.
type Closer interface {
	Close()
}

// Release closes b if it owns native resources.
func Release(b gpucore.Backend) {
	if c, ok := b.(Closer); ok {
		c.Close()
	}
}
