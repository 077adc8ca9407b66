// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"log/slog"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vision"
)

// halLogger forwards the vision logger to the wgpu HAL layer.
type halLogger struct{}

func (halLogger) SetLogger(l *slog.Logger) { hal.SetLogger(l) }

func init() {
	vision.RegisterLoggerSetter(halLogger{})
}
