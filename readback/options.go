// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package readback

import (
	"time"

	"github.com/gogpu/vision"
)

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	slots int
	mode  vision.ReadbackMode
	poll  time.Duration
}

func optionsFromConfig(cfg vision.Config) options {
	return options{
		slots: cfg.ReadbackSlots,
		mode:  cfg.ReadbackMode,
		poll:  cfg.PollInterval,
	}
}

// WithSlots sets the number of transfer slots, clamped to
// [1, vision.MaxReadbackSlots].
func WithSlots(n int) Option {
	return func(o *options) {
		o.slots = min(max(n, 1), vision.MaxReadbackSlots)
	}
}

// WithMode selects asynchronous or synchronous transfers.
func WithMode(m vision.ReadbackMode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithPollInterval sets how often pending fences are polled.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.poll = d
		}
	}
}
