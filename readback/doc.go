// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package readback transfers GPU textures to host memory through a fixed
// number of fenced transfer slots.
//
//	p, err := readback.New(ctx, cfg)
//	defer p.Close()
//
//	// Each frame:
//	if err := p.Request(ctx, encoded); err != nil { ... }
//	data, err := p.Pickup(ctx) // a frame or more behind
package readback
