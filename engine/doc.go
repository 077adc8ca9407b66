// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package engine runs GPU kernels and manages the textures they produce.
//
// A [Program] is one compiled kernel with a fixed uniform schema and an
// output policy:
//
//   - recycle (default): every call writes and returns the same texture;
//     the result is only valid until the next call
//   - clone ([WithClone]): the result is copied into a caller-owned texture
//   - ping-pong ([WithPingPong]): two buffers alternate, so a program may
//     consume its own previous output
//
// Passing a program its own current output is a configuration error.
//
// A [Group] declares kernels by name, compiles them on first use and
// chains them into passes:
//
//	g := engine.NewGroup(ctx, "level0", 640, 480)
//	_ = g.Declare("smoothX", pyramid.SmoothX)
//	_ = g.Declare("smoothY", pyramid.SmoothY)
//	_ = g.Compose("smooth", "smoothX", "smoothY")
//	out, err := g.Run("smooth", image)
//
// While the graphics context is lost every call returns the last
// known-good output; programs recompile and reallocate when it is restored.
package engine
