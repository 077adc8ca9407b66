// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pyramid builds scale-space image pyramids on the GPU.
//
// A Builder owns one engine group per level. Octave levels halve the
// resolution; intra-octave levels sit at 2/3 of an octave. Each level's
// alpha channel stores its scale with ScaleEncoding, so downstream kernels
// read the level of detail of any pixel without extra state:
//
//	b, err := pyramid.New(ctx, vision.DefaultConfig(), w, h)
//	levels, err := b.Build(image)
//	for _, lv := range levels.All() {
//		// lv.Texture, lv.LOD
//	}
package pyramid
