// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package codec packs a variable-length keypoint list into one square
// RGBA texture and decodes it on the host.
//
// Each keypoint occupies RecordLength(d) consecutive pixels in raster
// order:
//
//	pixel 0   x low, x high, y low, y high
//	pixel 1   LOD byte, orientation byte, score byte, reserved
//	pixel 2+  descriptor bytes, four per pixel
//
// No count is stored. The list ends at the first record whose position is
// outside the image; unused records are filled with 0xFF.
//
// The side L of the texture is the smallest with
// L² ≥ (E·1.05 + 4)·RecordLength(d) for E expected keypoints, clamped to
// the configured maximum.
package codec
