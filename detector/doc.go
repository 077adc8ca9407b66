// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package detector runs the keypoint loop on top of the pipeline core.
//
// A frame flows through the scale-space pyramid, a FAST-style corner test
// with non-maximum suppression on every level, a merge of all levels into a
// base-resolution corner map, the keypoint encoder and the readback
// pipeline. The decoded keypoint count feeds a sensitivity tuner that
// steers the corner threshold, and the readback latency feeds an annealing
// tuner that picks the encoder skip cap.
//
//	d, err := detector.New(ctx, vision.DefaultConfig(), w, h, detector.WithExpected(300))
//	...
//	kps, err := d.Detect(context.Background(), frame)
//
// Metrics are optional; NewMetrics registers Prometheus collectors and
// WithMetrics attaches them.
package detector
