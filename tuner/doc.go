// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package tuner provides closed-loop controllers over integer parameters
// observed through noisy measurements.
//
// Every tuner keeps one Bucket of observations per admissible value and
// moves only after a full dwell at the current value. Annealing and
// GoldenSection search for a fixed minimizer; Sensitivity tracks a value
// whose target may move, such as a detector threshold producing a desired
// number of keypoints.
package tuner
