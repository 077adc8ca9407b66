// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pyramid

import (
	"math"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/gpucore"
)

// ScaleEncoding maps a linear image scale x to the alpha channel:
//
//	alpha(x) = (log2(M) - log2(x)) / (log2(M) + H)
//
// alpha lies in [0, 1) for x in (2^-H, M] and decreases as x grows.
// Scaling by s shifts alpha by -log2(s)/(log2(M)+H), so composing scales
// is addition in alpha space.
type ScaleEncoding struct {
	// MaxScale is M, the largest supported scale.
	MaxScale float64

	// Depth is H, the pyramid depth.
	Depth int
}

// NewScaleEncoding returns the encoding for cfg.
func NewScaleEncoding(cfg vision.Config) ScaleEncoding {
	return ScaleEncoding{MaxScale: cfg.MaxScale, Depth: cfg.PyramidDepth}
}

func (e ScaleEncoding) log2M() float64 { return math.Log2(e.MaxScale) }

func (e ScaleEncoding) denom() float64 { return e.log2M() + float64(e.Depth) }

// Encode returns the alpha of linear scale x.
func (e ScaleEncoding) Encode(x float64) float64 {
	return (e.log2M() - math.Log2(x)) / e.denom()
}

// Decode returns the linear scale of alpha.
func (e ScaleEncoding) Decode(alpha float64) float64 {
	return math.Exp2(e.log2M() - alpha*e.denom())
}

// Delta returns the alpha shift caused by scaling an image by s.
func (e ScaleEncoding) Delta(s float64) float64 {
	return -math.Log2(s) / e.denom()
}

// EncodeLOD returns the alpha of a level of detail. LOD 0 is native
// resolution and each unit halves the scale, so EncodeLOD(l) = Encode(2^-l).
func (e ScaleEncoding) EncodeLOD(lod float64) float64 {
	return (e.log2M() + lod) / e.denom()
}

// DecodeLOD returns the level of detail of alpha.
func (e ScaleEncoding) DecodeLOD(alpha float64) float64 {
	return alpha*e.denom() - e.log2M()
}

// Quantize stores alpha in a byte.
func (e ScaleEncoding) Quantize(alpha float64) uint8 {
	return gpucore.UnormByte(alpha)
}

// Dequantize recovers alpha from a byte.
func (e ScaleEncoding) Dequantize(b uint8) float64 {
	return float64(b) / 255
}

// Step returns the LOD difference between adjacent alpha bytes, the
// resolution of scale stored in one channel.
func (e ScaleEncoding) Step() float64 {
	return e.denom() / 255
}

// MinLOD and MaxLOD bound the levels of detail the encoding represents.
func (e ScaleEncoding) MinLOD() float64 { return -e.log2M() }

// MaxLOD returns the largest representable level of detail.
func (e ScaleEncoding) MaxLOD() float64 { return float64(e.Depth) }
