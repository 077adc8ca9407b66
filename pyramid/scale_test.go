// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pyramid

import (
	"math"
	"testing"

	"github.com/gogpu/vision"
)

const eps = 1e-12

func TestScaleRoundTrip(t *testing.T) {
	e := NewScaleEncoding(vision.DefaultConfig())
	for _, x := range []float64{1, 0.5, 0.25, 2, 1.5, 1.0 / 3} {
		a := e.Encode(x)
		if a < 0 || a >= 1 {
			t.Errorf("Encode(%v) = %v, want in [0, 1)", x, a)
		}
		if got := e.Decode(a); math.Abs(got-x) > eps {
			t.Errorf("Decode(Encode(%v)) = %v", x, got)
		}
	}
}

func TestScaleComposition(t *testing.T) {
	e := ScaleEncoding{MaxScale: 2, Depth: 5}
	base := e.Encode(1)
	pairs := [][2]float64{{0.5, 0.5}, {2, 0.25}, {1.5, 2.0 / 3}, {0.5, 1}}
	for _, p := range pairs {
		got := e.Encode(p[0] * p[1])
		want := e.Encode(p[0]) + e.Encode(p[1]) - base
		if math.Abs(got-want) > eps {
			t.Errorf("Encode(%v*%v) = %v, want %v", p[0], p[1], got, want)
		}
		if d := e.Encode(p[0]) + e.Delta(p[1]); math.Abs(d-got) > eps {
			t.Errorf("Encode(%v)+Delta(%v) = %v, want %v", p[0], p[1], d, got)
		}
	}
}

func TestScaleMonotonic(t *testing.T) {
	e := ScaleEncoding{MaxScale: 2, Depth: 5}
	prev := math.Inf(1)
	for x := 0.05; x <= 2; x *= 1.1 {
		a := e.Encode(x)
		if a >= prev {
			t.Fatalf("Encode not decreasing at %v", x)
		}
		prev = a
	}
	if e.Encode(2) != 0 {
		t.Errorf("Encode(M) = %v, want 0", e.Encode(2))
	}
}

func TestScaleLOD(t *testing.T) {
	e := ScaleEncoding{MaxScale: 2, Depth: 5}
	for _, lod := range []float64{-1, 0, 0.585, 1, 3.5, 5} {
		if got := e.EncodeLOD(lod); math.Abs(got-e.Encode(math.Exp2(-lod))) > eps {
			t.Errorf("EncodeLOD(%v) = %v, want Encode(2^-lod)", lod, got)
		}
		b := e.Quantize(e.EncodeLOD(lod))
		if got := e.DecodeLOD(e.Dequantize(b)); math.Abs(got-lod) > e.Step()/2+eps {
			t.Errorf("quantized LOD %v decoded as %v, step %v", lod, got, e.Step())
		}
	}
	if e.MinLOD() != -1 || e.MaxLOD() != 5 {
		t.Errorf("LOD range = [%v, %v], want [-1, 5]", e.MinLOD(), e.MaxLOD())
	}
}
