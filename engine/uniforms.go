// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/vision/gpucore"
)

type valueKind uint8

const (
	kindFloat valueKind = iota
	kindInt
	kindBool
)

// flatten converts a Go value into float components and reports the
// narrowest kind it carries.
func flatten(v any) ([]float64, valueKind, bool) {
	switch x := v.(type) {
	case float64:
		return []float64{x}, kindFloat, true
	case float32:
		return []float64{float64(x)}, kindFloat, true
	case int:
		return []float64{float64(x)}, kindInt, true
	case int32:
		return []float64{float64(x)}, kindInt, true
	case int64:
		return []float64{float64(x)}, kindInt, true
	case uint8:
		return []float64{float64(x)}, kindInt, true
	case uint32:
		return []float64{float64(x)}, kindInt, true
	case bool:
		return []float64{b2f(x)}, kindBool, true
	case [2]float64:
		return x[:], kindFloat, true
	case [3]float64:
		return x[:], kindFloat, true
	case [4]float64:
		return x[:], kindFloat, true
	case [2]float32:
		return []float64{float64(x[0]), float64(x[1])}, kindFloat, true
	case [4]float32:
		return []float64{float64(x[0]), float64(x[1]), float64(x[2]), float64(x[3])}, kindFloat, true
	case []float64:
		return x, kindFloat, true
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out, kindFloat, true
	case []int:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, kindInt, true
	case []bool:
		out := make([]float64, len(x))
		for i, b := range x {
			out[i] = b2f(b)
		}
		return out, kindBool, true
	case [][2]float64:
		return flattenVecs(x), kindFloat, true
	case [][3]float64:
		return flattenVecs(x), kindFloat, true
	case [][4]float64:
		return flattenVecs(x), kindFloat, true
	default:
		return nil, kindFloat, false
	}
}

func flattenVecs[V [2]float64 | [3]float64 | [4]float64](vs []V) []float64 {
	var out []float64
	for _, v := range vs {
		for i := 0; i < len(v); i++ {
			out = append(out, v[i])
		}
	}
	return out
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func kindAccepted(t gpucore.UniformType, k valueKind) bool {
	switch t {
	case gpucore.UniformBool:
		return k == kindBool
	case gpucore.UniformInt:
		return k == kindInt
	default:
		return k == kindFloat || k == kindInt
	}
}

// splitLocation parses "name" or "name[i]".
func splitLocation(loc string) (name string, index int, indexed bool) {
	open := strings.IndexByte(loc, '[')
	if open < 0 || !strings.HasSuffix(loc, "]") {
		return loc, 0, false
	}
	i, err := strconv.Atoi(loc[open+1 : len(loc)-1])
	if err != nil {
		return loc, 0, false
	}
	return loc[:open], i, true
}

// store writes value at location into block. location is a uniform name
// (a whole array for array uniforms) or a single array element.
func store(layout *gpucore.Layout, kernel *gpucore.Kernel, block []float32, location string, value any) error {
	name, index, indexed := splitLocation(location)
	decl, ok := kernel.Uniform(name)
	if !ok {
		return fmt.Errorf("uniform %q is not declared", name)
	}
	if decl.Type == gpucore.UniformSampler {
		return fmt.Errorf("uniform %q is a sampler", name)
	}

	vals, kind, ok := flatten(value)
	if !ok {
		return fmt.Errorf("uniform %q: unsupported value type %T", location, value)
	}
	if !kindAccepted(decl.Type, kind) {
		return fmt.Errorf("uniform %q of type %v: cannot assign %T", location, decl.Type, value)
	}

	comps := decl.Type.Components()
	first, count := location, 1
	switch {
	case indexed:
		if decl.Len == 0 || index < 0 || index >= decl.Len {
			return fmt.Errorf("uniform %q: index out of range", location)
		}
	case decl.Len > 0:
		first, count = name+"[0]", decl.Len
	}
	if len(vals) != comps*count {
		return fmt.Errorf("uniform %q of type %v: got %d components, want %d", location, decl.Type, len(vals), comps*count)
	}

	slot, ok := layout.Slot(first)
	if !ok {
		return fmt.Errorf("uniform %q has no slot", first)
	}
	for i := 0; i < count; i++ {
		off := (slot.Index + i) * 4
		for c := 0; c < comps; c++ {
			block[off+c] = float32(vals[i*comps+c])
		}
	}
	return nil
}
