// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/vision/gpucore"
)

// Workgroup size of every generated compute shader.
const workgroupSize = 8

// Bind group slots of the generated shaders.
const (
	bindingUniforms = 0
	bindingOutput   = 1
	bindingInputs   = 2
)

// uniformSlots returns the number of vec4 slots a kernel's uniform buffer
// holds: the layout slots followed by one size slot per sampler.
func uniformSlots(l *gpucore.Layout) int {
	return l.SlotCount() + len(l.Samplers())
}

// sizeSlot returns the slot holding the size of the sampler on unit.
func sizeSlot(l *gpucore.Layout, unit int) int {
	return l.SlotCount() + unit
}

// Source returns the complete WGSL compute shader for kernel k.
//
// Textures are storage buffers of packed RGBA8 texels. The uniform buffer
// is an array of vec4 slots laid out by l, followed by the size of every
// input texture. Each invocation computes one output texel through
// kernel_fn.
func Source(k *gpucore.Kernel, l *gpucore.Layout) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// kernel %s\n\n", k.Name)
	fmt.Fprintf(&b, "@group(0) @binding(%d) var<uniform> vision_u: array<vec4<f32>, %d>;\n",
		bindingUniforms, uniformSlots(l))
	fmt.Fprintf(&b, "@group(0) @binding(%d) var<storage, read_write> vision_out: array<u32>;\n", bindingOutput)
	for unit, name := range l.Samplers() {
		fmt.Fprintf(&b, "@group(0) @binding(%d) var<storage, read> vision_in_%s: array<u32>;\n",
			bindingInputs+unit, name)
	}

	b.WriteString("\nfn tex_size() -> vec2<f32> {\n\treturn vision_u[0].xy;\n}\n")

	for _, u := range k.Uniforms {
		if u.Type == gpucore.UniformSampler {
			continue
		}
		loc := u.Name
		if u.Len > 0 {
			loc = u.Name + "[0]"
		}
		s, _ := l.Slot(loc)
		if u.Len > 0 {
			fmt.Fprintf(&b, "\nfn u_%s(i: i32) -> %s {\n\treturn %s;\n}\n",
				u.Name, wgslType(u.Type), accessor(u.Type, fmt.Sprintf("vision_u[%d + i]", s.Index)))
			continue
		}
		fmt.Fprintf(&b, "\nfn u_%s() -> %s {\n\treturn %s;\n}\n",
			u.Name, wgslType(u.Type), accessor(u.Type, fmt.Sprintf("vision_u[%d]", s.Index)))
	}

	for unit, name := range l.Samplers() {
		fmt.Fprintf(&b, `
fn size_%[1]s() -> vec2<i32> {
	return vec2<i32>(vision_u[%[2]d].xy);
}

fn sample_%[1]s(x: i32, y: i32) -> vec4<f32> {
	let s = size_%[1]s();
	let c = clamp(vec2<i32>(x, y), vec2<i32>(0, 0), s - vec2<i32>(1, 1));
	return unpack4x8unorm(vision_in_%[1]s[c.y * s.x + c.x]);
}
`, name, sizeSlot(l, unit))
	}

	fmt.Fprintf(&b, "\nfn kernel_fn(p: vec2<i32>) -> vec4<f32> {%s}\n", k.WGSL)

	fmt.Fprintf(&b, `
@compute @workgroup_size(%[1]d, %[1]d, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
	let size = vec2<u32>(tex_size());
	if (id.x >= size.x || id.y >= size.y) {
		return;
	}
	let c = clamp(kernel_fn(vec2<i32>(id.xy)), vec4<f32>(0.0), vec4<f32>(1.0));
	vision_out[id.y * size.x + id.x] = pack4x8unorm(c);
}
`, workgroupSize)
	return b.String()
}

func wgslType(t gpucore.UniformType) string {
	switch t {
	case gpucore.UniformInt:
		return "i32"
	case gpucore.UniformBool:
		return "bool"
	case gpucore.UniformVec2:
		return "vec2<f32>"
	case gpucore.UniformVec3:
		return "vec3<f32>"
	case gpucore.UniformVec4:
		return "vec4<f32>"
	default:
		return "f32"
	}
}

func accessor(t gpucore.UniformType, slot string) string {
	switch t {
	case gpucore.UniformInt:
		return "i32(round(" + slot + ".x))"
	case gpucore.UniformBool:
		return slot + ".x != 0.0"
	case gpucore.UniformVec2:
		return slot + ".xy"
	case gpucore.UniformVec3:
		return slot + ".xyz"
	case gpucore.UniformVec4:
		return slot
	default:
		return slot + ".x"
	}
}
