// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"fmt"
	"regexp"

	"github.com/gogpu/vision"
)

// TexSize is the reserved uniform carrying the output resolution as a vec2.
// It is present in every kernel and must not be declared.
const TexSize = "texSize"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// UniformDecl declares one kernel uniform.
type UniformDecl struct {
	// Name is the identifier used by the kernel and by callers.
	Name string

	// Type is the element type.
	Type UniformType

	// Len is the array length. Zero declares a scalar (or a single sampler).
	Len int
}

// CPUFunc computes the output pixel at (x, y). It is the reference
// implementation of a kernel and must be a pure function of its inputs.
type CPUFunc func(x, y int, in *Invocation) Pixel

// Kernel describes a GPU program computing one output pixel from input
// textures and uniforms.
//
// WGSL holds the statements of
//
//	fn kernel_fn(p: vec2<i32>) -> vec4<f32>
//
// Backends wrap it with a generated prelude that provides tex_size(), a
// u_<name>() accessor per uniform (u_<name>(i) for arrays), and
// sample_<name>(x, y) and size_<name>() per sampler. Samples clamp to the
// edge and return normalized RGBA. CPU is the same computation on the host.
type Kernel struct {
	// Name labels the kernel in errors and logs.
	Name string

	// Args lists, in call order, the uniforms supplied on every call.
	// Declared uniforms not listed here are constants.
	Args []string

	// Uniforms declares every uniform except texSize.
	Uniforms []UniformDecl

	// WGSL is the kernel body.
	WGSL string

	// CPU is the host reference implementation.
	CPU CPUFunc
}

// Uniform returns the declaration named name.
func (k *Kernel) Uniform(name string) (UniformDecl, bool) {
	if name == TexSize {
		return UniformDecl{Name: TexSize, Type: UniformVec2}, true
	}
	for _, u := range k.Uniforms {
		if u.Name == name {
			return u, true
		}
	}
	return UniformDecl{}, false
}

// IsArg reports whether name is supplied per call.
func (k *Kernel) IsArg(name string) bool {
	for _, a := range k.Args {
		if a == name {
			return true
		}
	}
	return false
}

// Validate checks the uniform schema. Every argument must name a declared
// uniform; names must be unique identifiers and texSize is reserved.
func (k *Kernel) Validate() error {
	if k == nil {
		return &vision.ConfigurationError{Op: "validate kernel", Err: fmt.Errorf("nil kernel")}
	}
	fail := func(format string, args ...any) error {
		return vision.Configf("validate kernel", k.Name, format, args...)
	}
	if k.Name == "" {
		return fail("kernel has no name")
	}
	if k.CPU == nil && k.WGSL == "" {
		return fail("kernel has neither WGSL nor CPU implementation")
	}

	seen := make(map[string]bool, len(k.Uniforms))
	for _, u := range k.Uniforms {
		switch {
		case !identRe.MatchString(u.Name):
			return fail("invalid uniform name %q", u.Name)
		case u.Name == TexSize:
			return fail("uniform %q is reserved", TexSize)
		case seen[u.Name]:
			return fail("uniform %q declared twice", u.Name)
		case u.Type < UniformSampler || u.Type > UniformVec4:
			return fail("uniform %q has invalid type %v", u.Name, u.Type)
		case u.Len < 0:
			return fail("uniform %q has negative length", u.Name)
		case u.Type == UniformSampler && u.Len > 0:
			return fail("sampler %q cannot be an array", u.Name)
		}
		seen[u.Name] = true
	}

	args := make(map[string]bool, len(k.Args))
	for _, a := range k.Args {
		if a == TexSize {
			return fail("argument %q is reserved", TexSize)
		}
		if !seen[a] {
			return fail("argument %q is not a declared uniform", a)
		}
		if args[a] {
			return fail("argument %q listed twice", a)
		}
		args[a] = true
	}

	for _, u := range k.Uniforms {
		if u.Type == UniformSampler && !args[u.Name] {
			return fail("sampler %q must be an argument", u.Name)
		}
	}
	return nil
}
