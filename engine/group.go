// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/gpucore"
)

type declaration struct {
	kernel *gpucore.Kernel
	opts   []Option
	prog   *Program
}

// Group is a set of named programs sharing one size. Kernels are declared
// up front and instantiated on first use; named passes compose declared
// kernels left to right.
//
// The first argument of a pass feeds its first stage; each stage's output
// feeds the next stage as its first argument, and the remaining arguments
// are passed unchanged to every stage.
type Group struct {
	ctx    *gpucore.Context
	name   string
	width  int
	height int

	decls  map[string]*declaration
	order  []string
	passes map[string][]string

	released bool
}

// NewGroup creates an empty group of programs sized width×height.
func NewGroup(ctx *gpucore.Context, name string, width, height int) *Group {
	return &Group{
		ctx:    ctx,
		name:   name,
		width:  width,
		height: height,
		decls:  make(map[string]*declaration),
		passes: make(map[string][]string),
	}
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Size returns the group size.
func (g *Group) Size() (int, int) { return g.width, g.height }

// Context returns the graphics context.
func (g *Group) Context() *gpucore.Context { return g.ctx }

func (g *Group) taken(name string) bool {
	_, d := g.decls[name]
	_, p := g.passes[name]
	return d || p
}

// Declare registers kernel under name. The kernel schema is checked now;
// the program is compiled on first use.
func (g *Group) Declare(name string, kernel *gpucore.Kernel, opts ...Option) error {
	if name == "" || g.taken(name) {
		return vision.Configf("declare", name, "name is empty or already declared in group %q", g.name)
	}
	if err := kernel.Validate(); err != nil {
		return err
	}
	g.decls[name] = &declaration{kernel: kernel, opts: opts}
	g.order = append(g.order, name)
	return nil
}

// Compose declares an immutable pass running two or more declared
// kernels in order.
func (g *Group) Compose(name string, stages ...string) error {
	if name == "" || g.taken(name) {
		return vision.Configf("compose", name, "name is empty or already declared in group %q", g.name)
	}
	if len(stages) < 2 {
		return vision.Configf("compose", name, "a pass needs at least 2 stages, got %d", len(stages))
	}
	for _, s := range stages {
		if _, ok := g.decls[s]; !ok {
			return vision.Configf("compose", name, "stage %q is not a declared kernel", s)
		}
	}
	g.passes[name] = append([]string(nil), stages...)
	return nil
}

// Program returns the program declared as name, compiling it on first use.
func (g *Group) Program(name string) (*Program, error) {
	if g.released {
		return nil, ErrProgramReleased
	}
	d, ok := g.decls[name]
	if !ok {
		return nil, vision.Configf("program", name, "not declared in group %q", g.name)
	}
	if d.prog == nil {
		p, err := NewProgram(g.ctx, d.kernel, g.width, g.height, d.opts...)
		if err != nil {
			return nil, err
		}
		d.prog = p
	}
	return d.prog, nil
}

// Stages returns the kernel names of a pass, or nil if name is not a pass.
func (g *Group) Stages(name string) []string {
	return append([]string(nil), g.passes[name]...)
}

// Run invokes a declared kernel or pass.
func (g *Group) Run(name string, args ...any) (*Texture, error) {
	stages, isPass := g.passes[name]
	if !isPass {
		p, err := g.Program(name)
		if err != nil {
			return nil, err
		}
		return p.Run(args...)
	}

	if len(args) == 0 {
		return nil, vision.Configf("run", name, "a pass needs an input argument")
	}
	var out *Texture
	for i, s := range stages {
		p, err := g.Program(s)
		if err != nil {
			return nil, err
		}
		in := args
		if i > 0 {
			in = make([]any, 0, len(args))
			in = append(in, out)
			in = append(in, args[1:]...)
		}
		if out, err = p.Run(in...); err != nil {
			return nil, fmt.Errorf("pass %q stage %d: %w", name, i, err)
		}
	}
	return out, nil
}

// Resize resizes every instantiated program. Programs compiled later use
// the new size.
func (g *Group) Resize(width, height int) error {
	if g.released {
		return ErrProgramReleased
	}
	g.width, g.height = width, height
	for _, name := range g.order {
		if p := g.decls[name].prog; p != nil {
			if err := p.Resize(width, height); err != nil {
				return err
			}
		}
	}
	return nil
}

// Release releases every instantiated program.
func (g *Group) Release() {
	if g.released {
		return
	}
	g.released = true
	for _, name := range g.order {
		if p := g.decls[name].prog; p != nil {
			p.Release()
		}
	}
}
