// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/gpucore"
)

// ErrProgramReleased is returned when using a released program.
var ErrProgramReleased = errors.New("engine: program has been released")

// output is one backing texture + framebuffer pair.
type output struct {
	tex *Texture
	fb  gpucore.FramebufferID
}

// Program is a compiled kernel bound to its uniform schema and an output
// policy. It exclusively owns its output texture(s).
//
// Programs are driven from one goroutine (the render thread). Calls are
// processed in invocation order.
type Program struct {
	ctx    *gpucore.Context
	kernel *gpucore.Kernel
	layout *gpucore.Layout
	opts   options

	id gpucore.ProgramID

	// width, height is the program size; the output is scaled by opts.
	width  int
	height int

	outputs []*output
	next    int
	last    *Texture

	block     []float32
	textures  []gpucore.TextureID
	sizeDirty bool

	removeHook func()
	released   atomic.Bool
}

// NewProgram compiles kernel and allocates its output at width×height
// (scaled by WithOutputScale). Schema and compile failures are returned as
// *vision.ConfigurationError.
func NewProgram(ctx *gpucore.Context, kernel *gpucore.Kernel, width, height int, opts ...Option) (*Program, error) {
	if err := kernel.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	switch {
	case o.scaleNum <= 0 || o.scaleDen <= 0:
		return nil, vision.Configf("new program", kernel.Name, "invalid output scale %d/%d", o.scaleNum, o.scaleDen)
	case o.toSurface && o.pingPong:
		return nil, vision.Configf("new program", kernel.Name, "surface output cannot ping-pong")
	case width <= 0 || height <= 0:
		return nil, vision.Configf("new program", kernel.Name, "invalid size %dx%d", width, height)
	}

	p := &Program{
		ctx:       ctx,
		kernel:    kernel,
		layout:    gpucore.NewLayout(kernel),
		opts:      o,
		width:     width,
		height:    height,
		sizeDirty: true,
	}
	p.block = make([]float32, p.layout.BlockSize())
	p.textures = make([]gpucore.TextureID, len(p.layout.Samplers()))

	for _, c := range o.constants {
		if err := settable(kernel, c.name); err != nil {
			return nil, vision.WrapConfig("new program", kernel.Name, err)
		}
		if err := store(p.layout, kernel, p.block, c.name, c.value); err != nil {
			return nil, vision.WrapConfig("new program", kernel.Name, err)
		}
	}

	n := 1
	if o.pingPong {
		n = 2
	}
	ow, oh := p.outputSize()
	for i := 0; i < n; i++ {
		p.outputs = append(p.outputs, &output{
			tex: &Texture{ctx: ctx, width: ow, height: oh, owner: p},
		})
	}
	p.last = p.outputs[0].tex

	if ctx.Ready() {
		if err := p.allocate(); err != nil && !errors.Is(err, gpucore.ErrContextLost) {
			p.destroy()
			var ce *vision.ConfigurationError
			if errors.As(err, &ce) {
				return nil, err
			}
			return nil, fmt.Errorf("engine: allocate %q: %w", kernel.Name, err)
		}
	}
	p.removeHook = ctx.OnRebuild(p.rebuild)

	vision.Logger().Debug("engine: program created",
		"kernel", kernel.Name, "width", ow, "height", oh,
		"pingpong", o.pingPong, "clone", o.clone, "surface", o.toSurface)
	return p, nil
}

// outputSize returns the clamped output dimensions.
func (p *Program) outputSize() (int, int) {
	w, h := p.opts.outputSize(p.width, p.height)
	maxSize := p.ctx.Backend().Capabilities().MaxTextureSize
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		vision.Logger().Warn("engine: output clamped to max texture size",
			"kernel", p.kernel.Name, "width", w, "height", h, "max", maxSize)
		w, h = min(w, maxSize), min(h, maxSize)
	}
	return w, h
}

// allocate compiles the kernel and creates the output resources.
func (p *Program) allocate() error {
	be := p.ctx.Backend()
	id, err := be.Compile(p.kernel, p.layout)
	if err != nil {
		if errors.Is(err, gpucore.ErrContextLost) {
			return err
		}
		return vision.WrapConfig("compile", p.kernel.Name, err)
	}
	p.id = id

	ow, oh := p.outputSize()
	for _, out := range p.outputs {
		if err := p.allocOutput(out, ow, oh); err != nil {
			return err
		}
	}
	p.sizeDirty = true
	return nil
}

func (p *Program) allocOutput(out *output, w, h int) error {
	be := p.ctx.Backend()
	if p.opts.toSurface {
		if err := be.ResizeSurface(w, h); err != nil {
			return err
		}
		out.tex.id, out.fb = be.SurfaceTexture(), gpucore.SurfaceFramebuffer
		out.tex.width, out.tex.height = w, h
		return nil
	}
	tex, err := be.CreateTexture(w, h)
	if err != nil {
		return err
	}
	fb, err := be.CreateFramebuffer(tex)
	if err != nil {
		be.DestroyTexture(tex)
		return err
	}
	out.tex.id, out.fb = tex, fb
	out.tex.width, out.tex.height = w, h
	return nil
}

// rebuild recreates resources after a context restore. Content is lost.
func (p *Program) rebuild() error {
	if p.released.Load() {
		return nil
	}
	p.next = 0
	p.last = p.outputs[0].tex
	if err := p.allocate(); err != nil {
		return fmt.Errorf("engine: rebuild %q: %w", p.kernel.Name, err)
	}
	vision.Logger().Debug("engine: program rebuilt", "kernel", p.kernel.Name)
	return nil
}

// Kernel returns the kernel descriptor.
func (p *Program) Kernel() *gpucore.Kernel { return p.kernel }

// Layout returns the uniform layout.
func (p *Program) Layout() *gpucore.Layout { return p.layout }

// Size returns the output dimensions.
func (p *Program) Size() (int, int) { return p.outputs[0].tex.Size() }

// Output returns the texture written by the most recent call, or the
// first output buffer if the program has not run yet.
func (p *Program) Output() *Texture { return p.last }

// Run invokes the kernel with one value per kernel argument, in order.
// Sampler arguments take *Texture. It returns the output texture; see
// the output policies for how long it remains valid.
//
// While the context is not ready Run returns the last known-good output
// and a nil error.
func (p *Program) Run(args ...any) (*Texture, error) {
	if p.released.Load() {
		return nil, ErrProgramReleased
	}
	if len(args) != len(p.kernel.Args) {
		return nil, vision.Configf("run", p.kernel.Name, "got %d arguments, want %d %v", len(args), len(p.kernel.Args), p.kernel.Args)
	}
	if !p.ctx.Ready() {
		return p.last, nil
	}

	target := p.outputs[p.next]
	for i, name := range p.kernel.Args {
		if err := p.bind(name, args[i], target); err != nil {
			return nil, err
		}
	}

	if p.sizeDirty {
		w, h := target.tex.Size()
		p.block[0], p.block[1] = float32(w), float32(h)
		p.sizeDirty = false
	}

	be := p.ctx.Backend()
	err := be.Draw(&gpucore.DrawCall{
		Program:     p.id,
		Framebuffer: target.fb,
		Uniforms:    p.block,
		Textures:    p.textures,
	})
	if errors.Is(err, gpucore.ErrContextLost) {
		return p.last, nil
	}
	if err != nil {
		return nil, fmt.Errorf("engine: draw %q: %w", p.kernel.Name, err)
	}

	result := target.tex
	if p.opts.pingPong {
		p.next ^= 1
	}
	if p.opts.clone {
		c, err := p.cloneOutput(target.tex)
		if errors.Is(err, gpucore.ErrContextLost) {
			return p.last, nil
		}
		if err != nil {
			return nil, err
		}
		result = c
	}
	p.last = result
	return result, nil
}

func (p *Program) bind(name string, arg any, target *output) error {
	decl, _ := p.kernel.Uniform(name)
	if decl.Type != gpucore.UniformSampler {
		if err := store(p.layout, p.kernel, p.block, name, arg); err != nil {
			return vision.WrapConfig("run", p.kernel.Name, err)
		}
		return nil
	}

	tex, ok := arg.(*Texture)
	if !ok || tex == nil {
		return vision.Configf("run", p.kernel.Name, "sampler %q needs a *Texture, got %T", name, arg)
	}
	if tex.Released() {
		return vision.WrapConfig("run", p.kernel.Name, fmt.Errorf("sampler %q: %w", name, ErrTextureReleased))
	}
	if tex == target.tex || tex.id == target.tex.id {
		return vision.Configf("run", p.kernel.Name, "sampler %q reads the program's own current output", name)
	}
	unit, _ := p.layout.Unit(name)
	p.textures[unit] = tex.id
	return nil
}

func (p *Program) cloneOutput(src *Texture) (*Texture, error) {
	be := p.ctx.Backend()
	w, h := src.Size()
	id, err := be.CreateTexture(w, h)
	if err != nil {
		return nil, err
	}
	if err := be.CopyTexture(src.id, id, w, h); err != nil {
		be.DestroyTexture(id)
		return nil, err
	}
	return &Texture{ctx: p.ctx, id: id, width: w, height: h}, nil
}

// SetUniform sets a constant: a declared uniform that is not a call
// argument. location is a uniform name or an element such as "weights[1]".
func (p *Program) SetUniform(location string, value any) error {
	if p.released.Load() {
		return ErrProgramReleased
	}
	if err := settable(p.kernel, location); err != nil {
		return vision.WrapConfig("set uniform", p.kernel.Name, err)
	}
	if err := store(p.layout, p.kernel, p.block, location, value); err != nil {
		return vision.WrapConfig("set uniform", p.kernel.Name, err)
	}
	return nil
}

// settable rejects locations the caller cannot assign: call arguments
// and the texSize uniform the program maintains.
func settable(k *gpucore.Kernel, location string) error {
	name, _, _ := splitLocation(location)
	switch {
	case name == gpucore.TexSize:
		return fmt.Errorf("%q is maintained by the program", name)
	case k.IsArg(name):
		return fmt.Errorf("%q is a call argument", name)
	}
	return nil
}

// Resize changes the program size. Backing resources are reallocated and
// the overlapping top-left region of the old content is preserved. While
// the context is not ready only the new size is recorded.
func (p *Program) Resize(width, height int) error {
	if p.released.Load() {
		return ErrProgramReleased
	}
	if width <= 0 || height <= 0 {
		return vision.Configf("resize", p.kernel.Name, "invalid size %dx%d", width, height)
	}
	if width == p.width && height == p.height {
		return nil
	}
	p.width, p.height = width, height
	ow, oh := p.outputSize()

	if !p.ctx.Ready() {
		for _, out := range p.outputs {
			out.tex.width, out.tex.height = ow, oh
		}
		return nil
	}

	for _, out := range p.outputs {
		err := p.resizeOutput(out, ow, oh)
		if errors.Is(err, gpucore.ErrContextLost) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("engine: resize %q: %w", p.kernel.Name, err)
		}
	}
	p.sizeDirty = true
	vision.Logger().Debug("engine: program resized", "kernel", p.kernel.Name, "width", ow, "height", oh)
	return nil
}

func (p *Program) resizeOutput(out *output, w, h int) error {
	be := p.ctx.Backend()
	oldW, oldH := out.tex.Size()
	cw, ch := min(oldW, w), min(oldH, h)

	if p.opts.toSurface {
		tmp, err := be.CreateTexture(cw, ch)
		if err != nil {
			return err
		}
		defer be.DestroyTexture(tmp)
		if err := be.CopyTexture(out.tex.id, tmp, cw, ch); err != nil {
			return err
		}
		if err := p.allocOutput(out, w, h); err != nil {
			return err
		}
		return be.CopyTexture(tmp, out.tex.id, cw, ch)
	}

	oldTex, oldFB := out.tex.id, out.fb
	if err := p.allocOutput(out, w, h); err != nil {
		return err
	}
	err := be.CopyTexture(oldTex, out.tex.id, cw, ch)
	be.DestroyFramebuffer(oldFB)
	be.DestroyTexture(oldTex)
	return err
}

// Release destroys the program and its outputs. Releasing twice is a no-op.
func (p *Program) Release() {
	if p.released.Swap(true) {
		return
	}
	if p.removeHook != nil {
		p.removeHook()
	}
	p.destroy()
}

func (p *Program) destroy() {
	be := p.ctx.Backend()
	for _, out := range p.outputs {
		out.tex.released.Store(true)
		if p.opts.toSurface {
			continue
		}
		if out.fb != gpucore.InvalidID {
			be.DestroyFramebuffer(out.fb)
		}
		if out.tex.id != gpucore.InvalidID {
			be.DestroyTexture(out.tex.id)
		}
	}
	if p.id != gpucore.InvalidID {
		be.DestroyProgram(p.id)
	}
}
