// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/gpucore"
)

// Compile builds a compute pipeline for the kernel.
func (b *Backend) Compile(k *gpucore.Kernel, l *gpucore.Layout) (gpucore.ProgramID, error) {
	if k.WGSL == "" {
		return gpucore.InvalidID, fmt.Errorf("wgpu: kernel %q has no WGSL body", k.Name)
	}
	var id uint64
	err := b.locked(func() error {
		p, err := b.createProgram(k, l)
		if err != nil {
			return err
		}
		id = b.newID()
		b.programs[gpucore.ProgramID(id)] = p
		vision.Logger().Debug("wgpu: compiled kernel", "kernel", k.Name, "slots", uniformSlots(l))
		return nil
	})
	return gpucore.ProgramID(id), err
}

func (b *Backend) createProgram(k *gpucore.Kernel, l *gpucore.Layout) (_ *program, err error) {
	p := &program{kernel: k, layout: l}
	defer func() {
		if err != nil {
			b.destroyProgram(p)
		}
	}()

	spirv, err := compile(k, l)
	if err != nil {
		return nil, err
	}
	p.shader, err = b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  k.Name,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: shader module for %q: %w", k.Name, err)
	}

	entries := []gputypes.BindGroupLayoutEntry{
		{
			Binding:    bindingUniforms,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
		{
			Binding:    bindingOutput,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		},
	}
	for unit := range l.Samplers() {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(bindingInputs + unit),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		})
	}
	p.bindLayout, err = b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   k.Name,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: bind group layout for %q: %w", k.Name, err)
	}

	p.pipeLayout, err = b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            k.Name,
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: pipeline layout for %q: %w", k.Name, err)
	}

	p.pipeline, err = b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   k.Name,
		Layout:  p.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: pipeline for %q: %w", k.Name, err)
	}
	return p, nil
}

// compile translates the generated shader of k to SPIR-V words. A shader
// naga rejects is a configuration error.
func compile(k *gpucore.Kernel, l *gpucore.Layout) ([]uint32, error) {
	return shaders.getOrCompile(Source(k, l), func(src string) ([]uint32, error) {
		code, err := naga.Compile(src)
		if err != nil {
			return nil, vision.WrapConfig("compile", k.Name, err)
		}
		if len(code)%4 != 0 {
			return nil, fmt.Errorf("wgpu: SPIR-V for %q is %d bytes, not word aligned", k.Name, len(code))
		}
		words := make([]uint32, len(code)/4)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(code[i*4:])
		}
		return words, nil
	})
}

func (b *Backend) destroyProgram(p *program) {
	if p.pipeline != nil {
		b.device.DestroyComputePipeline(p.pipeline)
	}
	if p.pipeLayout != nil {
		b.device.DestroyPipelineLayout(p.pipeLayout)
	}
	if p.bindLayout != nil {
		b.device.DestroyBindGroupLayout(p.bindLayout)
	}
	if p.shader != nil {
		b.device.DestroyShaderModule(p.shader)
	}
}

// DestroyProgram releases a compiled kernel once pending draws complete.
func (b *Backend) DestroyProgram(id gpucore.ProgramID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost || b.device == nil {
		return
	}
	p, ok := b.programs[id]
	if !ok {
		return
	}
	delete(b.programs, id)
	if b.queue.PollCompleted() < b.submitted {
		if err := b.device.WaitIdle(); err != nil {
			vision.Logger().Warn("wgpu: wait idle before destroying program", "err", err)
		}
	}
	b.destroyProgram(p)
}

// uniformBytes packs the uniform block followed by the input sizes.
func uniformBytes(l *gpucore.Layout, uniforms []float32, sizes [][2]int) []byte {
	data := make([]byte, uniformSlots(l)*16)
	for i, v := range uniforms[:min(len(uniforms), l.BlockSize())] {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	for unit, s := range sizes {
		off := sizeSlot(l, unit) * 16
		binary.LittleEndian.PutUint32(data[off:], math.Float32bits(float32(s[0])))
		binary.LittleEndian.PutUint32(data[off+4:], math.Float32bits(float32(s[1])))
	}
	return data
}

// Draw dispatches the kernel over every texel of the target framebuffer.
// A texture cannot be bound as both an input and the target.
func (b *Backend) Draw(call *gpucore.DrawCall) error {
	return b.locked(func() error {
		p, ok := b.programs[call.Program]
		if !ok {
			return fmt.Errorf("%w: program %d", gpucore.ErrUnknownResource, call.Program)
		}
		targetID, target, err := b.target(call.Framebuffer)
		if err != nil {
			return err
		}
		if len(call.Textures) < len(p.layout.Samplers()) {
			return fmt.Errorf("wgpu: kernel %q binds %d textures, got %d",
				p.kernel.Name, len(p.layout.Samplers()), len(call.Textures))
		}

		inputs := make([]*texture, len(p.layout.Samplers()))
		sizes := make([][2]int, len(inputs))
		for unit := range inputs {
			id := call.Textures[unit]
			if id == targetID {
				return fmt.Errorf("wgpu: kernel %q reads its own target on unit %d", p.kernel.Name, unit)
			}
			t, err := b.texture(id)
			if err != nil {
				return fmt.Errorf("wgpu: bind unit %d: %w", unit, err)
			}
			inputs[unit] = t
			sizes[unit] = [2]int{t.width, t.height}
		}

		data := uniformBytes(p.layout, call.Uniforms, sizes)
		ubuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
			Label: p.kernel.Name + ".uniforms",
			Size:  uint64(len(data)),
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("wgpu: uniform buffer: %w", err)
		}
		if err := b.queue.WriteBuffer(ubuf, 0, data); err != nil {
			b.device.DestroyBuffer(ubuf)
			return fmt.Errorf("wgpu: write uniforms: %w", err)
		}

		entries := []gputypes.BindGroupEntry{
			{Binding: bindingUniforms, Resource: gputypes.BufferBinding{Buffer: ubuf.NativeHandle(), Size: uint64(len(data))}},
			{Binding: bindingOutput, Resource: gputypes.BufferBinding{Buffer: target.buf.NativeHandle(), Size: target.bytes()}},
		}
		for unit, t := range inputs {
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  uint32(bindingInputs + unit),
				Resource: gputypes.BufferBinding{Buffer: t.buf.NativeHandle(), Size: t.bytes()},
			})
		}
		group, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   p.kernel.Name,
			Layout:  p.bindLayout,
			Entries: entries,
		})
		if err != nil {
			b.device.DestroyBuffer(ubuf)
			return fmt.Errorf("wgpu: bind group: %w", err)
		}

		gx := uint32((target.width + workgroupSize - 1) / workgroupSize)
		gy := uint32((target.height + workgroupSize - 1) / workgroupSize)
		return b.submitLocked(p.kernel.Name, func(enc hal.CommandEncoder) {
			pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: p.kernel.Name})
			pass.SetPipeline(p.pipeline)
			pass.SetBindGroup(0, group, nil)
			pass.Dispatch(gx, gy, 1)
			pass.End()
		}, retired{bufs: []hal.Buffer{ubuf}, groups: []hal.BindGroup{group}})
	})
}
