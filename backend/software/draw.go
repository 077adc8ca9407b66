// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"
	"image"

	"github.com/gogpu/vision/gpucore"
)

// rgbaSource adapts an image.RGBA to gpucore.Source.
type rgbaSource struct {
	img *image.RGBA
}

func (s rgbaSource) Size() (int, int) { return s.img.Rect.Dx(), s.img.Rect.Dy() }

func (s rgbaSource) At(x, y int) gpucore.Pixel {
	i := s.img.PixOffset(x, y)
	p := s.img.Pix[i : i+4 : i+4]
	return gpucore.Pixel{p[0], p[1], p[2], p[3]}
}

// Draw runs the kernel's CPU function over every target pixel. The result
// is computed into scratch memory first, so a kernel reading its own
// target sees the pre-draw content.
func (b *Backend) Draw(call *gpucore.DrawCall) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return gpucore.ErrContextLost
	}

	prog, ok := b.programs[call.Program]
	if !ok {
		return fmt.Errorf("%w: program %d", gpucore.ErrUnknownResource, call.Program)
	}

	targetID := b.surface
	if call.Framebuffer != gpucore.SurfaceFramebuffer {
		targetID, ok = b.framebuffers[call.Framebuffer]
		if !ok {
			return fmt.Errorf("%w: framebuffer %d", gpucore.ErrUnknownResource, call.Framebuffer)
		}
	}
	target, err := b.texture(targetID)
	if err != nil {
		return err
	}

	sources := make([]gpucore.Source, len(call.Textures))
	for unit, id := range call.Textures {
		img, err := b.texture(id)
		if err != nil {
			return fmt.Errorf("software: bind unit %d: %w", unit, err)
		}
		sources[unit] = rgbaSource{img: img}
	}

	w, h := target.Rect.Dx(), target.Rect.Dy()
	in := gpucore.NewInvocation(prog.layout, w, h, call.Uniforms, sources)
	out := make([]byte, len(target.Pix))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := prog.kernel.CPU(x, y, in)
			copy(out[(y*w+x)*4:], p[:])
		}
	}
	copy(target.Pix, out)
	b.draws.Add(1)
	return nil
}
