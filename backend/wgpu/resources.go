// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vision/gpucore"
)

const textureUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

func (b *Backend) checkSize(w, h int) error {
	maxSide := b.Capabilities().MaxTextureSize
	if w <= 0 || h <= 0 || w > maxSide || h > maxSide {
		return fmt.Errorf("wgpu: invalid texture size %dx%d (max %d)", w, h, maxSide)
	}
	return nil
}

// newTexture allocates a zeroed texel buffer.
func (b *Backend) newTexture(w, h int) (*texture, error) {
	t := &texture{width: w, height: h}
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "vision.texture",
		Size:  t.bytes(),
		Usage: textureUsage,
	})
	if err != nil {
		return nil, err
	}
	if err := b.queue.WriteBuffer(buf, 0, make([]byte, t.bytes())); err != nil {
		b.device.DestroyBuffer(buf)
		return nil, err
	}
	t.buf = buf
	return t, nil
}

// CreateTexture allocates a zeroed texture.
func (b *Backend) CreateTexture(width, height int) (gpucore.TextureID, error) {
	if err := b.checkSize(width, height); err != nil {
		return gpucore.InvalidID, err
	}
	var id uint64
	err := b.locked(func() error {
		t, err := b.newTexture(width, height)
		if err != nil {
			return fmt.Errorf("wgpu: create texture: %w", err)
		}
		id = b.newID()
		b.textures[gpucore.TextureID(id)] = t
		return nil
	})
	return gpucore.TextureID(id), err
}

// DestroyTexture releases a texture once pending work on it completes.
// The surface texture cannot be destroyed.
func (b *Backend) DestroyTexture(id gpucore.TextureID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id == b.surface || b.lost {
		return
	}
	if t, ok := b.textures[id]; ok {
		delete(b.textures, id)
		b.retireLocked(retired{bufs: []hal.Buffer{t.buf}})
	}
}

// WriteTexture uploads packed RGBA8 rows.
func (b *Backend) WriteTexture(id gpucore.TextureID, pixels []byte) error {
	return b.locked(func() error {
		t, err := b.texture(id)
		if err != nil {
			return err
		}
		if uint64(len(pixels)) != t.bytes() {
			return fmt.Errorf("wgpu: write %d bytes into %dx%d texture", len(pixels), t.width, t.height)
		}
		return b.queue.WriteBuffer(t.buf, 0, pixels)
	})
}

// CopyTexture copies the width×height region at the origin, one row at a
// time. The region is clipped to both textures.
func (b *Backend) CopyTexture(src, dst gpucore.TextureID, width, height int) error {
	return b.locked(func() error {
		s, err := b.texture(src)
		if err != nil {
			return err
		}
		d, err := b.texture(dst)
		if err != nil {
			return err
		}
		width = min(width, s.width, d.width)
		height = min(height, s.height, d.height)
		if width <= 0 || height <= 0 {
			return nil
		}
		regions := make([]hal.BufferCopy, 0, height)
		if width == s.width && width == d.width {
			regions = append(regions, hal.BufferCopy{Size: uint64(width) * uint64(height) * 4})
		} else {
			for y := range height {
				regions = append(regions, hal.BufferCopy{
					SrcOffset: uint64(y) * uint64(s.width) * 4,
					DstOffset: uint64(y) * uint64(d.width) * 4,
					Size:      uint64(width) * 4,
				})
			}
		}
		return b.submitLocked("vision.copy", func(enc hal.CommandEncoder) {
			enc.CopyBufferToBuffer(s.buf, d.buf, regions)
		}, retired{})
	})
}

// TextureSize returns the dimensions of a texture.
func (b *Backend) TextureSize(id gpucore.TextureID) (int, int, error) {
	var w, h int
	err := b.locked(func() error {
		t, err := b.texture(id)
		if err != nil {
			return err
		}
		w, h = t.width, t.height
		return nil
	})
	return w, h, err
}

func (b *Backend) texture(id gpucore.TextureID) (*texture, error) {
	t, ok := b.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, id)
	}
	return t, nil
}

// target resolves a framebuffer to its texture.
func (b *Backend) target(id gpucore.FramebufferID) (gpucore.TextureID, *texture, error) {
	texID := b.surface
	if id != gpucore.SurfaceFramebuffer {
		var ok bool
		texID, ok = b.framebuffers[id]
		if !ok {
			return gpucore.InvalidID, nil, fmt.Errorf("%w: framebuffer %d", gpucore.ErrUnknownResource, id)
		}
	}
	t, err := b.texture(texID)
	return texID, t, err
}

// CreateFramebuffer binds a texture as a render target.
func (b *Backend) CreateFramebuffer(tex gpucore.TextureID) (gpucore.FramebufferID, error) {
	var id uint64
	err := b.locked(func() error {
		if _, err := b.texture(tex); err != nil {
			return err
		}
		id = b.newID()
		b.framebuffers[gpucore.FramebufferID(id)] = tex
		return nil
	})
	return gpucore.FramebufferID(id), err
}

// DestroyFramebuffer releases a framebuffer. The texture is kept.
func (b *Backend) DestroyFramebuffer(id gpucore.FramebufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.framebuffers, id)
}

// ResizeSurface reallocates the surface. Content is discarded.
func (b *Backend) ResizeSurface(width, height int) error {
	if err := b.checkSize(width, height); err != nil {
		return err
	}
	return b.locked(func() error {
		t, err := b.newTexture(width, height)
		if err != nil {
			return fmt.Errorf("wgpu: resize surface: %w", err)
		}
		if old, ok := b.textures[b.surface]; ok {
			b.retireLocked(retired{bufs: []hal.Buffer{old.buf}})
		}
		b.textures[b.surface] = t
		return nil
	})
}

// SurfaceTexture returns the texture backing the surface.
func (b *Backend) SurfaceTexture() gpucore.TextureID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface
}

// CreateBuffer allocates a mappable transfer buffer.
func (b *Backend) CreateBuffer(size int) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer size must be positive")
	}
	var id uint64
	err := b.locked(func() error {
		buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "vision.readback",
			Size:  uint64(size),
			Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("wgpu: create buffer: %w", err)
		}
		id = b.newID()
		b.buffers[gpucore.BufferID(id)] = &buffer{buf: buf, size: size}
		return nil
	})
	return gpucore.BufferID(id), err
}

// DestroyBuffer releases a transfer buffer once pending copies complete.
func (b *Backend) DestroyBuffer(id gpucore.BufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return
	}
	if buf, ok := b.buffers[id]; ok {
		delete(b.buffers, id)
		b.retireLocked(retired{bufs: []hal.Buffer{buf.buf}})
	}
}

// CopyToBuffer records a copy of a texture's packed pixels into a buffer.
// The copy completes asynchronously; a fence inserted afterwards signals
// when ReadBuffer will not stall.
func (b *Backend) CopyToBuffer(tex gpucore.TextureID, id gpucore.BufferID) error {
	return b.locked(func() error {
		t, err := b.texture(tex)
		if err != nil {
			return err
		}
		buf, ok := b.buffers[id]
		if !ok {
			return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
		}
		if uint64(buf.size) < t.bytes() {
			return fmt.Errorf("wgpu: buffer of %d bytes too small for %d", buf.size, t.bytes())
		}
		err = b.submitLocked("vision.readback", func(enc hal.CommandEncoder) {
			enc.CopyBufferToBuffer(t.buf, buf.buf, []hal.BufferCopy{{Size: t.bytes()}})
		}, retired{})
		if err == nil {
			buf.pending = b.submitted
		}
		return err
	})
}

// ReadBuffer maps the buffer and copies its contents into dst. If the last
// copy into the buffer has not completed, ReadBuffer waits for the device
// to go idle.
func (b *Backend) ReadBuffer(id gpucore.BufferID, dst []byte) error {
	return b.locked(func() error {
		buf, ok := b.buffers[id]
		if !ok {
			return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
		}
		if buf.pending > b.queue.PollCompleted() {
			if err := b.device.WaitIdle(); err != nil {
				return fmt.Errorf("wgpu: wait for readback: %w", err)
			}
		}
		n := min(len(dst), buf.size)
		if n == 0 {
			return nil
		}
		m, err := b.device.MapBuffer(buf.buf, 0, uint64(n))
		if err != nil {
			return fmt.Errorf("wgpu: map buffer: %w", err)
		}
		copy(dst, unsafe.Slice((*byte)(m.Ptr), n))
		if err := b.device.UnmapBuffer(buf.buf); err != nil {
			return fmt.Errorf("wgpu: unmap buffer: %w", err)
		}
		return nil
	})
}
