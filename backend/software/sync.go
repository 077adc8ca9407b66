// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/gpucore"
)

// Fence inserts a simulated completion signal.
func (b *Backend) Fence() (gpucore.FenceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return gpucore.InvalidID, gpucore.ErrContextLost
	}
	id := gpucore.FenceID(b.newID())
	b.fences[id] = &fence{}
	return id, nil
}

// PollFence advances the simulated fence and reports whether it signaled.
func (b *Backend) PollFence(id gpucore.FenceID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return false, gpucore.ErrContextLost
	}
	f, ok := b.fences[id]
	if !ok {
		return false, fmt.Errorf("%w: fence %d", gpucore.ErrUnknownResource, id)
	}
	if !f.done && !b.manual {
		f.polls++
		f.done = f.polls >= b.fenceLatency
	}
	return f.done, nil
}

// DestroyFence releases a fence.
func (b *Backend) DestroyFence(id gpucore.FenceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fences, id)
}

// CompleteFences signals every outstanding fence and returns how many
// were pending.
func (b *Backend) CompleteFences() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, f := range b.fences {
		if !f.done {
			f.done = true
			n++
		}
	}
	return n
}

// PendingFences returns the number of fences not yet signaled.
func (b *Backend) PendingFences() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, f := range b.fences {
		if !f.done {
			n++
		}
	}
	return n
}

// CreateBuffer allocates a transfer buffer.
func (b *Backend) CreateBuffer(size int) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("software: buffer size must be positive")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return gpucore.InvalidID, gpucore.ErrContextLost
	}
	id := gpucore.BufferID(b.newID())
	b.buffers[id] = make([]byte, size)
	return id, nil
}

// DestroyBuffer releases a transfer buffer.
func (b *Backend) DestroyBuffer(id gpucore.BufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, id)
}

// CopyToBuffer copies a texture's packed pixels into a buffer.
func (b *Backend) CopyToBuffer(tex gpucore.TextureID, buf gpucore.BufferID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, err := b.texture(tex)
	if err != nil {
		return err
	}
	dst, ok := b.buffers[buf]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, buf)
	}
	if len(dst) < len(img.Pix) {
		return fmt.Errorf("software: buffer of %d bytes too small for %d", len(dst), len(img.Pix))
	}
	copy(dst, img.Pix)
	b.copies.Add(1)
	return nil
}

// ReadBuffer copies buffer contents into dst.
func (b *Backend) ReadBuffer(buf gpucore.BufferID, dst []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return gpucore.ErrContextLost
	}
	src, ok := b.buffers[buf]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, buf)
	}
	copy(dst, src)
	return nil
}

// SetContextListener installs the context loss/restore callback.
func (b *Backend) SetContextListener(fn func(gpucore.ContextEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = fn
}

// LoseContext drops every resource and notifies the listener.
func (b *Backend) LoseContext() {
	b.mu.Lock()
	if b.lost {
		b.mu.Unlock()
		return
	}
	b.lost = true
	b.reset()
	fn := b.listener
	b.mu.Unlock()

	vision.Logger().Debug("software: context lost")
	if fn != nil {
		fn(gpucore.ContextLostEvent)
	}
}

// RestoreContext accepts work again and notifies the listener, which
// recreates resources before this call returns.
func (b *Backend) RestoreContext() {
	b.mu.Lock()
	if !b.lost {
		b.mu.Unlock()
		return
	}
	b.lost = false
	fn := b.listener
	b.mu.Unlock()

	vision.Logger().Debug("software: context restored")
	if fn != nil {
		fn(gpucore.ContextRestoredEvent)
	}
}

// Lost reports whether the context is currently lost.
func (b *Backend) Lost() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lost
}
