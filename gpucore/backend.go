// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

// ContextEvent is a graphics context notification.
type ContextEvent uint8

// Context events.
const (
	// ContextLostEvent reports that every backend resource is gone.
	ContextLostEvent ContextEvent = iota + 1

	// ContextRestoredEvent reports that the backend accepts work again.
	// Resources must be recreated.
	ContextRestoredEvent
)

// String returns the event name.
func (e ContextEvent) String() string {
	switch e {
	case ContextLostEvent:
		return "lost"
	case ContextRestoredEvent:
		return "restored"
	default:
		return "unknown"
	}
}

// DrawCall runs a compiled kernel over every pixel of a framebuffer.
type DrawCall struct {
	// Program is the compiled kernel.
	Program ProgramID

	// Framebuffer is the target; SurfaceFramebuffer draws to the surface.
	Framebuffer FramebufferID

	// Uniforms is the packed uniform block, Layout.BlockSize() floats.
	// Slot 0 holds texSize.
	Uniforms []float32

	// Textures binds input textures by texture unit.
	Textures []TextureID
}

// Backend is the graphics collaborator consumed by the engine.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - IDs become invalid after destruction and after context loss
//
// Implementations must be safe for concurrent use: readback polls fences
// from its own goroutine while the render thread issues draws.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Capabilities reports backend features.
	Capabilities() Capabilities

	// CreateTexture allocates a zeroed RGBA8 texture.
	CreateTexture(width, height int) (TextureID, error)

	// DestroyTexture releases a texture. Unknown IDs are ignored.
	DestroyTexture(id TextureID)

	// WriteTexture uploads tightly packed RGBA8 rows covering the texture.
	WriteTexture(id TextureID, pixels []byte) error

	// CopyTexture copies the width×height region at the origin of src
	// into the origin of dst.
	CopyTexture(src, dst TextureID, width, height int) error

	// TextureSize returns the dimensions of a texture.
	TextureSize(id TextureID) (width, height int, err error)

	// CreateFramebuffer binds a texture as a render target.
	CreateFramebuffer(texture TextureID) (FramebufferID, error)

	// DestroyFramebuffer releases a framebuffer. The texture is not affected.
	DestroyFramebuffer(id FramebufferID)

	// Compile builds a kernel. Compile and link failures are returned as errors.
	Compile(kernel *Kernel, layout *Layout) (ProgramID, error)

	// DestroyProgram releases a compiled kernel.
	DestroyProgram(id ProgramID)

	// Draw issues a draw. It does not wait for completion.
	Draw(call *DrawCall) error

	// ResizeSurface sets the presentation surface size.
	ResizeSurface(width, height int) error

	// SurfaceTexture returns the texture backing the surface.
	SurfaceTexture() TextureID

	// Fence inserts a completion signal after all previously issued work.
	Fence() (FenceID, error)

	// PollFence reports, without blocking, whether a fence has signaled.
	PollFence(id FenceID) (bool, error)

	// DestroyFence releases a fence.
	DestroyFence(id FenceID)

	// CreateBuffer allocates a host-readable transfer buffer of size bytes.
	CreateBuffer(size int) (BufferID, error)

	// DestroyBuffer releases a transfer buffer.
	DestroyBuffer(id BufferID)

	// CopyToBuffer issues a copy of a texture's packed pixels into a buffer.
	CopyToBuffer(texture TextureID, buffer BufferID) error

	// ReadBuffer copies buffer contents into dst, waiting for pending
	// copies into the buffer if necessary.
	ReadBuffer(buffer BufferID, dst []byte) error

	// SetContextListener installs the context loss/restore callback.
	// The callback must not be invoked with backend locks held.
	SetContextListener(fn func(ContextEvent))
}
