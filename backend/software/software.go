// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software implements gpucore.Backend on the CPU.
//
// Kernels run through their CPU reference functions, so results are
// deterministic and need no GPU. Fences are simulated: a fence signals
// after a configurable number of polls, or only when CompleteFences is
// called in manual mode. LoseContext and RestoreContext inject context
// loss for tests.
package software

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"

	"github.com/gogpu/vision/backend"
	"github.com/gogpu/vision/gpucore"
)

// DefaultMaxTextureSize is the largest texture side accepted by default.
const DefaultMaxTextureSize = 8192

func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.Backend, error) {
		return New(), nil
	})
}

type program struct {
	kernel *gpucore.Kernel
	layout *gpucore.Layout
}

type fence struct {
	polls int
	done  bool
}

// Backend is the CPU reference backend.
//
// Thread Safety: Backend is safe for concurrent use from multiple goroutines.
// All resource operations are protected by a mutex.
type Backend struct {
	mu sync.Mutex

	nextID atomic.Uint64

	textures     map[gpucore.TextureID]*image.RGBA
	framebuffers map[gpucore.FramebufferID]gpucore.TextureID
	programs     map[gpucore.ProgramID]*program
	buffers      map[gpucore.BufferID][]byte
	fences       map[gpucore.FenceID]*fence
	surface      gpucore.TextureID

	lost     bool
	listener func(gpucore.ContextEvent)

	fenceLatency int
	manual       bool
	noFences     bool
	maxTexture   int

	draws  atomic.Uint64
	copies atomic.Uint64
}

// Option configures a Backend.
type Option func(*Backend)

// WithFenceLatency makes fences signal on the n-th poll. n < 1 means 1.
func WithFenceLatency(n int) Option {
	return func(b *Backend) {
		if n < 1 {
			n = 1
		}
		b.fenceLatency = n
	}
}

// WithManualFences makes fences signal only when CompleteFences is called.
func WithManualFences() Option {
	return func(b *Backend) { b.manual = true }
}

// WithoutFences reports no fence support, forcing synchronous readback.
func WithoutFences() Option {
	return func(b *Backend) { b.noFences = true }
}

// WithMaxTextureSize sets the largest accepted texture side.
func WithMaxTextureSize(n int) Option {
	return func(b *Backend) { b.maxTexture = n }
}

// New creates a software backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		fenceLatency: 1,
		maxTexture:   DefaultMaxTextureSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	// Start ID generation at 1 (0 is invalid)
	b.nextID.Store(1)
	b.reset()
	return b
}

func (b *Backend) reset() {
	b.textures = make(map[gpucore.TextureID]*image.RGBA)
	b.framebuffers = make(map[gpucore.FramebufferID]gpucore.TextureID)
	b.programs = make(map[gpucore.ProgramID]*program)
	b.buffers = make(map[gpucore.BufferID][]byte)
	b.fences = make(map[gpucore.FenceID]*fence)
	b.surface = gpucore.TextureID(b.newID())
	b.textures[b.surface] = image.NewRGBA(image.Rect(0, 0, 1, 1))
}

// newID generates a unique resource ID.
func (b *Backend) newID() uint64 {
	return b.nextID.Add(1) - 1
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendSoftware }

// Capabilities reports backend features.
func (b *Backend) Capabilities() gpucore.Capabilities {
	return gpucore.Capabilities{Fences: !b.noFences, MaxTextureSize: b.maxTexture}
}

func (b *Backend) checkSize(w, h int) error {
	if w <= 0 || h <= 0 || w > b.maxTexture || h > b.maxTexture {
		return fmt.Errorf("software: invalid texture size %dx%d (max %d)", w, h, b.maxTexture)
	}
	return nil
}

// CreateTexture allocates a zeroed texture.
func (b *Backend) CreateTexture(width, height int) (gpucore.TextureID, error) {
	if err := b.checkSize(width, height); err != nil {
		return gpucore.InvalidID, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return gpucore.InvalidID, gpucore.ErrContextLost
	}
	id := gpucore.TextureID(b.newID())
	b.textures[id] = image.NewRGBA(image.Rect(0, 0, width, height))
	return id, nil
}

// DestroyTexture releases a texture.
func (b *Backend) DestroyTexture(id gpucore.TextureID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id != b.surface {
		delete(b.textures, id)
	}
}

// WriteTexture uploads packed RGBA8 rows.
func (b *Backend) WriteTexture(id gpucore.TextureID, pixels []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, err := b.texture(id)
	if err != nil {
		return err
	}
	if len(pixels) != len(img.Pix) {
		return fmt.Errorf("software: write %d bytes into %dx%d texture", len(pixels), img.Rect.Dx(), img.Rect.Dy())
	}
	copy(img.Pix, pixels)
	return nil
}

// CopyTexture copies the width×height region at the origin.
func (b *Backend) CopyTexture(src, dst gpucore.TextureID, width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.texture(src)
	if err != nil {
		return err
	}
	d, err := b.texture(dst)
	if err != nil {
		return err
	}
	draw.Draw(d, image.Rect(0, 0, width, height), s, image.Point{}, draw.Src)
	return nil
}

// TextureSize returns the dimensions of a texture.
func (b *Backend) TextureSize(id gpucore.TextureID) (int, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, err := b.texture(id)
	if err != nil {
		return 0, 0, err
	}
	return img.Rect.Dx(), img.Rect.Dy(), nil
}

func (b *Backend) texture(id gpucore.TextureID) (*image.RGBA, error) {
	if b.lost {
		return nil, gpucore.ErrContextLost
	}
	img, ok := b.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, id)
	}
	return img, nil
}

// CreateFramebuffer binds a texture as a render target.
func (b *Backend) CreateFramebuffer(tex gpucore.TextureID) (gpucore.FramebufferID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.texture(tex); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.FramebufferID(b.newID())
	b.framebuffers[id] = tex
	return id, nil
}

// DestroyFramebuffer releases a framebuffer.
func (b *Backend) DestroyFramebuffer(id gpucore.FramebufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.framebuffers, id)
}

// Compile records the kernel. Only the CPU implementation is used.
func (b *Backend) Compile(k *gpucore.Kernel, l *gpucore.Layout) (gpucore.ProgramID, error) {
	if k.CPU == nil {
		return gpucore.InvalidID, fmt.Errorf("software: kernel %q has no CPU implementation", k.Name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return gpucore.InvalidID, gpucore.ErrContextLost
	}
	id := gpucore.ProgramID(b.newID())
	b.programs[id] = &program{kernel: k, layout: l}
	return id, nil
}

// DestroyProgram releases a compiled kernel.
func (b *Backend) DestroyProgram(id gpucore.ProgramID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.programs, id)
}

// ResizeSurface reallocates the surface. Content is discarded.
func (b *Backend) ResizeSurface(width, height int) error {
	if err := b.checkSize(width, height); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lost {
		return gpucore.ErrContextLost
	}
	b.textures[b.surface] = image.NewRGBA(image.Rect(0, 0, width, height))
	return nil
}

// SurfaceTexture returns the texture backing the surface.
func (b *Backend) SurfaceTexture() gpucore.TextureID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface
}

// Draws returns the number of draws executed.
func (b *Backend) Draws() uint64 { return b.draws.Load() }

// Copies returns the number of texture-to-buffer copies issued.
func (b *Backend) Copies() uint64 { return b.copies.Load() }

// LiveTextures returns the number of allocated textures, surface included.
func (b *Backend) LiveTextures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.textures)
}
