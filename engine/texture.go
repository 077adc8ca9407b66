// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"golang.org/x/image/draw"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/gpucore"
)

// Texture errors.
var (
	// ErrTextureReleased is returned when using a released texture.
	ErrTextureReleased = errors.New("engine: texture has been released")

	// ErrOwnedTexture is returned when releasing a texture a Program owns.
	ErrOwnedTexture = errors.New("engine: texture is owned by a program")
)

// Texture is a GPU-resident RGBA8 image. A texture owned by a Program is
// valid until the program's next call (recycle policy) or the call after
// (ping-pong); textures without an owner belong to the caller.
//
// The wrapper is stable: when its owner is resized or rebuilt after a
// context loss the backing resource changes but the *Texture does not.
type Texture struct {
	ctx    *gpucore.Context
	id     gpucore.TextureID
	width  int
	height int
	owner  *Program

	// data mirrors uploaded content so it survives context loss.
	data       []byte
	removeHook func()

	released atomic.Bool
}

// NewTexture uploads packed RGBA8 pixels (or zeros if pixels is nil) into
// a caller-owned texture. The content is kept on the host and re-uploaded
// after a context loss.
func NewTexture(ctx *gpucore.Context, width, height int, pixels []byte) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, vision.Configf("new texture", "", "invalid size %dx%d", width, height)
	}
	if pixels != nil && len(pixels) != width*height*4 {
		return nil, vision.Configf("new texture", "", "got %d bytes for %dx%d", len(pixels), width, height)
	}
	t := &Texture{ctx: ctx, width: width, height: height}
	if pixels != nil {
		t.data = append([]byte(nil), pixels...)
	}
	if ctx.Ready() {
		if err := t.upload(); err != nil && !errors.Is(err, gpucore.ErrContextLost) {
			return nil, err
		}
	}
	t.removeHook = ctx.OnRebuild(t.upload)
	return t, nil
}

// TextureFromImage converts img to RGBA and uploads it.
func TextureFromImage(ctx *gpucore.Context, img image.Image) (*Texture, error) {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) || rgba.Stride != 4*b.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	}
	return NewTexture(ctx, b.Dx(), b.Dy(), rgba.Pix)
}

func (t *Texture) upload() error {
	be := t.ctx.Backend()
	id, err := be.CreateTexture(t.width, t.height)
	if err != nil {
		return fmt.Errorf("engine: create texture: %w", err)
	}
	if t.data != nil {
		if err := be.WriteTexture(id, t.data); err != nil {
			be.DestroyTexture(id)
			return fmt.Errorf("engine: upload texture: %w", err)
		}
	}
	t.id = id
	return nil
}

// ID returns the backend handle.
func (t *Texture) ID() gpucore.TextureID { return t.id }

// Width returns the width in pixels.
func (t *Texture) Width() int { return t.width }

// Height returns the height in pixels.
func (t *Texture) Height() int { return t.height }

// Size returns the dimensions.
func (t *Texture) Size() (int, int) { return t.width, t.height }

// Owner returns the owning program, or nil for caller-owned textures.
func (t *Texture) Owner() *Program { return t.owner }

// Released reports whether the texture has been released.
func (t *Texture) Released() bool { return t.released.Load() }

// Write replaces the content of a caller-owned texture.
func (t *Texture) Write(pixels []byte) error {
	if t.released.Load() {
		return ErrTextureReleased
	}
	if t.owner != nil {
		return ErrOwnedTexture
	}
	if len(pixels) != t.width*t.height*4 {
		return vision.Configf("write texture", "", "got %d bytes for %dx%d", len(pixels), t.width, t.height)
	}
	t.data = append(t.data[:0], pixels...)
	if !t.ctx.Ready() {
		return nil
	}
	if err := t.ctx.Backend().WriteTexture(t.id, pixels); err != nil && !errors.Is(err, gpucore.ErrContextLost) {
		return fmt.Errorf("engine: write texture: %w", err)
	}
	return nil
}

// Read copies the texture to the host synchronously. It stalls until
// the GPU has finished; use the readback package on hot paths.
func (t *Texture) Read() ([]byte, error) {
	if t.released.Load() {
		return nil, ErrTextureReleased
	}
	if !t.ctx.Ready() {
		return nil, gpucore.ErrContextLost
	}
	be := t.ctx.Backend()
	size := t.width * t.height * 4
	buf, err := be.CreateBuffer(size)
	if err != nil {
		return nil, fmt.Errorf("engine: read texture: %w", err)
	}
	defer be.DestroyBuffer(buf)
	if err := be.CopyToBuffer(t.id, buf); err != nil {
		return nil, fmt.Errorf("engine: read texture: %w", err)
	}
	out := make([]byte, size)
	if err := be.ReadBuffer(buf, out); err != nil {
		return nil, fmt.Errorf("engine: read texture: %w", err)
	}
	return out, nil
}

// Release frees a caller-owned texture. Textures owned by a program are
// released with the program. Releasing twice is a no-op.
func (t *Texture) Release() error {
	if t.owner != nil && !t.owner.released.Load() {
		return ErrOwnedTexture
	}
	if t.released.Swap(true) {
		return nil
	}
	if t.removeHook != nil {
		t.removeHook()
	}
	t.ctx.Backend().DestroyTexture(t.id)
	t.data = nil
	return nil
}
