// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"errors"
	"testing"

	"github.com/gogpu/vision/gpucore"
)

func invertKernel() *gpucore.Kernel {
	return &gpucore.Kernel{
		Name:     "invert",
		Args:     []string{"image"},
		Uniforms: []gpucore.UniformDecl{{Name: "image", Type: gpucore.UniformSampler}, {Name: "gain", Type: gpucore.UniformFloat}},
		CPU: func(x, y int, in *gpucore.Invocation) gpucore.Pixel {
			p := in.Sample("image", x, y)
			g := in.Float("gain")
			return gpucore.PixelFromVec4([4]float64{
				1 - float64(p[0])/255*g, 1 - float64(p[1])/255*g, 1 - float64(p[2])/255*g, 1,
			})
		},
	}
}

func mustTexture(t *testing.T, b *Backend, w, h int, fill byte) gpucore.TextureID {
	t.Helper()
	id, err := b.CreateTexture(w, h)
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	px := make([]byte, w*h*4)
	for i := range px {
		px[i] = fill
	}
	if err := b.WriteTexture(id, px); err != nil {
		t.Fatalf("WriteTexture: %v", err)
	}
	return id
}

func TestDraw(t *testing.T) {
	b := New()
	k := invertKernel()
	l := gpucore.NewLayout(k)

	src := mustTexture(t, b, 4, 3, 255)
	dst := mustTexture(t, b, 4, 3, 0)
	fb, err := b.CreateFramebuffer(dst)
	if err != nil {
		t.Fatalf("CreateFramebuffer: %v", err)
	}
	prog, err := b.Compile(k, l)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	block := make([]float32, l.BlockSize())
	block[0], block[1] = 4, 3
	gain, _ := l.Slot("gain")
	block[gain.Index*4] = 1

	if err := b.Draw(&gpucore.DrawCall{Program: prog, Framebuffer: fb, Uniforms: block, Textures: []gpucore.TextureID{src}}); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	buf, _ := b.CreateBuffer(4 * 3 * 4)
	if err := b.CopyToBuffer(dst, buf); err != nil {
		t.Fatalf("CopyToBuffer: %v", err)
	}
	out := make([]byte, 4*3*4)
	if err := b.ReadBuffer(buf, out); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	for i := 0; i < len(out); i += 4 {
		if out[i] != 0 || out[i+3] != 255 {
			t.Fatalf("pixel %d = %v, want [0 0 0 255]", i/4, out[i:i+4])
		}
	}
	if b.Draws() != 1 || b.Copies() != 1 {
		t.Errorf("Draws, Copies = %d, %d, want 1, 1", b.Draws(), b.Copies())
	}
}

func TestCopyTextureRegion(t *testing.T) {
	b := New()
	src := mustTexture(t, b, 4, 4, 9)
	dst := mustTexture(t, b, 6, 2, 0)
	if err := b.CopyTexture(src, dst, 4, 2); err != nil {
		t.Fatalf("CopyTexture: %v", err)
	}
	buf, _ := b.CreateBuffer(6 * 2 * 4)
	_ = b.CopyToBuffer(dst, buf)
	out := make([]byte, 6*2*4)
	_ = b.ReadBuffer(buf, out)

	for y := 0; y < 2; y++ {
		for x := 0; x < 6; x++ {
			want := byte(0)
			if x < 4 {
				want = 9
			}
			if got := out[(y*6+x)*4]; got != want {
				t.Errorf("(%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestFenceLatency(t *testing.T) {
	b := New(WithFenceLatency(3))
	f, err := b.Fence()
	if err != nil {
		t.Fatalf("Fence: %v", err)
	}
	for i := 1; i <= 3; i++ {
		done, err := b.PollFence(f)
		if err != nil {
			t.Fatalf("PollFence: %v", err)
		}
		if want := i == 3; done != want {
			t.Errorf("poll %d: done = %v, want %v", i, done, want)
		}
	}
}

func TestManualFences(t *testing.T) {
	b := New(WithManualFences())
	f, _ := b.Fence()
	for i := 0; i < 5; i++ {
		if done, _ := b.PollFence(f); done {
			t.Fatal("manual fence signaled without CompleteFences")
		}
	}
	if n := b.CompleteFences(); n != 1 {
		t.Errorf("CompleteFences() = %d, want 1", n)
	}
	if done, _ := b.PollFence(f); !done {
		t.Error("fence not signaled after CompleteFences")
	}
}

func TestContextLoss(t *testing.T) {
	b := New()
	var events []gpucore.ContextEvent
	b.SetContextListener(func(ev gpucore.ContextEvent) { events = append(events, ev) })

	tex := mustTexture(t, b, 2, 2, 1)
	b.LoseContext()
	b.LoseContext()

	if !b.Lost() {
		t.Fatal("Lost() = false after LoseContext")
	}
	if _, err := b.CreateTexture(2, 2); !errors.Is(err, gpucore.ErrContextLost) {
		t.Errorf("CreateTexture while lost: err = %v, want ErrContextLost", err)
	}

	b.RestoreContext()
	if _, _, err := b.TextureSize(tex); !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("texture survived context loss: err = %v", err)
	}
	if len(events) != 2 || events[0] != gpucore.ContextLostEvent || events[1] != gpucore.ContextRestoredEvent {
		t.Errorf("events = %v, want [lost restored]", events)
	}
}

func TestInvalidSizes(t *testing.T) {
	b := New(WithMaxTextureSize(16))
	for _, sz := range [][2]int{{0, 1}, {1, 0}, {17, 1}, {-1, -1}} {
		if _, err := b.CreateTexture(sz[0], sz[1]); err == nil {
			t.Errorf("CreateTexture(%d, %d) succeeded, want error", sz[0], sz[1])
		}
	}
	if b.Capabilities().MaxTextureSize != 16 {
		t.Errorf("MaxTextureSize = %d, want 16", b.Capabilities().MaxTextureSize)
	}
	if New(WithoutFences()).Capabilities().Fences {
		t.Error("WithoutFences backend reports fences")
	}
}
