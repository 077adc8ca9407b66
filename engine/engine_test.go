// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"errors"
	"testing"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/backend/software"
	"github.com/gogpu/vision/gpucore"
)

func newTestContext(t *testing.T, opts ...software.Option) (*gpucore.Context, *software.Backend) {
	t.Helper()
	sw := software.New(opts...)
	return gpucore.NewContext(sw), sw
}

var imageDecl = gpucore.UniformDecl{Name: "image", Type: gpucore.UniformSampler}

// coordKernel writes (x, y, 7, 255).
var coordKernel = &gpucore.Kernel{
	Name: "coords",
	CPU: func(x, y int, _ *gpucore.Invocation) gpucore.Pixel {
		return gpucore.Pixel{uint8(x), uint8(y), 7, 255}
	},
}

// incKernel adds amount to the red channel of image.
var incKernel = &gpucore.Kernel{
	Name:     "inc",
	Args:     []string{"image", "amount"},
	Uniforms: []gpucore.UniformDecl{imageDecl, {Name: "amount", Type: gpucore.UniformInt}},
	CPU: func(x, y int, in *gpucore.Invocation) gpucore.Pixel {
		p := in.Sample("image", x, y)
		p[0] += uint8(in.Int("amount"))
		return p
	},
}

// sizeKernel writes texSize into red and green.
var sizeKernel = &gpucore.Kernel{
	Name: "size",
	CPU: func(_, _ int, in *gpucore.Invocation) gpucore.Pixel {
		s := in.Vec(gpucore.TexSize)
		return gpucore.Pixel{uint8(s[0]), uint8(s[1]), 0, 255}
	},
}

// weightKernel writes the sum of its weights and gain into red.
var weightKernel = &gpucore.Kernel{
	Name: "weights",
	Uniforms: []gpucore.UniformDecl{
		{Name: "weights", Type: gpucore.UniformFloat, Len: 3},
		{Name: "gain", Type: gpucore.UniformFloat},
	},
	CPU: func(_, _ int, in *gpucore.Invocation) gpucore.Pixel {
		sum := in.Float("weights[0]") + in.Float("weights[1]") + in.Float("weights[2]")
		return gpucore.Pixel{uint8(sum * in.Float("gain")), 0, 0, 255}
	},
}

func pixelAt(t *testing.T, tex *Texture, x, y int) gpucore.Pixel {
	t.Helper()
	data, err := tex.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	i := (y*tex.Width() + x) * 4
	return gpucore.Pixel{data[i], data[i+1], data[i+2], data[i+3]}
}

func solid(w, h int, p gpucore.Pixel) []byte {
	out := make([]byte, w*h*4)
	for i := 0; i < len(out); i += 4 {
		copy(out[i:], p[:])
	}
	return out
}

func TestResizePreservation(t *testing.T) {
	tests := []struct {
		name   string
		w1, h1 int
		w2, h2 int
	}{
		{"grow", 4, 4, 6, 7},
		{"shrink", 6, 5, 3, 2},
		{"mixed", 4, 4, 6, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := newTestContext(t)
			p, err := NewProgram(ctx, coordKernel, tt.w1, tt.h1)
			if err != nil {
				t.Fatalf("NewProgram: %v", err)
			}
			defer p.Release()

			out, err := p.Run()
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if err := p.Resize(tt.w2, tt.h2); err != nil {
				t.Fatalf("Resize: %v", err)
			}
			if w, h := out.Size(); w != tt.w2 || h != tt.h2 {
				t.Fatalf("size after Resize = %dx%d, want %dx%d", w, h, tt.w2, tt.h2)
			}

			cw, ch := min(tt.w1, tt.w2), min(tt.h1, tt.h2)
			for y := 0; y < ch; y++ {
				for x := 0; x < cw; x++ {
					if got, want := pixelAt(t, out, x, y), (gpucore.Pixel{uint8(x), uint8(y), 7, 255}); got != want {
						t.Fatalf("preserved (%d,%d) = %v, want %v", x, y, got, want)
					}
				}
			}

			out, err = p.Run()
			if err != nil {
				t.Fatalf("Run after resize: %v", err)
			}
			if w, h := out.Size(); w != tt.w2 || h != tt.h2 {
				t.Errorf("output = %dx%d, want %dx%d", w, h, tt.w2, tt.h2)
			}
			if got := pixelAt(t, out, tt.w2-1, tt.h2-1); got != (gpucore.Pixel{uint8(tt.w2 - 1), uint8(tt.h2 - 1), 7, 255}) {
				t.Errorf("corner = %v after rerun", got)
			}
		})
	}
}

func TestPingPongSafety(t *testing.T) {
	ctx, _ := newTestContext(t)
	seed, err := NewTexture(ctx, 3, 3, solid(3, 3, gpucore.Pixel{10, 0, 0, 255}))
	if err != nil {
		t.Fatalf("NewTexture: %v", err)
	}
	p, err := NewProgram(ctx, incKernel, 3, 3, WithPingPong())
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}

	first, err := p.Run(seed, 1)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := p.Run(first, 1)
	if err != nil {
		t.Fatalf("second Run consuming first output: %v", err)
	}
	if first == second || first.ID() == second.ID() {
		t.Fatal("ping-pong calls returned the same texture")
	}
	third, err := p.Run(second, 1)
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if third != first {
		t.Error("ping-pong did not alternate back to the first buffer")
	}
	if got := pixelAt(t, third, 1, 1)[0]; got != 13 {
		t.Errorf("accumulated red = %d, want 13", got)
	}
}

func TestSelfReadRejected(t *testing.T) {
	ctx, _ := newTestContext(t)
	seed, _ := NewTexture(ctx, 2, 2, nil)
	p, err := NewProgram(ctx, incKernel, 2, 2)
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	out, err := p.Run(seed, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, err = p.Run(out, 1)
	if !errors.Is(err, vision.ErrConfiguration) {
		t.Fatalf("Run(own output) = %v, want configuration error", err)
	}

	pp, _ := NewProgram(ctx, incKernel, 2, 2, WithPingPong())
	a, _ := pp.Run(seed, 1)
	b, _ := pp.Run(a, 1)
	// The next call writes into a again.
	if _, err := pp.Run(a, 1); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("ping-pong Run(stale output) = %v, want configuration error", err)
	}
	if _, err := pp.Run(b, 1); err != nil {
		t.Errorf("ping-pong Run(previous output) = %v", err)
	}
}

func TestClonePolicy(t *testing.T) {
	ctx, sw := newTestContext(t)
	seed, _ := NewTexture(ctx, 2, 2, solid(2, 2, gpucore.Pixel{1, 0, 0, 255}))
	p, err := NewProgram(ctx, incKernel, 2, 2, WithClone())
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}

	a, _ := p.Run(seed, 1)
	b, _ := p.Run(seed, 5)
	if a == b {
		t.Fatal("clone policy returned the same texture twice")
	}
	if a.Owner() != nil {
		t.Error("cloned texture has an owner")
	}
	if got := pixelAt(t, a, 0, 0)[0]; got != 2 {
		t.Errorf("first clone red = %d, want 2 (must outlive the second call)", got)
	}

	live := sw.LiveTextures()
	if err := a.Release(); err != nil {
		t.Fatalf("Release clone: %v", err)
	}
	if sw.LiveTextures() != live-1 {
		t.Errorf("LiveTextures = %d, want %d", sw.LiveTextures(), live-1)
	}

	rp, _ := NewProgram(ctx, incKernel, 2, 2)
	owned, _ := rp.Run(seed, 1)
	if err := owned.Release(); !errors.Is(err, ErrOwnedTexture) {
		t.Errorf("Release(owned) = %v, want ErrOwnedTexture", err)
	}
}

func TestRunArgumentErrors(t *testing.T) {
	ctx, _ := newTestContext(t)
	seed, _ := NewTexture(ctx, 2, 2, nil)
	p, _ := NewProgram(ctx, incKernel, 2, 2)

	tests := []struct {
		name string
		args []any
	}{
		{"too few", []any{seed}},
		{"too many", []any{seed, 1, 2}},
		{"nil texture", []any{(*Texture)(nil), 1}},
		{"not a texture", []any{"image", 1}},
		{"float for int", []any{seed, 1.5}},
		{"vector for int", []any{seed, [2]float64{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Run(tt.args...); !errors.Is(err, vision.ErrConfiguration) {
				t.Errorf("Run = %v, want configuration error", err)
			}
		})
	}

	_ = seed.Release()
	if _, err := p.Run(seed, 1); !errors.Is(err, ErrTextureReleased) {
		t.Errorf("Run(released) = %v, want ErrTextureReleased", err)
	}
}

func TestTexSizeRefresh(t *testing.T) {
	ctx, _ := newTestContext(t)
	p, _ := NewProgram(ctx, sizeKernel, 5, 3)
	out, _ := p.Run()
	if got := pixelAt(t, out, 0, 0); got[0] != 5 || got[1] != 3 {
		t.Errorf("texSize = %d,%d, want 5,3", got[0], got[1])
	}
	_ = p.Resize(9, 4)
	out, _ = p.Run()
	if got := pixelAt(t, out, 0, 0); got[0] != 9 || got[1] != 4 {
		t.Errorf("texSize after resize = %d,%d, want 9,4", got[0], got[1])
	}
}

func TestOutputScale(t *testing.T) {
	ctx, _ := newTestContext(t)
	p, err := NewProgram(ctx, sizeKernel, 9, 6, WithOutputScale(2, 3))
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	if w, h := p.Size(); w != 6 || h != 4 {
		t.Errorf("Size() = %dx%d, want 6x4", w, h)
	}
	_ = p.Resize(1, 1)
	if w, h := p.Size(); w != 1 || h != 1 {
		t.Errorf("Size() = %dx%d, want 1x1 floor", w, h)
	}
	if _, err := NewProgram(ctx, sizeKernel, 4, 4, WithOutputScale(0, 1)); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("zero scale: err = %v, want configuration error", err)
	}
}

func TestConstants(t *testing.T) {
	ctx, _ := newTestContext(t)
	p, err := NewProgram(ctx, weightKernel, 1, 1,
		WithConstant("weights", []float64{1, 2, 3}),
		WithConstant("gain", 2.0))
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	out, _ := p.Run()
	if got := pixelAt(t, out, 0, 0)[0]; got != 12 {
		t.Errorf("red = %d, want 12", got)
	}

	if err := p.SetUniform("weights[1]", 10); err != nil {
		t.Fatalf("SetUniform element: %v", err)
	}
	out, _ = p.Run()
	if got := pixelAt(t, out, 0, 0)[0]; got != 28 {
		t.Errorf("red = %d, want 28", got)
	}

	bad := []struct {
		loc   string
		value any
	}{
		{"weights", []float64{1, 2}},
		{"weights[3]", 1.0},
		{"missing", 1.0},
		{"gain", true},
	}
	for _, b := range bad {
		if err := p.SetUniform(b.loc, b.value); !errors.Is(err, vision.ErrConfiguration) {
			t.Errorf("SetUniform(%q, %v) = %v, want configuration error", b.loc, b.value, err)
		}
	}

	ip, _ := NewProgram(ctx, incKernel, 1, 1)
	if err := ip.SetUniform("amount", 1); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("SetUniform(argument) = %v, want configuration error", err)
	}
	if _, err := NewProgram(ctx, incKernel, 1, 1, WithConstant("amount", 1)); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("WithConstant(argument) = %v, want configuration error", err)
	}

	size := [2]float64{7, 7}
	for _, loc := range []string{gpucore.TexSize, gpucore.TexSize + "[0]"} {
		if err := p.SetUniform(loc, size); !errors.Is(err, vision.ErrConfiguration) {
			t.Errorf("SetUniform(%q) = %v, want configuration error", loc, err)
		}
	}
	if _, err := NewProgram(ctx, weightKernel, 1, 1, WithConstant(gpucore.TexSize, size)); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("WithConstant(texSize) = %v, want configuration error", err)
	}
}

func TestCompileFailureIsConfigurationError(t *testing.T) {
	ctx, _ := newTestContext(t)
	gpuOnly := &gpucore.Kernel{Name: "gpuOnly", WGSL: "return vec4<f32>(0.0);"}
	_, err := NewProgram(ctx, gpuOnly, 2, 2)
	var ce *vision.ConfigurationError
	if !errors.As(err, &ce) || ce.Op != "compile" {
		t.Fatalf("NewProgram = %v, want compile ConfigurationError", err)
	}

	undeclared := &gpucore.Kernel{Name: "bad", Args: []string{"threshold"}, CPU: coordKernel.CPU}
	if _, err := NewProgram(ctx, undeclared, 2, 2); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("undeclared argument: err = %v, want configuration error", err)
	}
	if _, err := NewProgram(ctx, coordKernel, 2, 2, ToSurface(), WithPingPong()); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("surface ping-pong: err = %v, want configuration error", err)
	}
}

func TestContextLossDegrades(t *testing.T) {
	ctx, sw := newTestContext(t)
	seed, _ := NewTexture(ctx, 2, 2, solid(2, 2, gpucore.Pixel{3, 0, 0, 255}))
	p, _ := NewProgram(ctx, incKernel, 2, 2)

	good, err := p.Run(seed, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	draws := sw.Draws()

	sw.LoseContext()
	got, err := p.Run(seed, 1)
	if err != nil || got != good {
		t.Fatalf("Run while lost = %v, %v, want last output and nil", got, err)
	}
	if err := p.Resize(4, 4); err != nil {
		t.Errorf("Resize while lost = %v, want nil", err)
	}
	if sw.Draws() != draws {
		t.Error("draw issued while context lost")
	}

	sw.RestoreContext()
	out, err := p.Run(seed, 1)
	if err != nil {
		t.Fatalf("Run after restore: %v", err)
	}
	if w, h := out.Size(); w != 4 || h != 4 {
		t.Errorf("size after restore = %dx%d, want 4x4", w, h)
	}
	if px := pixelAt(t, out, 0, 0); px[0] != 4 {
		t.Errorf("red after restore = %d, want 4 (media texture re-uploaded)", px[0])
	}
}

func TestProgramRelease(t *testing.T) {
	ctx, sw := newTestContext(t)
	base := sw.LiveTextures()
	p, _ := NewProgram(ctx, coordKernel, 2, 2, WithPingPong())
	if sw.LiveTextures() != base+2 {
		t.Errorf("LiveTextures = %d, want %d", sw.LiveTextures(), base+2)
	}
	out := p.Output()
	p.Release()
	p.Release()
	if sw.LiveTextures() != base {
		t.Errorf("LiveTextures after Release = %d, want %d", sw.LiveTextures(), base)
	}
	if !out.Released() {
		t.Error("output not marked released")
	}
	if _, err := p.Run(); !errors.Is(err, ErrProgramReleased) {
		t.Errorf("Run after Release = %v, want ErrProgramReleased", err)
	}
}

func TestSurfaceOutput(t *testing.T) {
	ctx, sw := newTestContext(t)
	p, err := NewProgram(ctx, coordKernel, 3, 2, ToSurface())
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	out, err := p.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ID() != sw.SurfaceTexture() {
		t.Error("surface program did not draw to the surface")
	}
	_ = p.Resize(5, 5)
	if w, h, _ := sw.TextureSize(sw.SurfaceTexture()); w != 5 || h != 5 {
		t.Errorf("surface = %dx%d, want 5x5", w, h)
	}
	if got := pixelAt(t, out, 2, 1); got != (gpucore.Pixel{2, 1, 7, 255}) {
		t.Errorf("surface content not preserved: %v", got)
	}
}
