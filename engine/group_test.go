// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"errors"
	"testing"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/gpucore"
)

func TestGroupLazyDeclaration(t *testing.T) {
	ctx, sw := newTestContext(t)
	g := NewGroup(ctx, "level0", 4, 4)
	defer g.Release()

	base := sw.LiveTextures()
	if err := g.Declare("inc", incKernel); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if sw.LiveTextures() != base {
		t.Error("Declare allocated resources before first use")
	}

	p1, err := g.Program("inc")
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	p2, _ := g.Program("inc")
	if p1 != p2 {
		t.Error("Program() instantiated twice")
	}
	if sw.LiveTextures() != base+1 {
		t.Errorf("LiveTextures = %d, want %d", sw.LiveTextures(), base+1)
	}

	if err := g.Declare("inc", incKernel); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("duplicate Declare = %v, want configuration error", err)
	}
	if _, err := g.Program("missing"); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("Program(missing) = %v, want configuration error", err)
	}
	bad := &gpucore.Kernel{Name: "bad", Args: []string{"nope"}, CPU: coordKernel.CPU}
	if err := g.Declare("bad", bad); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("Declare(invalid kernel) = %v, want configuration error", err)
	}
}

func TestGroupCompose(t *testing.T) {
	ctx, _ := newTestContext(t)
	g := NewGroup(ctx, "pass", 3, 3)
	defer g.Release()

	for _, name := range []string{"a", "b", "c"} {
		if err := g.Declare(name, incKernel); err != nil {
			t.Fatalf("Declare(%s): %v", name, err)
		}
	}
	if err := g.Compose("triple", "a", "b", "c"); err != nil {
		t.Fatalf("Compose: %v", err)
	}

	seed, _ := NewTexture(ctx, 3, 3, solid(3, 3, gpucore.Pixel{1, 0, 0, 255}))
	out, err := g.Run("triple", seed, 4)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Each stage adds the broadcast amount.
	if got := pixelAt(t, out, 2, 2)[0]; got != 13 {
		t.Errorf("red = %d, want 13", got)
	}
	c, _ := g.Program("c")
	if out != c.Output() {
		t.Error("pass result is not the last stage's output")
	}
	if got := g.Stages("triple"); len(got) != 3 || got[0] != "a" {
		t.Errorf("Stages = %v", got)
	}

	tests := []struct {
		name   string
		stages []string
	}{
		{"single", []string{"a"}},
		{"unknown", []string{"a", "zzz"}},
		{"nested pass", []string{"a", "triple"}},
	}
	for _, tt := range tests {
		if err := g.Compose("p_"+tt.name, tt.stages...); !errors.Is(err, vision.ErrConfiguration) {
			t.Errorf("Compose(%s) = %v, want configuration error", tt.name, err)
		}
	}
	if err := g.Compose("triple", "a", "b"); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("Compose(existing name) = %v, want configuration error", err)
	}
	if _, err := g.Run("triple"); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("Run(pass, no args) = %v, want configuration error", err)
	}
}

func TestGroupRepeatedStageNeedsPingPong(t *testing.T) {
	ctx, _ := newTestContext(t)
	g := NewGroup(ctx, "self", 2, 2)
	defer g.Release()

	_ = g.Declare("inc", incKernel)
	_ = g.Declare("incPP", incKernel, WithPingPong())
	_ = g.Compose("twice", "inc", "inc")
	_ = g.Compose("twicePP", "incPP", "incPP")

	seed, _ := NewTexture(ctx, 2, 2, nil)
	if _, err := g.Run("twice", seed, 1); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("recycled self-feeding pass = %v, want configuration error", err)
	}
	out, err := g.Run("twicePP", seed, 1)
	if err != nil {
		t.Fatalf("ping-pong self-feeding pass: %v", err)
	}
	if got := pixelAt(t, out, 0, 0)[0]; got != 2 {
		t.Errorf("red = %d, want 2", got)
	}
}

func TestGroupResize(t *testing.T) {
	ctx, _ := newTestContext(t)
	g := NewGroup(ctx, "resize", 4, 4)
	defer g.Release()

	_ = g.Declare("coords", coordKernel)
	_ = g.Declare("half", sizeKernel, WithOutputScale(1, 2))
	p, _ := g.Program("coords")

	if err := g.Resize(8, 6); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w, h := p.Size(); w != 8 || h != 6 {
		t.Errorf("instantiated program = %dx%d, want 8x6", w, h)
	}
	half, _ := g.Program("half")
	if w, h := half.Size(); w != 4 || h != 3 {
		t.Errorf("program compiled after resize = %dx%d, want 4x3", w, h)
	}

	g.Release()
	if _, err := g.Run("coords"); !errors.Is(err, ErrProgramReleased) {
		t.Errorf("Run after Release = %v, want ErrProgramReleased", err)
	}
}
