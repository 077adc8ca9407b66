// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/codec"
	"github.com/gogpu/vision/detector"
	"github.com/gogpu/vision/gpucore"
	"github.com/gogpu/vision/pyramid"
)

func newNoop(t *testing.T) *Backend {
	t.Helper()
	b, err := NewFromAPI(noop.API{})
	if err != nil {
		t.Fatalf("NewFromAPI() error = %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func allKernels() []*gpucore.Kernel {
	ks := append([]*gpucore.Kernel{}, pyramid.Kernels()...)
	return append(ks, codec.Offsets, codec.Encode, detector.Corners, detector.Suppress, detector.LiftMax)
}

// skipNaga skips the test when err reports a WGSL feature naga does not
// implement yet.
func skipNaga(t *testing.T, err error) {
	t.Helper()
	errStr := err.Error()
	if strings.Contains(errStr, "not yet implemented") || strings.Contains(errStr, "not supported") {
		t.Skipf("Skipping: naga feature not yet implemented: %v", err)
	}
	if strings.Contains(errStr, "lowering error") {
		t.Skipf("Skipping: naga lowering limitation: %v", err)
	}
}

func TestSource(t *testing.T) {
	k := detector.Corners
	l := gpucore.NewLayout(k)
	src := Source(k, l)

	want := []string{
		fmt.Sprintf("var<uniform> vision_u: array<vec4<f32>, %d>;", uniformSlots(l)),
		"@group(0) @binding(1) var<storage, read_write> vision_out: array<u32>;",
		"@group(0) @binding(2) var<storage, read> vision_in_image: array<u32>;",
		"fn u_threshold() -> i32",
		"fn sample_image(x: i32, y: i32) -> vec4<f32>",
		fmt.Sprintf("return vec2<i32>(vision_u[%d].xy);", sizeSlot(l, 0)),
		"@compute @workgroup_size(8, 8, 1)",
		"pack4x8unorm(c)",
	}
	for _, w := range want {
		if !strings.Contains(src, w) {
			t.Errorf("Source() missing %q", w)
		}
	}
}

func TestSourceCompiles(t *testing.T) {
	for _, k := range allKernels() {
		t.Run(k.Name, func(t *testing.T) {
			spirv, err := naga.Compile(Source(k, gpucore.NewLayout(k)))
			if err != nil {
				skipNaga(t, err)
				t.Fatalf("failed to compile kernel %q: %v", k.Name, err)
			}
			if len(spirv) == 0 {
				t.Fatal("empty SPIR-V output")
			}
			// SPIR-V magic number, little endian.
			if spirv[0] != 0x03 || spirv[1] != 0x02 || spirv[2] != 0x23 || spirv[3] != 0x07 {
				t.Errorf("bad SPIR-V magic % x", spirv[:4])
			}
		})
	}
}

func TestUniformBytes(t *testing.T) {
	k := detector.LiftMax
	l := gpucore.NewLayout(k)
	uniforms := make([]float32, l.BlockSize())
	uniforms[0], uniforms[1] = 64, 48
	data := uniformBytes(l, uniforms, [][2]int{{64, 48}, {32, 24}})

	if len(data) != uniformSlots(l)*16 {
		t.Fatalf("len = %d, want %d", len(data), uniformSlots(l)*16)
	}
	// 64.0 and 24.0 as IEEE 754 little endian.
	if got := data[0:4]; string(got) != "\x00\x00\x80\x42" {
		t.Errorf("texSize.x bytes = % x", got)
	}
	off := sizeSlot(l, 1)*16 + 4
	if got := data[off : off+4]; string(got) != "\x00\x00\xc0\x41" {
		t.Errorf("size_level.y bytes = % x", got)
	}
}

func TestBackend(t *testing.T) {
	b := newNoop(t)
	if got := b.Name(); got != "wgpu" {
		t.Errorf("Name() = %q, want %q", got, "wgpu")
	}
	if got := b.AdapterInfo().Name; got != "Noop Adapter" {
		t.Errorf("AdapterInfo().Name = %q", got)
	}
	caps := b.Capabilities()
	if !caps.Fences {
		t.Error("Capabilities().Fences = false, want true")
	}
	// 128 MiB storage bindings hold at most 5792×5792 texels.
	if caps.MaxTextureSize != 5792 {
		t.Errorf("MaxTextureSize = %d, want 5792", caps.MaxTextureSize)
	}
	if b.SurfaceTexture() == gpucore.InvalidID {
		t.Error("SurfaceTexture() = InvalidID")
	}
}

func TestTextures(t *testing.T) {
	b := newNoop(t)

	if _, err := b.CreateTexture(0, 4); err == nil {
		t.Error("CreateTexture(0, 4) succeeded")
	}
	if _, err := b.CreateTexture(8192, 8192); err == nil {
		t.Error("CreateTexture(8192, 8192) succeeded")
	}

	id, err := b.CreateTexture(4, 3)
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	w, h, err := b.TextureSize(id)
	if err != nil || w != 4 || h != 3 {
		t.Errorf("TextureSize() = %d, %d, %v, want 4, 3, nil", w, h, err)
	}
	if err := b.WriteTexture(id, make([]byte, 4*3*4)); err != nil {
		t.Errorf("WriteTexture() error = %v", err)
	}
	if err := b.WriteTexture(id, make([]byte, 7)); err == nil {
		t.Error("WriteTexture() with short data succeeded")
	}

	dst, err := b.CreateTexture(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.CopyTexture(id, dst, 4, 3); err != nil {
		t.Errorf("CopyTexture() error = %v", err)
	}

	b.DestroyTexture(id)
	if _, _, err := b.TextureSize(id); !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("TextureSize() after destroy error = %v, want ErrUnknownResource", err)
	}

	surface := b.SurfaceTexture()
	b.DestroyTexture(surface)
	if err := b.ResizeSurface(16, 8); err != nil {
		t.Fatalf("ResizeSurface() error = %v", err)
	}
	if w, h, _ := b.TextureSize(surface); w != 16 || h != 8 {
		t.Errorf("surface size = %dx%d, want 16x8", w, h)
	}
}

func TestReadback(t *testing.T) {
	b := newNoop(t)
	tex, err := b.CreateTexture(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	small, err := b.CreateBuffer(8)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.CopyToBuffer(tex, small); err == nil {
		t.Error("CopyToBuffer() into a small buffer succeeded")
	}

	buf, err := b.CreateBuffer(64)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.CopyToBuffer(tex, buf); err != nil {
		t.Fatalf("CopyToBuffer() error = %v", err)
	}
	f, err := b.Fence()
	if err != nil {
		t.Fatal(err)
	}
	done, err := b.PollFence(f)
	if err != nil || !done {
		t.Errorf("PollFence() = %v, %v, want true, nil", done, err)
	}
	b.DestroyFence(f)
	if _, err := b.PollFence(f); !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("PollFence() after destroy error = %v", err)
	}

	dst := make([]byte, 64)
	for i := range dst {
		dst[i] = 0xff
	}
	if err := b.ReadBuffer(buf, dst); err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("dst[%d] = %d, want 0", i, v)
		}
	}

	b.DestroyBuffer(buf)
	if err := b.ReadBuffer(buf, dst); !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("ReadBuffer() after destroy error = %v", err)
	}
}

func TestDraw(t *testing.T) {
	b := newNoop(t)
	k := detector.Suppress
	l := gpucore.NewLayout(k)
	prog, err := b.Compile(k, l)
	if err != nil {
		skipNaga(t, err)
		t.Fatalf("Compile() error = %v", err)
	}
	in, _ := b.CreateTexture(20, 10)
	out, _ := b.CreateTexture(20, 10)
	fb, err := b.CreateFramebuffer(out)
	if err != nil {
		t.Fatal(err)
	}

	uniforms := make([]float32, l.BlockSize())
	uniforms[0], uniforms[1] = 20, 10
	call := &gpucore.DrawCall{Program: prog, Framebuffer: fb, Uniforms: uniforms, Textures: []gpucore.TextureID{in}}
	if err := b.Draw(call); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	f, _ := b.Fence()
	if done, _ := b.PollFence(f); !done {
		t.Error("fence after draw not signaled")
	}
	if n := b.Retired(); n != 0 {
		t.Errorf("Retired() = %d after completion, want 0", n)
	}

	tests := []struct {
		name string
		call gpucore.DrawCall
	}{
		{"unknown program", gpucore.DrawCall{Program: 999, Framebuffer: fb, Uniforms: uniforms, Textures: []gpucore.TextureID{in}}},
		{"unknown framebuffer", gpucore.DrawCall{Program: prog, Framebuffer: 999, Uniforms: uniforms, Textures: []gpucore.TextureID{in}}},
		{"missing texture", gpucore.DrawCall{Program: prog, Framebuffer: fb, Uniforms: uniforms}},
		{"reads target", gpucore.DrawCall{Program: prog, Framebuffer: fb, Uniforms: uniforms, Textures: []gpucore.TextureID{out}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.Draw(&tt.call); err == nil {
				t.Error("Draw() succeeded")
			}
		})
	}

	b.DestroyProgram(prog)
	if err := b.Draw(call); !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("Draw() after DestroyProgram error = %v", err)
	}
}

func TestCompileErrors(t *testing.T) {
	b := newNoop(t)
	k := &gpucore.Kernel{Name: "cpuOnly", CPU: detector.Suppress.CPU}
	if _, err := b.Compile(k, gpucore.NewLayout(k)); err == nil {
		t.Error("Compile() of a kernel without WGSL succeeded")
	}

	bad := &gpucore.Kernel{Name: "broken", WGSL: "\n\treturn undefined_value;\n", CPU: detector.Suppress.CPU}
	_, err := b.Compile(bad, gpucore.NewLayout(bad))
	if !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("Compile() of invalid WGSL error = %v, want ErrConfiguration", err)
	}
}

// lossyQueue reports device loss on submission.
type lossyQueue struct {
	hal.Queue
}

func (lossyQueue) Submit([]hal.CommandBuffer) (uint64, error) { return 0, hal.ErrDeviceLost }

func TestDeviceLoss(t *testing.T) {
	od, err := (&noop.Adapter{}).Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewWithDevice(od.Device, lossyQueue{Queue: od.Queue}, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("NewWithDevice() error = %v", err)
	}
	defer b.Close()

	var events []gpucore.ContextEvent
	b.SetContextListener(func(e gpucore.ContextEvent) { events = append(events, e) })

	src, _ := b.CreateTexture(4, 4)
	dst, _ := b.CreateTexture(4, 4)
	if err := b.CopyTexture(src, dst, 4, 4); !errors.Is(err, gpucore.ErrContextLost) {
		t.Fatalf("CopyTexture() error = %v, want ErrContextLost", err)
	}
	if !b.Lost() {
		t.Error("Lost() = false after device loss")
	}
	if len(events) != 1 || events[0] != gpucore.ContextLostEvent {
		t.Errorf("events = %v, want [%v]", events, gpucore.ContextLostEvent)
	}
	if _, err := b.CreateTexture(4, 4); !errors.Is(err, gpucore.ErrContextLost) {
		t.Errorf("CreateTexture() while lost error = %v", err)
	}
	if _, err := b.Fence(); !errors.Is(err, gpucore.ErrContextLost) {
		t.Errorf("Fence() while lost error = %v", err)
	}
	if err := b.Recover(); !errors.Is(err, ErrSharedDevice) {
		t.Errorf("Recover() error = %v, want ErrSharedDevice", err)
	}
}

func TestRecover(t *testing.T) {
	b := newNoop(t)
	var events []gpucore.ContextEvent
	b.SetContextListener(func(e gpucore.ContextEvent) { events = append(events, e) })

	if err := b.Recover(); err != nil {
		t.Errorf("Recover() without loss error = %v", err)
	}
	b.mu.Lock()
	notify := b.loseLocked()
	b.mu.Unlock()
	notify(gpucore.ContextLostEvent)

	if err := b.Recover(); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if b.Lost() {
		t.Error("Lost() = true after Recover")
	}
	if len(events) != 2 || events[1] != gpucore.ContextRestoredEvent {
		t.Errorf("events = %v", events)
	}
	if _, err := b.CreateTexture(2, 2); err != nil {
		t.Errorf("CreateTexture() after Recover error = %v", err)
	}
}

func TestClose(t *testing.T) {
	b, err := NewFromAPI(noop.API{})
	if err != nil {
		t.Fatal(err)
	}
	b.Close()
	b.Close()
	if _, err := b.CreateTexture(2, 2); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("CreateTexture() after Close error = %v, want ErrNotInitialized", err)
	}
}
