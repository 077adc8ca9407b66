// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package detector

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/backend/software"
	"github.com/gogpu/vision/codec"
	"github.com/gogpu/vision/engine"
	"github.com/gogpu/vision/gpucore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() vision.Config {
	cfg := vision.DefaultConfig()
	cfg.Seed = 7
	return cfg
}

func newDetector(t *testing.T, w, h int, opts ...Option) (*Detector, *gpucore.Context, *software.Backend) {
	t.Helper()
	sw := software.New()
	ctx := gpucore.NewContext(sw)
	d, err := New(ctx, testConfig(), w, h, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, ctx, sw
}

// square returns a w×h black frame with a white square covering
// [x0, x1)×[y0, y1).
func square(t *testing.T, ctx *gpucore.Context, w, h, x0, y0, x1, y1 int) *engine.Texture {
	t.Helper()
	data := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			if x >= x0 && x < x1 && y >= y0 && y < y1 {
				data[i], data[i+1], data[i+2] = 255, 255, 255
			}
			data[i+3] = 255
		}
	}
	tex, err := engine.NewTexture(ctx, w, h, data)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tex.Release() })
	return tex
}

func near(kps []codec.Keypoint, x, y, r int) bool {
	for _, kp := range kps {
		dx, dy := int(kp.X)-x, int(kp.Y)-y
		if dx >= -r && dx <= r && dy >= -r && dy <= r {
			return true
		}
	}
	return false
}

func TestCornerPixel(t *testing.T) {
	sw := software.New()
	ctx := gpucore.NewContext(sw)
	img := square(t, ctx, 16, 16, 6, 6, 12, 12)
	p, err := engine.NewProgram(ctx, Corners, 16, 16, engine.WithConstant("threshold", 20))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()
	out, err := p.Run(img)
	if err != nil {
		t.Fatal(err)
	}
	data, err := out.Read()
	if err != nil {
		t.Fatal(err)
	}
	at := func(x, y int) gpucore.Pixel {
		i := (y*16 + x) * 4
		return gpucore.Pixel{data[i], data[i+1], data[i+2], data[i+3]}
	}
	tests := []struct {
		name   string
		x, y   int
		corner bool
	}{
		{"top left corner", 6, 6, true},
		{"bottom right corner", 11, 11, true},
		{"edge", 9, 6, false},
		{"inside", 9, 9, false},
		{"background", 4, 4, false},
		{"border", 0, 6, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := at(tt.x, tt.y)
			if (got[0] != 0) != tt.corner {
				t.Errorf("score at (%d,%d) = %d, corner want %v", tt.x, tt.y, got[0], tt.corner)
			}
			if got[3] != 255 {
				t.Errorf("alpha = %d, want 255", got[3])
			}
		})
	}
}

func TestSuppressKeepsOnePerPlateau(t *testing.T) {
	sw := software.New()
	ctx := gpucore.NewContext(sw)
	data := make([]byte, 4*4*4)
	for _, xy := range [][2]int{{1, 1}, {2, 1}, {1, 2}} {
		i := (xy[1]*4 + xy[0]) * 4
		data[i] = 50
	}
	tex, err := engine.NewTexture(ctx, 4, 4, data)
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Release()
	p, err := engine.NewProgram(ctx, Suppress, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()
	out, err := p.Run(tex)
	if err != nil {
		t.Fatal(err)
	}
	got, err := out.Read()
	if err != nil {
		t.Fatal(err)
	}
	var kept [][2]int
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if got[(y*4+x)*4] != 0 {
				kept = append(kept, [2]int{x, y})
			}
		}
	}
	if want := [][2]int{{1, 1}}; !reflect.DeepEqual(kept, want) {
		t.Errorf("kept = %v, want %v", kept, want)
	}
}

func TestLiftMax(t *testing.T) {
	sw := software.New()
	ctx := gpucore.NewContext(sw)
	acc, err := engine.NewTexture(ctx, 8, 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer acc.Release()
	level := make([]byte, 4*4*4)
	level[(1*4+2)*4] = 90 // (2, 1)
	lt, err := engine.NewTexture(ctx, 4, 4, level)
	if err != nil {
		t.Fatal(err)
	}
	defer lt.Release()
	p, err := engine.NewProgram(ctx, LiftMax, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()
	out, err := p.Run(acc, lt)
	if err != nil {
		t.Fatal(err)
	}
	got, err := out.Read()
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			want := uint8(0)
			if x == 4 && y == 2 {
				want = 90
			}
			if s := got[(y*8+x)*4]; s != want {
				t.Errorf("score at (%d,%d) = %d, want %d", x, y, s, want)
			}
		}
	}
}

func TestDetectSquare(t *testing.T) {
	d, ctx, _ := newDetector(t, 64, 64)
	img := square(t, ctx, 64, 64, 24, 24, 40, 40)

	kps, err := d.Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(kps) == 0 {
		t.Fatal("Detect found no keypoints")
	}
	for _, c := range [][2]int{{24, 24}, {39, 24}, {24, 39}, {39, 39}} {
		if !near(kps, c[0], c[1], 4) {
			t.Errorf("no keypoint near corner %v", c)
		}
	}
	enc := d.Encoder().Format().Scale
	for _, kp := range kps {
		if kp.X >= 64 || kp.Y >= 64 {
			t.Errorf("keypoint (%d,%d) outside the frame", kp.X, kp.Y)
		}
		if kp.LOD < enc.MinLOD() || kp.LOD > enc.MaxLOD() {
			t.Errorf("keypoint LOD %v outside [%v, %v]", kp.LOD, enc.MinLOD(), enc.MaxLOD())
		}
		if kp.Score <= 0 {
			t.Errorf("keypoint (%d,%d) has score %v", kp.X, kp.Y, kp.Score)
		}
	}
}

func TestDetectFlat(t *testing.T) {
	d, ctx, _ := newDetector(t, 32, 32)
	img := square(t, ctx, 32, 32, 0, 0, 0, 0)
	kps, err := d.Detect(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if len(kps) != 0 {
		t.Errorf("flat frame gave %d keypoints, want 0", len(kps))
	}
}

func TestDetectIsStableWithoutTarget(t *testing.T) {
	d, ctx, _ := newDetector(t, 48, 48)
	img := square(t, ctx, 48, 48, 12, 12, 30, 30)

	first, err := d.Detect(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		got, err := d.Detect(context.Background(), img)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("frame %d differs from the first frame", i+1)
		}
	}
	if d.Threshold() != DefaultThreshold {
		t.Errorf("Threshold = %d, want %d", d.Threshold(), DefaultThreshold)
	}
}

func TestThresholdTracksTarget(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	d, ctx, _ := newDetector(t, 48, 48, WithExpected(1000), WithMetrics(m))
	img := square(t, ctx, 48, 48, 12, 12, 30, 30)

	if want := codec.Length(1000, 0, vision.MaxEncoderLength); d.Encoder().Length() != want {
		t.Errorf("encoder length = %d, want %d", d.Encoder().Length(), want)
	}
	seen := map[int]bool{d.Threshold(): true}
	const frames = 20
	var last []codec.Keypoint
	for i := 0; i < frames; i++ {
		if last, err = d.Detect(context.Background(), img); err != nil {
			t.Fatal(err)
		}
		seen[d.Threshold()] = true
	}
	if len(seen) < 2 {
		t.Error("threshold never moved while far from the target")
	}
	if got := testutil.ToFloat64(m.frames); got != frames {
		t.Errorf("frames_total = %v, want %d", got, frames)
	}
	if got := testutil.ToFloat64(m.keypoints); got != float64(len(last)) {
		t.Errorf("keypoints = %v, want %d", got, len(last))
	}
	if got := testutil.ToFloat64(m.expected); got != 1000 {
		t.Errorf("expected_keypoints = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(m.encoderLength); got != float64(d.Encoder().Length()) {
		t.Errorf("encoder_length = %v, want %d", got, d.Encoder().Length())
	}
	if n := testutil.CollectAndCount(m.latency); n != 1 {
		t.Errorf("latency collectors = %d, want 1", n)
	}
}

func TestSetExpectedResizesEncoder(t *testing.T) {
	d, _, _ := newDetector(t, 32, 32)
	if want := codec.Length(DefaultCapacity, 0, vision.MaxEncoderLength); d.Encoder().Length() != want {
		t.Errorf("default encoder length = %d, want %d", d.Encoder().Length(), want)
	}
	d.SetExpected(10)
	if want := codec.Length(10, 0, vision.MaxEncoderLength); d.Encoder().Length() != want {
		t.Errorf("encoder length = %d, want %d", d.Encoder().Length(), want)
	}
	if d.Expected() != 10 {
		t.Errorf("Expected = %d, want 10", d.Expected())
	}
	d.SetExpected(-3)
	if d.Expected() != 0 {
		t.Errorf("Expected = %d, want 0", d.Expected())
	}
}

func TestDetectWhileLost(t *testing.T) {
	d, ctx, sw := newDetector(t, 48, 48, WithExpected(40))
	img := square(t, ctx, 48, 48, 12, 12, 30, 30)
	first, err := d.Detect(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	type tuning struct {
		threshold, thresholdEpoch, thresholdIters int
		skipCap, skipEpoch, skipIters             int
	}
	snapshot := func() tuning {
		return tuning{
			d.threshold.CurrentValue(), d.threshold.Epoch(), d.threshold.Iterations(),
			d.iterations.CurrentValue(), d.iterations.Epoch(), d.iterations.Iterations(),
		}
	}
	before := snapshot()

	sw.LoseContext()
	for range 8 {
		got, err := d.Detect(context.Background(), img)
		if err != nil {
			t.Fatalf("Detect while lost: %v", err)
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatal("Detect while lost did not return the last keypoints")
		}
	}
	if after := snapshot(); after != before {
		t.Errorf("tuners moved while lost: %+v, want %+v", after, before)
	}
	sw.RestoreContext()
	if _, err := d.Detect(context.Background(), img); err != nil {
		t.Fatalf("Detect after restore: %v", err)
	}
}

func TestDetectRejectsWrongSize(t *testing.T) {
	d, ctx, _ := newDetector(t, 32, 32)
	img := square(t, ctx, 16, 16, 0, 0, 0, 0)
	if _, err := d.Detect(context.Background(), img); !errors.Is(err, vision.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
	if err := d.Resize(16, 16); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if _, err := d.Detect(context.Background(), img); err != nil {
		t.Errorf("Detect after Resize: %v", err)
	}
}

func TestClosed(t *testing.T) {
	d, ctx, _ := newDetector(t, 16, 16)
	img := square(t, ctx, 16, 16, 0, 0, 0, 0)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Detect(context.Background(), img); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestMetricsDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Error("second NewMetrics on the same registry succeeded")
	}
}
