// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package detector

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/codec"
	"github.com/gogpu/vision/engine"
	"github.com/gogpu/vision/gpucore"
	"github.com/gogpu/vision/pyramid"
	"github.com/gogpu/vision/readback"
	"github.com/gogpu/vision/tuner"
)

// ErrClosed is returned when using a closed detector.
var ErrClosed = errors.New("detector: closed")

// passDetect scores and suppresses corners on one level.
const passDetect = "detect"

// Detector finds keypoints across the scale space of fixed-size frames.
//
// Each frame runs the pyramid, a corner pass per level, a merge of every
// level into a base-resolution map, the keypoint encoder and one readback.
// When a keypoint count is expected, a sensitivity tuner steers the corner
// threshold toward it. An annealing tuner picks the encoder skip cap that
// minimizes readback latency.
type Detector struct {
	ctx  *gpucore.Context
	cfg  vision.Config
	opts options

	width, height int

	pyramid  *pyramid.Builder
	levels   []*engine.Group
	merge    *engine.Group
	zero     *engine.Texture
	encoder  *codec.Encoder
	readback *readback.Pipeline

	rng        *rand.Rand
	threshold  *tuner.Sensitivity
	iterations *tuner.Annealing
	expected   int

	closed bool
}

// New creates a detector for width×height frames on ctx.
func New(ctx *gpucore.Context, cfg vision.Config, width, height int, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Detector{
		ctx:    ctx,
		cfg:    cfg,
		opts:   o,
		width:  width,
		height: height,
		rng:    cfg.Rand(),
	}
	if err := d.setup(); err != nil {
		d.Close()
		return nil, err
	}
	d.SetExpected(o.expected)
	vision.Logger().Debug("detector: created",
		"width", width, "height", height,
		"threshold", o.threshold, "expected", o.expected)
	return d, nil
}

func (d *Detector) setup() error {
	var err error
	if d.pyramid, err = pyramid.New(d.ctx, d.cfg, d.width, d.height); err != nil {
		return err
	}
	d.merge = engine.NewGroup(d.ctx, "detector.merge", d.width, d.height)
	if err = d.merge.Declare("liftMax", LiftMax, engine.WithPingPong()); err != nil {
		return err
	}
	if d.zero, err = engine.NewTexture(d.ctx, d.width, d.height, nil); err != nil {
		return err
	}
	if d.encoder, err = codec.New(d.ctx, d.cfg, 0); err != nil {
		return err
	}
	if d.readback, err = readback.New(d.ctx, d.cfg, d.opts.readback...); err != nil {
		return err
	}
	d.threshold, err = tuner.NewSensitivity(1, 255, d.opts.threshold,
		d.cfg.Tuning.Tolerance, d.cfg.Tuning, d.rng)
	if err != nil {
		return err
	}
	d.iterations, err = tuner.NewAnnealing(MinIterations, codec.MaxIterations, codec.MaxIterations,
		d.cfg.Tuning, d.rng)
	return err
}

// Size returns the frame size.
func (d *Detector) Size() (int, int) { return d.width, d.height }

// Threshold returns the corner threshold the next frame will use.
func (d *Detector) Threshold() int { return d.threshold.CurrentValue() }

// Expected returns the keypoint count the threshold is tuned toward, or 0
// when tuning is off.
func (d *Detector) Expected() int { return d.expected }

// Encoder returns the keypoint encoder.
func (d *Detector) Encoder() *codec.Encoder { return d.encoder }

// SetExpected sets the target keypoint count and sizes the encoder for it.
// Zero turns threshold tuning off and sizes the encoder for the default
// capacity.
func (d *Detector) SetExpected(n int) {
	if d.closed {
		return
	}
	n = max(n, 0)
	d.expected = n
	capacity := n
	if n == 0 {
		capacity = d.opts.capacity
	}
	before := d.encoder.Length()
	if d.encoder.Resize(capacity) != before {
		d.iterations.Restart()
	}
}

// levelGroup returns the corner group of the i-th level, sized w×h.
func (d *Detector) levelGroup(i, w, h int) (*engine.Group, error) {
	for len(d.levels) <= i {
		g := engine.NewGroup(d.ctx, fmt.Sprintf("detector.level%d", len(d.levels)), w, h)
		if err := g.Declare("corners", Corners, engine.WithConstant("threshold", d.opts.threshold)); err != nil {
			return nil, err
		}
		if err := g.Declare("suppress", Suppress); err != nil {
			return nil, err
		}
		if err := g.Compose(passDetect, "corners", "suppress"); err != nil {
			return nil, err
		}
		d.levels = append(d.levels, g)
	}
	g := d.levels[i]
	if gw, gh := g.Size(); gw != w || gh != h {
		if err := g.Resize(w, h); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Detect finds the keypoints of image, a texture of the detector's size.
// Keypoint coordinates are in base resolution; LOD tells the level.
//
// While the graphics context is lost Detect returns the keypoints of the
// last transferred frame. Such frames are not fed to the tuners or the
// metrics.
func (d *Detector) Detect(ctx context.Context, image *engine.Texture) ([]codec.Keypoint, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if w, h := image.Size(); w != d.width || h != d.height {
		return nil, vision.Configf("detect", "", "image is %dx%d, detector is %dx%d", w, h, d.width, d.height)
	}
	live := d.ctx.Ready()
	generation := d.ctx.Generation()

	corners, err := d.cornerMap(image)
	if err != nil {
		return nil, err
	}
	if corners == nil {
		return nil, nil
	}
	encoded, err := d.encoder.Encode(corners, nil)
	if err != nil {
		return nil, fmt.Errorf("detector: encode: %w", err)
	}
	data, err := d.readback.Read(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("detector: readback: %w", err)
	}
	kps := d.encoder.Decode(data, d.width, d.height)
	if live && d.ctx.Ready() && d.ctx.Generation() == generation {
		d.feed(len(kps), d.readback.LastLatency())
	}
	return kps, nil
}

// cornerMap runs the corner pass on every level and merges the results at
// base resolution. It returns nil when no levels have been built yet.
func (d *Detector) cornerMap(image *engine.Texture) (*engine.Texture, error) {
	levels, err := d.pyramid.Build(image)
	if err != nil {
		return nil, fmt.Errorf("detector: pyramid: %w", err)
	}
	if levels == nil {
		return nil, nil
	}
	threshold := d.threshold.CurrentValue()
	acc := d.zero
	for i, lv := range levels.All() {
		w, h := lv.Texture.Size()
		g, err := d.levelGroup(i, w, h)
		if err != nil {
			return nil, err
		}
		p, err := g.Program("corners")
		if err != nil {
			return nil, err
		}
		if err := p.SetUniform("threshold", threshold); err != nil {
			return nil, err
		}
		out, err := g.Run(passDetect, lv.Texture)
		if err != nil {
			return nil, fmt.Errorf("detector: level %d: %w", i, err)
		}
		if acc, err = d.merge.Run("liftMax", acc, out); err != nil {
			return nil, fmt.Errorf("detector: merge level %d: %w", i, err)
		}
	}
	return acc, nil
}

// feed closes the loop: the keypoint count drives the threshold tuner and
// the transfer latency drives the skip cap.
func (d *Detector) feed(found int, latency time.Duration) {
	threshold := d.threshold.CurrentValue()
	if d.expected > 0 {
		d.threshold.FeedExpected(float64(found), float64(d.expected))
	}
	d.iterations.FeedObservation(float64(latency) / float64(time.Millisecond))
	if err := d.encoder.SetMaxIterations(d.iterations.CurrentValue()); err != nil {
		vision.Logger().Warn("detector: set skip cap", "err", err)
	}
	d.opts.metrics.observe(frameStats{
		keypoints:     found,
		expected:      d.expected,
		threshold:     threshold,
		encoderLength: d.encoder.Length(),
		maxIterations: d.encoder.MaxIterations(),
		latency:       latency,
	})
}

// Resize changes the frame size.
func (d *Detector) Resize(width, height int) error {
	if d.closed {
		return ErrClosed
	}
	if width == d.width && height == d.height {
		return nil
	}
	if err := d.pyramid.Resize(width, height); err != nil {
		return err
	}
	if err := d.merge.Resize(width, height); err != nil {
		return err
	}
	zero, err := engine.NewTexture(d.ctx, width, height, nil)
	if err != nil {
		return err
	}
	_ = d.zero.Release()
	d.zero = zero
	d.width, d.height = width, height
	return nil
}

// Close stops the readback pipeline and releases every GPU resource.
func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var err error
	if d.readback != nil {
		err = d.readback.Close()
	}
	if d.encoder != nil {
		d.encoder.Release()
	}
	for _, g := range d.levels {
		g.Release()
	}
	if d.merge != nil {
		d.merge.Release()
	}
	if d.zero != nil {
		_ = d.zero.Release()
	}
	if d.pyramid != nil {
		d.pyramid.Release()
	}
	return err
}
