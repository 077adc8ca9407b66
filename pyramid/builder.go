// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pyramid

import (
	"fmt"
	"math"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/engine"
	"github.com/gogpu/vision/gpucore"
)

// Pass names declared in every level group.
const (
	PassReduce      = "reduce"
	PassExpand      = "expand"
	PassIntraReduce = "intraReduce"
	PassIntraExpand = "intraExpand"
)

// IntraLOD is the level-of-detail offset of intra-octave levels.
var IntraLOD = math.Log2(1.5)

type size struct{ w, h int }

// Builder builds scale-space pyramids for images of one size. Octave i has
// the base size divided by 2^i, for i up to the pyramid depth or until a
// side reaches one pixel. Intra-octave level i sits between octaves i and
// i+1 at 2/3 of octave i. Every level carries its scale in alpha.
type Builder struct {
	ctx   *gpucore.Context
	enc   ScaleEncoding
	depth int

	width  int
	height int

	base    *engine.Group
	octaves []*engine.Group
	intras  []*engine.Group

	last *Levels
}

// New creates a builder for width×height images.
func New(ctx *gpucore.Context, cfg vision.Config, width, height int) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if width < 1 || height < 1 {
		return nil, vision.Configf("new pyramid", "", "invalid size %dx%d", width, height)
	}
	b := &Builder{
		ctx:    ctx,
		enc:    NewScaleEncoding(cfg),
		depth:  cfg.PyramidDepth,
		width:  width,
		height: height,
	}
	if err := b.setup(); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

func octaveSizes(w, h, depth int) []size {
	sizes := []size{{w, h}}
	for len(sizes) <= depth {
		last := sizes[len(sizes)-1]
		next := size{last.w / 2, last.h / 2}
		if next.w < 1 || next.h < 1 {
			break
		}
		sizes = append(sizes, next)
	}
	return sizes
}

func intraSizes(w, h, count int) []size {
	var sizes []size
	next := size{w * 2 / 3, h * 2 / 3}
	for len(sizes) < count && next.w >= 1 && next.h >= 1 {
		sizes = append(sizes, next)
		next = size{next.w / 2, next.h / 2}
	}
	return sizes
}

func (b *Builder) setup() error {
	b.base = engine.NewGroup(b.ctx, "pyramid.base", b.width, b.height)
	if err := b.base.Declare("setScale", SetScale, engine.WithConstant("alpha", b.enc.Encode(1))); err != nil {
		return err
	}

	octaves := octaveSizes(b.width, b.height, b.depth)
	b.octaves = make([]*engine.Group, len(octaves))
	for i, s := range octaves {
		g, err := b.levelGroup(fmt.Sprintf("pyramid.octave%d", i), s)
		if err != nil {
			return err
		}
		b.octaves[i] = g
	}

	intras := intraSizes(b.width, b.height, len(octaves)-1)
	b.intras = make([]*engine.Group, len(intras))
	for i, s := range intras {
		g, err := b.levelGroup(fmt.Sprintf("pyramid.intra%d", i), s)
		if err != nil {
			return err
		}
		b.intras[i] = g
	}

	vision.Logger().Debug("pyramid: layout",
		"width", b.width, "height", b.height,
		"octaves", len(octaves), "intra", len(intras))
	return nil
}

type stage struct {
	name   string
	kernel *gpucore.Kernel
	opts   []engine.Option
}

// levelGroup declares the resampling passes of one level.
func (b *Builder) levelGroup(name string, s size) (*engine.Group, error) {
	g := engine.NewGroup(b.ctx, name, s.w, s.h)
	rescale := func(num, den int) []engine.Option {
		return []engine.Option{
			engine.WithOutputScale(num, den),
			engine.WithConstant("delta", b.enc.Delta(float64(num)/float64(den))),
		}
	}
	stages := []stage{
		{"smoothX", SmoothX, nil},
		{"smoothY", SmoothY, nil},
		{"downsample2", Downsample2, []engine.Option{engine.WithOutputScale(1, 2)}},
		{"rescaleReduce", RescaleAlpha, rescale(1, 2)},
		{"upsample2", Upsample2, []engine.Option{engine.WithOutputScale(2, 1)}},
		{"smoothXExpand", SmoothX, []engine.Option{engine.WithOutputScale(2, 1)}},
		{"smoothYExpand", SmoothY, []engine.Option{engine.WithOutputScale(2, 1)}},
		{"rescaleExpand", RescaleAlpha, rescale(2, 1)},
		{"downsample3", Downsample3, []engine.Option{engine.WithOutputScale(2, 3)}},
		{"rescaleIntraReduce", RescaleAlpha, rescale(2, 3)},
		{"upsample3", Upsample3, []engine.Option{engine.WithOutputScale(3, 2)}},
		{"smoothXIntraExpand", SmoothX, []engine.Option{engine.WithOutputScale(3, 2)}},
		{"smoothYIntraExpand", SmoothY, []engine.Option{engine.WithOutputScale(3, 2)}},
		{"rescaleIntraExpand", RescaleAlpha, rescale(3, 2)},
	}
	for _, st := range stages {
		if err := g.Declare(st.name, st.kernel, st.opts...); err != nil {
			return nil, err
		}
	}
	passes := map[string][]string{
		PassReduce:      {"smoothX", "smoothY", "downsample2", "rescaleReduce"},
		PassExpand:      {"upsample2", "smoothXExpand", "smoothYExpand", "rescaleExpand"},
		PassIntraReduce: {"smoothX", "smoothY", "downsample3", "rescaleIntraReduce"},
		PassIntraExpand: {"upsample3", "smoothXIntraExpand", "smoothYIntraExpand", "rescaleIntraExpand"},
	}
	for _, pass := range []string{PassReduce, PassExpand, PassIntraReduce, PassIntraExpand} {
		if err := g.Compose(pass, passes[pass]...); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Encoding returns the scale encoding used for alpha.
func (b *Builder) Encoding() ScaleEncoding { return b.enc }

// Size returns the base image size.
func (b *Builder) Size() (int, int) { return b.width, b.height }

// Depth returns the number of octave levels.
func (b *Builder) Depth() int { return len(b.octaves) }

// IntraDepth returns the number of intra-octave levels.
func (b *Builder) IntraDepth() int { return len(b.intras) }

// Build computes every level of image. Level textures belong to the
// builder and are overwritten by the next Build. While the graphics
// context is lost Build returns the previous levels.
func (b *Builder) Build(image *engine.Texture) (*Levels, error) {
	if b.base == nil {
		return nil, engine.ErrProgramReleased
	}
	if w, h := image.Size(); w != b.width || h != b.height {
		return nil, vision.Configf("build pyramid", "", "image is %dx%d, pyramid is %dx%d", w, h, b.width, b.height)
	}
	if !b.ctx.Ready() {
		return b.last, nil
	}

	lv := &Levels{
		enc:     b.enc,
		octaves: make([]*engine.Texture, len(b.octaves)),
		intras:  make([]*engine.Texture, len(b.intras)),
	}
	tex, err := b.base.Run("setScale", image)
	if err != nil {
		return nil, err
	}
	lv.octaves[0] = tex
	for i := 1; i < len(b.octaves); i++ {
		if lv.octaves[i], err = b.octaves[i-1].Run(PassReduce, lv.octaves[i-1]); err != nil {
			return nil, fmt.Errorf("octave %d: %w", i, err)
		}
	}
	if len(b.intras) > 0 {
		if lv.intras[0], err = b.octaves[0].Run(PassIntraReduce, lv.octaves[0]); err != nil {
			return nil, fmt.Errorf("intra 0: %w", err)
		}
	}
	for i := 1; i < len(b.intras); i++ {
		if lv.intras[i], err = b.intras[i-1].Run(PassReduce, lv.intras[i-1]); err != nil {
			return nil, fmt.Errorf("intra %d: %w", i, err)
		}
	}
	b.last = lv
	return lv, nil
}

func (b *Builder) run(groups []*engine.Group, kind string, level int, pass string, tex *engine.Texture) (*engine.Texture, error) {
	if level < 0 || level >= len(groups) {
		return nil, vision.Configf(pass, "", "%s level %d out of range [0, %d)", kind, level, len(groups))
	}
	return groups[level].Run(pass, tex)
}

// Reduce halves tex, an image at the size of octave level.
func (b *Builder) Reduce(level int, tex *engine.Texture) (*engine.Texture, error) {
	return b.run(b.octaves, "octave", level, PassReduce, tex)
}

// Expand doubles tex, an image at the size of octave level.
func (b *Builder) Expand(level int, tex *engine.Texture) (*engine.Texture, error) {
	return b.run(b.octaves, "octave", level, PassExpand, tex)
}

// IntraReduce scales tex, an image at the size of octave level, by 2/3.
func (b *Builder) IntraReduce(level int, tex *engine.Texture) (*engine.Texture, error) {
	return b.run(b.octaves, "octave", level, PassIntraReduce, tex)
}

// IntraExpand scales tex, an image at the size of intra level, by 3/2.
func (b *Builder) IntraExpand(level int, tex *engine.Texture) (*engine.Texture, error) {
	return b.run(b.intras, "intra", level, PassIntraExpand, tex)
}

// Resize changes the base image size. Level programs are resized in place
// when the number of levels is unchanged.
func (b *Builder) Resize(width, height int) error {
	if b.base == nil {
		return engine.ErrProgramReleased
	}
	if width < 1 || height < 1 {
		return vision.Configf("resize pyramid", "", "invalid size %dx%d", width, height)
	}
	if width == b.width && height == b.height {
		return nil
	}
	octaves := octaveSizes(width, height, b.depth)
	intras := intraSizes(width, height, len(octaves)-1)
	b.last = nil
	if len(octaves) != len(b.octaves) || len(intras) != len(b.intras) {
		b.release()
		b.width, b.height = width, height
		return b.setup()
	}
	b.width, b.height = width, height
	if err := b.base.Resize(width, height); err != nil {
		return err
	}
	for i, s := range octaves {
		if err := b.octaves[i].Resize(s.w, s.h); err != nil {
			return err
		}
	}
	for i, s := range intras {
		if err := b.intras[i].Resize(s.w, s.h); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) release() {
	if b.base != nil {
		b.base.Release()
	}
	for _, g := range b.octaves {
		if g != nil {
			g.Release()
		}
	}
	for _, g := range b.intras {
		if g != nil {
			g.Release()
		}
	}
	b.base, b.octaves, b.intras = nil, nil, nil
}

// Release frees every level program. Levels returned by Build become
// invalid.
func (b *Builder) Release() {
	b.release()
	b.last = nil
}
