// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package codec

import (
	"errors"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/engine"
	"github.com/gogpu/vision/gpucore"
)

// ErrEncoderReleased is returned when using a released encoder.
var ErrEncoderReleased = errors.New("codec: encoder has been released")

// Encoder packs the surviving pixels of a corner map into an L×L keypoint
// texture on the GPU.
//
// A corner map marks keypoints with a nonzero red channel and stores the
// score in red, the orientation in blue and the scale in alpha. Encode
// first runs the offsets pass over the whole map, then the encode pass,
// in which each record walks the skip chain from the origin. Descriptors
// are read from a texture holding DescriptorPixels() pixels per corner
// pixel, row-aligned with the corner map.
type Encoder struct {
	ctx    *gpucore.Context
	cfg    vision.Config
	format Format

	length  int
	maxIter int

	offsets *engine.Program
	encode  *engine.Program
	upload  *engine.Texture
	blank   *engine.Texture

	released bool
}

// New creates an encoder for descriptors of descriptorSize bytes, sized
// for zero expected keypoints.
func New(ctx *gpucore.Context, cfg vision.Config, descriptorSize int) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := NewFormat(cfg, descriptorSize)
	if err != nil {
		return nil, err
	}
	e := &Encoder{
		ctx:     ctx,
		cfg:     cfg,
		format:  f,
		length:  Length(0, descriptorSize, cfg.MaxEncoderLength),
		maxIter: MaxIterations,
	}
	e.encode, err = engine.NewProgram(ctx, Encode, e.length, e.length,
		engine.WithConstant("recordLength", f.RecordLength()),
		engine.WithConstant("descriptorPixels", f.DescriptorPixels()))
	if err != nil {
		return nil, err
	}
	if e.blank, err = engine.NewTexture(ctx, 1, 1, nil); err != nil {
		e.Release()
		return nil, err
	}
	return e, nil
}

// Format returns the record layout.
func (e *Encoder) Format() Format { return e.format }

// Length returns the side of the encoder texture.
func (e *Encoder) Length() int { return e.length }

// Capacity returns the number of records the encoder texture holds.
func (e *Encoder) Capacity() int { return Capacity(e.length, e.format.DescriptorSize) }

// MaxIterations returns the skip cap of the offsets pass.
func (e *Encoder) MaxIterations() int { return e.maxIter }

// Resize sizes the encoder for expected keypoints and returns the new side.
// Counts above MaxKeypoints are clamped.
func (e *Encoder) Resize(expected int) int {
	if e.released {
		return e.length
	}
	if limit := MaxKeypoints(e.cfg); expected > limit {
		vision.Logger().Warn("codec: expected keypoints clamped", "expected", expected, "max", limit)
		expected = limit
	}
	length := Length(expected, e.format.DescriptorSize, e.cfg.MaxEncoderLength)
	if length == e.length {
		return length
	}
	if err := e.encode.Resize(length, length); err != nil {
		vision.Logger().Warn("codec: encoder resize failed", "length", length, "err", err)
		return e.length
	}
	if e.upload != nil {
		_ = e.upload.Release()
		e.upload = nil
	}
	vision.Logger().Debug("codec: encoder resized", "from", e.length, "to", length, "expected", expected)
	e.length = length
	return length
}

// SetMaxIterations sets the skip cap of the offsets pass, clamped to
// [1, MaxIterations]. Lower caps make the offsets pass cheaper and the
// encode walk longer.
func (e *Encoder) SetMaxIterations(n int) error {
	n = min(max(n, 1), MaxIterations)
	e.maxIter = n
	if e.offsets != nil {
		return e.offsets.SetUniform("maxIterations", n)
	}
	return nil
}

// Encode packs the keypoints of corners into the encoder texture. A nil
// descriptors texture encodes zero descriptor bytes. The returned texture
// is owned by the encoder and overwritten by the next call.
func (e *Encoder) Encode(corners, descriptors *engine.Texture) (*engine.Texture, error) {
	if e.released {
		return nil, ErrEncoderReleased
	}
	w, h := corners.Size()
	switch {
	case e.offsets == nil:
		p, err := engine.NewProgram(e.ctx, Offsets, w, h, engine.WithConstant("maxIterations", e.maxIter))
		if err != nil {
			return nil, err
		}
		e.offsets = p
	default:
		if ow, oh := e.offsets.Size(); ow != w || oh != h {
			if err := e.offsets.Resize(w, h); err != nil {
				return nil, err
			}
		}
	}

	off, err := e.offsets.Run(corners)
	if err != nil {
		return nil, err
	}
	if descriptors == nil {
		descriptors = e.blank
	}
	return e.encode.Run(off, descriptors)
}

// Upload packs kps on the host and uploads them into an L×L texture owned
// by the encoder.
func (e *Encoder) Upload(kps []Keypoint) (*engine.Texture, error) {
	if e.released {
		return nil, ErrEncoderReleased
	}
	data := e.format.Pack(kps, e.length)
	if e.upload == nil {
		t, err := engine.NewTexture(e.ctx, e.length, e.length, data)
		if err != nil {
			return nil, err
		}
		e.upload = t
		return t, nil
	}
	if err := e.upload.Write(data); err != nil {
		return nil, err
	}
	return e.upload, nil
}

// Decode reads the keypoints of an encoder texture read back to the host.
// width and height are the size of the corner map.
func (e *Encoder) Decode(data []byte, width, height int) []Keypoint {
	return e.format.Decode(data, e.length, width, height)
}

// Release frees the encoder programs and textures.
func (e *Encoder) Release() {
	if e.released {
		return
	}
	e.released = true
	if e.offsets != nil {
		e.offsets.Release()
	}
	if e.encode != nil {
		e.encode.Release()
	}
	if e.upload != nil {
		_ = e.upload.Release()
	}
	if e.blank != nil {
		_ = e.blank.Release()
	}
}
