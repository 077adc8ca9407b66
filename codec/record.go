// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package codec

import (
	"math"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/gpucore"
	"github.com/gogpu/vision/pyramid"
)

// Capacity margins: the encoder reserves 5% plus four records of slack.
const (
	capacityMargin = 1.05
	capacitySlack  = 4
)

// sentinel fills every byte past the last record. A position of 0xFFFF is
// outside any image, so decoding stops there.
const sentinel = 0xFF

// Keypoint is one decoded keypoint.
type Keypoint struct {
	X, Y uint16

	// LOD is the pyramid level of detail the keypoint was found at.
	LOD float64

	// Orientation is an angle in radians in [-π, π].
	Orientation float64

	// Score is the cornerness in [0, 1].
	Score float64

	// Descriptor holds DescriptorSize bytes, or nil when the format has none.
	Descriptor []byte
}

// RecordLength returns the number of pixels one keypoint occupies: a
// position pixel, a properties pixel, and four descriptor bytes per pixel.
func RecordLength(descriptorSize int) int {
	return 2 + (descriptorSize+3)/4
}

func required(expected, descriptorSize int) float64 {
	return (float64(expected)*capacityMargin + capacitySlack) * float64(RecordLength(descriptorSize))
}

// Length returns the minimal encoder side L, clamped to [1, maxLength], such
// that L² ≥ (expected·1.05 + 4)·RecordLength(descriptorSize).
func Length(expected, descriptorSize, maxLength int) int {
	if expected < 0 {
		expected = 0
	}
	need := required(expected, descriptorSize)
	l := int(math.Ceil(math.Sqrt(need)))
	for l > 1 && float64((l-1)*(l-1)) >= need {
		l--
	}
	for float64(l*l) < need {
		l++
	}
	return min(max(l, 1), maxLength)
}

// Capacity returns the number of whole records an L×L texture holds.
func Capacity(length, descriptorSize int) int {
	return length * length / RecordLength(descriptorSize)
}

// MaxKeypoints returns the largest expected count whose encoder fits in
// MaxEncoderLength with the largest descriptor.
func MaxKeypoints(cfg vision.Config) int {
	area := float64(cfg.MaxEncoderLength * cfg.MaxEncoderLength)
	rl := float64(RecordLength(cfg.MaxDescriptorSize))
	n := int(math.Floor((area/rl - capacitySlack) / capacityMargin))
	for n > 0 && required(n, cfg.MaxDescriptorSize) > area {
		n--
	}
	return max(n, 0)
}

// Format is the byte layout of a keypoint list.
type Format struct {
	DescriptorSize int
	Scale          pyramid.ScaleEncoding
}

// NewFormat returns the format for descriptors of descriptorSize bytes.
func NewFormat(cfg vision.Config, descriptorSize int) (Format, error) {
	if descriptorSize < 0 || descriptorSize > cfg.MaxDescriptorSize {
		return Format{}, vision.Configf("new format", "",
			"descriptor size %d out of range [0, %d]", descriptorSize, cfg.MaxDescriptorSize)
	}
	return Format{DescriptorSize: descriptorSize, Scale: pyramid.NewScaleEncoding(cfg)}, nil
}

// RecordLength returns the pixels per record.
func (f Format) RecordLength() int { return RecordLength(f.DescriptorSize) }

// DescriptorPixels returns the pixels per descriptor.
func (f Format) DescriptorPixels() int { return (f.DescriptorSize + 3) / 4 }

// QuantizeOrientation maps an angle in [-π, π] to a byte.
func QuantizeOrientation(theta float64) uint8 {
	return gpucore.UnormByte(theta/(2*math.Pi) + 0.5)
}

// DequantizeOrientation is the inverse of QuantizeOrientation.
func DequantizeOrientation(b uint8) float64 {
	return (float64(b)/255 - 0.5) * 2 * math.Pi
}

// Pack lays out kps in an L×L RGBA texture. Keypoints past the capacity
// of the texture are dropped.
func (f Format) Pack(kps []Keypoint, length int) []byte {
	out := make([]byte, length*length*4)
	for i := range out {
		out[i] = sentinel
	}
	rl := f.RecordLength()
	if c := Capacity(length, f.DescriptorSize); len(kps) > c {
		vision.Logger().Warn("codec: keypoints exceed encoder capacity",
			"keypoints", len(kps), "capacity", c)
		kps = kps[:c]
	}
	for i, kp := range kps {
		rec := out[i*rl*4 : (i+1)*rl*4]
		rec[0], rec[1] = byte(kp.X), byte(kp.X>>8)
		rec[2], rec[3] = byte(kp.Y), byte(kp.Y>>8)
		rec[4] = f.Scale.Quantize(f.Scale.EncodeLOD(kp.LOD))
		rec[5] = QuantizeOrientation(kp.Orientation)
		rec[6] = gpucore.UnormByte(kp.Score)
		rec[7] = 0
		desc := rec[8:]
		for j := range desc {
			desc[j] = 0
		}
		copy(desc, kp.Descriptor[:min(len(kp.Descriptor), f.DescriptorSize)])
	}
	return out
}

// Decode reads keypoints from an L×L RGBA texture. It stops at the first
// record whose position lies outside width×height or that does not fit
// in the texture.
func (f Format) Decode(data []byte, length, width, height int) []Keypoint {
	rl := f.RecordLength()
	pixels := min(length*length, len(data)/4)
	var kps []Keypoint
	for i := 0; (i+1)*rl <= pixels; i++ {
		rec := data[i*rl*4 : (i+1)*rl*4]
		x := int(rec[0]) | int(rec[1])<<8
		y := int(rec[2]) | int(rec[3])<<8
		if x >= width || y >= height {
			break
		}
		kp := Keypoint{
			X:           uint16(x),
			Y:           uint16(y),
			LOD:         f.Scale.DecodeLOD(f.Scale.Dequantize(rec[4])),
			Orientation: DequantizeOrientation(rec[5]),
			Score:       float64(rec[6]) / 255,
		}
		if f.DescriptorSize > 0 {
			kp.Descriptor = append([]byte(nil), rec[8:8+f.DescriptorSize]...)
		}
		kps = append(kps, kp)
	}
	return kps
}
