// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package codec

import (
	"github.com/gogpu/vision/gpucore"
)

// MaxIterations bounds the skip count stored by the offsets kernel.
const MaxIterations = 255

// Offsets writes into the green channel of every pixel the number of
// following pixels, in raster order, whose red channel is zero, capped at
// maxIterations. Red, blue and alpha are copied from corners.
var Offsets = &gpucore.Kernel{
	Name: "offsets",
	Args: []string{"corners"},
	Uniforms: []gpucore.UniformDecl{
		{Name: "corners", Type: gpucore.UniformSampler},
		{Name: "maxIterations", Type: gpucore.UniformInt},
	},
	WGSL: `
	let w = i32(tex_size().x);
	let total = w * i32(tex_size().y);
	let start = p.y * w + p.x;
	let limit = u_maxIterations();
	var skip = 0;
	loop {
		if (skip >= limit) { break; }
		let q = start + skip + 1;
		if (q >= total) { break; }
		if (sample_corners(q % w, q / w).r > 0.0) { break; }
		skip = skip + 1;
	}
	let c = sample_corners(p.x, p.y);
	return vec4<f32>(c.r, f32(skip) / 255.0, c.b, c.a);
`,
	CPU: func(x, y int, in *gpucore.Invocation) gpucore.Pixel {
		w, h := in.Size()
		total := w * h
		start := y*w + x
		limit := in.Int("maxIterations")
		skip := 0
		for skip < limit {
			q := start + skip + 1
			if q >= total || in.Sample("corners", q%w, q/w)[0] != 0 {
				break
			}
			skip++
		}
		c := in.Sample("corners", x, y)
		return gpucore.Pixel{c[0], uint8(skip), c[2], c[3]}
	},
}

// Encode writes the keypoint list into an L×L texture. Output pixel o
// belongs to record o/recordLength; the record's keypoint is found by
// walking the skip chain of offsets from the origin. Pixels of records
// without a keypoint are 0xFF.
var Encode = &gpucore.Kernel{
	Name: "encode",
	Args: []string{"offsets", "descriptors"},
	Uniforms: []gpucore.UniformDecl{
		{Name: "offsets", Type: gpucore.UniformSampler},
		{Name: "descriptors", Type: gpucore.UniformSampler},
		{Name: "recordLength", Type: gpucore.UniformInt},
		{Name: "descriptorPixels", Type: gpucore.UniformInt},
	},
	WGSL: `
	let size = size_offsets();
	let total = size.x * size.y;
	let o = p.y * i32(tex_size().x) + p.x;
	let rl = u_recordLength();
	let rec = o / rl;
	let field = o % rl;
	var q = 0;
	var n = -1;
	var found = false;
	loop {
		if (q >= total) { break; }
		let c = sample_offsets(q % size.x, q / size.x);
		if (c.r > 0.0) {
			n = n + 1;
			if (n == rec) {
				found = true;
				break;
			}
		}
		q = q + 1 + i32(round(c.g * 255.0));
	}
	if (!found) {
		return vec4<f32>(1.0);
	}
	let x = q % size.x;
	let y = q / size.x;
	if (field == 0) {
		return vec4<f32>(f32(x & 255), f32(x >> 8u), f32(y & 255), f32(y >> 8u)) / 255.0;
	}
	let c = sample_offsets(x, y);
	if (field == 1) {
		return vec4<f32>(c.a, c.b, c.r, 0.0);
	}
	return sample_descriptors(x * u_descriptorPixels() + field - 2, y);
`,
	CPU: encodePixel,
}

func encodePixel(x, y int, in *gpucore.Invocation) gpucore.Pixel {
	w, h := in.SampleSize("offsets")
	total := w * h
	length := int(in.Vec(gpucore.TexSize)[0])
	o := y*length + x
	rl := in.Int("recordLength")
	rec, field := o/rl, o%rl

	q, n := 0, -1
	found := false
	for q < total {
		c := in.Sample("offsets", q%w, q/w)
		if c[0] != 0 {
			n++
			if n == rec {
				found = true
				break
			}
		}
		q += 1 + int(c[1])
	}
	if !found {
		return gpucore.Pixel{sentinel, sentinel, sentinel, sentinel}
	}
	px, py := q%w, q/w
	switch field {
	case 0:
		return gpucore.Pixel{uint8(px), uint8(px >> 8), uint8(py), uint8(py >> 8)}
	case 1:
		c := in.Sample("offsets", px, py)
		return gpucore.Pixel{c[3], c[2], c[0], 0}
	}
	return in.Sample("descriptors", px*in.Int("descriptorPixels")+field-2, py)
}
