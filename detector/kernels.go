// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package detector

import (
	"math"

	"github.com/gogpu/vision/codec"
	"github.com/gogpu/vision/gpucore"
)

// ring is the sampling circle of the corner test: eight pixels at radius 3.
var ring = [8][2]int{{0, -3}, {2, -2}, {3, 0}, {2, 2}, {0, 3}, {-2, 2}, {-3, 0}, {-2, -2}}

const (
	// minArc is the number of ring pixels that must all be brighter or all
	// be darker than the center.
	minArc = 5

	// border is the margin where the ring leaves the image.
	border = 3
)

func luma(p gpucore.Pixel) float64 {
	return (float64(p[0]) + float64(p[1]) + float64(p[2])) / (3 * 255)
}

// Corners scores every pixel with a FAST-style segment test against the
// threshold uniform (0-255). Corners store the score in red, the
// intensity-centroid orientation in blue and the level's alpha; other
// pixels are zero except for alpha.
var Corners = &gpucore.Kernel{
	Name: "corners",
	Args: []string{"image"},
	Uniforms: []gpucore.UniformDecl{
		{Name: "image", Type: gpucore.UniformSampler},
		{Name: "threshold", Type: gpucore.UniformInt},
	},
	WGSL: `
	let c = sample_image(p.x, p.y);
	let size = vec2<i32>(tex_size());
	if (p.x < 3 || p.y < 3 || p.x >= size.x - 3 || p.y >= size.y - 3) {
		return vec4<f32>(0.0, 0.0, 0.0, c.a);
	}
	let t = f32(u_threshold()) / 255.0;
	let center = (c.r + c.g + c.b) / 3.0;
	var ring = array<vec2<i32>, 8>(
		vec2<i32>(0, -3), vec2<i32>(2, -2), vec2<i32>(3, 0), vec2<i32>(2, 2),
		vec2<i32>(0, 3), vec2<i32>(-2, 2), vec2<i32>(-3, 0), vec2<i32>(-2, -2));
	var bright = 0;
	var dark = 0;
	var sb = 0.0;
	var sd = 0.0;
	var m = vec2<f32>(0.0);
	for (var i = 0; i < 8; i = i + 1) {
		let o = ring[i];
		let s = sample_image(p.x + o.x, p.y + o.y);
		let n = (s.r + s.g + s.b) / 3.0;
		let d = n - center;
		if (d > t) {
			bright = bright + 1;
			sb = sb + d - t;
		} else if (d < -t) {
			dark = dark + 1;
			sd = sd - d - t;
		}
		m = m + vec2<f32>(o) * n;
	}
	var score = 0.0;
	if (bright >= 5) {
		score = sb / 8.0;
	} else if (dark >= 5) {
		score = sd / 8.0;
	} else {
		return vec4<f32>(0.0, 0.0, 0.0, c.a);
	}
	let theta = atan2(m.y, m.x);
	return vec4<f32>(max(score, 1.0 / 255.0), 0.0, theta / 6.283185307 + 0.5, c.a);
`,
	CPU: cornerPixel,
}

func cornerPixel(x, y int, in *gpucore.Invocation) gpucore.Pixel {
	c := in.Sample("image", x, y)
	w, h := in.Size()
	if x < border || y < border || x >= w-border || y >= h-border {
		return gpucore.Pixel{0, 0, 0, c[3]}
	}
	t := float64(in.Int("threshold")) / 255
	center := luma(c)
	var bright, dark int
	var sb, sd, mx, my float64
	for _, o := range ring {
		n := luma(in.Sample("image", x+o[0], y+o[1]))
		switch d := n - center; {
		case d > t:
			bright++
			sb += d - t
		case d < -t:
			dark++
			sd += -d - t
		}
		mx += float64(o[0]) * n
		my += float64(o[1]) * n
	}
	var score float64
	switch {
	case bright >= minArc:
		score = sb / 8
	case dark >= minArc:
		score = sd / 8
	default:
		return gpucore.Pixel{0, 0, 0, c[3]}
	}
	return gpucore.Pixel{
		max(gpucore.UnormByte(score), 1),
		0,
		codec.QuantizeOrientation(math.Atan2(my, mx)),
		c[3],
	}
}

// Suppress keeps only the corners whose score is a maximum of their 3×3
// neighborhood. Among equal scores the first in raster order wins.
var Suppress = &gpucore.Kernel{
	Name: "suppress",
	Args: []string{"corners"},
	Uniforms: []gpucore.UniformDecl{
		{Name: "corners", Type: gpucore.UniformSampler},
	},
	WGSL: `
	let c = sample_corners(p.x, p.y);
	if (c.r == 0.0) {
		return c;
	}
	let size = vec2<i32>(tex_size());
	for (var dy = -1; dy <= 1; dy = dy + 1) {
		for (var dx = -1; dx <= 1; dx = dx + 1) {
			let q = p + vec2<i32>(dx, dy);
			if ((dx == 0 && dy == 0) || q.x < 0 || q.y < 0 || q.x >= size.x || q.y >= size.y) {
				continue;
			}
			let s = sample_corners(q.x, q.y).r;
			let earlier = dy < 0 || (dy == 0 && dx < 0);
			if (s > c.r || (earlier && s == c.r)) {
				return vec4<f32>(0.0, 0.0, 0.0, c.a);
			}
		}
	}
	return c;
`,
	CPU: func(x, y int, in *gpucore.Invocation) gpucore.Pixel {
		c := in.Sample("corners", x, y)
		if c[0] == 0 {
			return c
		}
		w, h := in.Size()
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				qx, qy := x+dx, y+dy
				if (dx == 0 && dy == 0) || qx < 0 || qy < 0 || qx >= w || qy >= h {
					continue
				}
				s := in.Sample("corners", qx, qy)[0]
				earlier := dy < 0 || (dy == 0 && dx < 0)
				if s > c[0] || (earlier && s == c[0]) {
					return gpucore.Pixel{0, 0, 0, c[3]}
				}
			}
		}
		return c
	},
}

// LiftMax merges a level corner map into an accumulator at base
// resolution. Each level pixel q maps to the single base pixel nearest to
// q scaled up, which takes the level pixel when its score is higher.
var LiftMax = &gpucore.Kernel{
	Name: "liftMax",
	Args: []string{"acc", "level"},
	Uniforms: []gpucore.UniformDecl{
		{Name: "acc", Type: gpucore.UniformSampler},
		{Name: "level", Type: gpucore.UniformSampler},
	},
	WGSL: `
	let a = sample_acc(p.x, p.y);
	let size = vec2<i32>(tex_size());
	let ls = size_level();
	let q = (p * ls) / size;
	let r = (2 * q * size + ls) / (2 * ls);
	if (r.x != p.x || r.y != p.y) {
		return a;
	}
	let l = sample_level(q.x, q.y);
	if (l.r > a.r) {
		return l;
	}
	return a;
`,
	CPU: func(x, y int, in *gpucore.Invocation) gpucore.Pixel {
		a := in.Sample("acc", x, y)
		w, h := in.Size()
		lw, lh := in.SampleSize("level")
		qx, qy := x*lw/w, y*lh/h
		if (2*qx*w+lw)/(2*lw) != x || (2*qy*h+lh)/(2*lh) != y {
			return a
		}
		if l := in.Sample("level", qx, qy); l[0] > a[0] {
			return l
		}
		return a
	},
}
