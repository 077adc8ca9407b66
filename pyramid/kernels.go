// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pyramid

import (
	"github.com/gogpu/vision/gpucore"
)

var imageArg = gpucore.UniformDecl{Name: "image", Type: gpucore.UniformSampler}

// binomial5 is the normalized 5-tap binomial filter [1 4 6 4 1]/16.
var binomial5 = [5]float64{0.0625, 0.25, 0.375, 0.25, 0.0625}

// SetScale writes the constant alpha into every pixel, keeping RGB.
var SetScale = &gpucore.Kernel{
	Name:     "setScale",
	Args:     []string{"image"},
	Uniforms: []gpucore.UniformDecl{imageArg, {Name: "alpha", Type: gpucore.UniformFloat}},
	WGSL: `
	let c = sample_image(p.x, p.y);
	return vec4<f32>(c.rgb, clamp(u_alpha(), 0.0, 1.0));
`,
	CPU: func(x, y int, in *gpucore.Invocation) gpucore.Pixel {
		c := in.Sample("image", x, y)
		c[3] = gpucore.UnormByte(in.Float("alpha"))
		return c
	},
}

func smooth(dx, dy int) gpucore.CPUFunc {
	return func(x, y int, in *gpucore.Invocation) gpucore.Pixel {
		var acc [4]float64
		for i, w := range binomial5 {
			v := in.Sample("image", x+(i-2)*dx, y+(i-2)*dy).Vec4()
			acc[0] += w * v[0]
			acc[1] += w * v[1]
			acc[2] += w * v[2]
		}
		acc[3] = in.Sample("image", x, y).Vec4()[3]
		return gpucore.PixelFromVec4(acc)
	}
}

// SmoothX applies the binomial filter horizontally to RGB. Alpha is kept.
var SmoothX = &gpucore.Kernel{
	Name:     "smoothX",
	Args:     []string{"image"},
	Uniforms: []gpucore.UniformDecl{imageArg},
	WGSL: `
	let c = sample_image(p.x, p.y);
	let s = sample_image(p.x - 2, p.y) * 0.0625
		+ sample_image(p.x - 1, p.y) * 0.25
		+ c * 0.375
		+ sample_image(p.x + 1, p.y) * 0.25
		+ sample_image(p.x + 2, p.y) * 0.0625;
	return vec4<f32>(s.rgb, c.a);
`,
	CPU: smooth(1, 0),
}

// SmoothY applies the binomial filter vertically to RGB. Alpha is kept.
var SmoothY = &gpucore.Kernel{
	Name:     "smoothY",
	Args:     []string{"image"},
	Uniforms: []gpucore.UniformDecl{imageArg},
	WGSL: `
	let c = sample_image(p.x, p.y);
	let s = sample_image(p.x, p.y - 2) * 0.0625
		+ sample_image(p.x, p.y - 1) * 0.25
		+ c * 0.375
		+ sample_image(p.x, p.y + 1) * 0.25
		+ sample_image(p.x, p.y + 2) * 0.0625;
	return vec4<f32>(s.rgb, c.a);
`,
	CPU: smooth(0, 1),
}

// resample maps output (x, y) to input (x*num/den, y*num/den).
func resample(num, den int) gpucore.CPUFunc {
	return func(x, y int, in *gpucore.Invocation) gpucore.Pixel {
		return in.Sample("image", x*num/den, y*num/den)
	}
}

// Downsample2 halves the resolution by point sampling. Run it with a 1/2
// output scale after smoothing.
var Downsample2 = &gpucore.Kernel{
	Name:     "downsample2",
	Args:     []string{"image"},
	Uniforms: []gpucore.UniformDecl{imageArg},
	WGSL: `
	return sample_image(p.x * 2, p.y * 2);
`,
	CPU: resample(2, 1),
}

// Upsample2 doubles the resolution by pixel replication. Run it with a 2/1
// output scale before smoothing.
var Upsample2 = &gpucore.Kernel{
	Name:     "upsample2",
	Args:     []string{"image"},
	Uniforms: []gpucore.UniformDecl{imageArg},
	WGSL: `
	return sample_image(p.x / 2, p.y / 2);
`,
	CPU: resample(1, 2),
}

// Downsample3 scales by 2/3.
var Downsample3 = &gpucore.Kernel{
	Name:     "downsample3",
	Args:     []string{"image"},
	Uniforms: []gpucore.UniformDecl{imageArg},
	WGSL: `
	return sample_image((p.x * 3) / 2, (p.y * 3) / 2);
`,
	CPU: resample(3, 2),
}

// Upsample3 scales by 3/2.
var Upsample3 = &gpucore.Kernel{
	Name:     "upsample3",
	Args:     []string{"image"},
	Uniforms: []gpucore.UniformDecl{imageArg},
	WGSL: `
	return sample_image((p.x * 2) / 3, (p.y * 2) / 3);
`,
	CPU: resample(2, 3),
}

// RescaleAlpha adds the constant delta to alpha, recording a change of
// scale in the scale encoding.
var RescaleAlpha = &gpucore.Kernel{
	Name:     "rescaleAlpha",
	Args:     []string{"image"},
	Uniforms: []gpucore.UniformDecl{imageArg, {Name: "delta", Type: gpucore.UniformFloat}},
	WGSL: `
	let c = sample_image(p.x, p.y);
	return vec4<f32>(c.rgb, clamp(c.a + u_delta(), 0.0, 1.0));
`,
	CPU: func(x, y int, in *gpucore.Invocation) gpucore.Pixel {
		c := in.Sample("image", x, y)
		c[3] = gpucore.UnormByte(float64(c[3])/255 + in.Float("delta"))
		return c
	},
}

// Kernels lists every pyramid kernel.
func Kernels() []*gpucore.Kernel {
	return []*gpucore.Kernel{SetScale, SmoothX, SmoothY, Downsample2, Upsample2, Downsample3, Upsample3, RescaleAlpha}
}
