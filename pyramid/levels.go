// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pyramid

import (
	"sort"

	"github.com/gogpu/vision/engine"
)

// Level is one pyramid level.
type Level struct {
	Texture *engine.Texture

	// Index is the octave or intra-octave index.
	Index int

	// Intra reports whether the level sits between two octaves.
	Intra bool

	// LOD is the level of detail: Index for octaves, Index+log2(1.5) for
	// intra-octave levels.
	LOD float64
}

// Levels holds the output of one Build.
type Levels struct {
	enc     ScaleEncoding
	octaves []*engine.Texture
	intras  []*engine.Texture
}

// Depth returns the number of octave levels.
func (l *Levels) Depth() int { return len(l.octaves) }

// IntraDepth returns the number of intra-octave levels.
func (l *Levels) IntraDepth() int { return len(l.intras) }

// Octave returns octave level i, or nil if it does not exist.
func (l *Levels) Octave(i int) *engine.Texture {
	if i < 0 || i >= len(l.octaves) {
		return nil
	}
	return l.octaves[i]
}

// Intra returns intra-octave level i, or nil if it does not exist.
func (l *Levels) Intra(i int) *engine.Texture {
	if i < 0 || i >= len(l.intras) {
		return nil
	}
	return l.intras[i]
}

// Encoding returns the scale encoding of the levels' alpha channel.
func (l *Levels) Encoding() ScaleEncoding { return l.enc }

// All returns every level ordered by increasing LOD.
func (l *Levels) All() []Level {
	out := make([]Level, 0, len(l.octaves)+len(l.intras))
	for i, t := range l.octaves {
		out = append(out, Level{Texture: t, Index: i, LOD: float64(i)})
	}
	for i, t := range l.intras {
		out = append(out, Level{Texture: t, Index: i, Intra: true, LOD: float64(i) + IntraLOD})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].LOD < out[b].LOD })
	return out
}
