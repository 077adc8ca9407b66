// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import "fmt"

// Slot places one uniform location in the packed uniform block.
type Slot struct {
	// Location is the uniform name, or name[i] for array elements.
	Location string

	// Name is the declared uniform name.
	Name string

	// Type is the element type.
	Type UniformType

	// Index is the vec4 slot for values, or the texture unit for samplers.
	Index int
}

// Layout assigns every uniform location of a kernel to a vec4 slot or a
// texture unit. texSize always occupies slot 0. Samplers take sequential
// texture units starting at 0 in declaration order. Array uniforms are
// expanded into name[0], name[1], ... with one slot each.
type Layout struct {
	kernel   string
	slots    []Slot
	byLoc    map[string]int
	samplers []string
	count    int
}

// NewLayout builds the layout for k. k must already be valid.
func NewLayout(k *Kernel) *Layout {
	l := &Layout{
		kernel: k.Name,
		byLoc:  make(map[string]int),
	}
	l.add(Slot{Location: TexSize, Name: TexSize, Type: UniformVec2, Index: 0})
	l.count = 1

	for _, u := range k.Uniforms {
		switch {
		case u.Type == UniformSampler:
			l.add(Slot{Location: u.Name, Name: u.Name, Type: u.Type, Index: len(l.samplers)})
			l.samplers = append(l.samplers, u.Name)
		case u.Len > 0:
			for i := 0; i < u.Len; i++ {
				l.add(Slot{Location: fmt.Sprintf("%s[%d]", u.Name, i), Name: u.Name, Type: u.Type, Index: l.count})
				l.count++
			}
		default:
			l.add(Slot{Location: u.Name, Name: u.Name, Type: u.Type, Index: l.count})
			l.count++
		}
	}
	return l
}

func (l *Layout) add(s Slot) {
	l.byLoc[s.Location] = len(l.slots)
	l.slots = append(l.slots, s)
}

// Kernel returns the name of the kernel the layout belongs to.
func (l *Layout) Kernel() string { return l.kernel }

// Slot returns the slot of a location (name or name[i]).
func (l *Layout) Slot(location string) (Slot, bool) {
	i, ok := l.byLoc[location]
	if !ok {
		return Slot{}, false
	}
	return l.slots[i], true
}

// Slots returns every location in assignment order.
func (l *Layout) Slots() []Slot { return l.slots }

// Samplers returns sampler names indexed by texture unit.
func (l *Layout) Samplers() []string { return l.samplers }

// Unit returns the texture unit bound to a sampler.
func (l *Layout) Unit(name string) (int, bool) {
	s, ok := l.Slot(name)
	if !ok || s.Type != UniformSampler {
		return 0, false
	}
	return s.Index, true
}

// SlotCount returns the number of vec4 slots in the uniform block.
func (l *Layout) SlotCount() int { return l.count }

// BlockSize returns the uniform block size in float32 values.
func (l *Layout) BlockSize() int { return l.count * 4 }
