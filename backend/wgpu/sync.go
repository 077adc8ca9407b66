// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vision/gpucore"
)

// submitLocked records commands into a fresh encoder and submits them. The
// resources in res are freed once the submission completes.
func (b *Backend) submitLocked(label string, record func(hal.CommandEncoder), res retired) error {
	fail := func(err error) error {
		for _, g := range res.groups {
			b.device.DestroyBindGroup(g)
		}
		for _, buf := range res.bufs {
			b.device.DestroyBuffer(buf)
		}
		return err
	}

	enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fail(fmt.Errorf("wgpu: create encoder: %w", err))
	}
	if err := enc.BeginEncoding(label); err != nil {
		return fail(fmt.Errorf("wgpu: begin encoding: %w", err))
	}
	record(enc)
	cmd, err := enc.EndEncoding()
	if err != nil {
		return fail(fmt.Errorf("wgpu: end encoding: %w", err))
	}
	index, err := b.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		b.device.FreeCommandBuffer(cmd)
		return fail(fmt.Errorf("wgpu: submit %s: %w", label, err))
	}
	b.submitted = index
	res.index, res.cmd = index, cmd
	b.retired = append(b.retired, res)
	b.collectLocked(b.queue.PollCompleted())
	return nil
}

// retireLocked frees res after the latest submission completes.
func (b *Backend) retireLocked(res retired) {
	res.index = b.submitted
	b.retired = append(b.retired, res)
	b.collectLocked(b.queue.PollCompleted())
}

// collectLocked frees retired resources whose submission index is at most
// completed.
func (b *Backend) collectLocked(completed uint64) {
	keep := b.retired[:0]
	for _, r := range b.retired {
		if r.index > completed {
			keep = append(keep, r)
			continue
		}
		if r.cmd != nil {
			b.device.FreeCommandBuffer(r.cmd)
		}
		for _, g := range r.groups {
			b.device.DestroyBindGroup(g)
		}
		for _, buf := range r.bufs {
			b.device.DestroyBuffer(buf)
		}
	}
	clear(b.retired[len(keep):])
	b.retired = keep
}

// Retired returns the number of submissions and resources awaiting
// completion.
func (b *Backend) Retired() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.retired)
}

// Fence records the latest submission. It signals once every command
// submitted before the call has completed.
func (b *Backend) Fence() (gpucore.FenceID, error) {
	var id uint64
	err := b.locked(func() error {
		id = b.newID()
		b.fences[gpucore.FenceID(id)] = b.submitted
		return nil
	})
	return gpucore.FenceID(id), err
}

// PollFence reports whether the fence has signaled. It never blocks.
func (b *Backend) PollFence(id gpucore.FenceID) (bool, error) {
	var done bool
	err := b.locked(func() error {
		index, ok := b.fences[id]
		if !ok {
			return fmt.Errorf("%w: fence %d", gpucore.ErrUnknownResource, id)
		}
		completed := b.queue.PollCompleted()
		b.collectLocked(completed)
		done = index <= completed
		return nil
	})
	return done, err
}

// DestroyFence releases a fence.
func (b *Backend) DestroyFence(id gpucore.FenceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fences, id)
}
