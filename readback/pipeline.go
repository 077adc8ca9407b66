// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package readback

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/engine"
	"github.com/gogpu/vision/gpucore"
)

// Pipeline errors.
var (
	// ErrClosed is returned by operations on a closed pipeline.
	ErrClosed = errors.New("readback: pipeline closed")

	// ErrNoRequest is returned by Pickup when no transfer is in flight.
	ErrNoRequest = errors.New("readback: no request in flight")
)

type slotState int

const (
	slotFree slotState = iota
	slotPending
	slotReady
	slotFailed
)

// slot is a transfer buffer. It belongs to the producer queue while free
// and to the consumer queue once its copy has signaled.
type slot struct {
	state slotState
	seq   uint64

	buf  gpucore.BufferID
	size int

	fence     gpucore.FenceID
	requested time.Time
	err       error
}

// Pipeline moves textures into host memory without stalling the caller.
//
// Each Request takes a free slot, issues a GPU copy and a fence, and
// returns. A poller goroutine polls fences without blocking and moves
// signaled slots to the consumer queue. Pickup takes the oldest ready
// slot, reads it, and frees it. At most Slots() transfers are in flight;
// further requests wait for a pickup.
//
// In sync mode, or when the backend has no fences, transfers go through
// one shared buffer and complete before Request returns.
//
// While the graphics context is lost, requests are dropped and waits
// resolve with the last buffer read. Backends may report a loss from
// inside any call, so state changes never take mu.
type Pipeline struct {
	gpu  *gpucore.Context
	opts options
	sync bool

	wakeMu  sync.Mutex
	changed chan struct{}

	mu       sync.Mutex
	slots    []*slot
	inflight []*slot
	queued   [][]byte
	last     []byte
	latency  time.Duration
	closed   bool

	shared     gpucore.BufferID
	sharedSize int

	done       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
	removeHook func()
	removeStat func()
}

// New creates a pipeline on gpu. Unless sync mode is selected it starts
// the fence poller; Close stops it.
func New(gpu *gpucore.Context, cfg vision.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := optionsFromConfig(cfg)
	for _, opt := range opts {
		opt(&o)
	}
	if o.mode != vision.ReadbackAsync && o.mode != vision.ReadbackSync {
		return nil, vision.Configf("new readback", "", "invalid mode %d", o.mode)
	}

	p := &Pipeline{
		gpu:     gpu,
		opts:    o,
		sync:    o.mode == vision.ReadbackSync,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
	if !p.sync && !gpu.Backend().Capabilities().Fences {
		vision.Logger().Warn("readback: backend has no fences, using sync transfers",
			"backend", gpu.Backend().Name())
		p.sync = true
	}
	if !p.sync {
		p.slots = make([]*slot, o.slots)
		for i := range p.slots {
			p.slots[i] = &slot{}
		}
	}
	p.removeHook = gpu.OnRebuild(p.rebuild)
	p.removeStat = gpu.OnStateChange(p.stateChanged)

	if !p.sync {
		p.wg.Add(1)
		go p.poll()
	}
	return p, nil
}

// Slots returns the in-flight depth, or 0 in sync mode.
func (p *Pipeline) Slots() int { return len(p.slots) }

// Mode returns the transfer mode in effect.
func (p *Pipeline) Mode() vision.ReadbackMode {
	if p.sync {
		return vision.ReadbackSync
	}
	return vision.ReadbackAsync
}

// InFlight returns the number of slots requested and not yet picked up.
func (p *Pipeline) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// LastLatency returns the time between the request and the pickup of the
// most recent transfer.
func (p *Pipeline) LastLatency() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latency
}

// signal wakes every waiter.
func (p *Pipeline) signal() {
	p.wakeMu.Lock()
	close(p.changed)
	p.changed = make(chan struct{})
	p.wakeMu.Unlock()
}

// wait releases mu until the pipeline changes or ctx is done.
func (p *Pipeline) wait(ctx context.Context) error {
	p.wakeMu.Lock()
	ch := p.changed
	p.wakeMu.Unlock()
	p.mu.Unlock()
	defer p.mu.Lock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) lastCopy() []byte {
	return bytes.Clone(p.last)
}

// lostLocked reports whether the context is lost and, if so, drops every
// in-flight transfer. Handles on a lost context are invalid and are not
// destroyed. Callers hold mu.
func (p *Pipeline) lostLocked() bool {
	if p.gpu.Ready() {
		return false
	}
	for _, s := range p.inflight {
		s.state = slotFree
		s.fence = gpucore.InvalidID
		s.err = nil
	}
	p.inflight = nil
	return true
}

// Request starts a transfer of tex. It waits for a free slot when all
// slots are in flight. While the context is lost it does nothing.
func (p *Pipeline) Request(ctx context.Context, tex *engine.Texture) error {
	if p.sync {
		data, err := p.ReadSync(tex)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.queued = append(p.queued, data)
		p.mu.Unlock()
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.request(ctx, tex)
	return err
}

// request issues a copy into a free slot. It returns a nil slot when the
// context is lost. Callers hold mu.
func (p *Pipeline) request(ctx context.Context, tex *engine.Texture) (*slot, error) {
	var s *slot
	for {
		if p.closed {
			return nil, ErrClosed
		}
		if p.lostLocked() {
			return nil, nil
		}
		if s = p.freeSlot(); s != nil {
			break
		}
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
	}
	if tex.Released() {
		return nil, engine.ErrTextureReleased
	}

	be := p.gpu.Backend()
	w, h := tex.Size()
	size := w * h * 4
	if s.buf == gpucore.InvalidID || s.size != size {
		if s.buf != gpucore.InvalidID {
			be.DestroyBuffer(s.buf)
			s.buf = gpucore.InvalidID
		}
		buf, err := be.CreateBuffer(size)
		if err != nil {
			return nil, p.lostOr(err)
		}
		s.buf, s.size = buf, size
	}
	if err := be.CopyToBuffer(tex.ID(), s.buf); err != nil {
		return nil, p.lostOr(err)
	}
	fence, err := be.Fence()
	if err != nil {
		return nil, p.lostOr(err)
	}
	s.fence = fence
	s.state = slotPending
	s.seq++
	s.requested = time.Now()
	p.inflight = append(p.inflight, s)
	vision.Logger().Debug("readback: slot requested", "inflight", len(p.inflight), "bytes", size)
	return s, nil
}

// lostOr maps context loss to a dropped request.
func (p *Pipeline) lostOr(err error) error {
	if errors.Is(err, gpucore.ErrContextLost) {
		return nil
	}
	return err
}

func (p *Pipeline) freeSlot() *slot {
	for _, s := range p.slots {
		if s.state == slotFree {
			return s
		}
	}
	return nil
}

// Pickup returns the contents of the oldest completed transfer, waiting
// for one to complete if necessary. While the context is lost it returns
// the last buffer read.
func (p *Pipeline) Pickup(ctx context.Context) ([]byte, error) {
	if p.sync {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			return nil, ErrClosed
		}
		if len(p.queued) == 0 {
			return nil, ErrNoRequest
		}
		data := p.queued[0]
		p.queued = p.queued[1:]
		return data, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.closed {
			return nil, ErrClosed
		}
		if p.lostLocked() {
			return p.lastCopy(), nil
		}
		for _, s := range p.inflight {
			switch s.state {
			case slotReady:
				return p.take(s)
			case slotFailed:
				return nil, p.fail(s)
			}
		}
		if len(p.inflight) == 0 {
			return nil, ErrNoRequest
		}
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// Read transfers tex and waits for its contents.
func (p *Pipeline) Read(ctx context.Context, tex *engine.Texture) ([]byte, error) {
	if p.sync {
		return p.ReadSync(tex)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.request(ctx, tex)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return p.lastCopy(), nil
	}
	seq := s.seq
	for {
		if p.closed {
			return nil, ErrClosed
		}
		if p.lostLocked() || s.seq != seq || s.state == slotFree {
			return p.lastCopy(), nil
		}
		switch s.state {
		case slotReady:
			return p.take(s)
		case slotFailed:
			return nil, p.fail(s)
		}
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// take reads a ready slot and returns it to the producer queue. Callers
// hold mu.
func (p *Pipeline) take(s *slot) ([]byte, error) {
	data := make([]byte, s.size)
	err := p.gpu.Backend().ReadBuffer(s.buf, data)
	p.release(s)
	if err != nil {
		if errors.Is(err, gpucore.ErrContextLost) {
			return p.lastCopy(), nil
		}
		return nil, err
	}
	p.last = data
	p.latency = time.Since(s.requested)
	vision.Logger().Debug("readback: slot picked up", "latency", p.latency)
	return bytes.Clone(data), nil
}

// fail returns the error of a failed slot and frees it. Callers hold mu.
func (p *Pipeline) fail(s *slot) error {
	err := s.err
	p.release(s)
	return err
}

// release returns s to the producer queue. Callers hold mu.
func (p *Pipeline) release(s *slot) {
	for i, q := range p.inflight {
		if q == s {
			p.inflight = append(p.inflight[:i], p.inflight[i+1:]...)
			break
		}
	}
	if s.state == slotPending {
		p.gpu.Backend().DestroyFence(s.fence)
	}
	s.state = slotFree
	s.fence = gpucore.InvalidID
	s.err = nil
	p.signal()
}

// ReadSync copies tex through the shared buffer and blocks until the copy
// completes.
func (p *Pipeline) ReadSync(tex *engine.Texture) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if !p.gpu.Ready() {
		return p.lastCopy(), nil
	}
	if tex.Released() {
		return nil, engine.ErrTextureReleased
	}
	start := time.Now()
	be := p.gpu.Backend()
	w, h := tex.Size()
	size := w * h * 4
	if p.shared == gpucore.InvalidID || p.sharedSize != size {
		if p.shared != gpucore.InvalidID {
			be.DestroyBuffer(p.shared)
			p.shared = gpucore.InvalidID
		}
		buf, err := be.CreateBuffer(size)
		if err != nil {
			return p.syncFailed(err)
		}
		p.shared, p.sharedSize = buf, size
	}
	if err := be.CopyToBuffer(tex.ID(), p.shared); err != nil {
		return p.syncFailed(err)
	}
	data := make([]byte, size)
	if err := be.ReadBuffer(p.shared, data); err != nil {
		return p.syncFailed(err)
	}
	p.last = data
	p.latency = time.Since(start)
	return bytes.Clone(data), nil
}

func (p *Pipeline) syncFailed(err error) ([]byte, error) {
	if errors.Is(err, gpucore.ErrContextLost) {
		return p.lastCopy(), nil
	}
	return nil, err
}

// poll moves signaled slots to the consumer queue.
func (p *Pipeline) poll() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.poll)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.pollOnce()
		}
	}
}

// pollOnce moves signaled slots to the consumer queue. A fence that cannot
// be polled fails its slot so that waiters resolve with the error.
func (p *Pipeline) pollOnce() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lostLocked() {
		return
	}
	be := p.gpu.Backend()
	moved := false
	for _, s := range p.inflight {
		if s.state != slotPending {
			continue
		}
		ok, err := be.PollFence(s.fence)
		if errors.Is(err, gpucore.ErrContextLost) {
			break
		}
		if err != nil {
			vision.Logger().Warn("readback: poll fence failed", "err", err)
			be.DestroyFence(s.fence)
			s.fence = gpucore.InvalidID
			s.state = slotFailed
			s.err = err
			moved = true
			continue
		}
		if !ok {
			continue
		}
		be.DestroyFence(s.fence)
		s.fence = gpucore.InvalidID
		s.state = slotReady
		moved = true
	}
	if moved {
		p.signal()
	}
}

// stateChanged wakes every waiter. It may run on a goroutine that holds mu
// inside a backend call, so waiters drop lost transfers themselves.
func (p *Pipeline) stateChanged(gpucore.State) {
	p.signal()
}

// rebuild forgets buffers invalidated by the context loss.
func (p *Pipeline) rebuild() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		*s = slot{seq: s.seq + 1}
	}
	p.inflight = nil
	p.shared, p.sharedSize = gpucore.InvalidID, 0
	return nil
}

// Close stops the poller and frees every buffer. Pending waits return
// ErrClosed.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()

		p.removeHook()
		p.removeStat()

		p.mu.Lock()
		defer p.mu.Unlock()
		p.closed = true
		be := p.gpu.Backend()
		if p.gpu.Ready() {
			for _, s := range p.slots {
				if s.state == slotPending {
					be.DestroyFence(s.fence)
				}
				if s.buf != gpucore.InvalidID {
					be.DestroyBuffer(s.buf)
				}
			}
			if p.shared != gpucore.InvalidID {
				be.DestroyBuffer(p.shared)
			}
		}
		p.inflight = nil
		p.queued = nil
		p.signal()
	})
	return nil
}
