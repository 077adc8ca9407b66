// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/vision"
)

// State is the graphics context state.
type State int32

// Context states. Transitions are Ready → Lost → Rebuilding → Ready.
const (
	StateReady State = iota
	StateLost
	StateRebuilding
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateLost:
		return "lost"
	case StateRebuilding:
		return "rebuilding"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

type rebuildHook struct {
	fn func() error
}

type stateListener struct {
	fn func(State)
}

// Context wraps a Backend with the context state machine. The backend
// reports loss and restore; the Context runs registered rebuild hooks
// between restore and Ready so owners can recreate their resources.
type Context struct {
	backend Backend

	state      atomic.Int32
	generation atomic.Uint64

	mu        sync.Mutex
	hooks     []*rebuildHook
	listeners []*stateListener
}

// NewContext wraps b and installs itself as b's context listener.
func NewContext(b Backend) *Context {
	c := &Context{backend: b}
	b.SetContextListener(c.handle)
	return c
}

// Backend returns the wrapped backend.
func (c *Context) Backend() Backend { return c.backend }

// State returns the current state.
func (c *Context) State() State { return State(c.state.Load()) }

// Ready reports whether the backend accepts work.
func (c *Context) Ready() bool { return c.State() == StateReady }

// Generation counts completed rebuilds.
func (c *Context) Generation() uint64 { return c.generation.Load() }

// OnRebuild registers fn to run while rebuilding, in registration order.
// The returned function unregisters it.
func (c *Context) OnRebuild(fn func() error) (remove func()) {
	h := &rebuildHook{fn: fn}
	c.mu.Lock()
	c.hooks = append(c.hooks, h)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, x := range c.hooks {
			if x == h {
				c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
				return
			}
		}
	}
}

// OnStateChange registers fn to be called after every transition.
// The returned function unregisters it.
func (c *Context) OnStateChange(fn func(State)) (remove func()) {
	l := &stateListener{fn: fn}
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, x := range c.listeners {
			if x == l {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Context) handle(ev ContextEvent) {
	switch ev {
	case ContextLostEvent:
		if c.State() == StateLost {
			return
		}
		vision.Logger().Warn("gpucore: context lost", "backend", c.backend.Name())
		c.transition(StateLost)
	case ContextRestoredEvent:
		if c.State() != StateLost {
			return
		}
		c.transition(StateRebuilding)
		c.rebuild()
	}
}

func (c *Context) rebuild() {
	c.mu.Lock()
	hooks := make([]*rebuildHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.Unlock()

	failed := 0
	for _, h := range hooks {
		if err := h.fn(); err != nil {
			failed++
			vision.Logger().Warn("gpucore: rebuild hook failed", "err", err)
		}
	}
	c.generation.Add(1)
	vision.Logger().Info("gpucore: context restored",
		"backend", c.backend.Name(), "hooks", len(hooks), "failed", failed)
	c.transition(StateReady)
}

func (c *Context) transition(s State) {
	c.state.Store(int32(s))

	c.mu.Lock()
	listeners := make([]*stateListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.fn(s)
	}
}
