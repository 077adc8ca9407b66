// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/backend"
	"github.com/gogpu/vision/gpucore"
)

// Errors returned by the wgpu backend.
var (
	// ErrNotInitialized is returned when using a closed backend.
	ErrNotInitialized = errors.New("wgpu: backend not initialized")

	// ErrNoAdapter is returned when no GPU adapter is available.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter found")

	// ErrSharedDevice is returned by Recover on a device the backend does
	// not own.
	ErrSharedDevice = errors.New("wgpu: cannot recover a shared device")
)

func init() {
	backend.Register(backend.BackendWGPU, func() (gpucore.Backend, error) {
		return New()
	})
}

type texture struct {
	buf           hal.Buffer
	width, height int
}

func (t *texture) bytes() uint64 { return uint64(t.width) * uint64(t.height) * 4 }

type program struct {
	kernel     *gpucore.Kernel
	layout     *gpucore.Layout
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

type buffer struct {
	buf     hal.Buffer
	size    int
	pending uint64
}

// retired holds resources freed once submission index completes.
type retired struct {
	index  uint64
	cmd    hal.CommandBuffer
	bufs   []hal.Buffer
	groups []hal.BindGroup
}

// Backend runs kernels as compute shaders on a wgpu HAL device.
//
// Thread Safety: Backend is safe for concurrent use from multiple goroutines.
// All resource operations are protected by a mutex.
type Backend struct {
	mu sync.Mutex

	nextID atomic.Uint64

	instance hal.Instance
	adapter  hal.Adapter
	device   hal.Device
	queue    hal.Queue
	limits   gputypes.Limits
	info     gputypes.AdapterInfo
	shared   bool

	textures     map[gpucore.TextureID]*texture
	framebuffers map[gpucore.FramebufferID]gpucore.TextureID
	programs     map[gpucore.ProgramID]*program
	buffers      map[gpucore.BufferID]*buffer
	fences       map[gpucore.FenceID]uint64
	surface      gpucore.TextureID

	submitted uint64
	retired   []retired

	lost     bool
	listener func(gpucore.ContextEvent)
}

var _ gpucore.Backend = (*Backend)(nil)

// New opens the first discrete or integrated GPU exposed by the Vulkan HAL,
// falling back to the first adapter of any type.
func New() (*Backend, error) {
	api, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpu: vulkan backend not available")
	}
	return NewFromAPI(api)
}

// NewFromAPI opens a device on the given HAL backend.
func NewFromAPI(api hal.Backend) (*Backend, error) {
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	b := &Backend{
		instance: instance,
		adapter:  selected.Adapter,
		limits:   selected.Capabilities.Limits,
		info:     selected.Info,
	}
	if err := b.open(); err != nil {
		instance.Destroy()
		return nil, err
	}
	vision.Logger().Info("wgpu: backend initialized",
		"adapter", selected.Info.Name, "type", selected.Info.DeviceType, "driver", selected.Info.Driver)
	return b, nil
}

// NewWithDevice creates a backend on a device owned by the caller. Close
// releases the backend's resources but not the device.
func NewWithDevice(device hal.Device, queue hal.Queue, limits gputypes.Limits) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: nil device or queue")
	}
	b := &Backend{
		device: device,
		queue:  queue,
		limits: limits,
		shared: true,
	}
	if err := b.init(); err != nil {
		return nil, err
	}
	vision.Logger().Info("wgpu: backend initialized on shared device")
	return b, nil
}

// halDevice is implemented by *wgpu.Device.
type halDevice interface {
	HalDevice() hal.Device
	HalQueue() hal.Queue
}

// NewFromProvider creates a backend on the device of a host application,
// such as a gogpu window. The provider's device must expose its HAL device
// and queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Backend, error) {
	hd, ok := provider.Device().(halDevice)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider device %T does not expose HAL types", provider.Device())
	}
	device, queue := hd.HalDevice(), hd.HalQueue()
	if device == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: provider device has been released")
	}
	b, err := NewWithDevice(device, queue, gputypes.DefaultLimits())
	if err != nil {
		return nil, err
	}
	info := provider.AdapterInfo()
	b.info.Name = info.Name
	return b, nil
}

// open opens a device on the adapter and initializes the backend state.
func (b *Backend) open() error {
	od, err := b.adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("wgpu: open device: %w", err)
	}
	b.device, b.queue = od.Device, od.Queue
	if err := b.init(); err != nil {
		b.device.Destroy()
		b.device, b.queue = nil, nil
		return err
	}
	return nil
}

func (b *Backend) init() error {
	if b.nextID.Load() == 0 {
		// Start ID generation at 1 (0 is invalid)
		b.nextID.Store(1)
	}
	b.textures = make(map[gpucore.TextureID]*texture)
	b.framebuffers = make(map[gpucore.FramebufferID]gpucore.TextureID)
	b.programs = make(map[gpucore.ProgramID]*program)
	b.buffers = make(map[gpucore.BufferID]*buffer)
	b.fences = make(map[gpucore.FenceID]uint64)
	b.submitted = b.queue.PollCompleted()
	b.retired = nil

	t, err := b.newTexture(1, 1)
	if err != nil {
		return fmt.Errorf("wgpu: create surface: %w", err)
	}
	b.surface = gpucore.TextureID(b.newID())
	b.textures[b.surface] = t
	return nil
}

func (b *Backend) newID() uint64 {
	return b.nextID.Add(1) - 1
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendWGPU }

// AdapterInfo returns the adapter the backend runs on. It is empty for
// shared devices created with NewWithDevice.
func (b *Backend) AdapterInfo() gputypes.AdapterInfo { return b.info }

// Capabilities reports backend features. The largest texture is bounded
// both by the 2D texture limit and by the storage buffer binding size.
func (b *Backend) Capabilities() gpucore.Capabilities {
	side := int(b.limits.MaxTextureDimension2D)
	if n := b.limits.MaxStorageBufferBindingSize / 4; n > 0 {
		side = min(side, int(math.Sqrt(float64(n))))
	}
	return gpucore.Capabilities{Fences: true, MaxTextureSize: side}
}

// SetContextListener installs the context loss/restore callback.
func (b *Backend) SetContextListener(fn func(gpucore.ContextEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = fn
}

// locked runs fn with the backend locked. A device loss reported by fn
// turns into a context loss: every resource is dropped, the listener is
// notified and gpucore.ErrContextLost is returned.
func (b *Backend) locked(fn func() error) error {
	b.mu.Lock()
	switch {
	case b.device == nil:
		b.mu.Unlock()
		return ErrNotInitialized
	case b.lost:
		b.mu.Unlock()
		return gpucore.ErrContextLost
	}
	err := fn()
	var notify func(gpucore.ContextEvent)
	if errors.Is(err, hal.ErrDeviceLost) {
		notify = b.loseLocked()
		err = gpucore.ErrContextLost
	}
	b.mu.Unlock()
	if notify != nil {
		notify(gpucore.ContextLostEvent)
	}
	return err
}

// loseLocked marks the context lost and returns the listener to notify.
// Handles on a lost device are invalid and are dropped without being
// destroyed.
func (b *Backend) loseLocked() func(gpucore.ContextEvent) {
	b.lost = true
	b.textures = make(map[gpucore.TextureID]*texture)
	b.framebuffers = make(map[gpucore.FramebufferID]gpucore.TextureID)
	b.programs = make(map[gpucore.ProgramID]*program)
	b.buffers = make(map[gpucore.BufferID]*buffer)
	b.fences = make(map[gpucore.FenceID]uint64)
	b.retired = nil
	vision.Logger().Warn("wgpu: device lost")
	return b.listener
}

// Lost reports whether the device has been lost.
func (b *Backend) Lost() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lost
}

// Recover opens a new device after a loss and notifies the listener, which
// recreates resources before Recover returns.
func (b *Backend) Recover() error {
	b.mu.Lock()
	if !b.lost {
		b.mu.Unlock()
		return nil
	}
	if b.shared || b.adapter == nil {
		b.mu.Unlock()
		return ErrSharedDevice
	}
	if b.device != nil {
		b.device.Destroy()
		b.device, b.queue = nil, nil
	}
	if err := b.open(); err != nil {
		b.mu.Unlock()
		return err
	}
	b.lost = false
	fn := b.listener
	b.mu.Unlock()

	vision.Logger().Info("wgpu: device recovered")
	if fn != nil {
		fn(gpucore.ContextRestoredEvent)
	}
	return nil
}

// Close waits for the GPU to go idle and releases every resource. A device
// owned by the backend is destroyed as well.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == nil {
		return
	}
	if !b.lost {
		if err := b.device.WaitIdle(); err != nil {
			vision.Logger().Warn("wgpu: wait idle on close", "err", err)
		}
		b.collectLocked(math.MaxUint64)
		for _, p := range b.programs {
			b.destroyProgram(p)
		}
		for _, t := range b.textures {
			b.device.DestroyBuffer(t.buf)
		}
		for _, buf := range b.buffers {
			b.device.DestroyBuffer(buf.buf)
		}
	}
	b.textures, b.programs, b.buffers = nil, nil, nil
	b.framebuffers, b.fences = nil, nil
	if !b.shared {
		b.device.Destroy()
		if b.instance != nil {
			b.instance.Destroy()
		}
	}
	b.device, b.queue, b.instance = nil, nil, nil
	vision.Logger().Debug("wgpu: backend closed")
}
