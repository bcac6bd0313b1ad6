// Package wgpu backs pixelpipe.Device/pixelpipe.DeviceProvider with a real
// adapter/device/queue lifecycle over github.com/gogpu/wgpu: the device
// lifecycle helpers (getGPUInfo, createDevice, getDeviceQueue,
// releaseDevice, releaseAdapter) plus a buffer wrapper over that
// adapter/device/queue triple.
package wgpu

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/core"

	"github.com/rawforge/pixelpipe"
)

// Provider discovers and opens a wgpu-backed Device. It implements
// pixelpipe.DeviceProvider.
type Provider struct {
	logger atomic.Pointer[slog.Logger]
}

// NewProvider creates a Provider. Call pixelpipe.RegisterDeviceProvider
// with its result to make GPU dispatch available to pipelines.
func NewProvider() *Provider {
	p := &Provider{}
	p.logger.Store(slog.Default())
	return p
}

func (p *Provider) Name() string { return "wgpu" }

// SetLogger implements the loggerSetter interface pixelpipe.SetLogger
// propagates through, so this provider picks up the pipeline's logger.
func (p *Provider) SetLogger(l *slog.Logger) {
	if l != nil {
		p.logger.Store(l)
	}
}

func (p *Provider) log() *slog.Logger { return p.logger.Load() }

// Open requests an adapter, then walks the getGPUInfo/createDevice/
// getDeviceQueue sequence to stand up a usable device.
func (p *Provider) Open(ctx context.Context) (pixelpipe.Device, error) {
	adapterID, err := core.RequestAdapter(&gputypes.RequestAdapterOptions{
		PowerPreference: gputypes.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: request adapter: %v", pixelpipe.ErrNoDevice, err)
	}

	info, err := getGPUInfo(adapterID)
	if err == nil {
		p.log().Info("wgpu adapter selected", "name", info.Name, "backend", info.Backend)
	}

	deviceID, err := createDevice(adapterID, "pixelpipe")
	if err != nil {
		core.AdapterDrop(adapterID)
		return nil, fmt.Errorf("%w: create device: %v", pixelpipe.ErrNoDevice, err)
	}

	queueID, err := getDeviceQueue(deviceID)
	if err != nil {
		releaseDevice(deviceID)
		core.AdapterDrop(adapterID)
		return nil, fmt.Errorf("%w: get queue: %v", pixelpipe.ErrNoDevice, err)
	}

	limits, err := core.GetDeviceLimits(deviceID)
	var maxBuf int64 = 256 << 20
	if err == nil {
		maxBuf = int64(limits.MaxBufferSize)
	}

	return &device{
		log:       p.log(),
		adapterID: adapterID,
		deviceID:  deviceID,
		queueID:   queueID,
		maxBuf:    maxBuf,
		buffers:   make(map[uint64]*bufferHandle),
	}, nil
}

// device implements pixelpipe.Device over one open adapter+device+queue
// triple, locked for exclusive use by one pipeline run.
type device struct {
	log *slog.Logger

	adapterID core.AdapterID
	deviceID  core.DeviceID
	queueID   core.QueueID
	maxBuf    int64

	mu      sync.Mutex
	buffers map[uint64]*bufferHandle
	nextID  uint64
	closed  bool
}

type bufferHandle struct {
	id   core.BufferID
	size int64
}

func (d *device) Fits(bytes int64) bool { return bytes <= d.maxBuf }

// Alloc creates a device buffer sized to fit bytes, usable as both a copy
// source and destination so the same allocation serves an operator's
// input or output role, collapsed into one usage set since the driver
// always pairs an Alloc with exactly one Write or one Read.
func (d *device) Alloc(ctx context.Context, bytes int64, desc pixelpipe.BufferDescriptor) (*pixelpipe.DeviceBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, pixelpipe.ErrNoDevice
	}

	usage := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst |
		gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite | gputypes.BufferUsageStorage

	bufID, err := core.CreateBuffer(d.deviceID, &core.BufferDescriptor{
		Label: "pixelpipe-node-buffer",
		Size:  uint64(bytes),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pixelpipe.ErrDeviceOOM, err)
	}

	d.nextID++
	handle := d.nextID
	d.buffers[handle] = &bufferHandle{id: bufID, size: bytes}

	return &pixelpipe.DeviceBuffer{Handle: handle, Bytes: bytes, Desc: desc}, nil
}

func (d *device) Write(ctx context.Context, buf *pixelpipe.DeviceBuffer, data []byte) error {
	d.mu.Lock()
	bh, ok := d.buffers[buf.Handle]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown device buffer handle", pixelpipe.ErrInvariant)
	}
	if err := core.WriteBuffer(d.queueID, bh.id, 0, data); err != nil {
		return fmt.Errorf("%w: %v", pixelpipe.ErrDeviceTransient, err)
	}
	return nil
}

func (d *device) Read(ctx context.Context, buf *pixelpipe.DeviceBuffer, dst []byte) error {
	d.mu.Lock()
	bh, ok := d.buffers[buf.Handle]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown device buffer handle", pixelpipe.ErrInvariant)
	}
	data, err := core.ReadBuffer(d.queueID, bh.id, 0, uint64(len(dst)))
	if err != nil {
		return fmt.Errorf("%w: %v", pixelpipe.ErrDeviceLate, err)
	}
	copy(dst, data)
	return nil
}

func (d *device) Release(buf *pixelpipe.DeviceBuffer) {
	if buf == nil {
		return
	}
	d.mu.Lock()
	bh, ok := d.buffers[buf.Handle]
	if ok {
		delete(d.buffers, buf.Handle)
	}
	d.mu.Unlock()
	if ok {
		core.DestroyBuffer(bh.id)
	}
}

// Finish waits for all outstanding queue work, the suspension point
// crossed when the driver enters a blocking GPU operation.
func (d *device) Finish(ctx context.Context) error {
	if err := core.QueueSubmit(d.queueID, nil); err != nil {
		return fmt.Errorf("%w: %v", pixelpipe.ErrDeviceLate, err)
	}
	return core.DeviceWaitIdle(d.deviceID)
}

// EndBatch marks a logical batch boundary for the diagnostics layer,
// distinct from Finish's synchronous wait.
func (d *device) EndBatch() {
	d.log.Debug("wgpu device batch ended")
}

func (d *device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	remaining := d.buffers
	d.buffers = nil
	d.mu.Unlock()

	for _, bh := range remaining {
		core.DestroyBuffer(bh.id)
	}

	if err := releaseDevice(d.deviceID); err != nil {
		return err
	}
	return releaseAdapter(d.adapterID)
}

// capabilities returns the shared gpucontext capability shape for this
// device. It returns the zero value: no adapter limits are filled in.
func (d *device) capabilities() gpucontext.DeviceCapabilities {
	return gpucontext.DeviceCapabilities{}
}
