package pixelpipe

import (
	"context"
	"errors"
	"sync"
)

// ErrNoDevice is returned by acquireDevice when no DeviceProvider is
// registered or the session-wide GPU failure threshold has been reached.
var ErrNoDevice = errors.New("pixelpipe: no GPU device available")

// DeviceBuffer is an opaque handle to device-resident pixel data plus the
// bookkeeping the driver needs to release it on every path. The
// predecessor node that allocated a DeviceBuffer owns it until the
// successor accepts it as input, or until any error path releases it.
type DeviceBuffer struct {
	Handle uint64
	Bytes  int64
	Desc   BufferDescriptor
}

// Device owns an open adapter+device+queue triple for the lifetime of a
// pipeline run and is locked for exclusive use by that run.
type Device interface {
	// Fits reports whether a single allocation of the given byte size
	// can be made without exceeding the device's memory budget.
	Fits(bytes int64) bool

	// Alloc reserves a device buffer of at least bytes, described by desc.
	Alloc(ctx context.Context, bytes int64, desc BufferDescriptor) (*DeviceBuffer, error)
	// Write uploads host data into a previously allocated device buffer.
	Write(ctx context.Context, buf *DeviceBuffer, data []byte) error
	// Read downloads a device buffer's contents to host memory. A
	// failure here is fatal to the current run.
	Read(ctx context.Context, buf *DeviceBuffer, dst []byte) error
	// Release frees a device buffer. Safe to call at most once per
	// buffer; callers must not use buf afterward.
	Release(buf *DeviceBuffer)

	// Finish blocks until all outstanding device work submitted through
	// this Device has completed.
	Finish(ctx context.Context) error
	// EndBatch marks a logical batch boundary for diagnostics, distinct
	// from Finish's synchronous wait.
	EndBatch()

	// Close releases the device and its adapter.
	Close() error
}

// DeviceProvider discovers and opens a Device, reporting whether GPU
// dispatch is available at all in this process.
type DeviceProvider interface {
	// Name identifies the backend, e.g. "wgpu".
	Name() string
	// Open acquires a Device. Returns ErrNoDevice if no suitable adapter
	// exists.
	Open(ctx context.Context) (Device, error)
}

var (
	deviceMu       sync.RWMutex
	deviceProvider DeviceProvider
)

// RegisterDeviceProvider installs the process-wide GPU device provider:
// at most one provider is active at a time, and registering a new one
// replaces the old.
func RegisterDeviceProvider(p DeviceProvider) {
	deviceMu.Lock()
	deviceProvider = p
	deviceMu.Unlock()

	if p != nil {
		propagateLogger(p, Logger())
	}
}

// CurrentDeviceProvider returns the process-wide provider, or nil if none
// is registered.
func CurrentDeviceProvider() DeviceProvider {
	deviceMu.RLock()
	defer deviceMu.RUnlock()
	return deviceProvider
}

// ClearDeviceProvider removes the process-wide provider. Test-only.
func ClearDeviceProvider() {
	deviceMu.Lock()
	deviceProvider = nil
	deviceMu.Unlock()
}

// acquireDevice opens a Device from the registered provider, or returns
// ErrNoDevice if none is registered or the session-wide GPU failure
// threshold has already been reached.
func acquireDevice(ctx context.Context) (Device, error) {
	if deviceErrorCount.Load() >= deviceErrorThreshold {
		return nil, ErrNoDevice
	}
	p := CurrentDeviceProvider()
	if p == nil {
		return nil, ErrNoDevice
	}
	return p.Open(ctx)
}
