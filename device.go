package posevis

import (
	"errors"
	"sync"

	"github.com/gogpu/gpucontext"
)

// DeviceBuffer is a device-resident float buffer handle. Buffers are
// exclusively owned by whoever allocated them and must be released through
// the same device's Free.
type DeviceBuffer interface {
	// Floats returns the buffer capacity in float32 elements.
	Floats() int
}

// Device is a rendering device: it owns device-resident buffers, moves data
// across the host/device boundary, and executes the drawing kernels.
//
// The software device is always available and is the default. GPU devices
// are provided by backend packages and opt in via blank import:
//
//	import _ "github.com/gogpu/posevis/gpu" // enables GPU kernels
//
// Kernel invocations may execute asynchronously relative to the calling
// goroutine; Synchronize blocks until all previously issued device work is
// visible to the host.
type Device interface {
	// Name returns the device name (e.g., "software", "wgpu").
	Name() string

	// Init initializes device resources. Called once during registration.
	Init() error

	// Close releases device resources.
	Close()

	// AllocFloats allocates a device buffer of n float32 elements.
	AllocFloats(label string, n int) (DeviceBuffer, error)

	// Free releases a buffer. Freeing nil is a safe no-op.
	Free(DeviceBuffer)

	// Upload copies host floats into a device buffer.
	Upload(dst DeviceBuffer, src []float32) error

	// Download copies a device buffer back into host floats.
	Download(src DeviceBuffer, dst []float32) error

	// Synchronize blocks until all issued device work has completed.
	Synchronize() error

	Kernels
}

// DeviceProvider is the host integration point for device sharing. A host
// application (e.g., a gogpu window) implements DeviceProvider and passes
// it to a GPU backend so posevis reuses the shared GPU device instead of
// creating its own.
//
// DeviceProvider is an alias for gpucontext.DeviceProvider, keeping posevis
// compatible with the gpucontext ecosystem.
type DeviceProvider = gpucontext.DeviceProvider

// ProviderAware is an optional interface for devices that can adopt a
// shared GPU device from an external provider.
type ProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	deviceMu sync.RWMutex
	device   Device
)

// RegisterDevice registers a rendering device, replacing the previous one.
// The device's Init method is called during registration; if it fails, the
// device is not registered and the error is returned.
//
// Typical usage via blank import in backend packages:
//
//	func init() {
//	    posevis.RegisterDevice(gpu.NewDevice())
//	}
func RegisterDevice(d Device) error {
	if d == nil {
		return errors.New("posevis: device must not be nil")
	}
	if err := d.Init(); err != nil {
		return err
	}
	propagateLogger(d, Logger())
	deviceMu.Lock()
	old := device
	device = d
	deviceMu.Unlock()
	if old != nil {
		old.Close()
	}
	Logger().Info("posevis: device registered", "device", d.Name())
	return nil
}

// ActiveDevice returns the registered device, falling back to the software
// device when none has been registered.
func ActiveDevice() Device {
	deviceMu.RLock()
	d := device
	deviceMu.RUnlock()
	if d != nil {
		return d
	}
	deviceMu.Lock()
	defer deviceMu.Unlock()
	if device == nil {
		device = NewSoftwareDevice()
	}
	return device
}

// SetDeviceProvider passes a shared-device provider to the active device.
// If the device does not support device sharing, this is a no-op.
func SetDeviceProvider(provider any) error {
	d := ActiveDevice()
	if pa, ok := d.(ProviderAware); ok {
		return pa.SetDeviceProvider(provider)
	}
	return nil
}
