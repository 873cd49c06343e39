//go:build !nogpu

package gpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/posevis"
	"github.com/gogpu/posevis/internal/native"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// fenceTimeout bounds every fence wait; a stuck driver fails the frame
// instead of hanging the render goroutine.
const fenceTimeout = 5 * time.Second

// errNotReady wraps the package-level sentinel so callers can match it
// with errors.Is.
var errNotReady = fmt.Errorf("wgpu: %w", posevis.ErrDeviceNotReady)

// buffer is a device-resident float32 buffer.
type buffer struct {
	label  string
	buf    hal.Buffer
	floats int
}

func (b *buffer) Floats() int { return b.floats }

// Device is the wgpu compute device. It satisfies the posevis Device and
// Kernels interfaces; registration happens in the gpu subpackage.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	// One compute pipeline per drawing primitive.
	pose     native.Pipeline
	heatMap  native.Pipeline
	heatGrid native.Pipeline
	paf      native.Pipeline
	pafGrid  native.Pipeline

	ready          bool
	externalDevice bool
}

// New creates an uninitialized wgpu device. Init opens the GPU.
func New() *Device { return &Device{} }

// Name returns "wgpu".
func (d *Device) Name() string { return "wgpu" }

// Init opens a Vulkan adapter and builds the compute pipelines. On any
// failure the device stays unusable and the error is returned, leaving
// the software device active.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		return nil
	}
	if err := d.openGPU(); err != nil {
		return err
	}
	if err := d.createPipelines(); err != nil {
		d.destroyPipelines()
		d.device.Destroy()
		d.device = nil
		d.queue = nil
		if d.instance != nil {
			d.instance.Destroy()
			d.instance = nil
		}
		return fmt.Errorf("create pipelines: %w", err)
	}
	d.ready = true
	return nil
}

// Close releases pipelines and, when the device owns them, the hal device
// and instance. Shared resources from a provider are left alone.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyPipelines()
	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	d.ready = false
	d.externalDevice = false
}

// SetDeviceProvider switches the device to a shared hal device from an
// external provider (e.g., a gogpu window). The provider must expose
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func (d *Device) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.destroyPipelines()
	if !d.externalDevice && d.device != nil {
		d.device.Destroy()
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}

	d.device = device
	d.queue = queue
	d.externalDevice = true

	if err := d.createPipelines(); err != nil {
		d.ready = false
		return fmt.Errorf("wgpu: create pipelines with shared device: %w", err)
	}
	d.ready = true
	logger().Info("wgpu: switched to shared GPU device")
	return nil
}

// AllocFloats allocates a storage buffer of n float32 elements.
func (d *Device) AllocFloats(label string, n int) (posevis.DeviceBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return nil, errNotReady
	}
	if n <= 0 {
		return nil, fmt.Errorf("wgpu: invalid buffer size %d", n)
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: uint64(n) * 4,
		Usage: gputypes.BufferUsageStorage |
			gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", label, err)
	}
	return &buffer{label: label, buf: buf, floats: n}, nil
}

// Free destroys a buffer. Freeing nil or a foreign handle is a no-op.
func (d *Device) Free(b posevis.DeviceBuffer) {
	gb, ok := b.(*buffer)
	if !ok || gb == nil || gb.buf == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device != nil {
		d.device.DestroyBuffer(gb.buf)
	}
	gb.buf = nil
}

// Upload copies host floats into a device buffer through the queue.
func (d *Device) Upload(dst posevis.DeviceBuffer, src []float32) error {
	gb, err := d.own(dst)
	if err != nil {
		return err
	}
	if len(src) > gb.floats {
		return fmt.Errorf("wgpu: upload of %d floats exceeds %q capacity %d",
			len(src), gb.label, gb.floats)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return errNotReady
	}
	d.queue.WriteBuffer(gb.buf, 0, floatsToBytes(src))
	return nil
}

// Download copies a device buffer back to host floats through a MapRead
// staging buffer. The copy is fenced, so all prior kernel work on the
// buffer is visible.
func (d *Device) Download(src posevis.DeviceBuffer, dst []float32) error {
	gb, err := d.own(src)
	if err != nil {
		return err
	}
	n := len(dst)
	if n > gb.floats {
		n = gb.floats
	}
	size := uint64(n) * 4

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return errNotReady
	}

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "posevis_staging", Size: size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "posevis_readback",
	})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("posevis_readback"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(gb.buf, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return err
	}

	raw := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, raw); err != nil {
		return fmt.Errorf("wgpu: readback: %w", err)
	}
	bytesToFloats(raw, dst[:n])
	return nil
}

// Synchronize is a no-op: every kernel dispatch and download is already
// fenced before it returns.
func (d *Device) Synchronize() error { return nil }

// submitAndWait submits one command buffer and blocks on its fence.
// Callers hold d.mu.
func (d *Device) submitAndWait(cmdBuf hal.CommandBuffer) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !ok {
		return fmt.Errorf("wgpu: wait for GPU: ok=%v err=%w", ok, err)
	}
	return nil
}

func (d *Device) own(b posevis.DeviceBuffer) (*buffer, error) {
	gb, ok := b.(*buffer)
	if !ok || gb == nil || gb.buf == nil {
		return nil, fmt.Errorf("wgpu: foreign or released buffer")
	}
	return gb, nil
}

func (d *Device) openGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	d.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		d.instance = nil
		return fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		d.instance = nil
		return fmt.Errorf("open device: %w", err)
	}
	d.device = openDev.Device
	d.queue = openDev.Queue
	logger().Info("wgpu: device opened", "adapter", selected.Info.Name)
	return nil
}
