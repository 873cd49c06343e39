//go:build !nogpu

// Package gpu registers the wgpu compute device for GPU-accelerated
// rendering.
//
// Import this package to run the drawing kernels as wgpu/hal compute
// shaders instead of on the CPU. If GPU initialization fails (no
// Vulkan available, no adapters), registration is skipped and rendering
// falls back to the software device.
//
// Usage:
//
//	import _ "github.com/gogpu/posevis/gpu" // enable GPU kernels
package gpu

import (
	"github.com/gogpu/posevis"
	gpuimpl "github.com/gogpu/posevis/internal/gpu"
)

func init() {
	if err := posevis.RegisterDevice(gpuimpl.New()); err != nil {
		posevis.Logger().Warn("posevis: GPU device not available", "err", err)
	}
}

// SetDeviceProvider configures the active device to use a shared GPU
// device from an external provider (e.g., a gogpu window). This avoids
// creating a separate GPU instance and enables device sharing.
//
// The provider should be a gpucontext.DeviceProvider that also exposes
// its HAL device and queue.
func SetDeviceProvider(provider any) error {
	return posevis.SetDeviceProvider(provider)
}
