//go:build !nogpu

// Package gpu implements the wgpu compute device for posevis.
//
// Each drawing primitive runs as one compute pass over the output frame
// (8x8 workgroups), reading the keypoints or heatmap input from storage
// buffers and blending into the planar RGB frame buffer in place. Work is
// submitted with a fence and waited on before the call returns, so the
// device appears synchronous to the dispatcher.
//
// The device either creates its own Vulkan instance or adopts a shared
// hal device from an external provider via SetDeviceProvider.
package gpu
