// Package native holds shared wgpu/hal helpers for the GPU device:
// shader compilation and resource teardown.
package native

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// CompileShaderToSPIRV compiles WGSL source to SPIR-V words. The hal
// Vulkan backend consumes SPIR-V; going through naga here surfaces shader
// errors at pipeline creation instead of deep inside the driver.
func CompileShaderToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// CreateShaderModule creates a hal shader module from SPIR-V words.
func CreateShaderModule(device hal.Device, label string, spirv []uint32) (hal.ShaderModule, error) {
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
}

// Pipeline bundles one compute pipeline with its layouts for teardown.
type Pipeline struct {
	Shader     hal.ShaderModule
	BindLayout hal.BindGroupLayout
	PipeLayout hal.PipelineLayout
	Compute    hal.ComputePipeline
}

// Destroy releases the pipeline's resources in dependency order.
func (p *Pipeline) Destroy(device hal.Device) {
	if device == nil {
		return
	}
	if p.Compute != nil {
		device.DestroyComputePipeline(p.Compute)
		p.Compute = nil
	}
	if p.PipeLayout != nil {
		device.DestroyPipelineLayout(p.PipeLayout)
		p.PipeLayout = nil
	}
	if p.BindLayout != nil {
		device.DestroyBindGroupLayout(p.BindLayout)
		p.BindLayout = nil
	}
	if p.Shader != nil {
		device.DestroyShaderModule(p.Shader)
		p.Shader = nil
	}
}
