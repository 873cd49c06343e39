//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/posevis/internal/native"
)

// All five shaders share the same four-binding layout: a uniform params
// block, a read-only input buffer (pose or heatmaps), a read-only index
// list (limb endpoints or channel list) and the read-write frame.
func (d *Device) bindLayout(label string) (hal.BindGroupLayout, error) {
	return d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: label,
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute,
				Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute,
				Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute,
				Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute,
				Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
}

func (d *Device) buildPipeline(p *native.Pipeline, name, wgsl string) error {
	spirv, err := native.CompileShaderToSPIRV(wgsl)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	shader, err := native.CreateShaderModule(d.device, name, spirv)
	if err != nil {
		return fmt.Errorf("%s: create shader module: %w", name, err)
	}
	p.Shader = shader

	layout, err := d.bindLayout(name + "_bind")
	if err != nil {
		return fmt.Errorf("%s: create bind group layout: %w", name, err)
	}
	p.BindLayout = layout

	pipeLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: name + "_pipe", BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		return fmt.Errorf("%s: create pipeline layout: %w", name, err)
	}
	p.PipeLayout = pipeLayout

	compute, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: name, Layout: pipeLayout,
		Compute: hal.ComputeState{Module: shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("%s: create compute pipeline: %w", name, err)
	}
	p.Compute = compute
	return nil
}

func (d *Device) createPipelines() error {
	builds := []struct {
		p    *native.Pipeline
		name string
		wgsl string
	}{
		{&d.pose, "posevis_pose", poseShaderSource},
		{&d.heatMap, "posevis_heatmap", heatMapShaderSource},
		{&d.heatGrid, "posevis_heatmap_grid", heatMapGridShaderSource},
		{&d.paf, "posevis_affinity", affinityShaderSource},
		{&d.pafGrid, "posevis_affinity_grid", affinityGridShaderSource},
	}
	for _, b := range builds {
		if err := d.buildPipeline(b.p, b.name, b.wgsl); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) destroyPipelines() {
	if d.device == nil {
		return
	}
	d.pose.Destroy(d.device)
	d.heatMap.Destroy(d.device)
	d.heatGrid.Destroy(d.device)
	d.paf.Destroy(d.device)
	d.pafGrid.Destroy(d.device)
}
