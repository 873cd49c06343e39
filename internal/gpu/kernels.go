//go:build !nogpu

package gpu

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/posevis"
	"github.com/gogpu/posevis/internal/native"
)

// DrawPose runs the keypoints overlay shader: one invocation per output
// pixel, looping over people and limbs in the shader.
func (d *Device) DrawPose(frame posevis.DeviceBuffer, model posevis.PoseModel, people int,
	outputSize image.Point, pose posevis.DeviceBuffer, decorate, blend bool, alpha float32) error {

	fb, err := d.own(frame)
	if err != nil {
		return err
	}
	if fb.floats != 3*outputSize.X*outputSize.Y {
		return fmt.Errorf("wgpu: frame buffer %d floats, want %d for %v",
			fb.floats, 3*outputSize.X*outputSize.Y, outputSize)
	}
	topo, err := posevis.TopologyFor(model)
	if err != nil {
		return err
	}
	parts := topo.Parts()

	var poseHandle hal.Buffer
	var poseBytes uint64
	if pose != nil {
		pb, err := d.own(pose)
		if err != nil {
			return err
		}
		if people > 0 && people*parts*3 > pb.floats {
			return fmt.Errorf("wgpu: pose buffer %d floats too small for %d people",
				pb.floats, people)
		}
		poseHandle = pb.buf
		poseBytes = uint64(pb.floats) * 4
	} else if people > 0 {
		return fmt.Errorf("wgpu: %d people with no pose buffer", people)
	}

	stroke := float32(outputSize.X+outputSize.Y) / 400
	if stroke < 1 {
		stroke = 1
	}
	flags := uint32(0)
	if blend {
		flags |= poseFlagBlend
	}
	if decorate {
		flags |= poseFlagDecorate
	}
	eyeA, eyeB := eyeChannels(model)
	params := poseParams{
		OutW: uint32(outputSize.X), OutH: uint32(outputSize.Y),
		People: uint32(people), Parts: uint32(parts),
		Alpha: alpha, Stroke: stroke,
		Flags: flags, PairCount: uint32(topo.Pairs()),
		EyeA: eyeA, EyeB: eyeB,
	}
	limbs := make([]uint32, len(topo.PartPairs))
	for i, p := range topo.PartPairs {
		limbs[i] = uint32(p)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return errNotReady
	}

	// The shader binds a pose buffer even when there is nobody to draw
	// (clear-only dispatch); substitute a transient placeholder then.
	var scratch hal.Buffer
	if poseHandle == nil {
		scratch, err = d.transient("posevis_pose_empty",
			gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst, floatsToBytes([]float32{0}))
		if err != nil {
			return err
		}
		defer d.device.DestroyBuffer(scratch)
		poseHandle = scratch
		poseBytes = 4
	}

	paramsBuf, err := d.transient("posevis_pose_params",
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst,
		structToBytes(unsafe.Pointer(&params), unsafe.Sizeof(params))) //nolint:gosec // safe struct access
	if err != nil {
		return err
	}
	defer d.device.DestroyBuffer(paramsBuf)

	limbsBuf, err := d.transient("posevis_limbs",
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst, uintsToBytes(limbs))
	if err != nil {
		return err
	}
	defer d.device.DestroyBuffer(limbsBuf)

	entries := []gputypes.BindGroupEntry{
		{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramsBuf.NativeHandle(), Offset: 0, Size: uint64(unsafe.Sizeof(params))}},
		{Binding: 1, Resource: gputypes.BufferBinding{Buffer: poseHandle.NativeHandle(), Offset: 0, Size: poseBytes}},
		{Binding: 2, Resource: gputypes.BufferBinding{Buffer: limbsBuf.NativeHandle(), Offset: 0, Size: uint64(len(limbs)) * 4}},
		{Binding: 3, Resource: gputypes.BufferBinding{Buffer: fb.buf.NativeHandle(), Offset: 0, Size: uint64(fb.floats) * 4}},
	}
	return d.dispatchPass(&d.pose, "posevis_pose", entries, outputSize)
}

// DrawHeatMapChannel colorizes one heatmap channel over the frame.
func (d *Device) DrawHeatMapChannel(frame posevis.DeviceBuffer, model posevis.PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, channel int, alpha float32) error {

	topo, err := posevis.TopologyFor(model)
	if err != nil {
		return err
	}
	if channel < 0 || channel >= topo.TotalChannels() {
		return fmt.Errorf("wgpu: heatmap channel %d out of range", channel)
	}
	return d.dispatchMap(&d.heatMap, "posevis_heatmap", frame, topo,
		outputSize, heatMaps, heatMapSize, scale, alpha, []uint32{uint32(channel)})
}

// DrawHeatMaps draws the montage over all body part channels.
func (d *Device) DrawHeatMaps(frame posevis.DeviceBuffer, model posevis.PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, alpha float32) error {

	topo, err := posevis.TopologyFor(model)
	if err != nil {
		return err
	}
	channels := make([]uint32, topo.Parts())
	for i := range channels {
		channels[i] = uint32(i)
	}
	return d.dispatchMap(&d.heatGrid, "posevis_heatmap_grid", frame, topo,
		outputSize, heatMaps, heatMapSize, scale, alpha, channels)
}

// DrawAffinityChannel draws one affinity field pair (X at channel, Y at
// channel+1).
func (d *Device) DrawAffinityChannel(frame posevis.DeviceBuffer, model posevis.PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, channel int, alpha float32) error {

	topo, err := posevis.TopologyFor(model)
	if err != nil {
		return err
	}
	if channel < 0 || channel+1 >= topo.TotalChannels() {
		return fmt.Errorf("wgpu: affinity channel %d out of range", channel)
	}
	return d.dispatchMap(&d.paf, "posevis_affinity", frame, topo,
		outputSize, heatMaps, heatMapSize, scale, alpha, []uint32{uint32(channel)})
}

// DrawAffinityFields draws the montage over all affinity pairs.
func (d *Device) DrawAffinityFields(frame posevis.DeviceBuffer, model posevis.PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, alpha float32) error {

	topo, err := posevis.TopologyFor(model)
	if err != nil {
		return err
	}
	channels := make([]uint32, 0, topo.Pairs())
	for i := 0; i+1 < len(topo.ChannelPairs); i += 2 {
		channels = append(channels, uint32(topo.ChannelPairs[i]))
	}
	return d.dispatchMap(&d.pafGrid, "posevis_affinity_grid", frame, topo,
		outputSize, heatMaps, heatMapSize, scale, alpha, channels)
}

// dispatchMap uploads the heatmaps and channel list into transient buffers
// and runs one compute pass of the given pipeline over the frame.
func (d *Device) dispatchMap(pl *native.Pipeline, label string,
	frame posevis.DeviceBuffer, topo *posevis.Topology,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, alpha float32, channels []uint32) error {

	fb, err := d.own(frame)
	if err != nil {
		return err
	}
	if fb.floats != 3*outputSize.X*outputSize.Y {
		return fmt.Errorf("wgpu: frame buffer %d floats, want %d for %v",
			fb.floats, 3*outputSize.X*outputSize.Y, outputSize)
	}
	if scale <= 0 {
		return fmt.Errorf("wgpu: %w: %v", posevis.ErrInvalidScale, scale)
	}
	want := topo.TotalChannels() * heatMapSize.X * heatMapSize.Y
	if len(heatMaps) != want {
		return fmt.Errorf("wgpu: heatmaps %d floats, want %d", len(heatMaps), want)
	}
	if len(channels) == 0 {
		return fmt.Errorf("wgpu: empty channel list")
	}

	params := mapParams{
		OutW: uint32(outputSize.X), OutH: uint32(outputSize.Y),
		MapW: uint32(heatMapSize.X), MapH: uint32(heatMapSize.Y),
		Scale: scale, Alpha: alpha,
		Count: uint32(len(channels)),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return errNotReady
	}

	paramsBuf, err := d.transient(label+"_params",
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst,
		structToBytes(unsafe.Pointer(&params), unsafe.Sizeof(params))) //nolint:gosec // safe struct access
	if err != nil {
		return err
	}
	defer d.device.DestroyBuffer(paramsBuf)

	mapsBuf, err := d.transient(label+"_maps",
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst, floatsToBytes(heatMaps))
	if err != nil {
		return err
	}
	defer d.device.DestroyBuffer(mapsBuf)

	channelsBuf, err := d.transient(label+"_channels",
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst, uintsToBytes(channels))
	if err != nil {
		return err
	}
	defer d.device.DestroyBuffer(channelsBuf)

	entries := []gputypes.BindGroupEntry{
		{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramsBuf.NativeHandle(), Offset: 0, Size: uint64(unsafe.Sizeof(params))}},
		{Binding: 1, Resource: gputypes.BufferBinding{Buffer: mapsBuf.NativeHandle(), Offset: 0, Size: uint64(len(heatMaps)) * 4}},
		{Binding: 2, Resource: gputypes.BufferBinding{Buffer: channelsBuf.NativeHandle(), Offset: 0, Size: uint64(len(channels)) * 4}},
		{Binding: 3, Resource: gputypes.BufferBinding{Buffer: fb.buf.NativeHandle(), Offset: 0, Size: uint64(fb.floats) * 4}},
	}
	return d.dispatchPass(pl, label, entries, outputSize)
}

// transient creates a short-lived buffer and fills it through the queue.
// Callers hold d.mu and destroy the buffer when the dispatch completes.
func (d *Device) transient(label string, usage gputypes.BufferUsage, data []byte) (hal.Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: uint64(len(data)), Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", label, err)
	}
	d.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

// dispatchPass binds the entries, runs one 8x8-workgroup compute pass
// covering the output frame and blocks until the fence signals. Callers
// hold d.mu.
func (d *Device) dispatchPass(pl *native.Pipeline, label string,
	entries []gputypes.BindGroupEntry, outputSize image.Point) error {

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: label + "_bind", Layout: pl.BindLayout, Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create bind group: %w", err)
	}
	defer d.device.DestroyBindGroup(bg)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	pass.SetPipeline(pl.Compute)
	pass.SetBindGroup(0, bg, nil)
	w, h := uint32(outputSize.X), uint32(outputSize.Y) //nolint:gosec // dimensions always fit uint32
	pass.Dispatch((w+7)/8, (h+7)/8, 1)
	pass.End()
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	return d.submitAndWait(cmdBuf)
}

// eyeChannels returns the part indices drawn as eyes by the decoration
// pass, or noEye markers for models without eye parts.
func eyeChannels(model posevis.PoseModel) (uint32, uint32) {
	if model == posevis.COCO18 {
		return 14, 15
	}
	return noEye, noEye
}
