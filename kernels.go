package posevis

import "image"

// Kernels are the drawing primitives a device must provide. Signatures are
// fixed; the dispatcher treats their pixel-level semantics as opaque.
//
// All kernels draw into frame, a device buffer laid out as three planar
// float32 channels (R, G, B) of outputSize.X x outputSize.Y pixels with
// values in [0, 1]. heatMaps is the host-side net output, laid out as
// TotalChannels(model) planes of heatMapSize.X x heatMapSize.Y floats.
// scale maps net coordinates to output coordinates.
type Kernels interface {
	// DrawPose draws the keypoints overlay for people skeletons stored in
	// pose (people x parts x 3 floats, device-resident). When blend is
	// false the original frame is replaced by a black background. decorate
	// enables the stylized eye overlay on models that have eye parts.
	DrawPose(frame DeviceBuffer, model PoseModel, people int,
		outputSize image.Point, pose DeviceBuffer,
		decorate, blend bool, alpha float32) error

	// DrawHeatMapChannel draws a single heatmap channel (a body part or
	// the background) colorized over the frame.
	DrawHeatMapChannel(frame DeviceBuffer, model PoseModel,
		outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
		scale float32, channel int, alpha float32) error

	// DrawHeatMaps draws the montage of all heatmap channels.
	DrawHeatMaps(frame DeviceBuffer, model PoseModel,
		outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
		scale float32, alpha float32) error

	// DrawAffinityChannel draws one affinity field: the X component at
	// channel, the Y component at channel+1.
	DrawAffinityChannel(frame DeviceBuffer, model PoseModel,
		outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
		scale float32, channel int, alpha float32) error

	// DrawAffinityFields draws the montage of all affinity field pairs.
	DrawAffinityFields(frame DeviceBuffer, model PoseModel,
		outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
		scale float32, alpha float32) error
}
