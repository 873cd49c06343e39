package posevis

// HeatMapSource is a read-only handle to the upstream pose/heatmap
// producer. The renderer reads the current net output from it when a
// heatmap or affinity target is selected.
//
// HeatMaps returns the net output as TotalChannels(model) planes of
// heatMapSize.X x heatMapSize.Y floats. The slice must stay valid for the
// duration of the Render call; the renderer never mutates it.
type HeatMapSource interface {
	HeatMaps() []float32
}
