// Package posevis renders pose-estimation output onto a shared frame buffer.
//
// # Overview
//
// posevis draws exactly one selectable visualization layer per frame for a
// detected skeleton: the keypoints overlay, a single heatmap channel, the
// heatmap montage, a single part-affinity-field channel, or the affinity
// montage. The layer is identified by a flat render-target index and resolved
// to a semantic name derived from the model's topology.
//
// # Quick Start
//
//	r, err := posevis.NewPoseRenderer(posevis.Config{
//	    Model:              posevis.COCO18,
//	    OutputSize:         image.Pt(656, 368),
//	    HeatMapSize:        image.Pt(82, 46),
//	    Source:             extractor,
//	    AlphaKeypoint:      0.6,
//	    AlphaHeatMap:       0.7,
//	    BlendOriginalFrame: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := r.InitializeOnThread(); err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Teardown()
//
//	sel, name := r.Render(frame, keypoints, scale)
//
// # Devices
//
// Rendering runs on a Device. The software device is always available and is
// the default. GPU rendering via gogpu/wgpu is enabled with a blank import:
//
//	import _ "github.com/gogpu/posevis/gpu" // enables GPU kernels
//
// If GPU initialization fails, the software device stays active.
//
// # Concurrency
//
// A single render goroutine owns a PoseRenderer and executes Render calls
// sequentially. The render target may be changed from any goroutine at any
// time; each Render call takes one consistent snapshot. The blend and
// decoration flags follow a single-writer/multi-reader convention: one
// controller goroutine mutates them between frames.
package posevis
