package posevis

import (
	"fmt"
	"image"
	"strings"
	"sync/atomic"
)

// Render target names that do not come from the part name table.
const (
	heatMapsName = "Heatmaps"
	pafsName     = "PAFs (Part Affinity Fields)"
)

// Keypoints holds detected skeletons: People x parts x 3 floats, with
// (x, y, confidence) per joint in output coordinates.
type Keypoints struct {
	People int
	Data   []float32
}

// Empty reports whether there are no keypoints to draw.
func (k Keypoints) Empty() bool { return k.People <= 0 || len(k.Data) == 0 }

// Config carries the constructor inputs for a PoseRenderer.
type Config struct {
	// Model selects the skeletal topology.
	Model PoseModel

	// OutputSize is the output frame geometry in pixels.
	OutputSize image.Point

	// HeatMapSize is the net output geometry in pixels.
	HeatMapSize image.Point

	// Source is the read-only handle to the upstream heatmap producer.
	// Required for heatmap and affinity targets; the keypoints overlay
	// works without it.
	Source HeatMapSource

	// BlendOriginalFrame selects blending over the incoming frame rather
	// than a black background.
	BlendOriginalFrame bool

	// AlphaKeypoint is the keypoints overlay opacity.
	AlphaKeypoint float32

	// AlphaHeatMap is the heatmap overlay opacity when blending.
	AlphaHeatMap float32

	// InitialTarget is the initial render-target selection.
	InitialTarget int

	// Device overrides the active device. Nil selects ActiveDevice().
	Device Device

	// Chain is the shared frame chain when several renderers write to the
	// same output frame. Nil gives the renderer a private one-member
	// chain.
	Chain *FrameChain
}

// PoseRenderer draws one selectable visualization layer per frame.
//
// A single render goroutine owns the renderer and calls Render
// sequentially; calls are never interleaved on one instance. The render
// target is an atomic value writable from any goroutine. The blend and
// decoration flags are plain fields mutated by one controller goroutine
// between frames (single-writer/multi-reader convention).
type PoseRenderer struct {
	model       PoseModel
	topo        *Topology
	outputSize  image.Point
	heatMapSize image.Point
	source      HeatMapSource

	// names maps every channel index the topology references to its
	// semantic name. Immutable after construction.
	names   map[int]string
	targets int

	target atomic.Int32

	blendFrame bool
	decorate   bool

	alphaKeypoint float32
	alphaHeatMap  float32

	dev      Device
	chain    *FrameChain
	ownChain bool
	link     *ChainLink

	// pose is the exclusively owned device keypoint buffer, allocated on
	// the render thread by InitializeOnThread and freed by Teardown.
	pose DeviceBuffer
}

// NewPoseRenderer builds a renderer for the given configuration. The part
// name table is resolved once here; construction fails if the topology
// references a part without a name or the computed render-target count
// disagrees with the resolved table.
func NewPoseRenderer(cfg Config) (*PoseRenderer, error) {
	topo, err := TopologyFor(cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.OutputSize.X <= 0 || cfg.OutputSize.Y <= 0 {
		return nil, fmt.Errorf("posevis: invalid output size %v", cfg.OutputSize)
	}
	if cfg.HeatMapSize.X <= 0 || cfg.HeatMapSize.Y <= 0 {
		return nil, fmt.Errorf("posevis: invalid heatmap size %v", cfg.HeatMapSize)
	}

	names, err := buildPartNames(topo)
	if err != nil {
		Logger().Warn("posevis: part name resolution failed",
			"model", cfg.Model, "err", err)
		return nil, err
	}

	// The target count is computed independently of the name table; the
	// two must agree or selection resolution would hit unmapped indices.
	targets := topo.Parts() + 1 + topo.Pairs() + 3
	if len(names) != topo.Parts()+1+2*topo.Pairs() {
		return nil, fmt.Errorf("%w: %d names for %d targets (model %v)",
			ErrTargetCount, len(names), targets, cfg.Model)
	}

	dev := cfg.Device
	if dev == nil {
		dev = ActiveDevice()
	}
	chain := cfg.Chain
	own := false
	if chain == nil {
		chain = NewFrameChain(dev, 3*cfg.OutputSize.X*cfg.OutputSize.Y)
		own = true
	}

	r := &PoseRenderer{
		model:         cfg.Model,
		topo:          topo,
		outputSize:    cfg.OutputSize,
		heatMapSize:   cfg.HeatMapSize,
		source:        cfg.Source,
		names:         names,
		targets:       targets,
		blendFrame:    cfg.BlendOriginalFrame,
		alphaKeypoint: cfg.AlphaKeypoint,
		alphaHeatMap:  cfg.AlphaHeatMap,
		dev:           dev,
		chain:         chain,
		ownChain:      own,
		link:          chain.Join(),
	}
	r.target.Store(int32(wrapTarget(cfg.InitialTarget, targets)))
	return r, nil
}

// Targets returns the number of render targets for this renderer's model:
// parts + background + montages + whole pose + affinity pairs.
func (r *PoseRenderer) Targets() int { return r.targets }

// RenderTarget returns the currently selected render target.
func (r *PoseRenderer) RenderTarget() int { return int(r.target.Load()) }

// SetRenderTarget selects the layer to draw. Out-of-range values wrap
// modulo Targets(). Safe to call from any goroutine; an in-flight Render
// keeps the snapshot it took.
func (r *PoseRenderer) SetRenderTarget(target int) {
	r.target.Store(int32(wrapTarget(target, r.targets)))
}

// CycleRenderTarget moves the selection by delta, wrapping around the
// target range. Negative deltas cycle backwards.
func (r *PoseRenderer) CycleRenderTarget(delta int) {
	for {
		old := r.target.Load()
		next := int32(wrapTarget(int(old)+delta, r.targets))
		if r.target.CompareAndSwap(old, next) {
			return
		}
	}
}

func wrapTarget(target, n int) int {
	target %= n
	if target < 0 {
		target += n
	}
	return target
}

// BlendOriginalFrame reports whether overlays blend with the incoming
// frame instead of a black background.
func (r *PoseRenderer) BlendOriginalFrame() bool { return r.blendFrame }

// SetBlendOriginalFrame switches between blending with the incoming frame
// and drawing on a black background. Controller-thread only, between
// frames.
func (r *PoseRenderer) SetBlendOriginalFrame(blend bool) { r.blendFrame = blend }

// ShowDecoration reports whether the overlay decoration is enabled.
func (r *PoseRenderer) ShowDecoration() bool { return r.decorate }

// SetShowDecoration toggles the stylized eye decoration on the keypoints
// overlay. Controller-thread only, between frames.
func (r *PoseRenderer) SetShowDecoration(show bool) { r.decorate = show }

// Chain returns the frame chain this renderer participates in.
func (r *PoseRenderer) Chain() *FrameChain { return r.chain }

// InitializeOnThread allocates the device pose buffer. It must run on the
// goroutine that will issue Render calls (device-context affinity) and be
// called exactly once before the first render; a second call without an
// intervening Teardown leaks the prior device allocation.
//
// A device fault here is non-recoverable for this renderer; the caller
// must abort startup.
func (r *PoseRenderer) InitializeOnThread() error {
	Logger().Debug("posevis: starting initialization on thread", "model", r.model)
	if r.pose != nil {
		Logger().Warn("posevis: InitializeOnThread called twice without Teardown",
			"model", r.model)
	}
	n := MaxPeople * r.topo.Parts() * 3
	buf, err := r.dev.AllocFloats("posevis_pose", n)
	if err != nil {
		err = fmt.Errorf("allocate pose buffer (%d floats): %w", n, err)
		Logger().Warn("posevis: initialization failed", "model", r.model, "err", err)
		return err
	}
	r.pose = buf
	Logger().Debug("posevis: finished initialization on thread",
		"model", r.model, "floats", n)
	return nil
}

// Teardown releases the device pose buffer and, when the renderer owns its
// chain, the chain's device frame. Idempotent: repeated calls and calls
// without a prior InitializeOnThread are safe no-ops.
func (r *PoseRenderer) Teardown() {
	if r.pose != nil {
		r.dev.Free(r.pose)
		r.pose = nil
	}
	if r.ownChain {
		r.chain.Close()
	}
}

// Render draws the currently selected layer into output and returns the
// selection it used plus its resolved semantic name ("" for the keypoints
// overlay). scale maps net coordinates to output coordinates and must be
// positive for any non-overlay target.
//
// On a validation, lookup or device fault the frame is rejected: the call
// logs the fault and returns (-1, ""). No partial device commands are
// assumed committed; the caller treats the frame as failed and skips or
// retries next frame (after FrameChain.BeginFrame when sharing a chain).
func (r *PoseRenderer) Render(output *FrameBuffer, keypoints Keypoints, scale float32) (int, string) {
	sel, name, err := r.render(output, keypoints, scale)
	if err != nil {
		Logger().Warn("posevis: render failed",
			"model", r.model, "target", sel, "scale", scale, "err", err)
		return -1, ""
	}
	return sel, name
}

func (r *PoseRenderer) render(output *FrameBuffer, keypoints Keypoints, scale float32) (int, string, error) {
	if output.Empty() {
		return -1, "", ErrEmptyOutput
	}

	// One consistent snapshot per call; later writes affect the next frame.
	sel := int(r.target.Load())
	blend := r.blendFrame
	parts := r.topo.Parts()

	// Size-guard the keypoints before any device copy.
	if !keypoints.Empty() {
		want := keypoints.People * parts * 3
		if len(keypoints.Data) != want {
			return sel, "", fmt.Errorf("%w: %d floats for %d people",
				ErrKeypointShape, len(keypoints.Data), keypoints.People)
		}
		if want > MaxPeople*parts*3 {
			return sel, "", fmt.Errorf("%w: %d people (max %d)",
				ErrKeypointOverflow, keypoints.People, MaxPeople)
		}
	}

	name := ""
	// With no people, the whole-pose target and frame blending there is
	// nothing to draw; the frame passes through untouched.
	if keypoints.People > 0 || sel != 0 || !blend {
		frame, err := r.link.copyIn(output.Data)
		if err != nil {
			return sel, "", err
		}
		name, err = r.dispatch(frame, sel, keypoints, scale, blend)
		if err != nil {
			return sel, "", err
		}
	}

	if err := r.link.copyOut(output.Data); err != nil {
		return sel, "", err
	}
	return sel, name, nil
}

// dispatch resolves the selection to a semantic name and invokes the
// matching drawing primitive.
func (r *PoseRenderer) dispatch(frame DeviceBuffer, sel int, keypoints Keypoints, scale float32, blend bool) (string, error) {
	parts := r.topo.Parts()

	if sel == 0 {
		people := keypoints.People
		if keypoints.Empty() {
			people = 0
		} else {
			if r.pose == nil {
				return "", ErrNotInitialized
			}
			if err := r.dev.Upload(r.pose, keypoints.Data); err != nil {
				return "", fmt.Errorf("pose copy: %w", err)
			}
		}
		err := r.dev.DrawPose(frame, r.model, people, r.outputSize,
			r.pose, r.decorate, blend, r.alphaKeypoint)
		if err != nil {
			return "", fmt.Errorf("draw pose: %w", err)
		}
		return "", nil
	}

	if scale <= 0 {
		return "", fmt.Errorf("%w: %v", ErrInvalidScale, scale)
	}
	heatMaps, err := r.heatMaps()
	if err != nil {
		return "", err
	}
	alpha := r.alphaHeatMap
	if !blend {
		alpha = 1
	}

	switch {
	case sel <= parts+1:
		name, ok := r.names[sel-1]
		if !ok {
			return "", fmt.Errorf("%w: channel %d", ErrUnknownPart, sel-1)
		}
		err := r.dev.DrawHeatMapChannel(frame, r.model, r.outputSize,
			heatMaps, r.heatMapSize, scale, sel-1, alpha)
		if err != nil {
			return "", fmt.Errorf("draw heatmap %q: %w", name, err)
		}
		return name, nil

	case sel == parts+2:
		err := r.dev.DrawHeatMaps(frame, r.model, r.outputSize,
			heatMaps, r.heatMapSize, scale, alpha)
		if err != nil {
			return "", fmt.Errorf("draw heatmap montage: %w", err)
		}
		return heatMapsName, nil

	case sel == parts+3:
		err := r.dev.DrawAffinityFields(frame, r.model, r.outputSize,
			heatMaps, r.heatMapSize, scale, alpha)
		if err != nil {
			return "", fmt.Errorf("draw affinity montage: %w", err)
		}
		return pafsName, nil

	default:
		// Two consecutive selections map onto one affinity pair; both
		// resolve to the pair's X channel and its stripped limb name.
		idx := (sel - (parts + 1) - 3) * 2
		if idx < 0 || idx >= len(r.topo.ChannelPairs) {
			return "", fmt.Errorf("%w: selection %d", ErrUnknownPart, sel)
		}
		channel := r.topo.ChannelPairs[idx]
		name, ok := r.names[channel]
		if !ok {
			return "", fmt.Errorf("%w: channel %d", ErrUnknownPart, channel)
		}
		if cut := strings.Index(name, "("); cut >= 0 {
			name = name[:cut]
		}
		err := r.dev.DrawAffinityChannel(frame, r.model, r.outputSize,
			heatMaps, r.heatMapSize, scale, channel, alpha)
		if err != nil {
			return "", fmt.Errorf("draw affinity %q: %w", name, err)
		}
		return name, nil
	}
}

// heatMaps fetches and size-checks the net output from the upstream
// producer.
func (r *PoseRenderer) heatMaps() ([]float32, error) {
	if r.source == nil {
		return nil, ErrNilSource
	}
	hm := r.source.HeatMaps()
	want := r.topo.TotalChannels() * r.heatMapSize.X * r.heatMapSize.Y
	if len(hm) != want {
		return nil, fmt.Errorf("posevis: heatmap size %d does not match %d channels of %v",
			len(hm), r.topo.TotalChannels(), r.heatMapSize)
	}
	return hm, nil
}
