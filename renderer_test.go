package posevis

import (
	"image"
	"testing"
)

// recordDevice reuses the software device's host memory management and
// records kernel invocations instead of drawing.
type recordDevice struct {
	*countingDevice
	kernels  []string
	channels []int
	alphas   []float32
	people   []int
}

func newRecordDevice() *recordDevice {
	return &recordDevice{countingDevice: newCountingDevice()}
}

func (d *recordDevice) DrawPose(frame DeviceBuffer, model PoseModel, people int,
	outputSize image.Point, pose DeviceBuffer, decorate, blend bool, alpha float32) error {
	d.kernels = append(d.kernels, "pose")
	d.people = append(d.people, people)
	d.alphas = append(d.alphas, alpha)
	return nil
}

func (d *recordDevice) DrawHeatMapChannel(frame DeviceBuffer, model PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, channel int, alpha float32) error {
	d.kernels = append(d.kernels, "heatmap")
	d.channels = append(d.channels, channel)
	d.alphas = append(d.alphas, alpha)
	return nil
}

func (d *recordDevice) DrawHeatMaps(frame DeviceBuffer, model PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, alpha float32) error {
	d.kernels = append(d.kernels, "heatmaps")
	d.alphas = append(d.alphas, alpha)
	return nil
}

func (d *recordDevice) DrawAffinityChannel(frame DeviceBuffer, model PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, channel int, alpha float32) error {
	d.kernels = append(d.kernels, "affinity")
	d.channels = append(d.channels, channel)
	d.alphas = append(d.alphas, alpha)
	return nil
}

func (d *recordDevice) DrawAffinityFields(frame DeviceBuffer, model PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, alpha float32) error {
	d.kernels = append(d.kernels, "affinities")
	d.alphas = append(d.alphas, alpha)
	return nil
}

type staticSource struct{ data []float32 }

func (s staticSource) HeatMaps() []float32 { return s.data }

var (
	testOutputSize  = image.Pt(32, 24)
	testHeatMapSize = image.Pt(16, 12)
)

func testSource(t *testing.T, model PoseModel) staticSource {
	t.Helper()
	topo, err := TopologyFor(model)
	if err != nil {
		t.Fatal(err)
	}
	return staticSource{
		data: make([]float32, topo.TotalChannels()*testHeatMapSize.X*testHeatMapSize.Y),
	}
}

func testRenderer(t *testing.T, dev Device, model PoseModel, blend bool) *PoseRenderer {
	t.Helper()
	r, err := NewPoseRenderer(Config{
		Model:              model,
		OutputSize:         testOutputSize,
		HeatMapSize:        testHeatMapSize,
		Source:             testSource(t, model),
		BlendOriginalFrame: blend,
		AlphaKeypoint:      0.6,
		AlphaHeatMap:       0.7,
		Device:             dev,
	})
	if err != nil {
		t.Fatalf("NewPoseRenderer: %v", err)
	}
	t.Cleanup(r.Teardown)
	return r
}

func testKeypoints(people, parts int) Keypoints {
	data := make([]float32, people*parts*3)
	for i := 0; i < people; i++ {
		for j := 0; j < parts; j++ {
			base := (i*parts + j) * 3
			data[base] = float32(4 + j)
			data[base+1] = float32(4 + i)
			data[base+2] = 0.9
		}
	}
	return Keypoints{People: people, Data: data}
}

func TestNewPoseRendererValidation(t *testing.T) {
	base := Config{
		Model:       COCO18,
		OutputSize:  testOutputSize,
		HeatMapSize: testHeatMapSize,
		Device:      NewSoftwareDevice(),
	}

	bad := base
	bad.OutputSize = image.Pt(0, 24)
	if _, err := NewPoseRenderer(bad); err == nil {
		t.Error("zero output width accepted")
	}

	bad = base
	bad.HeatMapSize = image.Pt(16, -1)
	if _, err := NewPoseRenderer(bad); err == nil {
		t.Error("negative heatmap height accepted")
	}

	bad = base
	bad.Model = PoseModel(200)
	if _, err := NewPoseRenderer(bad); err == nil {
		t.Error("unknown model accepted")
	}
}

func TestTargets(t *testing.T) {
	cases := []struct {
		model PoseModel
		want  int
	}{
		{COCO18, 39},
		{MPI15, 33},
		{MPI15Fast, 33},
	}
	for _, c := range cases {
		r := testRenderer(t, NewSoftwareDevice(), c.model, true)
		if got := r.Targets(); got != c.want {
			t.Errorf("%v targets = %d, want %d", c.model, got, c.want)
		}
	}
}

func TestSetRenderTargetWraps(t *testing.T) {
	r := testRenderer(t, NewSoftwareDevice(), COCO18, true)
	r.SetRenderTarget(39)
	if got := r.RenderTarget(); got != 0 {
		t.Errorf("target after Set(39) = %d, want 0", got)
	}
	r.SetRenderTarget(-1)
	if got := r.RenderTarget(); got != 38 {
		t.Errorf("target after Set(-1) = %d, want 38", got)
	}
}

func TestCycleRenderTarget(t *testing.T) {
	r := testRenderer(t, NewSoftwareDevice(), COCO18, true)
	r.SetRenderTarget(38)
	r.CycleRenderTarget(1)
	if got := r.RenderTarget(); got != 0 {
		t.Errorf("cycle forward from 38 = %d, want 0", got)
	}
	r.CycleRenderTarget(-1)
	if got := r.RenderTarget(); got != 38 {
		t.Errorf("cycle backward from 0 = %d, want 38", got)
	}
	r.CycleRenderTarget(40)
	if got := r.RenderTarget(); got != 0 {
		t.Errorf("cycle by 40 from 38 = %d, want 0", got)
	}
}

func TestRenderPoseOverlay(t *testing.T) {
	dev := newRecordDevice()
	r := testRenderer(t, dev, COCO18, true)
	if err := r.InitializeOnThread(); err != nil {
		t.Fatalf("InitializeOnThread: %v", err)
	}

	out := NewFrameBuffer(testOutputSize.X, testOutputSize.Y)
	sel, name := r.Render(out, testKeypoints(2, 18), 2)
	if sel != 0 || name != "" {
		t.Errorf("Render = (%d, %q), want (0, \"\")", sel, name)
	}
	if len(dev.kernels) != 1 || dev.kernels[0] != "pose" {
		t.Fatalf("kernels = %v, want [pose]", dev.kernels)
	}
	if dev.people[0] != 2 {
		t.Errorf("people = %d, want 2", dev.people[0])
	}
	if dev.alphas[0] != 0.6 {
		t.Errorf("alpha = %v, want 0.6", dev.alphas[0])
	}
	// Frame copy-in plus keypoint upload.
	if dev.uploads != 2 {
		t.Errorf("uploads = %d, want 2", dev.uploads)
	}
}

func TestRenderNothingToDrawPassesThrough(t *testing.T) {
	dev := newRecordDevice()
	r := testRenderer(t, dev, COCO18, true)
	if err := r.InitializeOnThread(); err != nil {
		t.Fatal(err)
	}

	out := NewFrameBuffer(testOutputSize.X, testOutputSize.Y)
	out.Data[0] = 0.5
	sel, name := r.Render(out, Keypoints{}, 2)
	if sel != 0 || name != "" {
		t.Errorf("Render = (%d, %q), want (0, \"\")", sel, name)
	}
	if len(dev.kernels) != 0 {
		t.Errorf("kernels = %v, want none", dev.kernels)
	}
	if dev.uploads != 0 || dev.downloads != 0 {
		t.Errorf("uploads/downloads = %d/%d, want 0/0", dev.uploads, dev.downloads)
	}
	if out.Data[0] != 0.5 {
		t.Error("pass-through frame was modified")
	}
}

func TestRenderEmptyOutput(t *testing.T) {
	dev := newRecordDevice()
	r := testRenderer(t, dev, COCO18, true)
	sel, name := r.Render(&FrameBuffer{}, Keypoints{}, 2)
	if sel != -1 || name != "" {
		t.Errorf("Render = (%d, %q), want (-1, \"\")", sel, name)
	}
	if len(dev.kernels) != 0 || dev.uploads != 0 {
		t.Error("empty output must not reach the device")
	}
}

func TestRenderInvalidScale(t *testing.T) {
	dev := newRecordDevice()
	r := testRenderer(t, dev, COCO18, true)
	r.SetRenderTarget(1)

	out := NewFrameBuffer(testOutputSize.X, testOutputSize.Y)
	for _, scale := range []float32{0, -1} {
		sel, name := r.Render(out, Keypoints{}, scale)
		if sel != -1 || name != "" {
			t.Errorf("scale %v: Render = (%d, %q), want (-1, \"\")", scale, sel, name)
		}
	}
	if len(dev.kernels) != 0 {
		t.Errorf("kernels = %v, want none", dev.kernels)
	}
}

func TestRenderNilSource(t *testing.T) {
	r, err := NewPoseRenderer(Config{
		Model:       COCO18,
		OutputSize:  testOutputSize,
		HeatMapSize: testHeatMapSize,
		Device:      newRecordDevice(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Teardown()
	r.SetRenderTarget(1)

	out := NewFrameBuffer(testOutputSize.X, testOutputSize.Y)
	sel, name := r.Render(out, Keypoints{}, 2)
	if sel != -1 || name != "" {
		t.Errorf("Render = (%d, %q), want (-1, \"\")", sel, name)
	}
}

func TestRenderHeatMapChannels(t *testing.T) {
	dev := newRecordDevice()
	r := testRenderer(t, dev, COCO18, true)
	names, _ := PartNameTable(COCO18)
	out := NewFrameBuffer(testOutputSize.X, testOutputSize.Y)

	for sel := 1; sel <= 19; sel++ {
		r.SetRenderTarget(sel)
		got, name := r.Render(out, Keypoints{}, 2)
		if got != sel {
			t.Fatalf("Render selection = %d, want %d", got, sel)
		}
		if want := names[sel-1]; name != want {
			t.Errorf("selection %d name = %q, want %q", sel, name, want)
		}
	}
	for i, ch := range dev.channels {
		if ch != i {
			t.Errorf("dispatch %d drew channel %d, want %d", i, ch, i)
		}
	}
}

func TestRenderMontages(t *testing.T) {
	dev := newRecordDevice()
	r := testRenderer(t, dev, COCO18, true)
	out := NewFrameBuffer(testOutputSize.X, testOutputSize.Y)

	r.SetRenderTarget(20)
	if _, name := r.Render(out, Keypoints{}, 2); name != "Heatmaps" {
		t.Errorf("selection 20 name = %q, want \"Heatmaps\"", name)
	}
	r.SetRenderTarget(21)
	if _, name := r.Render(out, Keypoints{}, 2); name != "PAFs (Part Affinity Fields)" {
		t.Errorf("selection 21 name = %q, want PAFs montage", name)
	}
	if len(dev.kernels) != 2 || dev.kernels[0] != "heatmaps" || dev.kernels[1] != "affinities" {
		t.Errorf("kernels = %v, want [heatmaps affinities]", dev.kernels)
	}
}

func TestRenderAffinityChannels(t *testing.T) {
	dev := newRecordDevice()
	r := testRenderer(t, dev, COCO18, true)
	out := NewFrameBuffer(testOutputSize.X, testOutputSize.Y)

	cases := []struct {
		sel     int
		channel int
		name    string
	}{
		{22, 31, "Neck->RShoulder"},
		{23, 39, "Neck->LShoulder"},
		{24, 33, "RShoulder->RElbow"},
		{38, 55, "LEye->LEar"},
	}
	for _, c := range cases {
		r.SetRenderTarget(c.sel)
		sel, name := r.Render(out, Keypoints{}, 2)
		if sel != c.sel {
			t.Fatalf("Render selection = %d, want %d", sel, c.sel)
		}
		if name != c.name {
			t.Errorf("selection %d name = %q, want %q", c.sel, name, c.name)
		}
	}
	wantChannels := []int{31, 39, 33, 55}
	for i, ch := range dev.channels {
		if ch != wantChannels[i] {
			t.Errorf("dispatch %d drew channel %d, want %d", i, ch, wantChannels[i])
		}
	}
}

func TestRenderAlphaWithoutBlend(t *testing.T) {
	dev := newRecordDevice()
	r := testRenderer(t, dev, COCO18, false)
	r.SetRenderTarget(1)
	out := NewFrameBuffer(testOutputSize.X, testOutputSize.Y)
	if sel, _ := r.Render(out, Keypoints{}, 2); sel != 1 {
		t.Fatal("render failed")
	}
	// Without frame blending, the heatmap is drawn fully opaque.
	if dev.alphas[0] != 1 {
		t.Errorf("alpha = %v, want 1", dev.alphas[0])
	}
}

func TestRenderRejectsBadKeypoints(t *testing.T) {
	dev := newRecordDevice()
	r := testRenderer(t, dev, COCO18, true)
	if err := r.InitializeOnThread(); err != nil {
		t.Fatal(err)
	}
	out := NewFrameBuffer(testOutputSize.X, testOutputSize.Y)

	// Shape mismatch: data length disagrees with the people count.
	kp := Keypoints{People: 2, Data: make([]float32, 18*3)}
	if sel, name := r.Render(out, kp, 2); sel != -1 || name != "" {
		t.Errorf("Render = (%d, %q), want (-1, \"\")", sel, name)
	}

	// Overflow: more people than the device pose buffer can hold.
	over := testKeypoints(MaxPeople+1, 18)
	if sel, _ := r.Render(out, over, 2); sel != -1 {
		t.Error("keypoint overflow accepted")
	}

	if len(dev.kernels) != 0 || dev.uploads != 0 {
		t.Error("rejected keypoints must not reach the device")
	}
}

func TestRenderWithoutInitialize(t *testing.T) {
	dev := newRecordDevice()
	r := testRenderer(t, dev, COCO18, true)
	out := NewFrameBuffer(testOutputSize.X, testOutputSize.Y)
	if sel, _ := r.Render(out, testKeypoints(1, 18), 2); sel != -1 {
		t.Error("render with unallocated pose buffer accepted")
	}
}

func TestTeardownIdempotent(t *testing.T) {
	r := testRenderer(t, NewSoftwareDevice(), COCO18, true)
	if err := r.InitializeOnThread(); err != nil {
		t.Fatal(err)
	}
	r.Teardown()
	r.Teardown()

	// Teardown before InitializeOnThread is a no-op too.
	r2 := testRenderer(t, NewSoftwareDevice(), MPI15, true)
	r2.Teardown()
}

func TestSharedChainRenderers(t *testing.T) {
	dev := newRecordDevice()
	chain := NewFrameChain(dev, 3*testOutputSize.X*testOutputSize.Y)
	defer chain.Close()

	newMember := func(sel int) *PoseRenderer {
		r, err := NewPoseRenderer(Config{
			Model:         COCO18,
			OutputSize:    testOutputSize,
			HeatMapSize:   testHeatMapSize,
			Source:        testSource(t, COCO18),
			AlphaKeypoint: 0.6,
			AlphaHeatMap:  0.7,
			InitialTarget: sel,
			Device:        dev,
			Chain:         chain,
		})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(r.Teardown)
		return r
	}
	first := newMember(1)
	second := newMember(2)

	out := NewFrameBuffer(testOutputSize.X, testOutputSize.Y)
	if sel, _ := first.Render(out, Keypoints{}, 2); sel != 1 {
		t.Fatal("first member render failed")
	}
	if dev.downloads != 0 {
		t.Error("download before the chain completed")
	}
	if sel, _ := second.Render(out, Keypoints{}, 2); sel != 2 {
		t.Fatal("second member render failed")
	}
	if dev.uploads != 1 {
		t.Errorf("uploads = %d, want 1 (one copy-in per frame)", dev.uploads)
	}
	if dev.downloads != 1 {
		t.Errorf("downloads = %d, want 1 (one copy-out per frame)", dev.downloads)
	}
}
