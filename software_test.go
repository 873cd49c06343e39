package posevis

import (
	"image"
	"testing"
)

func TestSoftwareDeviceBuffers(t *testing.T) {
	dev := NewSoftwareDevice()
	buf, err := dev.AllocFloats("test", 8)
	if err != nil {
		t.Fatalf("AllocFloats: %v", err)
	}
	if buf.Floats() != 8 {
		t.Errorf("Floats() = %d, want 8", buf.Floats())
	}

	src := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	if err := dev.Upload(buf, src); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	dst := make([]float32, 8)
	if err := dev.Download(buf, dst); err != nil {
		t.Fatalf("Download: %v", err)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("element %d = %v, want %v", i, dst[i], src[i])
		}
	}

	if err := dev.Upload(buf, make([]float32, 9)); err == nil {
		t.Error("oversized upload accepted")
	}
	if _, err := dev.AllocFloats("empty", 0); err == nil {
		t.Error("zero-size allocation accepted")
	}
	if err := dev.Upload(nil, src); err == nil {
		t.Error("nil buffer accepted")
	}
	dev.Free(nil) // no-op
}

// drawSetup allocates a frame buffer on the software device and returns a
// download helper.
func drawSetup(t *testing.T, dev *SoftwareDevice, size image.Point) (DeviceBuffer, func() []float32) {
	t.Helper()
	frame, err := dev.AllocFloats("frame", 3*size.X*size.Y)
	if err != nil {
		t.Fatal(err)
	}
	return frame, func() []float32 {
		out := make([]float32, 3*size.X*size.Y)
		if err := dev.Download(frame, out); err != nil {
			t.Fatal(err)
		}
		return out
	}
}

func maxOf(vals []float32) float32 {
	m := float32(0)
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

func TestDrawPoseClearsWithoutBlend(t *testing.T) {
	dev := NewSoftwareDevice()
	size := image.Pt(16, 16)
	frame, download := drawSetup(t, dev, size)

	fill := make([]float32, 3*size.X*size.Y)
	for i := range fill {
		fill[i] = 0.5
	}
	if err := dev.Upload(frame, fill); err != nil {
		t.Fatal(err)
	}
	if err := dev.DrawPose(frame, COCO18, 0, size, nil, false, false, 0.6); err != nil {
		t.Fatalf("DrawPose: %v", err)
	}
	if got := maxOf(download()); got != 0 {
		t.Errorf("max after clear = %v, want 0", got)
	}
}

func TestDrawPoseDrawsSkeleton(t *testing.T) {
	dev := NewSoftwareDevice()
	size := image.Pt(32, 32)
	frame, download := drawSetup(t, dev, size)

	kp := testKeypoints(1, 18)
	pose, err := dev.AllocFloats("pose", len(kp.Data))
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Upload(pose, kp.Data); err != nil {
		t.Fatal(err)
	}
	if err := dev.DrawPose(frame, COCO18, 1, size, pose, false, false, 1); err != nil {
		t.Fatalf("DrawPose: %v", err)
	}
	if maxOf(download()) == 0 {
		t.Error("skeleton left the frame black")
	}
}

func TestDrawPoseLowConfidenceSkipped(t *testing.T) {
	dev := NewSoftwareDevice()
	size := image.Pt(32, 32)
	frame, download := drawSetup(t, dev, size)

	kp := testKeypoints(1, 18)
	for j := 0; j < 18; j++ {
		kp.Data[j*3+2] = 0.01 // below the render threshold
	}
	pose, _ := dev.AllocFloats("pose", len(kp.Data))
	if err := dev.Upload(pose, kp.Data); err != nil {
		t.Fatal(err)
	}
	if err := dev.DrawPose(frame, COCO18, 1, size, pose, true, false, 1); err != nil {
		t.Fatalf("DrawPose: %v", err)
	}
	if maxOf(download()) != 0 {
		t.Error("joints below the confidence threshold were drawn")
	}
}

func TestDrawHeatMapChannel(t *testing.T) {
	dev := NewSoftwareDevice()
	size := image.Pt(16, 16)
	mapSize := image.Pt(8, 8)
	frame, download := drawSetup(t, dev, size)

	topo, _ := TopologyFor(COCO18)
	hm := make([]float32, topo.TotalChannels()*mapSize.X*mapSize.Y)
	hm[4*mapSize.X+4] = 1 // channel 0, texel (4, 4)

	if err := dev.DrawHeatMapChannel(frame, COCO18, size, hm, mapSize, 2, 0, 1); err != nil {
		t.Fatalf("DrawHeatMapChannel: %v", err)
	}
	out := download()
	plane := size.X * size.Y
	// Texel (4, 4) lands at output pixel (8, 8) under scale 2.
	idx := 8*size.X + 8
	if out[idx] == 0 && out[plane+idx] == 0 && out[2*plane+idx] == 0 {
		t.Error("hot texel did not color the scaled output pixel")
	}

	if err := dev.DrawHeatMapChannel(frame, COCO18, size, hm, mapSize, 2, 99, 1); err == nil {
		t.Error("out-of-range channel accepted")
	}
	if err := dev.DrawHeatMapChannel(frame, COCO18, size, hm, mapSize, 0, 0, 1); err == nil {
		t.Error("zero scale accepted")
	}
	if err := dev.DrawHeatMapChannel(frame, COCO18, size, hm[:10], mapSize, 2, 0, 1); err == nil {
		t.Error("undersized heatmap accepted")
	}
}

func TestDrawHeatMapsMontage(t *testing.T) {
	dev := NewSoftwareDevice()
	size := image.Pt(16, 16)
	mapSize := image.Pt(8, 8)
	frame, download := drawSetup(t, dev, size)

	topo, _ := TopologyFor(COCO18)
	hm := make([]float32, topo.TotalChannels()*mapSize.X*mapSize.Y)
	hm[2*mapSize.X*mapSize.Y+3*mapSize.X+3] = 1 // part channel 2

	if err := dev.DrawHeatMaps(frame, COCO18, size, hm, mapSize, 2, 1); err != nil {
		t.Fatalf("DrawHeatMaps: %v", err)
	}
	if maxOf(download()) == 0 {
		t.Error("montage left the frame black")
	}
}

func TestDrawAffinityChannels(t *testing.T) {
	dev := NewSoftwareDevice()
	size := image.Pt(16, 16)
	mapSize := image.Pt(8, 8)
	frame, download := drawSetup(t, dev, size)

	topo, _ := TopologyFor(COCO18)
	hm := make([]float32, topo.TotalChannels()*mapSize.X*mapSize.Y)
	x := topo.ChannelPairs[0]
	hm[x*mapSize.X*mapSize.Y+2*mapSize.X+2] = 1   // X component
	hm[(x+1)*mapSize.X*mapSize.Y+2*mapSize.X+2] = 1 // Y component

	if err := dev.DrawAffinityChannel(frame, COCO18, size, hm, mapSize, 2, x, 1); err != nil {
		t.Fatalf("DrawAffinityChannel: %v", err)
	}
	if maxOf(download()) == 0 {
		t.Error("affinity field left the frame black")
	}

	if err := dev.DrawAffinityChannel(frame, COCO18, size, hm, mapSize, 2, topo.TotalChannels()-1, 1); err == nil {
		t.Error("channel without a Y component accepted")
	}

	if err := dev.DrawAffinityFields(frame, COCO18, size, hm, mapSize, 2, 1); err != nil {
		t.Fatalf("DrawAffinityFields: %v", err)
	}
}

func TestEyeParts(t *testing.T) {
	if got := eyeParts(COCO18); len(got) != 2 || got[0] != 14 || got[1] != 15 {
		t.Errorf("eyeParts(COCO18) = %v, want [14 15]", got)
	}
	if got := eyeParts(MPI15); got != nil {
		t.Errorf("eyeParts(MPI15) = %v, want nil", got)
	}
}
