package posevis

import "testing"

// countingDevice wraps the software device and counts boundary crossings.
type countingDevice struct {
	*SoftwareDevice
	uploads   int
	downloads int
	syncs     int
}

func newCountingDevice() *countingDevice {
	return &countingDevice{SoftwareDevice: NewSoftwareDevice()}
}

func (d *countingDevice) Upload(dst DeviceBuffer, src []float32) error {
	d.uploads++
	return d.SoftwareDevice.Upload(dst, src)
}

func (d *countingDevice) Download(src DeviceBuffer, dst []float32) error {
	d.downloads++
	return d.SoftwareDevice.Download(src, dst)
}

func (d *countingDevice) Synchronize() error {
	d.syncs++
	return d.SoftwareDevice.Synchronize()
}

func TestFrameChainSingleMember(t *testing.T) {
	dev := newCountingDevice()
	chain := NewFrameChain(dev, 12)
	defer chain.Close()
	link := chain.Join()

	if !link.FirstInChain() {
		t.Error("sole member must be first in chain")
	}
	if !link.LastInChain() {
		t.Error("sole member must be last in chain")
	}

	host := make([]float32, 12)
	host[0] = 0.5
	if _, err := link.copyIn(host); err != nil {
		t.Fatalf("copyIn: %v", err)
	}
	if dev.uploads != 1 {
		t.Errorf("uploads = %d, want 1", dev.uploads)
	}
	if err := link.copyOut(host); err != nil {
		t.Fatalf("copyOut: %v", err)
	}
	if dev.downloads != 1 {
		t.Errorf("downloads = %d, want 1", dev.downloads)
	}
	if host[0] != 0.5 {
		t.Errorf("frame element = %v, want 0.5", host[0])
	}

	// The chain resets itself after the frame completes.
	if !link.FirstInChain() {
		t.Error("chain did not reset after completed frame")
	}
}

func TestFrameChainTwoMembers(t *testing.T) {
	dev := newCountingDevice()
	chain := NewFrameChain(dev, 12)
	defer chain.Close()
	first := chain.Join()
	second := chain.Join()

	host := make([]float32, 12)
	if _, err := first.copyIn(host); err != nil {
		t.Fatalf("first copyIn: %v", err)
	}
	if first.LastInChain() {
		t.Error("first toucher of a two-member chain must not be last")
	}
	if second.FirstInChain() {
		t.Error("second toucher must not see an untouched frame")
	}

	// The sibling's copy-in is a no-op: the frame is already resident.
	if _, err := second.copyIn(host); err != nil {
		t.Fatalf("second copyIn: %v", err)
	}
	if dev.uploads != 1 {
		t.Errorf("uploads = %d, want 1 (copy-in must happen once per frame)", dev.uploads)
	}

	if err := first.copyOut(host); err != nil {
		t.Fatalf("first copyOut: %v", err)
	}
	if dev.downloads != 0 {
		t.Error("download before the last toucher")
	}
	if err := second.copyOut(host); err != nil {
		t.Fatalf("second copyOut: %v", err)
	}
	if dev.downloads != 1 {
		t.Errorf("downloads = %d, want 1", dev.downloads)
	}
	if dev.syncs != 1 {
		t.Errorf("syncs = %d, want 1", dev.syncs)
	}
}

func TestFrameChainUntouchedFramePassesThrough(t *testing.T) {
	dev := newCountingDevice()
	chain := NewFrameChain(dev, 12)
	defer chain.Close()
	link := chain.Join()

	host := make([]float32, 12)
	host[3] = 0.25
	// No copy-in this frame: nothing was drawn.
	if err := link.copyOut(host); err != nil {
		t.Fatalf("copyOut: %v", err)
	}
	if dev.downloads != 0 {
		t.Error("untouched frame must not be downloaded")
	}
	if host[3] != 0.25 {
		t.Error("untouched frame was modified")
	}
}

func TestFrameChainSizeMismatch(t *testing.T) {
	chain := NewFrameChain(NewSoftwareDevice(), 12)
	defer chain.Close()
	link := chain.Join()
	if _, err := link.copyIn(make([]float32, 9)); err == nil {
		t.Error("mismatched frame size accepted")
	}
}

func TestFrameChainBeginFrameResets(t *testing.T) {
	dev := newCountingDevice()
	chain := NewFrameChain(dev, 12)
	defer chain.Close()
	link := chain.Join()

	host := make([]float32, 12)
	if _, err := link.copyIn(host); err != nil {
		t.Fatalf("copyIn: %v", err)
	}
	// Fault mid-frame: controller discards the partial frame.
	chain.BeginFrame()
	if !link.FirstInChain() {
		t.Error("BeginFrame did not reset the first-toucher state")
	}
	if _, err := link.copyIn(host); err != nil {
		t.Fatalf("copyIn after reset: %v", err)
	}
	if dev.uploads != 2 {
		t.Errorf("uploads = %d, want 2 after reset", dev.uploads)
	}
}

func TestFrameChainCloseIdempotent(t *testing.T) {
	chain := NewFrameChain(NewSoftwareDevice(), 12)
	link := chain.Join()
	if _, err := link.copyIn(make([]float32, 12)); err != nil {
		t.Fatalf("copyIn: %v", err)
	}
	chain.Close()
	chain.Close()
}
