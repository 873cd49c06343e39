package posevis

import (
	"fmt"
	"sync"
)

// FrameChain coordinates several renderers writing to the same output
// frame. It owns the device-resident copy of the frame and decides which
// renderer performs the host-to-device copy (the first toucher of a frame)
// and which performs the device-to-host copy (the last toucher).
//
// Every renderer participating in a frame joins the chain once and queries
// its ChainLink during Render instead of assuming it is first or last.
// A renderer with no siblings gets a one-member chain and is always both.
//
// The chain resets itself when the last toucher completes, so consecutive
// frames need no explicit bookkeeping. BeginFrame exists for controllers
// that must discard a partially rendered frame after a fault.
type FrameChain struct {
	mu       sync.Mutex
	dev      Device
	frame    DeviceBuffer
	floats   int
	members  int
	touched  int
	copiedIn bool
}

// NewFrameChain creates a chain for frames of frameFloats float32 elements
// on the given device. The device frame buffer is allocated lazily on the
// first copy-in.
func NewFrameChain(dev Device, frameFloats int) *FrameChain {
	return &FrameChain{dev: dev, floats: frameFloats}
}

// Join adds a renderer to the chain and returns its link.
// All members must join before the first frame is rendered.
func (c *FrameChain) Join() *ChainLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members++
	return &ChainLink{chain: c}
}

// BeginFrame discards any per-frame state, making the next toucher the
// first again. Only needed after a mid-frame fault; a completed frame
// resets itself.
func (c *FrameChain) BeginFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched = 0
	c.copiedIn = false
}

// Close releases the device frame buffer. Idempotent.
func (c *FrameChain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame != nil {
		c.dev.Free(c.frame)
		c.frame = nil
	}
}

// ChainLink is one renderer's membership in a FrameChain.
type ChainLink struct {
	chain *FrameChain
}

// FirstInChain reports whether this renderer would be the first toucher of
// the current frame (i.e., no sibling has copied the frame in yet).
func (l *ChainLink) FirstInChain() bool {
	l.chain.mu.Lock()
	defer l.chain.mu.Unlock()
	return !l.chain.copiedIn
}

// LastInChain reports whether this renderer's touch would complete the
// current frame.
func (l *ChainLink) LastInChain() bool {
	l.chain.mu.Lock()
	defer l.chain.mu.Unlock()
	return l.chain.touched+1 >= l.chain.members
}

// copyIn uploads the host frame to the device copy if no sibling has done
// so this frame. Allocates the device frame buffer on first use.
func (l *ChainLink) copyIn(host []float32) (DeviceBuffer, error) {
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(host) != c.floats {
		return nil, fmt.Errorf("posevis: frame size %d does not match chain size %d",
			len(host), c.floats)
	}
	if c.frame == nil {
		buf, err := c.dev.AllocFloats("posevis_frame", c.floats)
		if err != nil {
			return nil, fmt.Errorf("allocate chain frame: %w", err)
		}
		c.frame = buf
	}
	if !c.copiedIn {
		if err := c.dev.Upload(c.frame, host); err != nil {
			return nil, fmt.Errorf("frame copy-in: %w", err)
		}
		c.copiedIn = true
	}
	return c.frame, nil
}

// copyOut records this renderer's touch and, when it is the last of the
// frame, synchronizes the device and downloads the frame into host. The
// chain then resets for the next frame. When no copy-in happened this
// frame (nothing was drawn by any member), the host frame is left as-is.
func (l *ChainLink) copyOut(host []float32) error {
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched++
	if c.touched < c.members {
		return nil
	}
	wrote := c.copiedIn
	c.touched = 0
	c.copiedIn = false
	if !wrote {
		return nil
	}
	if err := c.dev.Synchronize(); err != nil {
		return fmt.Errorf("frame synchronize: %w", err)
	}
	if err := c.dev.Download(c.frame, host); err != nil {
		return fmt.Errorf("frame copy-out: %w", err)
	}
	return nil
}
