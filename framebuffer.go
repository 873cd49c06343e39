package posevis

import (
	"image"

	"golang.org/x/image/draw"
)

// FrameBuffer is the host-side view of an output frame: three planar
// float32 channels (R, G, B) of Width x Height pixels with values in
// [0, 1]. The device-side copy of the frame is owned by the FrameChain the
// renderers share; a FrameBuffer only carries the host storage that chain
// copies in and out of.
type FrameBuffer struct {
	// Data holds 3 x Width x Height floats, channel-major.
	Data []float32

	// Width and Height are the frame dimensions in pixels.
	Width, Height int
}

// NewFrameBuffer allocates a zeroed host frame of the given size.
func NewFrameBuffer(width, height int) *FrameBuffer {
	return &FrameBuffer{
		Data:   make([]float32, 3*width*height),
		Width:  width,
		Height: height,
	}
}

// Empty reports whether the frame has no backing store.
func (f *FrameBuffer) Empty() bool {
	return f == nil || len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}

// Floats returns the number of float32 elements in the frame.
func (f *FrameBuffer) Floats() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

// SetRGB fills the frame with a constant color. Useful for seeding the
// frame with a solid background before the renderer chain runs.
func (f *FrameBuffer) SetRGB(r, g, b float32) {
	if f.Empty() {
		return
	}
	plane := f.Width * f.Height
	for i := 0; i < plane; i++ {
		f.Data[i] = r
		f.Data[plane+i] = g
		f.Data[2*plane+i] = b
	}
}

// Image converts the frame to an 8-bit RGBA image. Values outside [0, 1]
// are clamped.
func (f *FrameBuffer) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	if f.Empty() {
		return img
	}
	plane := f.Width * f.Height
	for i := 0; i < plane; i++ {
		img.Pix[i*4+0] = floatToByte(f.Data[i])
		img.Pix[i*4+1] = floatToByte(f.Data[plane+i])
		img.Pix[i*4+2] = floatToByte(f.Data[2*plane+i])
		img.Pix[i*4+3] = 0xFF
	}
	return img
}

// Scaled converts the frame to an RGBA image of a different size using
// bilinear interpolation. Useful for preview or thumbnail output.
func (f *FrameBuffer) Scaled(width, height int) *image.RGBA {
	src := f.Image()
	if width == f.Width && height == f.Height {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func floatToByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xFF
	default:
		return uint8(v*255 + 0.5)
	}
}
