package posevis

import (
	"fmt"
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// renderThreshold is the minimum joint confidence drawn by the overlay.
const renderThreshold = 0.05

// hostBuffer is the software device's float buffer: plain host memory.
type hostBuffer struct {
	label string
	data  []float32
}

func (b *hostBuffer) Floats() int { return len(b.data) }

// SoftwareDevice is the CPU reference device. It is always available and
// serves as the fallback when no GPU device is registered. Buffers live in
// host memory, kernels run synchronously, and Synchronize is a no-op.
type SoftwareDevice struct{}

// NewSoftwareDevice creates the CPU reference device.
func NewSoftwareDevice() *SoftwareDevice { return &SoftwareDevice{} }

// Name returns "software".
func (d *SoftwareDevice) Name() string { return "software" }

// Init is a no-op; the software device needs no resources.
func (d *SoftwareDevice) Init() error { return nil }

// Close is a no-op.
func (d *SoftwareDevice) Close() {}

// AllocFloats allocates a host-memory buffer of n floats.
func (d *SoftwareDevice) AllocFloats(label string, n int) (DeviceBuffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: invalid buffer size %d", ErrDeviceNotReady, n)
	}
	return &hostBuffer{label: label, data: make([]float32, n)}, nil
}

// Free releases a buffer. The software device leaves release to the GC.
func (d *SoftwareDevice) Free(DeviceBuffer) {}

// Upload copies host floats into the buffer.
func (d *SoftwareDevice) Upload(dst DeviceBuffer, src []float32) error {
	b, err := d.host(dst)
	if err != nil {
		return err
	}
	if len(src) > len(b.data) {
		return fmt.Errorf("posevis: upload of %d floats exceeds %q capacity %d",
			len(src), b.label, len(b.data))
	}
	copy(b.data, src)
	return nil
}

// Download copies the buffer back into host floats.
func (d *SoftwareDevice) Download(src DeviceBuffer, dst []float32) error {
	b, err := d.host(src)
	if err != nil {
		return err
	}
	copy(dst, b.data)
	return nil
}

// Synchronize is a no-op: software kernels run synchronously.
func (d *SoftwareDevice) Synchronize() error { return nil }

func (d *SoftwareDevice) host(buf DeviceBuffer) (*hostBuffer, error) {
	b, ok := buf.(*hostBuffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: foreign or nil buffer", ErrDeviceNotReady)
	}
	return b, nil
}

// swFrame wraps a planar RGB float buffer for pixel access.
type swFrame struct {
	data []float32
	w, h int
}

func (d *SoftwareDevice) frame(buf DeviceBuffer, size image.Point) (*swFrame, error) {
	b, err := d.host(buf)
	if err != nil {
		return nil, err
	}
	if len(b.data) != 3*size.X*size.Y {
		return nil, fmt.Errorf("posevis: frame buffer %d floats, want %d for %v",
			len(b.data), 3*size.X*size.Y, size)
	}
	return &swFrame{data: b.data, w: size.X, h: size.Y}, nil
}

// blendPixel mixes color c into pixel (x, y) with weight w in [0, 1].
func (f *swFrame) blendPixel(x, y int, c [3]float32, w float32) {
	if x < 0 || y < 0 || x >= f.w || y >= f.h || w <= 0 {
		return
	}
	if w > 1 {
		w = 1
	}
	plane := f.w * f.h
	i := y*f.w + x
	f.data[i] = f.data[i]*(1-w) + c[0]*w
	f.data[plane+i] = f.data[plane+i]*(1-w) + c[1]*w
	f.data[2*plane+i] = f.data[2*plane+i]*(1-w) + c[2]*w
}

func (f *swFrame) clear() {
	for i := range f.data {
		f.data[i] = 0
	}
}

// DrawPose draws limbs and joints for people skeletons. With blend off the
// frame is cleared to black first. decorate draws stylized eyes on models
// that have eye parts.
func (d *SoftwareDevice) DrawPose(frame DeviceBuffer, model PoseModel, people int,
	outputSize image.Point, pose DeviceBuffer, decorate, blend bool, alpha float32) error {

	fb, err := d.frame(frame, outputSize)
	if err != nil {
		return err
	}
	topo, err := TopologyFor(model)
	if err != nil {
		return err
	}
	if !blend {
		fb.clear()
	}
	if people <= 0 {
		return nil
	}
	pb, err := d.host(pose)
	if err != nil {
		return err
	}
	parts := topo.Parts()
	if people*parts*3 > len(pb.data) {
		return fmt.Errorf("%w: %d people", ErrKeypointOverflow, people)
	}

	// Stroke sizes follow the output resolution.
	stroke := float32(outputSize.X+outputSize.Y) / 400
	if stroke < 1 {
		stroke = 1
	}

	for p := 0; p < people; p++ {
		base := p * parts * 3
		for i := 0; i+1 < len(topo.PartPairs); i += 2 {
			a, aOK := jointAt(pb.data, base, topo.PartPairs[i])
			b, bOK := jointAt(pb.data, base, topo.PartPairs[i+1])
			if !aOK || !bOK {
				continue
			}
			drawSegment(fb, a, b, indexColor(i/2, topo.Pairs()), alpha, stroke)
		}
		for j := 0; j < parts; j++ {
			pt, ok := jointAt(pb.data, base, j)
			if !ok {
				continue
			}
			drawDisc(fb, pt, indexColor(j, parts), alpha, stroke*1.5)
		}
		if decorate {
			for _, eye := range eyeParts(model) {
				pt, ok := jointAt(pb.data, base, eye)
				if !ok {
					continue
				}
				drawDisc(fb, pt, [3]float32{1, 1, 1}, 1, stroke*4)
				drawDisc(fb, pt, [3]float32{0, 0, 0}, 1, stroke*1.5)
			}
		}
	}
	return nil
}

// eyeParts returns the part indices decorated as eyes, if the model has any.
func eyeParts(model PoseModel) []int {
	if model == COCO18 {
		return []int{14, 15}
	}
	return nil
}

// jointAt reads joint j of a person and reports whether its confidence
// passes the render threshold.
func jointAt(pose []float32, base, j int) (mgl32.Vec2, bool) {
	x := pose[base+j*3]
	y := pose[base+j*3+1]
	conf := pose[base+j*3+2]
	return mgl32.Vec2{x, y}, conf > renderThreshold
}

// drawSegment paints a thick line between a and b.
func drawSegment(f *swFrame, a, b mgl32.Vec2, c [3]float32, alpha, radius float32) {
	minX := int(math.Floor(float64(min32(a.X(), b.X()) - radius)))
	maxX := int(math.Ceil(float64(max32(a.X(), b.X()) + radius)))
	minY := int(math.Floor(float64(min32(a.Y(), b.Y()) - radius)))
	maxY := int(math.Ceil(float64(max32(a.Y(), b.Y()) + radius)))
	ab := b.Sub(a)
	lenSq := ab.Dot(ab)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			p := mgl32.Vec2{float32(x), float32(y)}
			t := float32(0)
			if lenSq > 0 {
				t = p.Sub(a).Dot(ab) / lenSq
				if t < 0 {
					t = 0
				} else if t > 1 {
					t = 1
				}
			}
			if p.Sub(a.Add(ab.Mul(t))).Len() <= radius {
				f.blendPixel(x, y, c, alpha)
			}
		}
	}
}

// drawDisc paints a filled circle at pt.
func drawDisc(f *swFrame, pt mgl32.Vec2, c [3]float32, alpha, radius float32) {
	minX := int(math.Floor(float64(pt.X() - radius)))
	maxX := int(math.Ceil(float64(pt.X() + radius)))
	minY := int(math.Floor(float64(pt.Y() - radius)))
	maxY := int(math.Ceil(float64(pt.Y() + radius)))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			p := mgl32.Vec2{float32(x), float32(y)}
			if p.Sub(pt).Len() <= radius {
				f.blendPixel(x, y, c, alpha)
			}
		}
	}
}

// DrawHeatMapChannel colorizes one heatmap channel over the frame, scaled
// from net to output coordinates.
func (d *SoftwareDevice) DrawHeatMapChannel(frame DeviceBuffer, model PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, channel int, alpha float32) error {

	fb, topo, err := d.heatMapArgs(frame, model, outputSize, heatMaps, heatMapSize, scale)
	if err != nil {
		return err
	}
	if channel < 0 || channel >= topo.TotalChannels() {
		return fmt.Errorf("%w: channel %d", ErrUnknownPart, channel)
	}
	for y := 0; y < fb.h; y++ {
		for x := 0; x < fb.w; x++ {
			v := sampleChannel(heatMaps, heatMapSize, channel,
				float32(x)/scale, float32(y)/scale)
			if v <= 0 {
				continue
			}
			fb.blendPixel(x, y, heatColor(v), alpha*clamp01(v))
		}
	}
	return nil
}

// DrawHeatMaps draws the montage of all body part channels: each pixel
// takes the strongest part response, tinted by that part's color.
func (d *SoftwareDevice) DrawHeatMaps(frame DeviceBuffer, model PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, alpha float32) error {

	fb, topo, err := d.heatMapArgs(frame, model, outputSize, heatMaps, heatMapSize, scale)
	if err != nil {
		return err
	}
	parts := topo.Parts()
	for y := 0; y < fb.h; y++ {
		for x := 0; x < fb.w; x++ {
			nx, ny := float32(x)/scale, float32(y)/scale
			best, bestCh := float32(0), 0
			for c := 0; c < parts; c++ {
				if v := sampleChannel(heatMaps, heatMapSize, c, nx, ny); v > best {
					best, bestCh = v, c
				}
			}
			if best <= 0 {
				continue
			}
			fb.blendPixel(x, y, indexColor(bestCh, parts), alpha*clamp01(best))
		}
	}
	return nil
}

// DrawAffinityChannel draws one affinity field pair (X at channel, Y at
// channel+1), colored by orientation and weighted by magnitude.
func (d *SoftwareDevice) DrawAffinityChannel(frame DeviceBuffer, model PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, channel int, alpha float32) error {

	fb, topo, err := d.heatMapArgs(frame, model, outputSize, heatMaps, heatMapSize, scale)
	if err != nil {
		return err
	}
	if channel < 0 || channel+1 >= topo.TotalChannels() {
		return fmt.Errorf("%w: affinity channel %d", ErrUnknownPart, channel)
	}
	drawAffinity(fb, heatMaps, heatMapSize, scale, alpha, []int{channel})
	return nil
}

// DrawAffinityFields draws the montage of all affinity pairs; each pixel
// takes the strongest field.
func (d *SoftwareDevice) DrawAffinityFields(frame DeviceBuffer, model PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32, alpha float32) error {

	fb, topo, err := d.heatMapArgs(frame, model, outputSize, heatMaps, heatMapSize, scale)
	if err != nil {
		return err
	}
	xChannels := make([]int, 0, topo.Pairs())
	for i := 0; i+1 < len(topo.ChannelPairs); i += 2 {
		xChannels = append(xChannels, topo.ChannelPairs[i])
	}
	drawAffinity(fb, heatMaps, heatMapSize, scale, alpha, xChannels)
	return nil
}

// drawAffinity colors pixels by the orientation of the strongest field
// among xChannels, weighted by its magnitude.
func drawAffinity(fb *swFrame, heatMaps []float32, heatMapSize image.Point,
	scale, alpha float32, xChannels []int) {

	for y := 0; y < fb.h; y++ {
		for x := 0; x < fb.w; x++ {
			nx, ny := float32(x)/scale, float32(y)/scale
			var best, bestVX, bestVY float32
			for _, c := range xChannels {
				vx := sampleChannel(heatMaps, heatMapSize, c, nx, ny)
				vy := sampleChannel(heatMaps, heatMapSize, c+1, nx, ny)
				m := float32(math.Hypot(float64(vx), float64(vy)))
				if m > best {
					best, bestVX, bestVY = m, vx, vy
				}
			}
			if best <= 0 {
				continue
			}
			hue := float32(math.Atan2(float64(bestVY), float64(bestVX)))
			fb.blendPixel(x, y, hueColor(hue), alpha*clamp01(best))
		}
	}
}

func (d *SoftwareDevice) heatMapArgs(frame DeviceBuffer, model PoseModel,
	outputSize image.Point, heatMaps []float32, heatMapSize image.Point,
	scale float32) (*swFrame, *Topology, error) {

	fb, err := d.frame(frame, outputSize)
	if err != nil {
		return nil, nil, err
	}
	topo, err := TopologyFor(model)
	if err != nil {
		return nil, nil, err
	}
	if scale <= 0 {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidScale, scale)
	}
	want := topo.TotalChannels() * heatMapSize.X * heatMapSize.Y
	if len(heatMaps) != want {
		return nil, nil, fmt.Errorf("posevis: heatmaps %d floats, want %d", len(heatMaps), want)
	}
	return fb, topo, nil
}

// sampleChannel reads a heatmap channel at net coordinates (fx, fy) with
// bilinear interpolation. Out-of-range coordinates sample as zero.
func sampleChannel(hm []float32, size image.Point, channel int, fx, fy float32) float32 {
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)
	v00 := texel(hm, size, channel, x0, y0)
	v10 := texel(hm, size, channel, x0+1, y0)
	v01 := texel(hm, size, channel, x0, y0+1)
	v11 := texel(hm, size, channel, x0+1, y0+1)
	top := v00*(1-tx) + v10*tx
	bot := v01*(1-tx) + v11*tx
	return top*(1-ty) + bot*ty
}

func texel(hm []float32, size image.Point, channel, x, y int) float32 {
	if x < 0 || y < 0 || x >= size.X || y >= size.Y {
		return 0
	}
	return hm[channel*size.X*size.Y+y*size.X+x]
}

// indexColor spreads n indices over the hue wheel, matching limb and
// joint colors across the overlay and the montage.
func indexColor(i, n int) [3]float32 {
	if n <= 0 {
		n = 1
	}
	return hueColor(2 * math.Pi * float32(i) / float32(n))
}

// hueColor converts a hue angle in radians to a saturated RGB color.
func hueColor(hue float32) [3]float32 {
	h := float64(hue) / (2 * math.Pi)
	h -= math.Floor(h)
	h *= 6
	f := float32(h - math.Floor(h))
	switch int(h) % 6 {
	case 0:
		return [3]float32{1, f, 0}
	case 1:
		return [3]float32{1 - f, 1, 0}
	case 2:
		return [3]float32{0, 1, f}
	case 3:
		return [3]float32{0, 1 - f, 1}
	case 4:
		return [3]float32{f, 0, 1}
	default:
		return [3]float32{1, 0, 1 - f}
	}
}

// heatColor maps a heatmap value in [0, 1] onto a cold-to-hot ramp.
func heatColor(v float32) [3]float32 {
	v = clamp01(v)
	switch {
	case v < 0.25:
		return [3]float32{0, v * 4, 1}
	case v < 0.5:
		return [3]float32{0, 1, 1 - (v-0.25)*4}
	case v < 0.75:
		return [3]float32{(v - 0.5) * 4, 1, 0}
	default:
		return [3]float32{1, 1 - (v-0.75)*4, 0}
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
