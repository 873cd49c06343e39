// Command posevisdemo renders a synthetic pose over a gradient frame and
// writes one PNG per render target group: the keypoints overlay, a single
// heatmap channel, the heatmap montage and the affinity montage.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/gogpu/posevis"

	// Enable GPU kernels when a Vulkan adapter is present.
	_ "github.com/gogpu/posevis/gpu"
)

func main() {
	var (
		width   = flag.Int("width", 512, "output frame width")
		height  = flag.Int("height", 384, "output frame height")
		outDir  = flag.String("out", ".", "output directory")
		verbose = flag.Bool("v", false, "enable log output")
	)
	flag.Parse()

	if *verbose {
		posevis.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	netSize := image.Pt(*width/8, *height/8)
	source := syntheticSource(netSize)

	r, err := posevis.NewPoseRenderer(posevis.Config{
		Model:              posevis.COCO18,
		OutputSize:         image.Pt(*width, *height),
		HeatMapSize:        netSize,
		Source:             source,
		BlendOriginalFrame: true,
		AlphaKeypoint:      0.8,
		AlphaHeatMap:       0.6,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "posevisdemo:", err)
		os.Exit(1)
	}
	defer r.Teardown()

	if err := r.InitializeOnThread(); err != nil {
		fmt.Fprintln(os.Stderr, "posevisdemo:", err)
		os.Exit(1)
	}

	kp := syntheticPose(*width, *height)
	scale := float32(8)

	targets := []struct {
		sel  int
		file string
		pose bool
	}{
		{0, "pose.png", true},
		{2, "heatmap_neck.png", false},
		{20, "heatmaps.png", false},
		{21, "pafs.png", false},
	}
	for _, tgt := range targets {
		frame := gradientFrame(*width, *height)
		r.SetRenderTarget(tgt.sel)
		keypoints := posevis.Keypoints{}
		if tgt.pose {
			keypoints = kp
		}
		sel, name := r.Render(frame, keypoints, scale)
		if sel < 0 {
			fmt.Fprintf(os.Stderr, "posevisdemo: render target %d failed\n", tgt.sel)
			os.Exit(1)
		}
		path := filepath.Join(*outDir, tgt.file)
		if err := writePNG(path, frame.Image()); err != nil {
			fmt.Fprintln(os.Stderr, "posevisdemo:", err)
			os.Exit(1)
		}
		if name == "" {
			name = "(pose overlay)"
		}
		fmt.Printf("target %2d %-30s -> %s\n", sel, name, path)
	}
}

// gradientFrame builds a dim blue-to-black gradient as the "camera" frame.
func gradientFrame(w, h int) *posevis.FrameBuffer {
	f := posevis.NewFrameBuffer(w, h)
	plane := w * h
	for y := 0; y < h; y++ {
		v := 0.3 * float32(y) / float32(h)
		for x := 0; x < w; x++ {
			f.Data[2*plane+y*w+x] = v
		}
	}
	return f
}

// syntheticPose places one upright COCO18 skeleton in the frame center.
func syntheticPose(w, h int) posevis.Keypoints {
	cx, cy := float32(w)/2, float32(h)/2
	u := float32(h) / 8
	joints := [18][2]float32{
		{cx, cy - 2.4*u},       // nose
		{cx, cy - 1.8*u},       // neck
		{cx - u, cy - 1.8*u},   // right shoulder
		{cx - 1.4*u, cy - u},   // right elbow
		{cx - 1.6*u, cy},       // right wrist
		{cx + u, cy - 1.8*u},   // left shoulder
		{cx + 1.4*u, cy - u},   // left elbow
		{cx + 1.6*u, cy},       // left wrist
		{cx - 0.6*u, cy},       // right hip
		{cx - 0.7*u, cy + 1.2*u},
		{cx - 0.7*u, cy + 2.4*u},
		{cx + 0.6*u, cy},       // left hip
		{cx + 0.7*u, cy + 1.2*u},
		{cx + 0.7*u, cy + 2.4*u},
		{cx - 0.25*u, cy - 2.5*u}, // right eye
		{cx + 0.25*u, cy - 2.5*u}, // left eye
		{cx - 0.45*u, cy - 2.4*u}, // right ear
		{cx + 0.45*u, cy - 2.4*u}, // left ear
	}
	data := make([]float32, 18*3)
	for j, pt := range joints {
		data[j*3] = pt[0]
		data[j*3+1] = pt[1]
		data[j*3+2] = 0.9
	}
	return posevis.Keypoints{People: 1, Data: data}
}

type demoSource struct{ data []float32 }

func (s demoSource) HeatMaps() []float32 { return s.data }

// syntheticSource fills each part channel with a Gaussian blob and each
// affinity pair with a unit field so every target has something to show.
func syntheticSource(size image.Point) demoSource {
	topo, err := posevis.TopologyFor(posevis.COCO18)
	if err != nil {
		panic(err)
	}
	plane := size.X * size.Y
	data := make([]float32, topo.TotalChannels()*plane)

	parts := topo.Parts()
	for c := 0; c < parts+1; c++ {
		cx := float64(size.X) * (0.2 + 0.6*float64(c)/float64(parts))
		cy := float64(size.Y) * 0.5
		sigma := float64(size.Y) / 10
		for y := 0; y < size.Y; y++ {
			for x := 0; x < size.X; x++ {
				d2 := (float64(x)-cx)*(float64(x)-cx) + (float64(y)-cy)*(float64(y)-cy)
				data[c*plane+y*size.X+x] = float32(math.Exp(-d2 / (2 * sigma * sigma)))
			}
		}
	}
	for i := 0; i+1 < len(topo.ChannelPairs); i += 2 {
		angle := 2 * math.Pi * float64(i) / float64(len(topo.ChannelPairs))
		vx, vy := float32(math.Cos(angle)), float32(math.Sin(angle))
		xc, yc := topo.ChannelPairs[i], topo.ChannelPairs[i+1]
		for p := 0; p < plane; p++ {
			data[xc*plane+p] = vx * 0.5
			data[yc*plane+p] = vy * 0.5
		}
	}
	return demoSource{data: data}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
