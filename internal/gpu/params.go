package gpu

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// noEye marks an absent eye part index in poseParams.
const noEye = 0xFFFFFFFF

// Pose kernel flags.
const (
	poseFlagBlend    = 1 << 0
	poseFlagDecorate = 1 << 1
)

// poseParams is the uniform block of the pose shader. Field order and
// padding match the WGSL struct; the block is serialized byte-for-byte.
type poseParams struct {
	OutW, OutH    uint32
	People, Parts uint32
	Alpha, Stroke float32
	Flags         uint32
	PairCount     uint32
	EyeA, EyeB    uint32
	_pad0, _pad1  uint32
}

// mapParams is the uniform block shared by the heatmap and affinity
// shaders. Count is the length of the bound channel list.
type mapParams struct {
	OutW, OutH   uint32
	MapW, MapH   uint32
	Scale, Alpha float32
	Count        uint32
	_pad0        uint32
}

func structToBytes(ptr unsafe.Pointer, size uintptr) []byte {
	return unsafe.Slice((*byte)(ptr), size) //nolint:gosec // safe struct serialization
}

// floatsToBytes serializes float32 values as little-endian words, the
// layout GPU buffers expect.
func floatsToBytes(src []float32) []byte {
	out := make([]byte, len(src)*4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// bytesToFloats deserializes little-endian float32 words into dst.
func bytesToFloats(raw []byte, dst []float32) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
}

// uintsToBytes serializes uint32 values as little-endian words.
func uintsToBytes(src []uint32) []byte {
	out := make([]byte, len(src)*4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}
