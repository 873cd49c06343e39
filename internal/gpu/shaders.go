package gpu

import _ "embed"

// Embedded WGSL shader sources, one compute shader per drawing primitive.
// Compiled to SPIR-V through naga at pipeline creation.

//go:embed shaders/pose.wgsl
var poseShaderSource string

//go:embed shaders/heatmap.wgsl
var heatMapShaderSource string

//go:embed shaders/heatmap_grid.wgsl
var heatMapGridShaderSource string

//go:embed shaders/affinity.wgsl
var affinityShaderSource string

//go:embed shaders/affinity_grid.wgsl
var affinityGridShaderSource string
