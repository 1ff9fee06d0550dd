package pipeline

import (
	"github.com/gekko3d/fluid/fluidrt/rt/core"
	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/gekko3d/fluid/fluidrt/rt/shaders"
)

// Target names.
const (
	TargetBackground    = "background"
	TargetWaterDepth    = "waterDepth"
	TargetBlurX         = "blurX"
	TargetBlurY         = "blurY"
	TargetThickness     = "thickness"
	TargetFluid         = "fluid"
	TargetFoamDepth     = "foamDepth"
	TargetFoamThickness = "foamThickness"
	TargetFoamIntensity = "foamIntensity"
	TargetFoamRadiance  = "foamRadiance"
	TargetDefault       = "default"
)

// Stage names.
const (
	StageBackground     = "background"
	StageCloth          = "cloth"
	StageWaterDepth     = "waterDepth"
	StageBlurX          = "blurX"
	StageBlurY          = "blurY"
	StageWaterThickness = "waterThickness"
	StageWaterComposite = "waterComposite"
	StageFoamDepth      = "foamDepth"
	StageFoamThickness  = "foamThickness"
	StageFoamIntensity  = "foamIntensity"
	StageFoamRadiance   = "foamRadiance"
	StageFinal          = "final"
)

type targetDecl struct {
	name  string
	color bool
	depth bool
}

// Off-screen targets. The default framebuffer comes from the device.
var targetDecls = []targetDecl{
	{name: TargetBackground, color: true},
	{name: TargetWaterDepth, depth: true},
	{name: TargetBlurX, depth: true},
	{name: TargetBlurY, depth: true},
	{name: TargetThickness, color: true},
	{name: TargetFluid, color: true},
	{name: TargetFoamDepth, color: true, depth: true},
	{name: TargetFoamThickness, color: true},
	{name: TargetFoamIntensity, color: true},
	{name: TargetFoamRadiance, color: true},
}

// source names one attachment of a target, bound at the slot given by its
// position in a stage's input list.
type source struct {
	target string
	depth  bool
}

func colorOf(name string) source { return source{target: name} }
func depthOf(name string) source { return source{target: name, depth: true} }

type stageDecl struct {
	name    string
	program gpu.ProgramSource
	target  string
	state   gpu.RasterState
	load    gpu.LoadOp
	kind    gpu.GeometryKind
	inputs  []source
	// geometry picks the draw range for the frame.
	geometry func(b *Buffers, f *frame) gpu.Geometry
	// uniforms adds the stage's own values on top of the frame's shared set.
	uniforms func(p core.Params, u gpu.Uniforms)
}

var (
	depthState    = gpu.RasterState{DepthTest: true, DepthWrite: true}
	spriteState   = gpu.RasterState{DepthTest: true, DepthWrite: true, ProgramPointSize: true}
	additiveState = gpu.RasterState{Blend: gpu.BlendAdditive, ProgramPointSize: true}
)

func quad(*Buffers, *frame) gpu.Geometry { return gpu.Quad() }

func fluidPoints(b *Buffers, f *frame) gpu.Geometry {
	first, count := f.counts.FluidRange()
	return gpu.Points(b.Positions, first, count)
}

func foamPoints(b *Buffers, f *frame) gpu.Geometry {
	return gpu.Points(b.DiffusePositions, 0, f.counts.NumDiffuse)
}

func clothMesh(b *Buffers, f *frame) gpu.Geometry {
	count := f.counts.NumIndices
	if f.counts.NumCloth == 0 {
		count = 0
	}
	return gpu.Triangles(b.Positions, b.Indices, count)
}

// stageDecls lists the passes in their natural reading order. Execution order
// is derived from the inputs each stage declares.
func stageDecls() []stageDecl {
	return []stageDecl{
		{
			name:     StageBackground,
			program:  shaders.Plane,
			target:   TargetBackground,
			kind:     gpu.FullScreenQuad,
			geometry: quad,
		},
		{
			// Drawn over the background, so it keeps what is there.
			name:     StageCloth,
			program:  shaders.Cloth,
			target:   TargetBackground,
			load:     gpu.LoadKeep,
			kind:     gpu.IndexedTriangles,
			geometry: clothMesh,
		},
		{
			name:     StageWaterDepth,
			program:  shaders.Depth,
			target:   TargetWaterDepth,
			state:    spriteState,
			kind:     gpu.PointCloud,
			geometry: fluidPoints,
			uniforms: func(p core.Params, u gpu.Uniforms) {
				u["pointRadius"] = p.Radius
			},
		},
		{
			name:     StageBlurX,
			program:  shaders.Blur,
			target:   TargetBlurX,
			state:    depthState,
			kind:     gpu.FullScreenQuad,
			inputs:   []source{depthOf(TargetWaterDepth)},
			geometry: quad,
			uniforms: func(p core.Params, u gpu.Uniforms) {
				u["blurDir"] = p.BlurDirX()
			},
		},
		{
			name:     StageBlurY,
			program:  shaders.Blur,
			target:   TargetBlurY,
			state:    depthState,
			kind:     gpu.FullScreenQuad,
			inputs:   []source{depthOf(TargetBlurX)},
			geometry: quad,
			uniforms: func(p core.Params, u gpu.Uniforms) {
				u["blurDir"] = p.BlurDirY()
			},
		},
		{
			name:     StageWaterThickness,
			program:  shaders.Thickness,
			target:   TargetThickness,
			state:    additiveState,
			kind:     gpu.PointCloud,
			geometry: fluidPoints,
			uniforms: func(p core.Params, u gpu.Uniforms) {
				u["pointRadius"] = p.ThicknessRadius()
			},
		},
		{
			name:    StageWaterComposite,
			program: shaders.FluidFinal,
			target:  TargetFluid,
			state:   depthState,
			kind:    gpu.FullScreenQuad,
			inputs: []source{
				depthOf(TargetBlurY),
				colorOf(TargetThickness),
				colorOf(TargetBackground),
			},
			geometry: quad,
		},
		{
			name:     StageFoamDepth,
			program:  shaders.FoamDepth,
			target:   TargetFoamDepth,
			state:    spriteState,
			kind:     gpu.PointCloud,
			geometry: foamPoints,
			uniforms: func(p core.Params, u gpu.Uniforms) {
				u["pointRadius"] = p.FoamRadius
			},
		},
		{
			name:     StageFoamThickness,
			program:  shaders.FoamThickness,
			target:   TargetFoamThickness,
			state:    additiveState,
			kind:     gpu.PointCloud,
			inputs:   []source{depthOf(TargetWaterDepth), depthOf(TargetFoamDepth)},
			geometry: foamPoints,
			uniforms: func(p core.Params, u gpu.Uniforms) {
				u["pointRadius"] = p.FoamRadius
			},
		},
		{
			name:     StageFoamIntensity,
			program:  shaders.FoamIntensity,
			target:   TargetFoamIntensity,
			kind:     gpu.FullScreenQuad,
			inputs:   []source{colorOf(TargetFoamThickness)},
			geometry: quad,
		},
		{
			name:    StageFoamRadiance,
			program: shaders.Radiance,
			target:  TargetFoamRadiance,
			kind:    gpu.FullScreenQuad,
			inputs: []source{
				depthOf(TargetFoamDepth),
				depthOf(TargetWaterDepth),
				colorOf(TargetFoamDepth),
				colorOf(TargetFoamIntensity),
			},
			geometry: quad,
		},
		{
			name:    StageFinal,
			program: shaders.Final,
			target:  TargetDefault,
			state:   depthState,
			kind:    gpu.FullScreenQuad,
			inputs: []source{
				colorOf(TargetFluid),
				colorOf(TargetFoamIntensity),
				colorOf(TargetFoamRadiance),
			},
			geometry: quad,
		},
	}
}

// node is the graph view of a stage. A stage that keeps its target's
// contents also consumes it.
func (d stageDecl) node() gpu.Node {
	n := gpu.Node{Name: d.name, Produces: d.target}
	seen := make(map[string]bool)
	for _, in := range d.inputs {
		if !seen[in.target] {
			seen[in.target] = true
			n.Consumes = append(n.Consumes, in.target)
		}
	}
	if d.load == gpu.LoadKeep && !seen[d.target] {
		n.Consumes = append(n.Consumes, d.target)
	}
	return n
}
