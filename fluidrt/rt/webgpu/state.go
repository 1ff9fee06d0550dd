package webgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Sprites and the full-screen quad are six-vertex triangle lists.
	spriteVertices = 6
	// One particle record is a vec4<f32>.
	recordBytes = 16
	indexBytes  = 4
)

// vertexLayouts binds the particle buffer per instance for sprites and per
// vertex for the cloth mesh. The full-screen quad has no vertex buffer.
func vertexLayouts(kind gpu.GeometryKind) []wgpu.VertexBufferLayout {
	step := wgpu.VertexStepModeVertex
	switch kind {
	case gpu.PointCloud:
		step = wgpu.VertexStepModeInstance
	case gpu.IndexedTriangles:
	default:
		return nil
	}
	return []wgpu.VertexBufferLayout{{
		ArrayStride: recordBytes,
		StepMode:    step,
		Attributes:  []wgpu.VertexAttribute{{Format: wgpu.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 0}},
	}}
}

func colorTarget(format wgpu.TextureFormat, blend gpu.BlendMode) wgpu.ColorTargetState {
	ct := wgpu.ColorTargetState{Format: format, WriteMask: wgpu.ColorWriteMaskAll}
	if blend == gpu.BlendAdditive {
		add := wgpu.BlendComponent{
			Operation: wgpu.BlendOperationAdd,
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOne,
		}
		ct.Blend = &wgpu.BlendState{Color: add, Alpha: add}
	}
	return ct
}

// depthStencil is the depth state of a target with a depth attachment. With
// the test off every fragment passes, and DepthWrite alone decides whether
// the attachment changes.
func depthStencil(s gpu.RasterState) *wgpu.DepthStencilState {
	compare := wgpu.CompareFunctionAlways
	if s.DepthTest {
		compare = wgpu.CompareFunctionLess
	}
	keep := wgpu.StencilFaceState{
		Compare:     wgpu.CompareFunctionAlways,
		FailOp:      wgpu.StencilOperationKeep,
		DepthFailOp: wgpu.StencilOperationKeep,
		PassOp:      wgpu.StencilOperationKeep,
	}
	return &wgpu.DepthStencilState{
		Format:            wgpu.TextureFormatDepth32Float,
		DepthWriteEnabled: s.DepthWrite,
		DepthCompare:      compare,
		StencilFront:      keep,
		StencilBack:       keep,
	}
}

func loadOp(op gpu.LoadOp) wgpu.LoadOp {
	if op == gpu.LoadKeep {
		return wgpu.LoadOpLoad
	}
	return wgpu.LoadOpClear
}

func clearColor(c mgl32.Vec4) wgpu.Color {
	return wgpu.Color{R: float64(c.X()), G: float64(c.Y()), B: float64(c.Z()), A: float64(c.W())}
}

func sampleType(k TextureKind) wgpu.TextureSampleType {
	if k == TextureDepth {
		return wgpu.TextureSampleTypeDepth
	}
	return wgpu.TextureSampleTypeUnfilterableFloat
}

// checkBinding rejects a texture whose format does not match the binding's
// declared WGSL type.
func checkBinding(tb TextureBinding, f gpu.Format) error {
	if (tb.Kind == TextureDepth) == f.IsDepth() {
		return nil
	}
	want := "color"
	if tb.Kind == TextureDepth {
		want = "depth"
	}
	return fmt.Errorf("%w: %s expects a %s texture, got %s", gpu.ErrInvalidInput, tb.Name, want, f)
}

// drawCall holds the arguments of one Draw or DrawIndexed.
type drawCall struct {
	indexed       bool
	count         uint32
	instances     uint32
	firstInstance uint32
}

// planDraw maps a pass geometry to draw arguments. Sprites are instanced,
// so First becomes the first instance and the cloth prefix is skipped
// without rebinding the buffer. vertexSize and indexSize are the byte sizes
// of the bound buffers. A zero count is a valid empty draw.
func planDraw(g gpu.Geometry, vertexSize, indexSize int) (drawCall, error) {
	switch g.Kind {
	case gpu.FullScreenQuad:
		return drawCall{count: spriteVertices, instances: 1}, nil
	case gpu.PointCloud:
		if g.Count == 0 {
			return drawCall{}, nil
		}
		if g.First < 0 || g.Count < 0 || (g.First+g.Count)*recordBytes > vertexSize {
			return drawCall{}, fmt.Errorf("%w: points %d+%d exceed %d bytes", gpu.ErrInvalidGeometry, g.First, g.Count, vertexSize)
		}
		return drawCall{count: spriteVertices, instances: uint32(g.Count), firstInstance: uint32(g.First)}, nil
	case gpu.IndexedTriangles:
		if g.Count == 0 {
			return drawCall{indexed: true}, nil
		}
		if g.Count < 0 || g.Count*indexBytes > indexSize {
			return drawCall{}, fmt.Errorf("%w: %d indices exceed %d bytes", gpu.ErrInvalidGeometry, g.Count, indexSize)
		}
		return drawCall{indexed: true, count: uint32(g.Count), instances: 1}, nil
	}
	return drawCall{}, fmt.Errorf("%w: kind %v", gpu.ErrInvalidGeometry, g.Kind)
}
