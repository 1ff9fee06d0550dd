package gpu

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

type BlendMode int

const (
	BlendOff BlendMode = iota
	// BlendAdditive is src*1 + dst*1.
	BlendAdditive
)

type RasterState struct {
	DepthTest        bool
	DepthWrite       bool
	Blend            BlendMode
	ProgramPointSize bool
}

type GeometryKind int

const (
	FullScreenQuad GeometryKind = iota + 1
	PointCloud
	IndexedTriangles
)

func (k GeometryKind) String() string {
	switch k {
	case FullScreenQuad:
		return "quad"
	case PointCloud:
		return "points"
	case IndexedTriangles:
		return "triangles"
	}
	return fmt.Sprintf("GeometryKind(%d)", int(k))
}

// Geometry is the draw source of a pass. For PointCloud, First is the record
// offset the position buffer is bound at and Count the number of points drawn
// from there.
type Geometry struct {
	Kind     GeometryKind
	Vertices Buffer
	Indices  Buffer
	First    int
	Count    int
}

func Quad() Geometry {
	return Geometry{Kind: FullScreenQuad, Count: 6}
}

func Points(positions Buffer, first, count int) Geometry {
	return Geometry{Kind: PointCloud, Vertices: positions, First: first, Count: count}
}

func Triangles(positions, indices Buffer, count int) Geometry {
	return Geometry{Kind: IndexedTriangles, Vertices: positions, Indices: indices, Count: count}
}

func (g Geometry) validate() error {
	if g.Count < 0 || g.First < 0 {
		return fmt.Errorf("%w: first=%d count=%d", ErrInvalidGeometry, g.First, g.Count)
	}
	switch g.Kind {
	case FullScreenQuad:
	case PointCloud:
		if g.Count > 0 && g.Vertices == nil {
			return fmt.Errorf("%w: point cloud without position buffer", ErrInvalidGeometry)
		}
	case IndexedTriangles:
		if g.Count%3 != 0 {
			return fmt.Errorf("%w: %d indices", ErrInvalidGeometry, g.Count)
		}
		if g.Count > 0 && (g.Vertices == nil || g.Indices == nil) {
			return fmt.Errorf("%w: triangles without vertex or index buffer", ErrInvalidGeometry)
		}
	default:
		return fmt.Errorf("%w: kind %v", ErrInvalidGeometry, g.Kind)
	}
	return nil
}

// Input binds a target attachment to a sampler slot of the pass program.
type Input struct {
	Slot    int
	Name    string
	Texture Texture
}

// Uniforms maps uniform names to float32, int32, mgl32.Vec2/3/4 or mgl32.Mat4.
type Uniforms map[string]any

// Pass is one program invocation over a fixed geometry kind into one target.
type Pass struct {
	Name    string
	Program Program
	Target  Target
	State   RasterState
	Load    LoadOp
	Clear   mgl32.Vec4
	Kind    GeometryKind
}

// Resolve looks every name up in the pass program. Names the program does not
// use are dropped. The result is sorted by name.
func (p *Pass) Resolve(uniforms Uniforms) []Uniform {
	out := make([]Uniform, 0, len(uniforms))
	for name, v := range uniforms {
		loc := p.Program.UniformLocation(name)
		if loc == NotPresent {
			continue
		}
		out = append(out, Uniform{Name: name, Location: loc, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (p *Pass) Execute(dev Device, inputs []Input, uniforms Uniforms, geom Geometry) error {
	if geom.Kind != p.Kind {
		return fmt.Errorf("pass %s: %w: expected %v, got %v", p.Name, ErrInvalidGeometry, p.Kind, geom.Kind)
	}
	if err := geom.validate(); err != nil {
		return fmt.Errorf("pass %s: %w", p.Name, err)
	}
	seen := make(map[int]bool, len(inputs))
	for _, in := range inputs {
		if in.Texture == nil {
			return fmt.Errorf("pass %s: %w: slot %d (%s) has no texture", p.Name, ErrInvalidInput, in.Slot, in.Name)
		}
		if seen[in.Slot] {
			return fmt.Errorf("pass %s: %w: slot %d bound twice", p.Name, ErrInvalidInput, in.Slot)
		}
		seen[in.Slot] = true
	}
	return dev.Execute(&Invocation{
		Pass:     p.Name,
		Program:  p.Program,
		Target:   p.Target,
		Load:     p.Load,
		Clear:    p.Clear,
		State:    p.State,
		Inputs:   inputs,
		Uniforms: p.Resolve(uniforms),
		Geometry: geom,
	})
}
