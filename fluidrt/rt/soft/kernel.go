package soft

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type VertexOut struct {
	Clip mgl32.Vec4
	Eye  mgl32.Vec3
	// Size is the point diameter in pixels.
	Size float32
}

type Fragment struct {
	X, Y int
	UV   mgl32.Vec2
	// Corner spans [-1, 1] across a point sprite, y up.
	Corner mgl32.Vec2
	// Eye is the view-space sprite center, or the interpolated vertex for
	// triangles.
	Eye mgl32.Vec3
	// Normal is the view-space face normal of a triangle.
	Normal mgl32.Vec3
	Depth  float32
}

type FragOut struct {
	Color   mgl32.Vec4
	Depth   float32
	Discard bool
}

// Kernel is the CPU rendition of one shader program. Uniforms and Samplers
// list the names the program uses; a sampler's slot is its index.
type Kernel struct {
	Uniforms []string
	Samplers []string
	Vertex   func(env *Env, pos mgl32.Vec4) VertexOut
	Fragment func(env *Env, f *Fragment, out *FragOut)
}

// Env is the read-only state a kernel sees during one invocation.
type Env struct {
	values map[string]any
	inputs map[int]*texture
}

func (e *Env) Float(name string) float32 {
	switch v := e.values[name].(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	case int32:
		return float32(v)
	case int:
		return float32(v)
	}
	return 0
}

func (e *Env) Vec2(name string) mgl32.Vec2 {
	v, _ := e.values[name].(mgl32.Vec2)
	return v
}

func (e *Env) Vec3(name string) mgl32.Vec3 {
	v, _ := e.values[name].(mgl32.Vec3)
	return v
}

func (e *Env) Vec4(name string) mgl32.Vec4 {
	v, _ := e.values[name].(mgl32.Vec4)
	return v
}

func (e *Env) Mat4(name string) mgl32.Mat4 {
	v, _ := e.values[name].(mgl32.Mat4)
	return v
}

// Load reads texel (x, y) of the texture bound at slot, clamped to the edge.
// An unbound slot reads as zero.
func (e *Env) Load(slot, x, y int) mgl32.Vec4 {
	t := e.inputs[slot]
	if t == nil {
		return mgl32.Vec4{}
	}
	return t.at(x, y)
}

// Sample is a nearest-texel lookup at uv.
func (e *Env) Sample(slot int, uv mgl32.Vec2) mgl32.Vec4 {
	t := e.inputs[slot]
	if t == nil {
		return mgl32.Vec4{}
	}
	x := int(math32.Floor(uv.X() * float32(t.w)))
	y := int(math32.Floor(uv.Y() * float32(t.h)))
	return t.at(x, y)
}

func (e *Env) Size(slot int) (int, int) {
	t := e.inputs[slot]
	if t == nil {
		return 0, 0
	}
	return t.w, t.h
}
