package soft

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

type rasterizer struct {
	kernel  *Kernel
	env     *Env
	target  *target
	state   gpu.RasterState
	geom    gpu.Geometry
	workers int
}

func (r *rasterizer) run() error {
	switch r.geom.Kind {
	case gpu.FullScreenQuad:
		return r.quad()
	case gpu.PointCloud:
		return r.points()
	case gpu.IndexedTriangles:
		return r.triangles()
	}
	return fmt.Errorf("%w: kind %v", gpu.ErrInvalidGeometry, r.geom.Kind)
}

func (r *rasterizer) uv(x, y int) mgl32.Vec2 {
	return mgl32.Vec2{
		(float32(x) + 0.5) / float32(r.target.w),
		(float32(y) + 0.5) / float32(r.target.h),
	}
}

// window maps clip coordinates to pixel x, y and [0,1] depth.
func (r *rasterizer) window(clip mgl32.Vec4) mgl32.Vec3 {
	ndc := clip.Vec3().Mul(1 / clip.W())
	return mgl32.Vec3{
		(ndc.X()*0.5 + 0.5) * float32(r.target.w),
		(ndc.Y()*0.5 + 0.5) * float32(r.target.h),
		ndc.Z()*0.5 + 0.5,
	}
}

// quad shades every pixel of the target. Rows are independent, so they are
// shaded in parallel.
func (r *rasterizer) quad() error {
	var g errgroup.Group
	g.SetLimit(r.workers)
	for y := 0; y < r.target.h; y++ {
		g.Go(func() error {
			for x := 0; x < r.target.w; x++ {
				f := Fragment{X: x, Y: y, UV: r.uv(x, y), Depth: 0.5}
				r.shade(&f)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *rasterizer) points() error {
	if r.geom.Count == 0 {
		return nil
	}
	vb, ok := r.geom.Vertices.(*buffer)
	if !ok {
		return fmt.Errorf("%w: vertex buffer %T", gpu.ErrUnsupportedResource, r.geom.Vertices)
	}
	if (r.geom.First+r.geom.Count)*16 > len(vb.data) {
		return fmt.Errorf("%w: points [%d, %d) exceed %q", gpu.ErrInvalidGeometry, r.geom.First, r.geom.First+r.geom.Count, vb.label)
	}

	for i := r.geom.First; i < r.geom.First+r.geom.Count; i++ {
		vo := r.kernel.Vertex(r.env, vb.vec4(i))
		if vo.Clip.W() <= 0 {
			continue
		}
		c := r.window(vo.Clip)
		if c.Z() < 0 || c.Z() > 1 {
			continue
		}
		size := vo.Size
		if !r.state.ProgramPointSize {
			size = 1
		}
		if size <= 0 {
			continue
		}
		half := size * 0.5
		x0 := max(int(math32.Ceil(c.X()-half-0.5)), 0)
		x1 := min(int(math32.Ceil(c.X()+half-0.5))-1, r.target.w-1)
		y0 := max(int(math32.Ceil(c.Y()-half-0.5)), 0)
		y1 := min(int(math32.Ceil(c.Y()+half-0.5))-1, r.target.h-1)
		for py := y0; py <= y1; py++ {
			for px := x0; px <= x1; px++ {
				f := Fragment{
					X:  px,
					Y:  py,
					UV: r.uv(px, py),
					Corner: mgl32.Vec2{
						(float32(px) + 0.5 - c.X()) / half,
						(float32(py) + 0.5 - c.Y()) / half,
					},
					Eye:   vo.Eye,
					Depth: c.Z(),
				}
				r.shade(&f)
			}
		}
	}
	return nil
}

func edge(a, b mgl32.Vec3, px, py float32) float32 {
	return (b.X()-a.X())*(py-a.Y()) - (b.Y()-a.Y())*(px-a.X())
}

// triangles draws indexed triangles with affine interpolation. Triangles
// with a vertex behind the eye are dropped rather than clipped.
func (r *rasterizer) triangles() error {
	if r.geom.Count == 0 {
		return nil
	}
	vb, ok := r.geom.Vertices.(*buffer)
	if !ok {
		return fmt.Errorf("%w: vertex buffer %T", gpu.ErrUnsupportedResource, r.geom.Vertices)
	}
	ib, ok := r.geom.Indices.(*buffer)
	if !ok {
		return fmt.Errorf("%w: index buffer %T", gpu.ErrUnsupportedResource, r.geom.Indices)
	}
	if r.geom.Count*4 > len(ib.data) {
		return fmt.Errorf("%w: %d indices exceed %q", gpu.ErrInvalidGeometry, r.geom.Count, ib.label)
	}
	numVerts := len(vb.data) / 16

	for t := 0; t+2 < r.geom.Count; t += 3 {
		var win, eye [3]mgl32.Vec3
		visible := true
		for k := 0; k < 3; k++ {
			idx := int(gpu.BytesUint32(ib.data, t+k))
			if idx >= numVerts {
				return fmt.Errorf("%w: index %d outside %q", gpu.ErrInvalidGeometry, idx, vb.label)
			}
			vo := r.kernel.Vertex(r.env, vb.vec4(idx))
			if vo.Clip.W() <= 0 {
				visible = false
				break
			}
			win[k] = r.window(vo.Clip)
			eye[k] = vo.Eye
		}
		if !visible {
			continue
		}
		area := edge(win[0], win[1], win[2].X(), win[2].Y())
		if area == 0 {
			continue
		}
		normal := eye[1].Sub(eye[0]).Cross(eye[2].Sub(eye[0]))
		if normal.Len() > 0 {
			normal = normal.Normalize()
		}

		minX := max(int(math32.Floor(min(win[0].X(), win[1].X(), win[2].X()))), 0)
		maxX := min(int(math32.Ceil(max(win[0].X(), win[1].X(), win[2].X()))), r.target.w-1)
		minY := max(int(math32.Floor(min(win[0].Y(), win[1].Y(), win[2].Y()))), 0)
		maxY := min(int(math32.Ceil(max(win[0].Y(), win[1].Y(), win[2].Y()))), r.target.h-1)
		for py := minY; py <= maxY; py++ {
			for px := minX; px <= maxX; px++ {
				cx, cy := float32(px)+0.5, float32(py)+0.5
				b0 := edge(win[1], win[2], cx, cy) / area
				b1 := edge(win[2], win[0], cx, cy) / area
				b2 := edge(win[0], win[1], cx, cy) / area
				if b0 < 0 || b1 < 0 || b2 < 0 {
					continue
				}
				depth := b0*win[0].Z() + b1*win[1].Z() + b2*win[2].Z()
				if depth < 0 || depth > 1 {
					continue
				}
				f := Fragment{
					X:      px,
					Y:      py,
					UV:     r.uv(px, py),
					Eye:    eye[0].Mul(b0).Add(eye[1].Mul(b1)).Add(eye[2].Mul(b2)),
					Normal: normal,
					Depth:  depth,
				}
				r.shade(&f)
			}
		}
	}
	return nil
}

// shade runs the fragment kernel, then the depth test, depth write and blend.
func (r *rasterizer) shade(f *Fragment) {
	out := FragOut{Depth: f.Depth}
	r.kernel.Fragment(r.env, f, &out)
	if out.Discard {
		return
	}
	t := r.target
	if t.depth != nil {
		depth := mgl32.Clamp(out.Depth, 0, 1)
		if r.state.DepthTest && !(depth < t.depth.at(f.X, f.Y).X()) {
			return
		}
		if r.state.DepthWrite {
			t.depth.set(f.X, f.Y, mgl32.Vec4{depth})
		}
	}
	if t.color != nil {
		c := out.Color
		if r.state.Blend == gpu.BlendAdditive {
			c = c.Add(t.color.at(f.X, f.Y))
		}
		t.color.set(f.X, f.Y, c)
	}
}
