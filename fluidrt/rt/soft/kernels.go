package soft

import (
	"github.com/chewxy/math32"
	"github.com/gekko3d/fluid/fluidrt/rt/core"
	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/gekko3d/fluid/fluidrt/rt/shaders"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	skyHorizon = mgl32.Vec3{0.6, 0.7, 0.8}
	skyZenith  = mgl32.Vec3{0.25, 0.45, 0.75}
	clothColor = mgl32.Vec3{0.8, 0.3, 0.25}
)

// foamFadeRadii is the depth, in foam radii, over which foam behind the
// front-most foam layer fades to half weight.
const foamFadeRadii = 8

var spriteUniforms = []string{"projection", "view", "screenSize", "pointScale", "pointRadius"}

// Kernels returns the CPU kernels for every program in the shaders package.
func Kernels() map[gpu.ProgramSource]*Kernel {
	return map[gpu.ProgramSource]*Kernel{
		shaders.Plane: {
			Uniforms: []string{"invView", "invProjection"},
			Fragment: planeFragment,
		},
		shaders.Cloth: {
			Uniforms: []string{"projection", "view", "lightDir"},
			Vertex:   meshVertex,
			Fragment: clothFragment,
		},
		shaders.Depth: {
			Uniforms: spriteUniforms,
			Vertex:   spriteVertex,
			Fragment: depthFragment,
		},
		shaders.Blur: {
			Uniforms: []string{"blurDir", "filterRadius", "blurScale"},
			Samplers: []string{"depthMap"},
			Fragment: blurFragment,
		},
		shaders.Thickness: {
			Uniforms: append(append([]string{}, spriteUniforms...), "thicknessScale"),
			Vertex:   spriteVertex,
			Fragment: thicknessFragment,
		},
		shaders.FluidFinal: {
			Uniforms: []string{"invProjection", "color", "lightDir", "absorption", "invTexScale", "refractionScale"},
			Samplers: []string{"depthMap", "thicknessMap", "sceneMap"},
			Fragment: fluidFinalFragment,
		},
		shaders.FoamDepth: {
			Uniforms: spriteUniforms,
			Vertex:   spriteVertex,
			Fragment: foamDepthFragment,
		},
		shaders.FoamThickness: {
			Uniforms: append(append([]string{}, spriteUniforms...), "zNear", "zFar"),
			Samplers: []string{"waterDepthMap", "foamDepthMap"},
			Vertex:   spriteVertex,
			Fragment: foamThicknessFragment,
		},
		shaders.FoamIntensity: {
			Uniforms: []string{"foamIntensity"},
			Samplers: []string{"thicknessMap"},
			Fragment: foamIntensityFragment,
		},
		shaders.Radiance: {
			Uniforms: []string{"lightDir", "zNear", "zFar"},
			Samplers: []string{"foamDepthMap", "waterDepthMap", "foamNormalMap", "intensityMap"},
			Fragment: radianceFragment,
		},
		shaders.Final: {
			Samplers: []string{"fluidMap", "intensityMap", "radianceMap"},
			Fragment: finalFragment,
		},
	}
}

func mix(a, b, t float32) float32 { return a*(1-t) + b*t }

func mixVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Mul(1 - t).Add(b.Mul(t))
}

func planeFragment(env *Env, f *Fragment, out *FragOut) {
	ndc := mgl32.Vec4{f.UV.X()*2 - 1, f.UV.Y()*2 - 1, 1, 1}
	far := env.Mat4("invProjection").Mul4x1(ndc)
	dirEye := far.Vec3().Mul(1 / far.W())
	invView := env.Mat4("invView")
	origin := invView.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	dir := invView.Mul4x1(dirEye.Vec4(0)).Vec3().Normalize()
	out.Color = planeColor(origin, dir).Vec4(1)
}

// planeColor shades the ground plane y=0 as a checkerboard fading into the
// sky gradient.
func planeColor(origin, dir mgl32.Vec3) mgl32.Vec3 {
	if dir.Y() < -1e-4 && origin.Y() > 0 {
		t := -origin.Y() / dir.Y()
		hit := origin.Add(dir.Mul(t))
		base := float32(0.35)
		if (int(math32.Floor(hit.X()))+int(math32.Floor(hit.Z())))&1 == 1 {
			base = 0.55
		}
		return mixVec3(skyHorizon, mgl32.Vec3{base, base, base}, math32.Exp(-t*0.02))
	}
	return mixVec3(skyHorizon, skyZenith, mgl32.Clamp(dir.Y(), 0, 1))
}

func meshVertex(env *Env, pos mgl32.Vec4) VertexOut {
	eye := env.Mat4("view").Mul4x1(mgl32.Vec4{pos.X(), pos.Y(), pos.Z(), 1})
	return VertexOut{Clip: env.Mat4("projection").Mul4x1(eye), Eye: eye.Vec3()}
}

func clothFragment(env *Env, f *Fragment, out *FragOut) {
	l := env.Vec3("lightDir")
	if l.Len() > 0 {
		l = l.Normalize()
	}
	diffuse := math32.Abs(f.Normal.Dot(l))*0.7 + 0.3
	out.Color = clothColor.Mul(diffuse).Vec4(1)
}

func spriteVertex(env *Env, pos mgl32.Vec4) VertexOut {
	eye := env.Mat4("view").Mul4x1(mgl32.Vec4{pos.X(), pos.Y(), pos.Z(), 1})
	var size float32
	if eye.Z() < 0 {
		size = env.Float("pointScale") * env.Float("pointRadius") / -eye.Z()
	}
	return VertexOut{
		Clip: env.Mat4("projection").Mul4x1(eye),
		Eye:  eye.Vec3(),
		Size: size,
	}
}

// sphere returns the view-space normal and window depth of the sprite's
// front surface at f, or false outside the disc.
func sphere(env *Env, f *Fragment) (mgl32.Vec3, float32, bool) {
	r2 := f.Corner.Dot(f.Corner)
	if r2 > 1 {
		return mgl32.Vec3{}, 0, false
	}
	n := mgl32.Vec3{f.Corner.X(), f.Corner.Y(), math32.Sqrt(1 - r2)}
	p := f.Eye.Add(n.Mul(env.Float("pointRadius")))
	clip := env.Mat4("projection").Mul4x1(p.Vec4(1))
	return n, clip.Z()/clip.W()*0.5 + 0.5, true
}

func depthFragment(env *Env, f *Fragment, out *FragOut) {
	_, depth, ok := sphere(env, f)
	if !ok {
		out.Discard = true
		return
	}
	out.Depth = depth
}

func blurFragment(env *Env, f *Fragment, out *FragOut) {
	dir := env.Vec2("blurDir")
	var sx, sy int
	if dir.X() > 0 {
		sx = 1
	}
	if dir.Y() > 0 {
		sy = 1
	}
	radius := int(env.Float("filterRadius"))
	scale := env.Float("blurScale")
	var sum, wsum float32
	for i := -radius; i <= radius; i++ {
		w := core.BlurWeight(i, scale)
		sum += env.Load(0, f.X+sx*i, f.Y+sy*i).X() * w
		wsum += w
	}
	out.Depth = sum / wsum
}

func thicknessFragment(env *Env, f *Fragment, out *FragOut) {
	n, _, ok := sphere(env, f)
	if !ok {
		out.Discard = true
		return
	}
	t := n.Z() * env.Float("thicknessScale")
	out.Color = mgl32.Vec4{t, t, t, t}
}

// eyePos reconstructs the view-space position stored in the depth map at
// texel (x, y).
func eyePos(env *Env, x, y int) mgl32.Vec3 {
	w, h := env.Size(0)
	x = min(max(x, 0), w-1)
	y = min(max(y, 0), h-1)
	d := env.Load(0, x, y).X()
	ndc := mgl32.Vec4{
		(float32(x)+0.5)/float32(w)*2 - 1,
		(float32(y)+0.5)/float32(h)*2 - 1,
		d*2 - 1,
		1,
	}
	e := env.Mat4("invProjection").Mul4x1(ndc)
	return e.Vec3().Mul(1 / e.W())
}

func fluidFinalFragment(env *Env, f *Fragment, out *FragOut) {
	d := env.Load(0, f.X, f.Y).X()
	if d >= 1 {
		out.Color = env.Load(2, f.X, f.Y)
		return
	}
	p := eyePos(env, f.X, f.Y)
	ddx := eyePos(env, f.X+1, f.Y).Sub(p)
	if ddx2 := p.Sub(eyePos(env, f.X-1, f.Y)); math32.Abs(ddx.Z()) > math32.Abs(ddx2.Z()) {
		ddx = ddx2
	}
	ddy := eyePos(env, f.X, f.Y+1).Sub(p)
	if ddy2 := p.Sub(eyePos(env, f.X, f.Y-1)); math32.Abs(ddy.Z()) > math32.Abs(ddy2.Z()) {
		ddy = ddy2
	}
	n := ddx.Cross(ddy)
	if n.Len() > 0 {
		n = n.Normalize()
	} else {
		n = mgl32.Vec3{0, 0, 1}
	}

	l := env.Vec3("lightDir")
	if l.Len() > 0 {
		l = l.Normalize()
	}
	diffuse := max(n.Dot(l), 0)*0.5 + 0.5
	color := env.Vec4("color")
	t := env.Load(1, f.X, f.Y).X()
	att := mix(1, math32.Exp(-t*env.Float("absorption")), color.W())

	shift := env.Float("refractionScale") * t
	refr := env.Sample(2, mgl32.Vec2{f.UV.X() + n.X()*shift, f.UV.Y() + n.Y()*shift})
	rgb := mixVec3(color.Vec3().Mul(diffuse), refr.Vec3(), att)
	out.Color = rgb.Vec4(1)
}

func foamDepthFragment(env *Env, f *Fragment, out *FragOut) {
	n, depth, ok := sphere(env, f)
	if !ok {
		out.Discard = true
		return
	}
	out.Color = n.Mul(0.5).Add(mgl32.Vec3{0.5, 0.5, 0.5}).Vec4(1)
	out.Depth = depth
}

// foamThicknessFragment drops foam behind the water surface and fades foam
// lying deep behind the front-most foam layer.
func foamThicknessFragment(env *Env, f *Fragment, out *FragOut) {
	_, depth, ok := sphere(env, f)
	if !ok {
		out.Discard = true
		return
	}
	zNear, zFar := env.Float("zNear"), env.Float("zFar")
	z := core.LinearizeDepth(depth, zNear, zFar)
	if z > core.LinearizeDepth(env.Load(0, f.X, f.Y).X(), zNear, zFar) {
		out.Discard = true
		return
	}
	front := core.LinearizeDepth(env.Load(1, f.X, f.Y).X(), zNear, zFar)
	fade := mgl32.Clamp((z-front)/(foamFadeRadii*env.Float("pointRadius")), 0, 1)
	t := (1 - f.Corner.Dot(f.Corner)) * (1 - 0.5*fade)
	out.Color = mgl32.Vec4{t, t, t, t}
}

func foamIntensityFragment(env *Env, f *Fragment, out *FragOut) {
	t := env.Load(0, f.X, f.Y).X()
	i := 1 - math32.Exp(-t*env.Float("foamIntensity"))
	out.Color = mgl32.Vec4{i, i, i, i}
}

func radianceFragment(env *Env, f *Fragment, out *FragOut) {
	intensity := env.Load(3, f.X, f.Y).X()
	if intensity <= 0 {
		out.Color = mgl32.Vec4{}
		return
	}
	n := env.Load(2, f.X, f.Y).Vec3().Mul(2).Sub(mgl32.Vec3{1, 1, 1}).Normalize()
	l := env.Vec3("lightDir")
	if l.Len() > 0 {
		l = l.Normalize()
	}
	shade := max(n.Dot(l), 0)*0.5 + 0.5
	zNear, zFar := env.Float("zNear"), env.Float("zFar")
	foam := core.LinearizeDepth(env.Load(0, f.X, f.Y).X(), zNear, zFar)
	water := core.LinearizeDepth(env.Load(1, f.X, f.Y).X(), zNear, zFar)
	if foam > water {
		shade *= 0.5
	}
	out.Color = mgl32.Vec4{shade, shade, shade, 1}
}

func finalFragment(env *Env, f *Fragment, out *FragOut) {
	fluid := env.Load(0, f.X, f.Y)
	i := env.Load(1, f.X, f.Y).X()
	radiance := env.Load(2, f.X, f.Y)
	out.Color = fluid.Mul(1 - i).Add(radiance.Mul(i))
}
