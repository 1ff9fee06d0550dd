package core

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvalidParams = errors.New("invalid render parameters")

// Params holds the per-pass constants. They are fixed once the pipeline is built.
type Params struct {
	Width  int
	Height int
	ZNear  float32
	ZFar   float32

	// Point radii in world units.
	Radius      float32
	ClothRadius float32
	FoamRadius  float32
	// ThicknessRadiusFactor scales Radius for the thickness splats.
	ThicknessRadiusFactor float32

	FilterRadius float32
	BlurScale    float32

	Color           mgl32.Vec4
	ThicknessScale  float32
	Absorption      float32
	RefractionScale float32
	FoamIntensity   float32
	LightDir        mgl32.Vec3 // view space
	ClearColor      mgl32.Vec4
}

func DefaultParams() Params {
	return Params{
		Width:                 512,
		Height:                512,
		ZNear:                 5,
		ZFar:                  200,
		Radius:                0.05,
		ClothRadius:           0.03,
		FoamRadius:            0.01,
		ThicknessRadiusFactor: 2,
		FilterRadius:          3,
		BlurScale:             0.1,
		Color:                 mgl32.Vec4{0.275, 0.65, 0.85, 0.9},
		ThicknessScale:        0.005,
		Absorption:            30,
		RefractionScale:       0.02,
		FoamIntensity:         4,
		LightDir:              mgl32.Vec3{0.3, 0.6, 0.75},
		ClearColor:            mgl32.Vec4{0, 0, 0, 1},
	}
}

func (p Params) Validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidParams, p.Width, p.Height)
	case p.ZNear <= 0 || p.ZFar <= p.ZNear:
		return fmt.Errorf("%w: depth range [%g, %g]", ErrInvalidParams, p.ZNear, p.ZFar)
	case p.Radius <= 0 || p.FoamRadius <= 0 || p.ThicknessRadiusFactor <= 0:
		return fmt.Errorf("%w: point radii must be positive", ErrInvalidParams)
	case p.FilterRadius < 0 || p.FilterRadius > MaxFilterRadius:
		return fmt.Errorf("%w: filter radius %g outside [0, %d]", ErrInvalidParams, p.FilterRadius, MaxFilterRadius)
	}
	return nil
}

func (p Params) AspectRatio() float32 {
	return float32(p.Width) / float32(p.Height)
}

// PointScale converts a view-space radius at unit distance into a point size in pixels.
func (p Params) PointScale(fov float32) float32 {
	return float32(p.Width) / p.AspectRatio() * (1.0 / math32.Tan(fov*0.5))
}

func (p Params) ThicknessRadius() float32 {
	return p.Radius * p.ThicknessRadiusFactor
}

func (p Params) ScreenSize() mgl32.Vec2 {
	return mgl32.Vec2{float32(p.Width), float32(p.Height)}
}

func (p Params) InvTexScale() mgl32.Vec2 {
	return mgl32.Vec2{1.0 / float32(p.Width), 1.0 / float32(p.Height)}
}

// BlurDirX is one texel step along the screen x axis in texture coordinates.
func (p Params) BlurDirX() mgl32.Vec2 {
	return mgl32.Vec2{1.0 / float32(p.Width), 0}
}

func (p Params) BlurDirY() mgl32.Vec2 {
	return mgl32.Vec2{0, 1.0 / float32(p.Height)}
}

func (p Params) Projection(fov float32) mgl32.Mat4 {
	return mgl32.Perspective(fov, p.AspectRatio(), p.ZNear, p.ZFar)
}

// FrameParams are recomputed from the camera every frame.
type FrameParams struct {
	View          mgl32.Mat4
	Projection    mgl32.Mat4
	InvView       mgl32.Mat4
	InvProjection mgl32.Mat4
	PointScale    float32
	TanHalfFOV    float32
}

func NewFrameParams(p Params, cam Camera) FrameParams {
	view := cam.GetViewMatrix()
	proj := p.Projection(cam.FOV())
	return FrameParams{
		View:          view,
		Projection:    proj,
		InvView:       view.Inv(),
		InvProjection: proj.Inv(),
		PointScale:    p.PointScale(cam.FOV()),
		TanHalfFOV:    math32.Tan(cam.FOV() * 0.5),
	}
}

// LinearizeDepth maps a [0,1] window depth back to a positive view distance.
func LinearizeDepth(d, zNear, zFar float32) float32 {
	ndc := d*2 - 1
	return 2 * zNear * zFar / (zFar + zNear - ndc*(zFar-zNear))
}
