package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is what the renderer needs from the viewer each frame.
type Camera interface {
	GetViewMatrix() mgl32.Mat4
	FOV() float32
}

type CameraState struct {
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
	// Zoom is the vertical field of view in radians.
	Zoom float32
}

func NewCameraState() *CameraState {
	return &CameraState{
		Position: mgl32.Vec3{0, 2, 8},
		Yaw:      0,
		Pitch:    -0.2,
		Zoom:     mgl32.DegToRad(45),
	}
}

// LookAt builds a camera at eye whose forward axis points at target.
func LookAt(eye, target mgl32.Vec3, zoom float32) *CameraState {
	dir := target.Sub(eye)
	if dir.Len() == 0 {
		return &CameraState{Position: eye, Zoom: zoom}
	}
	dir = dir.Normalize()
	return &CameraState{
		Position: eye,
		Yaw:      float32(math.Atan2(float64(dir.X()), float64(-dir.Z()))),
		Pitch:    float32(math.Asin(float64(mgl32.Clamp(dir.Y(), -1, 1)))),
		Zoom:     zoom,
	}
}

// Orbit places the camera on a sphere of the given radius around target.
func Orbit(target mgl32.Vec3, distance, yaw, pitch, zoom float32) *CameraState {
	offset := mgl32.Vec3{
		float32(math.Cos(float64(pitch)) * math.Sin(float64(yaw))),
		float32(math.Sin(float64(pitch))),
		float32(-math.Cos(float64(pitch)) * math.Cos(float64(yaw))),
	}.Mul(-distance)
	return LookAt(target.Add(offset), target, zoom)
}

func (c *CameraState) GetForward() mgl32.Vec3 {
	// Y-up: forward in XZ plane, Y for pitch
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
		float32(-math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
	}
}

func (c *CameraState) GetRight() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Yaw))),
		0,
		float32(math.Sin(float64(c.Yaw))),
	}
}

func (c *CameraState) GetViewMatrix() mgl32.Mat4 {
	forward := c.GetForward()
	eye := c.Position
	target := eye.Add(forward)
	up := mgl32.Vec3{0, 1, 0}
	return mgl32.LookAtV(eye, target, up)
}

func (c *CameraState) FOV() float32 {
	return c.Zoom
}
