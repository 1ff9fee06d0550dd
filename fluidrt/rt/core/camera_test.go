package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestLookAtFacesTarget(t *testing.T) {
	tests := []struct {
		name   string
		eye    mgl32.Vec3
		target mgl32.Vec3
	}{
		{"Down -Z", mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 0}},
		{"From above", mgl32.Vec3{0, 3, 4}, mgl32.Vec3{0, 0, 0}},
		{"From the side", mgl32.Vec3{6, 1, 0}, mgl32.Vec3{0, 1, 0}},
	}

	for _, tc := range tests {
		cam := LookAt(tc.eye, tc.target, mgl32.DegToRad(45))
		view := cam.GetViewMatrix()

		// The target must land on the view-space -Z axis.
		p := view.Mul4x1(tc.target.Vec4(1))
		assert.InDelta(t, 0, p.X(), 1e-4, tc.name)
		assert.InDelta(t, 0, p.Y(), 1e-4, tc.name)
		assert.InDelta(t, -tc.eye.Sub(tc.target).Len(), p.Z(), 1e-4, tc.name)
	}
}

func TestOrbitDistance(t *testing.T) {
	target := mgl32.Vec3{1, 0, -2}
	cam := Orbit(target, 7, 0.4, 0.3, mgl32.DegToRad(60))

	assert.InDelta(t, 7, cam.Position.Sub(target).Len(), 1e-4)
	assert.InDelta(t, mgl32.DegToRad(60), cam.FOV(), 1e-6)

	fwd := cam.GetForward()
	toTarget := target.Sub(cam.Position).Normalize()
	assert.InDelta(t, 1, fwd.Dot(toTarget), 1e-4)
}

func TestRightIsOrthogonalToForward(t *testing.T) {
	cam := &CameraState{Yaw: 1.1, Pitch: -0.4}
	assert.InDelta(t, 0, cam.GetRight().Dot(cam.GetForward()), 1e-5)
}
