package pipeline

import (
	"errors"
	"testing"

	"github.com/gekko3d/fluid/fluidrt/rt/core"
	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/gekko3d/fluid/fluidrt/rt/shaders"
	"github.com/gekko3d/fluid/fluidrt/rt/soft"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() core.Params {
	p := core.DefaultParams()
	p.Width, p.Height = 64, 64
	p.ZNear, p.ZFar = 0.5, 50
	p.FoamRadius = 0.04
	return p
}

func testCamera() *core.CameraState {
	return core.LookAt(mgl32.Vec3{0, 1.2, 1.6}, mgl32.Vec3{}, mgl32.DegToRad(45))
}

func newTestPipeline(t *testing.T) (*Pipeline, *soft.Device) {
	t.Helper()
	params := testParams()
	dev, err := soft.NewDevice(params.Width, params.Height, nil)
	require.NoError(t, err)
	p, err := New(dev, params, nil)
	require.NoError(t, err)
	return p, dev
}

// blob returns n³ particles on a grid around center.
func blob(center mgl32.Vec3, n int, spacing float32) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, 0, n*n*n)
	off := float32(n-1) * spacing * 0.5
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				out = append(out, center.Add(mgl32.Vec3{
					float32(i)*spacing - off,
					float32(j)*spacing - off,
					float32(k)*spacing - off,
				}))
			}
		}
	}
	return out
}

func records(pts []mgl32.Vec3) []float32 {
	data := make([]float32, 0, len(pts)*4)
	for _, p := range pts {
		data = append(data, p.X(), p.Y(), p.Z(), 1)
	}
	return data
}

func upload(t *testing.T, p *Pipeline, tok gpu.Token, pts []mgl32.Vec3) {
	t.Helper()
	require.NoError(t, p.Bridge().Write(tok, 0, records(pts)))
	_, err := p.Bridge().Publish(tok)
	require.NoError(t, err)
}

func readColor(t *testing.T, dev *soft.Device, p *Pipeline, target string) []mgl32.Vec4 {
	t.Helper()
	px, err := dev.ReadTexture(p.Target(target).Color())
	require.NoError(t, err)
	return px
}

func readDepth(t *testing.T, dev *soft.Device, p *Pipeline, target string) []float32 {
	t.Helper()
	px, err := dev.ReadTexture(p.Target(target).Depth())
	require.NoError(t, err)
	out := make([]float32, len(px))
	for i, v := range px {
		out[i] = v.X()
	}
	return out
}

func drawOf(t *testing.T, dev *soft.Device, stage string) soft.Draw {
	t.Helper()
	for _, d := range dev.Draws() {
		if d.Pass == stage {
			return d
		}
	}
	require.Failf(t, "missing draw", "stage %s did not run", stage)
	return soft.Draw{}
}

func project(p core.Params, cam core.Camera, w mgl32.Vec3) (int, int) {
	fp := core.NewFrameParams(p, cam)
	clip := fp.Projection.Mul4(fp.View).Mul4x1(w.Vec4(1))
	ndc := clip.Vec3().Mul(1 / clip.W())
	return int((ndc.X()*0.5 + 0.5) * float32(p.Width)), int((ndc.Y()*0.5 + 0.5) * float32(p.Height))
}

func TestStageOrder(t *testing.T) {
	p, _ := newTestPipeline(t)
	assert.Equal(t, []string{
		StageBackground, StageCloth,
		StageWaterDepth, StageBlurX, StageBlurY, StageWaterThickness, StageWaterComposite,
		StageFoamDepth, StageFoamThickness, StageFoamIntensity, StageFoamRadiance,
		StageFinal,
	}, p.Order())
}

func TestStageGraphIsConsistent(t *testing.T) {
	decls := stageDecls()
	nodes := make([]gpu.Node, len(decls))
	// Reverse the declarations: the sort must still put producers first.
	for i, d := range decls {
		nodes[len(decls)-1-i] = d.node()
	}
	order, err := gpu.Sort(nodes)
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, idx := range order {
		pos[nodes[idx].Name] = i
	}
	for _, d := range decls {
		for _, in := range d.inputs {
			for _, w := range decls {
				if w.target == in.target {
					assert.Less(t, pos[w.name], pos[d.name], "%s reads %s written by %s", d.name, in.target, w.name)
				}
			}
		}
	}
	assert.Less(t, pos[StageBackground], pos[StageCloth])
}

func TestRenderBeforeInit(t *testing.T) {
	p, _ := newTestPipeline(t)
	err := p.Render(core.FrameCounts{}, nil, testCamera())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestNewRejectsMismatchedDevice(t *testing.T) {
	dev, err := soft.NewDevice(32, 32, nil)
	require.NoError(t, err)
	_, err = New(dev, testParams(), nil)
	assert.ErrorIs(t, err, gpu.ErrInvalidSize)

	bad := testParams()
	bad.ZFar = bad.ZNear
	_, err = New(dev, bad, nil)
	assert.ErrorIs(t, err, core.ErrInvalidParams)
}

func TestNewFailsOnMissingProgram(t *testing.T) {
	params := testParams()
	dev, err := soft.NewDevice(params.Width, params.Height, nil)
	require.NoError(t, err)
	dev.Unregister(shaders.Blur)
	_, err = New(dev, params, nil)
	assert.ErrorIs(t, err, gpu.ErrProgramNotFound)
}

func TestTriangleCountRejectedAtInit(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.InitGeometry(core.Geometry{NumParticles: 4, Triangles: []uint32{0, 1, 2, 3}})
	assert.ErrorIs(t, err, core.ErrTriangleCount)
	assert.Nil(t, p.Buffers())
	assert.Equal(t, 0, p.Bridge().Len())
}

func TestInitGeometryRegistersSharedBuffers(t *testing.T) {
	p, _ := newTestPipeline(t)
	b, err := p.InitGeometry(core.Geometry{NumParticles: 10, NumDiffuse: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Bridge().Len())
	assert.Equal(t, 160, b.Positions.Size())
	assert.Equal(t, 80, b.DiffusePositions.Size())
	assert.Equal(t, 60, b.DiffuseVelocities.Size())

	// Re-initializing with no foam drops the diffuse registrations.
	b2, err := p.InitGeometry(core.Geometry{NumParticles: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Bridge().Len())
	assert.Equal(t, uuid.Nil, b2.DiffusePositionsToken)
	assert.Equal(t, uuid.Nil, b2.DiffuseVelocitiesToken)
	_, ok := p.Bridge().Buffer(b.PositionsToken)
	assert.False(t, ok)

	require.NoError(t, p.Close())
	assert.Equal(t, 0, p.Bridge().Len())
	assert.ErrorIs(t, p.Render(core.FrameCounts{}, nil, testCamera()), ErrNotInitialized)
}

func TestRenderChecksCounts(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.InitGeometry(core.Geometry{NumParticles: 10, NumDiffuse: 2, Triangles: []uint32{0, 1, 2}})
	require.NoError(t, err)
	cam := testCamera()

	assert.ErrorIs(t, p.Render(core.FrameCounts{NumParticles: 5, NumCloth: 6}, nil, cam), core.ErrClothRange)
	assert.ErrorIs(t, p.Render(core.FrameCounts{NumParticles: 11}, nil, cam), core.ErrCapacity)
	assert.ErrorIs(t, p.Render(core.FrameCounts{NumParticles: 10, NumDiffuse: 3}, nil, cam), core.ErrCapacity)
	assert.ErrorIs(t, p.Render(core.FrameCounts{NumParticles: 10, NumCloth: 3}, []uint32{0, 1}, cam), core.ErrTriangleCount)
	assert.ErrorIs(t, p.Render(core.FrameCounts{NumParticles: 10, NumCloth: 2}, []uint32{0, 1, 2}, cam), core.ErrClothRange)
	assert.NoError(t, p.Render(core.FrameCounts{NumParticles: 10, NumCloth: 3}, []uint32{0, 1, 2}, cam))
}

func TestFluidPointsSkipClothPrefix(t *testing.T) {
	p, dev := newTestPipeline(t)
	const n = 24
	b, err := p.InitGeometry(core.Geometry{NumParticles: n})
	require.NoError(t, err)
	upload(t, p, b.PositionsToken, blob(mgl32.Vec3{}, 3, 0.1)[:n])

	for cloth := 0; cloth <= n; cloth++ {
		require.NoError(t, p.Render(core.FrameCounts{NumParticles: n, NumCloth: cloth}, nil, testCamera()))
		for _, stage := range []string{StageWaterDepth, StageWaterThickness} {
			d := drawOf(t, dev, stage)
			assert.Equal(t, gpu.PointCloud, d.Kind)
			assert.Equal(t, cloth, d.First, "%s numCloth=%d", stage, cloth)
			assert.Equal(t, n-cloth, d.Count, "%s numCloth=%d", stage, cloth)
		}
	}
}

func TestThicknessProgramGetsDoubledRadius(t *testing.T) {
	p, dev := newTestPipeline(t)
	b, err := p.InitGeometry(core.Geometry{NumParticles: 8, NumDiffuse: 1})
	require.NoError(t, err)
	upload(t, p, b.PositionsToken, blob(mgl32.Vec3{}, 2, 0.1))
	cam := testCamera()
	require.NoError(t, p.Render(core.FrameCounts{NumParticles: 8, NumDiffuse: 1}, nil, cam))

	params := p.Params()
	scale := params.PointScale(cam.FOV())

	depth := drawOf(t, dev, StageWaterDepth)
	assert.Equal(t, params.Radius, depth.Uniforms["pointRadius"])
	assert.Equal(t, scale, depth.Uniforms["pointScale"])

	thick := drawOf(t, dev, StageWaterThickness)
	assert.Equal(t, 2*params.Radius, thick.Uniforms["pointRadius"])
	assert.Equal(t, scale, thick.Uniforms["pointScale"])
	assert.Equal(t, params.ThicknessScale, thick.Uniforms["thicknessScale"])

	foam := drawOf(t, dev, StageFoamDepth)
	assert.Equal(t, params.FoamRadius, foam.Uniforms["pointRadius"])

	// Values a program does not use are never handed to it.
	for _, d := range dev.Draws() {
		assert.NotContains(t, d.Uniforms, "fov", d.Pass)
	}
	assert.Equal(t, gpu.NotPresent, p.Program(StageWaterThickness).UniformLocation("fov"))
	assert.Contains(t, p.Uniforms(StageWaterThickness, core.FrameCounts{}, cam), "fov")
}

func TestBlurMatchesFullConvolution(t *testing.T) {
	p, dev := newTestPipeline(t)
	b, err := p.InitGeometry(core.Geometry{NumParticles: 1})
	require.NoError(t, err)
	upload(t, p, b.PositionsToken, []mgl32.Vec3{{0, 0, 0}})
	require.NoError(t, p.Render(core.FrameCounts{NumParticles: 1}, nil, testCamera()))

	params := p.Params()
	w, h := params.Width, params.Height
	src := readDepth(t, dev, p, TargetWaterDepth)
	got := readDepth(t, dev, p, TargetBlurY)

	covered := 0
	for _, d := range src {
		if d < 1 {
			covered++
		}
	}
	require.Positive(t, covered)
	require.Less(t, covered, w*h)

	taps := core.BlurKernel(params.FilterRadius, params.BlurScale)
	r := len(taps) / 2
	at := func(x, y int) float32 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return src[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var want float32
			for j := -r; j <= r; j++ {
				for i := -r; i <= r; i++ {
					want += taps[i+r] * taps[j+r] * at(x+i, y+j)
				}
			}
			require.InDelta(t, want, got[y*w+x], 1e-5, "texel (%d, %d)", x, y)
		}
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	p, dev := newTestPipeline(t)
	pts := blob(mgl32.Vec3{}, 5, 0.08)
	foam := blob(mgl32.Vec3{0.3, 0.3, 0.3}, 2, 0.1)
	b, err := p.InitGeometry(core.Geometry{NumParticles: len(pts), NumDiffuse: len(foam)})
	require.NoError(t, err)
	upload(t, p, b.PositionsToken, pts)
	upload(t, p, b.DiffusePositionsToken, foam)
	counts := core.FrameCounts{NumParticles: len(pts), NumDiffuse: len(foam)}

	require.NoError(t, p.Render(counts, nil, testCamera()))
	first := readColor(t, dev, p, TargetDefault)
	require.NoError(t, p.Render(counts, nil, testCamera()))
	second := readColor(t, dev, p, TargetDefault)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, dev.Frames())
}

func TestNoFoamLeavesFluidUntouched(t *testing.T) {
	p, dev := newTestPipeline(t)
	pts := blob(mgl32.Vec3{}, 6, 0.06)
	b, err := p.InitGeometry(core.Geometry{NumParticles: len(pts)})
	require.NoError(t, err)
	upload(t, p, b.PositionsToken, pts)
	require.NoError(t, p.Render(core.FrameCounts{NumParticles: len(pts)}, nil, testCamera()))

	for _, stage := range []string{StageFoamDepth, StageFoamThickness} {
		assert.Equal(t, 0, drawOf(t, dev, stage).Count, stage)
	}
	for _, v := range readColor(t, dev, p, TargetFoamIntensity) {
		require.Equal(t, float32(0), v.X())
	}
	assert.Equal(t, readColor(t, dev, p, TargetFluid), readColor(t, dev, p, TargetDefault))
}

func TestFoamBehindWaterIsHidden(t *testing.T) {
	p, dev := newTestPipeline(t)
	cam := testCamera()
	params := p.Params()
	water := blob(mgl32.Vec3{}, 10, 0.05)

	toward := mgl32.Vec3{}.Sub(cam.Position).Normalize()
	behind := toward.Mul(0.6)
	beside := cam.GetRight().Mul(0.6)

	b, err := p.InitGeometry(core.Geometry{NumParticles: len(water), NumDiffuse: 2})
	require.NoError(t, err)
	upload(t, p, b.PositionsToken, water)
	upload(t, p, b.DiffusePositionsToken, []mgl32.Vec3{behind, beside})

	require.NoError(t, p.Render(core.FrameCounts{NumParticles: len(water), NumDiffuse: 1}, nil, cam))
	for i, v := range readColor(t, dev, p, TargetFoamIntensity) {
		require.Equal(t, float32(0), v.X(), "texel %d", i)
	}
	// The hidden foam still lands in the foam depth target.
	bx, by := project(params, cam, behind)
	foamDepth := readDepth(t, dev, p, TargetFoamDepth)
	assert.Less(t, foamDepth[by*params.Width+bx], float32(1))

	require.NoError(t, p.Render(core.FrameCounts{NumParticles: len(water), NumDiffuse: 2}, nil, cam))
	sx, sy := project(params, cam, beside)
	intensity := readColor(t, dev, p, TargetFoamIntensity)
	assert.Greater(t, intensity[sy*params.Width+sx].X(), float32(0))
	assert.Equal(t, float32(0), intensity[by*params.Width+bx].X())
}

func TestEndToEndFluidOverBackground(t *testing.T) {
	p, dev := newTestPipeline(t)
	cam := testCamera()
	params := p.Params()
	pts := blob(mgl32.Vec3{}, 10, 0.05)
	require.Len(t, pts, 1000)

	b, err := p.InitGeometry(core.Geometry{NumParticles: 1000})
	require.NoError(t, err)
	upload(t, p, b.PositionsToken, pts)
	require.NoError(t, p.Render(core.FrameCounts{NumParticles: 1000}, nil, cam))

	depth := readDepth(t, dev, p, TargetBlurY)
	final := readColor(t, dev, p, TargetDefault)
	background := readColor(t, dev, p, TargetBackground)

	cx, cy := project(params, cam, mgl32.Vec3{})
	center := cy*params.Width + cx
	require.Less(t, depth[center], float32(1))
	px := final[center]
	assert.Greater(t, px.Z()-px.X(), float32(0.1), "fluid should be tinted blue: %v", px)
	assert.NotEqual(t, background[center], px)

	silhouette := 0
	for i, d := range depth {
		if d < 1 {
			silhouette++
			continue
		}
		require.Equal(t, background[i], final[i], "texel %d outside the fluid", i)
	}
	assert.Positive(t, silhouette)
	assert.Less(t, silhouette, len(depth)/2)
}

func TestClothIsDrawnIntoBackground(t *testing.T) {
	p, dev := newTestPipeline(t)
	cam := testCamera()
	params := p.Params()
	// A square facing the camera, centered on the origin.
	right := cam.GetRight().Mul(0.3)
	up := right.Cross(cam.GetForward()).Normalize().Mul(0.3)
	verts := []mgl32.Vec3{
		right.Mul(-1).Sub(up), right.Sub(up), right.Add(up), right.Mul(-1).Add(up),
	}
	tris := []uint32{0, 1, 2, 0, 2, 3}

	b, err := p.InitGeometry(core.Geometry{NumParticles: 4, Triangles: tris})
	require.NoError(t, err)
	upload(t, p, b.PositionsToken, verts)
	require.NoError(t, p.Render(core.FrameCounts{NumParticles: 4, NumCloth: 4}, tris, cam))

	d := drawOf(t, dev, StageCloth)
	assert.Equal(t, gpu.IndexedTriangles, d.Kind)
	assert.Equal(t, 6, d.Count)
	assert.Equal(t, 0, drawOf(t, dev, StageWaterDepth).Count)

	cx, cy := project(params, cam, mgl32.Vec3{})
	px := readColor(t, dev, p, TargetBackground)[cy*params.Width+cx]
	assert.Greater(t, px.X(), px.Z(), "cloth color expected: %v", px)

	// Without cloth particles the mesh is skipped.
	require.NoError(t, p.Render(core.FrameCounts{NumParticles: 4}, tris, cam))
	assert.Equal(t, 0, drawOf(t, dev, StageCloth).Count)
}

func TestProfilerRecordsStages(t *testing.T) {
	p, _ := newTestPipeline(t)
	prof := NewProfiler()
	p.SetScopes(prof)
	_, err := p.InitGeometry(core.Geometry{NumParticles: 1})
	require.NoError(t, err)
	require.NoError(t, p.Render(core.FrameCounts{NumParticles: 1}, nil, testCamera()))

	assert.Equal(t, p.Order(), prof.Order)
	assert.Equal(t, 1, prof.Counts["particles"])
	assert.Contains(t, prof.String(), StageWaterComposite)
	prof.Reset()
	assert.Equal(t, 1, prof.Frames)
}

func TestFrameTrianglesAreUploaded(t *testing.T) {
	p, dev := newTestPipeline(t)
	b, err := p.InitGeometry(core.Geometry{NumParticles: 4, Triangles: []uint32{0, 1, 2, 0, 2, 3}})
	require.NoError(t, err)

	flipped := []uint32{2, 1, 0, 3, 2, 0}
	require.NoError(t, p.Render(core.FrameCounts{NumParticles: 4, NumCloth: 4}, flipped, testCamera()))
	raw := dev.BufferBytes(b.Indices)
	for i, want := range flipped {
		assert.Equal(t, want, gpu.BytesUint32(raw, i))
	}

	// A shorter list only rewrites its prefix.
	require.NoError(t, p.Render(core.FrameCounts{NumParticles: 4, NumCloth: 4}, []uint32{3, 2, 1}, testCamera()))
	raw = dev.BufferBytes(b.Indices)
	assert.Equal(t, uint32(3), gpu.BytesUint32(raw, 0))
	assert.Equal(t, uint32(3), gpu.BytesUint32(raw, 3))
	assert.Equal(t, 3, drawOf(t, dev, StageCloth).Count)

	// Without cloth the list is neither bounded nor uploaded.
	long := make([]uint32, 12)
	require.NoError(t, p.Render(core.FrameCounts{NumParticles: 4}, long, testCamera()))
	raw = dev.BufferBytes(b.Indices)
	assert.Equal(t, uint32(3), gpu.BytesUint32(raw, 0))
	assert.Equal(t, 0, drawOf(t, dev, StageCloth).Count)
}

// flakyDevice fails the first execution of one stage.
type flakyDevice struct {
	*soft.Device
	stage  string
	failed bool
}

var errDeviceLost = errors.New("device lost")

func (d *flakyDevice) Execute(inv *gpu.Invocation) error {
	if inv.Pass == d.stage && !d.failed {
		d.failed = true
		return errDeviceLost
	}
	return d.Device.Execute(inv)
}

func TestFailedFrameIsAborted(t *testing.T) {
	params := testParams()
	sd, err := soft.NewDevice(params.Width, params.Height, nil)
	require.NoError(t, err)
	dev := &flakyDevice{Device: sd, stage: StageBlurY}
	p, err := New(dev, params, nil)
	require.NoError(t, err)
	_, err = p.InitGeometry(core.Geometry{NumParticles: 1})
	require.NoError(t, err)

	counts := core.FrameCounts{NumParticles: 1}
	err = p.Render(counts, nil, testCamera())
	assert.ErrorIs(t, err, errDeviceLost)
	assert.Equal(t, 1, sd.Aborted())
	assert.Equal(t, 0, sd.Frames())

	require.NoError(t, p.Render(counts, nil, testCamera()))
	assert.Equal(t, 1, sd.Frames())
	assert.Len(t, sd.Draws(), len(p.Order()))
}
