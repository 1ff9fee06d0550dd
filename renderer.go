// Package fluid renders a particle fluid simulation in screen space: water
// as a smoothed depth surface with thickness-based absorption and
// refraction, diffuse particles as foam, and an optional cloth mesh.
//
// The simulation owns the particle data. It writes positions into the shared
// buffers exposed through Bridge and then calls Render with the frame's
// counts.
package fluid

import (
	"fmt"

	"github.com/gekko3d/fluid/fluidrt/rt/core"
	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/gekko3d/fluid/fluidrt/rt/pipeline"
	"github.com/go-gl/mathgl/mgl32"
)

type Renderer struct {
	cfg      Config
	log      Logger
	pipeline *pipeline.Pipeline
}

// NewRenderer builds every target and program on dev. The device resolution
// must match the configured screen size.
func NewRenderer(dev gpu.Device, cfg Config, log Logger) (*Renderer, error) {
	if log == nil {
		log = NewLogger(cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := pipeline.New(dev, cfg.Params(), Named(log, "pipeline"))
	if err != nil {
		return nil, fmt.Errorf("fluid: %w", err)
	}
	return &Renderer{cfg: cfg, log: log, pipeline: p}, nil
}

// InitGeometry allocates the particle, diffuse and index buffers. It may be
// called again when capacities change; the previous buffers and their
// tokens are released.
func (r *Renderer) InitGeometry(numParticles, numDiffuse int, triangles []uint32) error {
	_, err := r.pipeline.InitGeometry(core.Geometry{
		NumParticles: numParticles,
		NumDiffuse:   numDiffuse,
		Triangles:    triangles,
	})
	return err
}

// Render draws one frame. The first numCloth particle records are the cloth
// vertices and are not drawn as fluid.
func (r *Renderer) Render(numParticles, numDiffuse, numCloth int, triangles []uint32, cam core.Camera) error {
	return r.pipeline.Render(core.FrameCounts{
		NumParticles: numParticles,
		NumDiffuse:   numDiffuse,
		NumCloth:     numCloth,
	}, triangles, cam)
}

func (r *Renderer) Close() error {
	return r.pipeline.Close()
}

func (r *Renderer) Config() Config { return r.cfg }

func (r *Renderer) Bridge() *gpu.Bridge { return r.pipeline.Bridge() }

func (r *Renderer) Pipeline() *pipeline.Pipeline { return r.pipeline }

// Camera returns a camera at eye looking at target with the configured FOV.
func (r *Renderer) Camera(eye, target mgl32.Vec3) *core.CameraState {
	return core.LookAt(eye, target, r.cfg.FOVRadians())
}

func (r *Renderer) tokens() *pipeline.Buffers {
	if b := r.pipeline.Buffers(); b != nil {
		return b
	}
	return &pipeline.Buffers{}
}

func (r *Renderer) PositionsToken() gpu.Token { return r.tokens().PositionsToken }

func (r *Renderer) DiffusePositionsToken() gpu.Token { return r.tokens().DiffusePositionsToken }

func (r *Renderer) DiffuseVelocitiesToken() gpu.Token { return r.tokens().DiffuseVelocitiesToken }
