// Package pipeline sequences the fluid passes. Stages declare which targets
// they read and write; the execution order is a topological sort of those
// declarations computed once at construction.
package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gekko3d/fluid/fluidrt/rt/core"
	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
)

var ErrNotInitialized = errors.New("render before InitGeometry")

// Scopes receives per-stage timings. The demo profiler implements it.
type Scopes interface {
	BeginScope(name string)
	EndScope(name string)
	SetCount(name string, count int)
}

type stage struct {
	decl   stageDecl
	pass   *gpu.Pass
	inputs []gpu.Input
}

type frame struct {
	counts core.FrameCounts
	fp     core.FrameParams
	fov    float32
}

// Pipeline owns the targets, programs and shared buffers of the renderer and
// runs its stages in dependency order.
type Pipeline struct {
	dev     gpu.Device
	log     gpu.Logger
	params  core.Params
	bridge  *gpu.Bridge
	targets map[string]gpu.Target
	stages  []*stage
	buffers *Buffers
	scopes  Scopes
}

// New creates every target and program and orders the stages. Any failure
// here is a configuration error.
func New(dev gpu.Device, params core.Params, log gpu.Logger) (*Pipeline, error) {
	if log == nil {
		log = gpu.NewNopLogger()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if w, h := dev.Size(); w != params.Width || h != params.Height {
		return nil, fmt.Errorf("%w: device is %dx%d, params ask for %dx%d", gpu.ErrInvalidSize, w, h, params.Width, params.Height)
	}

	p := &Pipeline{
		dev:     dev,
		log:     log,
		params:  params,
		bridge:  gpu.NewBridge(dev, log),
		targets: make(map[string]gpu.Target, len(targetDecls)+1),
	}
	if err := p.createTargets(); err != nil {
		return nil, err
	}

	decls := stageDecls()
	nodes := make([]gpu.Node, len(decls))
	for i, d := range decls {
		nodes[i] = d.node()
	}
	order, err := gpu.Sort(nodes)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	programs := make(map[gpu.ProgramSource]gpu.Program)
	for _, i := range order {
		d := decls[i]
		prog, ok := programs[d.program]
		if !ok {
			prog, err = dev.CreateProgram(d.program)
			if err != nil {
				return nil, fmt.Errorf("pipeline: stage %s: %w", d.name, err)
			}
			programs[d.program] = prog
		}
		st, err := p.newStage(d, prog)
		if err != nil {
			return nil, err
		}
		p.stages = append(p.stages, st)
	}
	log.Infof("%d stages over %d targets at %dx%d", len(p.stages), len(p.targets), params.Width, params.Height)
	if log.DebugEnabled() {
		log.Debugf("order %v", p.Order())
	}
	return p, nil
}

func (p *Pipeline) createTargets() error {
	for _, t := range targetDecls {
		desc := gpu.TargetDesc{Label: t.name, Width: p.params.Width, Height: p.params.Height}
		if t.color {
			desc.Attachments = append(desc.Attachments, gpu.Attachment{Kind: gpu.AttachColor, Format: gpu.FormatRGBA32F})
		}
		if t.depth {
			desc.Attachments = append(desc.Attachments, gpu.Attachment{Kind: gpu.AttachDepth, Format: gpu.FormatDepth32F})
		}
		tgt, err := p.dev.CreateTarget(desc)
		if err != nil {
			return fmt.Errorf("pipeline: target %s: %w", t.name, err)
		}
		p.targets[t.name] = tgt
	}
	p.targets[TargetDefault] = p.dev.DefaultTarget()
	return nil
}

func (p *Pipeline) newStage(d stageDecl, prog gpu.Program) (*stage, error) {
	tgt, ok := p.targets[d.target]
	if !ok || tgt == nil {
		return nil, fmt.Errorf("pipeline: stage %s: %w: no target %q", d.name, gpu.ErrInvalidInput, d.target)
	}
	st := &stage{
		decl: d,
		pass: &gpu.Pass{
			Name:    d.name,
			Program: prog,
			Target:  tgt,
			State:   d.state,
			Load:    d.load,
			Clear:   p.params.ClearColor,
			Kind:    d.kind,
		},
	}
	for slot, src := range d.inputs {
		in, ok := p.targets[src.target]
		if !ok {
			return nil, fmt.Errorf("pipeline: stage %s: %w: no target %q", d.name, gpu.ErrInvalidInput, src.target)
		}
		tex, name := in.Color(), src.target+".color"
		if src.depth {
			tex, name = in.Depth(), src.target+".depth"
		}
		if tex == nil {
			return nil, fmt.Errorf("pipeline: stage %s: %w: %s has no such attachment", d.name, gpu.ErrInvalidInput, name)
		}
		st.inputs = append(st.inputs, gpu.Input{Slot: slot, Name: name, Texture: tex})
	}
	return st, nil
}

// SetScopes installs a timing sink; nil disables timing.
func (p *Pipeline) SetScopes(s Scopes) { p.scopes = s }

// Params returns the parameters the pipeline was built with.
func (p *Pipeline) Params() core.Params { return p.params }

// Bridge returns the registry of the shared simulation buffers.
func (p *Pipeline) Bridge() *gpu.Bridge { return p.bridge }

// Target returns a named off-screen target, or nil.
func (p *Pipeline) Target(name string) gpu.Target { return p.targets[name] }

// Order returns the stage names in execution order.
func (p *Pipeline) Order() []string {
	out := make([]string, len(p.stages))
	for i, st := range p.stages {
		out[i] = st.decl.name
	}
	return out
}

// Program returns the program a stage was built with.
func (p *Pipeline) Program(stageName string) gpu.Program {
	for _, st := range p.stages {
		if st.decl.name == stageName {
			return st.pass.Program
		}
	}
	return nil
}

// Uniforms returns what a stage is given for a frame, before resolution
// against its program.
func (p *Pipeline) Uniforms(stageName string, counts core.FrameCounts, cam core.Camera) gpu.Uniforms {
	f := p.newFrame(counts, cam)
	for _, st := range p.stages {
		if st.decl.name == stageName {
			return p.stageUniforms(st, f)
		}
	}
	return nil
}

func (p *Pipeline) newFrame(counts core.FrameCounts, cam core.Camera) *frame {
	return &frame{counts: counts, fp: core.NewFrameParams(p.params, cam), fov: cam.FOV()}
}

// sharedUniforms are offered to every stage. Programs pick what they use.
func (p *Pipeline) sharedUniforms(f *frame) gpu.Uniforms {
	pp := p.params
	return gpu.Uniforms{
		"projection":      f.fp.Projection,
		"view":            f.fp.View,
		"invProjection":   f.fp.InvProjection,
		"invView":         f.fp.InvView,
		"pointScale":      f.fp.PointScale,
		"fov":             f.fov,
		"screenSize":      pp.ScreenSize(),
		"invTexScale":     pp.InvTexScale(),
		"zNear":           pp.ZNear,
		"zFar":            pp.ZFar,
		"color":           pp.Color,
		"lightDir":        pp.LightDir,
		"filterRadius":    pp.FilterRadius,
		"blurScale":       pp.BlurScale,
		"thicknessScale":  pp.ThicknessScale,
		"absorption":      pp.Absorption,
		"refractionScale": pp.RefractionScale,
		"foamIntensity":   pp.FoamIntensity,
	}
}

func (p *Pipeline) stageUniforms(st *stage, f *frame) gpu.Uniforms {
	u := p.sharedUniforms(f)
	if st.decl.uniforms != nil {
		st.decl.uniforms(p.params, u)
	}
	return u
}

// Render runs every stage once. Counts are checked against the capacity set
// by InitGeometry; zero counts draw nothing and leave the affected targets
// at their clear values.
func (p *Pipeline) Render(counts core.FrameCounts, triangles []uint32, cam core.Camera) error {
	if p.buffers == nil {
		return ErrNotInitialized
	}
	counts.NumIndices = len(triangles)
	if err := p.buffers.Geometry.Check(counts); err != nil {
		return err
	}
	if counts.NumCloth > 0 {
		if err := core.CheckIndices(triangles, counts.NumCloth); err != nil {
			return err
		}
		if err := p.syncIndices(triangles); err != nil {
			return err
		}
	}

	f := p.newFrame(counts, cam)
	if err := p.dev.BeginFrame(); err != nil {
		return fmt.Errorf("pipeline: begin frame: %w", err)
	}
	for _, st := range p.stages {
		geom := st.decl.geometry(p.buffers, f)
		if p.scopes != nil {
			p.scopes.BeginScope(st.decl.name)
		}
		err := st.pass.Execute(p.dev, st.inputs, p.stageUniforms(st, f), geom)
		if p.scopes != nil {
			p.scopes.EndScope(st.decl.name)
		}
		if err != nil {
			p.dev.AbortFrame()
			return fmt.Errorf("pipeline: %w", err)
		}
	}
	if p.scopes != nil {
		p.scopes.SetCount("particles", counts.NumParticles)
		p.scopes.SetCount("diffuse", counts.NumDiffuse)
		p.scopes.SetCount("cloth", counts.NumCloth)
	}
	if err := p.dev.EndFrame(); err != nil {
		return fmt.Errorf("pipeline: end frame: %w", err)
	}
	return nil
}

// syncIndices uploads a frame's triangle list when it differs from the one
// last written to the index buffer.
func (p *Pipeline) syncIndices(triangles []uint32) error {
	b := p.buffers
	if len(triangles) == 0 || slices.Equal(triangles, b.uploaded) {
		return nil
	}
	if err := p.dev.WriteBuffer(b.Indices, 0, gpu.Uint32Bytes(triangles)); err != nil {
		return fmt.Errorf("pipeline: index upload: %w", err)
	}
	b.uploaded = slices.Clone(triangles)
	return nil
}

// Close unregisters and releases the shared buffers.
func (p *Pipeline) Close() error {
	if p.buffers == nil {
		return nil
	}
	err := p.releaseBuffers()
	p.buffers = nil
	return err
}
