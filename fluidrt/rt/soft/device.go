// Package soft is a CPU implementation of gpu.Device. Shader programs are
// resolved to Go kernels that compute what the WGSL sources compute, so the
// full pass sequence can run and be inspected without a GPU.
package soft

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrNoFrame   = errors.New("soft: execute outside BeginFrame/EndFrame")
	ErrFrameOpen = errors.New("soft: BeginFrame while a frame is open")
)

// Draw is the record of one executed pass.
type Draw struct {
	Pass     string
	Program  gpu.ProgramSource
	Target   string
	Kind     gpu.GeometryKind
	First    int
	Count    int
	Uniforms map[string]any
	// Inputs maps sampler names to the label of the bound texture.
	Inputs map[string]string
}

type Device struct {
	width, height int
	workers       int
	log           gpu.Logger
	kernels       map[gpu.ProgramSource]*Kernel
	screen        *target

	inFrame bool
	frames  int
	aborted int
	draws   []Draw
}

func NewDevice(width, height int, log gpu.Logger) (*Device, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", gpu.ErrInvalidSize, width, height)
	}
	if log == nil {
		log = gpu.NewNopLogger()
	}
	d := &Device{
		width:   width,
		height:  height,
		workers: runtime.GOMAXPROCS(0),
		log:     log,
		kernels: Kernels(),
	}
	d.screen = newTarget(gpu.TargetDesc{
		Label:  "default",
		Width:  width,
		Height: height,
		Attachments: []gpu.Attachment{
			{Kind: gpu.AttachColor, Format: gpu.FormatRGBA32F},
			{Kind: gpu.AttachDepth, Format: gpu.FormatDepth32F},
		},
	})
	return d, nil
}

// Register adds or replaces the kernel for a program pair.
func (d *Device) Register(src gpu.ProgramSource, k *Kernel) {
	d.kernels[src] = k
}

func (d *Device) Unregister(src gpu.ProgramSource) {
	delete(d.kernels, src)
}

func (d *Device) Size() (int, int) { return d.width, d.height }

func (d *Device) CreateTarget(desc gpu.TargetDesc) (gpu.Target, error) {
	if err := desc.Validate(d.width, d.height); err != nil {
		return nil, err
	}
	return newTarget(desc), nil
}

func (d *Device) DefaultTarget() gpu.Target { return d.screen }

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size < 0 {
		return nil, fmt.Errorf("%w: buffer %q of %d bytes", gpu.ErrInvalidSize, desc.Label, desc.Size)
	}
	if desc.Kind != gpu.BufferVertex && desc.Kind != gpu.BufferIndex {
		return nil, fmt.Errorf("%w: buffer kind %d", gpu.ErrUnsupportedResource, desc.Kind)
	}
	return &buffer{label: desc.Label, kind: desc.Kind, data: make([]byte, desc.Size)}, nil
}

func (d *Device) WriteBuffer(buf gpu.Buffer, offset int, data []byte) error {
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("%w: buffer %T", gpu.ErrUnsupportedResource, buf)
	}
	if offset < 0 || offset+len(data) > len(b.data) {
		return fmt.Errorf("%w: write of %d bytes at %d into %q (%d bytes)", gpu.ErrInvalidSize, len(data), offset, b.label, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (d *Device) ReleaseBuffer(buf gpu.Buffer) {
	if b, ok := buf.(*buffer); ok {
		b.data = nil
	}
}

func (d *Device) CreateProgram(src gpu.ProgramSource) (gpu.Program, error) {
	k, ok := d.kernels[src]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gpu.ErrProgramNotFound, src)
	}
	locs := make(map[string]int, len(k.Uniforms))
	for i, name := range k.Uniforms {
		locs[name] = i
	}
	return &program{src: src, kernel: k, locs: locs}, nil
}

func (d *Device) BeginFrame() error {
	if d.inFrame {
		return ErrFrameOpen
	}
	d.inFrame = true
	d.draws = d.draws[:0]
	return nil
}

func (d *Device) EndFrame() error {
	if !d.inFrame {
		return ErrNoFrame
	}
	d.inFrame = false
	d.frames++
	return nil
}

// AbortFrame closes a frame without counting it. Draws already executed stay
// in the targets.
func (d *Device) AbortFrame() {
	if d.inFrame {
		d.inFrame = false
		d.aborted++
	}
}

func (d *Device) Execute(inv *gpu.Invocation) error {
	if !d.inFrame {
		return ErrNoFrame
	}
	prog, ok := inv.Program.(*program)
	if !ok {
		return fmt.Errorf("%w: program %T", gpu.ErrUnsupportedResource, inv.Program)
	}
	tgt, ok := inv.Target.(*target)
	if !ok {
		return fmt.Errorf("%w: target %T", gpu.ErrUnsupportedResource, inv.Target)
	}
	if inv.Geometry.Kind != gpu.FullScreenQuad && prog.kernel.Vertex == nil {
		return fmt.Errorf("%w: %s has no vertex stage for %v", gpu.ErrInvalidGeometry, prog.src, inv.Geometry.Kind)
	}

	env := &Env{
		values: make(map[string]any, len(inv.Uniforms)),
		inputs: make(map[int]*texture, len(inv.Inputs)),
	}
	draw := Draw{
		Pass:     inv.Pass,
		Program:  prog.src,
		Target:   tgt.label,
		Kind:     inv.Geometry.Kind,
		First:    inv.Geometry.First,
		Count:    inv.Geometry.Count,
		Uniforms: env.values,
		Inputs:   make(map[string]string, len(inv.Inputs)),
	}
	for _, u := range inv.Uniforms {
		env.values[u.Name] = u.Value
	}
	for _, in := range inv.Inputs {
		tex, err := asTexture(in.Texture)
		if err != nil {
			return err
		}
		if tgt.owns(tex) {
			return fmt.Errorf("%w: pass %s samples its own target %q", gpu.ErrInvalidInput, inv.Pass, tex.label)
		}
		env.inputs[in.Slot] = tex
		name := in.Name
		if in.Slot < len(prog.kernel.Samplers) {
			name = prog.kernel.Samplers[in.Slot]
		}
		draw.Inputs[name] = tex.label
	}

	if inv.Load == gpu.LoadClear {
		tgt.clear(inv.Clear)
	}
	r := &rasterizer{
		kernel:  prog.kernel,
		env:     env,
		target:  tgt,
		state:   inv.State,
		geom:    inv.Geometry,
		workers: d.workers,
	}
	if err := r.run(); err != nil {
		return fmt.Errorf("pass %s: %w", inv.Pass, err)
	}
	d.draws = append(d.draws, draw)
	if d.log.DebugEnabled() {
		d.log.Debugf("soft: %s -> %s (%v, %d)", inv.Pass, tgt.label, inv.Geometry.Kind, inv.Geometry.Count)
	}
	return nil
}

// Draws returns the passes executed in the current or last frame.
func (d *Device) Draws() []Draw {
	return append([]Draw(nil), d.draws...)
}

func (d *Device) Frames() int { return d.frames }

// Aborted counts frames dropped with AbortFrame.
func (d *Device) Aborted() int { return d.aborted }

// ReadPixel reads texel (x, y) with y counted from the bottom row.
func (d *Device) ReadPixel(tex gpu.Texture, x, y int) (mgl32.Vec4, error) {
	t, err := asTexture(tex)
	if err != nil {
		return mgl32.Vec4{}, err
	}
	if x < 0 || y < 0 || x >= t.w || y >= t.h {
		return mgl32.Vec4{}, fmt.Errorf("%w: texel (%d, %d) outside %dx%d", gpu.ErrInvalidSize, x, y, t.w, t.h)
	}
	return t.at(x, y), nil
}

// ReadTexture copies all texels, bottom row first.
func (d *Device) ReadTexture(tex gpu.Texture) ([]mgl32.Vec4, error) {
	t, err := asTexture(tex)
	if err != nil {
		return nil, err
	}
	out := make([]mgl32.Vec4, 0, t.w*t.h)
	for y := 0; y < t.h; y++ {
		for x := 0; x < t.w; x++ {
			out = append(out, t.at(x, y))
		}
	}
	return out, nil
}

// BufferBytes exposes the contents of a buffer created by this device.
func (d *Device) BufferBytes(buf gpu.Buffer) []byte {
	if b, ok := buf.(*buffer); ok {
		return b.data
	}
	return nil
}
