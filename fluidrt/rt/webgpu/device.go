// Package webgpu implements gpu.Device on top of wgpu. Every pass becomes one
// render pass of a per-frame command encoder; uniforms go through one small
// uniform buffer per pass and textures are bound at group 0 next to it.
package webgpu

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/gekko3d/fluid/fluidrt/rt/shaders"
)

var (
	ErrNoFrame   = errors.New("webgpu: execute outside BeginFrame/EndFrame")
	ErrFrameOpen = errors.New("webgpu: BeginFrame while a frame is open")
)

var _ gpu.Device = (*Device)(nil)

type pipelineKey struct {
	prog     *program
	state    gpu.RasterState
	kind     gpu.GeometryKind
	color    wgpu.TextureFormat
	hasDepth bool
}

type Device struct {
	dev     *wgpu.Device
	queue   *wgpu.Queue
	surface *wgpu.Surface
	log     gpu.Logger

	width, height int
	screen        *target

	programs  map[gpu.ProgramSource]*program
	pipelines map[pipelineKey]*wgpu.RenderPipeline
	uniforms  map[string]*wgpu.Buffer
	targets   []*target

	// Per-frame state.
	frameTex   *wgpu.Texture
	encoder    *wgpu.CommandEncoder
	bindGroups []*wgpu.BindGroup
}

// NewDevice wraps an initialized wgpu device. When surface is nil the default
// target is an off-screen texture of screenFormat, which is how headless
// renders are read back by callers that own the device.
func NewDevice(dev *wgpu.Device, surface *wgpu.Surface, screenFormat wgpu.TextureFormat, width, height int, log gpu.Logger) (*Device, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", gpu.ErrInvalidSize, width, height)
	}
	if log == nil {
		log = gpu.NewNopLogger()
	}
	d := &Device{
		dev:       dev,
		queue:     dev.GetQueue(),
		surface:   surface,
		log:       log,
		width:     width,
		height:    height,
		programs:  make(map[gpu.ProgramSource]*program),
		pipelines: make(map[pipelineKey]*wgpu.RenderPipeline),
		uniforms:  make(map[string]*wgpu.Buffer),
	}

	screen := &target{label: "default", w: width, h: height, colorFormat: screenFormat}
	screen.color = &texture{label: "default.color", format: gpu.FormatRGBA16F, w: width, h: height}
	if surface == nil {
		tex, err := d.newTexture("default.color", screenFormat, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageCopySrc)
		if err != nil {
			return nil, err
		}
		screen.color.tex = tex
		if screen.color.view, err = tex.CreateView(nil); err != nil {
			return nil, err
		}
	}
	depth, err := d.newAttachment("default.depth", gpu.FormatDepth32F)
	if err != nil {
		return nil, err
	}
	depth.sampleable = false
	screen.depth = depth
	d.screen = screen
	return d, nil
}

func (d *Device) Size() (int, int) { return d.width, d.height }

func (d *Device) DefaultTarget() gpu.Target { return d.screen }

func (d *Device) newTexture(label string, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*wgpu.Texture, error) {
	return d.dev.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          wgpu.Extent3D{Width: uint32(d.width), Height: uint32(d.height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
}

func (d *Device) newAttachment(label string, format gpu.Format) (*texture, error) {
	wf, err := textureFormat(format)
	if err != nil {
		return nil, err
	}
	tex, err := d.newTexture(label, wf, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
	if err != nil {
		return nil, fmt.Errorf("create texture %s: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("create view %s: %w", label, err)
	}
	return &texture{label: label, format: format, w: d.width, h: d.height, tex: tex, view: view, sampleable: true}, nil
}

func (d *Device) CreateTarget(desc gpu.TargetDesc) (gpu.Target, error) {
	if err := desc.Validate(d.width, d.height); err != nil {
		return nil, err
	}
	t := &target{label: desc.Label, w: desc.Width, h: desc.Height}
	for _, a := range desc.Attachments {
		label := desc.Label + ".color"
		if a.Kind == gpu.AttachDepth {
			label = desc.Label + ".depth"
		}
		tex, err := d.newAttachment(label, a.Format)
		if err != nil {
			t.release()
			return nil, err
		}
		if a.Kind == gpu.AttachDepth {
			t.depth = tex
			continue
		}
		t.color = tex
		t.colorFormat, _ = textureFormat(a.Format)
	}
	d.targets = append(d.targets, t)
	d.log.Debugf("target %s (%dx%d)", desc.Label, desc.Width, desc.Height)
	return t, nil
}

func (t *target) release() {
	if t.color != nil {
		t.color.release()
	}
	if t.depth != nil {
		t.depth.release()
	}
}

// CreateBuffer allocates a copy-destination buffer. wgpu rejects empty and
// unaligned buffers, so the allocation is rounded up to at least 16 bytes.
func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size < 0 {
		return nil, fmt.Errorf("%w: buffer %q of %d bytes", gpu.ErrInvalidSize, desc.Label, desc.Size)
	}
	usage := wgpu.BufferUsageCopyDst
	switch desc.Kind {
	case gpu.BufferVertex:
		usage |= wgpu.BufferUsageVertex
	case gpu.BufferIndex:
		usage |= wgpu.BufferUsageIndex
	default:
		return nil, fmt.Errorf("%w: buffer kind %d", gpu.ErrUnsupportedResource, desc.Kind)
	}
	alloc := max(alignUp(desc.Size, 4), 16)
	buf, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  uint64(alloc),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %s: %w", desc.Label, err)
	}
	return &buffer{label: desc.Label, kind: desc.Kind, size: desc.Size, buf: buf}, nil
}

func (d *Device) WriteBuffer(buf gpu.Buffer, offset int, data []byte) error {
	b, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > b.size {
		return fmt.Errorf("%w: write of %d bytes at %d into %q (%d bytes)", gpu.ErrInvalidSize, len(data), offset, b.label, b.size)
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("%w: write into %q is not 4-byte aligned", gpu.ErrInvalidSize, b.label)
	}
	if len(data) == 0 {
		return nil
	}
	d.queue.WriteBuffer(b.buf, uint64(offset), data)
	return nil
}

func (d *Device) ReleaseBuffer(buf gpu.Buffer) {
	if b, ok := buf.(*buffer); ok && b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

// CreateProgram builds one shader module from the vertex and fragment files
// and an explicit group 0 layout reflected from the source.
func (d *Device) CreateProgram(src gpu.ProgramSource) (gpu.Program, error) {
	if p, ok := d.programs[src]; ok {
		return p, nil
	}
	code, err := shaders.Load(src)
	if err != nil {
		return nil, err
	}
	layout, err := Reflect(code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}

	module, err := d.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          src.String(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}

	var entries []wgpu.BindGroupLayoutEntry
	if layout.HasUniforms() {
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:           wgpu.BufferBindingTypeUniform,
				MinBindingSize: uint64(layout.Size),
			},
		})
	}
	for _, tb := range layout.Textures {
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(tb.Binding),
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    sampleType(tb.Kind),
				ViewDimension: wgpu.TextureViewDimension2D,
			},
		})
	}
	bgl, err := d.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   src.String(),
		Entries: entries,
	})
	if err != nil {
		module.Release()
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	pl, err := d.dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		bgl.Release()
		module.Release()
		return nil, fmt.Errorf("%s: %w", src, err)
	}

	p := &program{src: src, layout: layout, module: module, bindLayout: bgl, pipelineLayout: pl}
	d.programs[src] = p
	d.log.Debugf("program %s (%d uniform bytes, %d textures)", src, layout.Size, len(layout.Textures))
	return p, nil
}

func (d *Device) pipeline(p *program, inv *gpu.Invocation, t *target) (*wgpu.RenderPipeline, error) {
	key := pipelineKey{prog: p, state: inv.State, kind: inv.Geometry.Kind, color: t.colorFormat, hasDepth: t.depth != nil}
	if t.color == nil {
		key.color = wgpu.TextureFormatUndefined
	}
	if rp, ok := d.pipelines[key]; ok {
		return rp, nil
	}

	vertex := wgpu.VertexState{Module: p.module, EntryPoint: "vs_main", Buffers: vertexLayouts(inv.Geometry.Kind)}
	frag := &wgpu.FragmentState{Module: p.module, EntryPoint: "fs_main"}
	if t.color != nil {
		frag.Targets = []wgpu.ColorTargetState{colorTarget(key.color, inv.State.Blend)}
	}
	var depth *wgpu.DepthStencilState
	if t.depth != nil {
		depth = depthStencil(inv.State)
	}

	rp, err := d.dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:    inv.Pass,
		Layout:   p.pipelineLayout,
		Vertex:   vertex,
		Fragment: frag,
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: depth,
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", inv.Pass, err)
	}
	d.pipelines[key] = rp
	return rp, nil
}

func (d *Device) BeginFrame() error {
	if d.encoder != nil {
		return ErrFrameOpen
	}
	if d.surface != nil {
		tex, err := d.surface.GetCurrentTexture()
		if err != nil {
			return fmt.Errorf("acquire surface texture: %w", err)
		}
		view, err := tex.CreateView(nil)
		if err != nil {
			tex.Release()
			return fmt.Errorf("surface view: %w", err)
		}
		d.frameTex = tex
		d.screen.color.view = view
	}
	encoder, err := d.dev.CreateCommandEncoder(nil)
	if err != nil {
		d.releaseFrame()
		return fmt.Errorf("command encoder: %w", err)
	}
	d.encoder = encoder
	return nil
}

func (d *Device) bindGroup(p *program, inv *gpu.Invocation) (*wgpu.BindGroup, error) {
	bound := make(map[int]*texture, len(inv.Inputs))
	for _, in := range inv.Inputs {
		tex, err := asTexture(in.Texture)
		if err != nil {
			return nil, fmt.Errorf("pass %s slot %d: %w", inv.Pass, in.Slot, err)
		}
		bound[in.Slot+1] = tex
	}

	var entries []wgpu.BindGroupEntry
	if p.layout.HasUniforms() {
		data, err := packUniforms(p.layout, inv.Uniforms)
		if err != nil {
			return nil, fmt.Errorf("pass %s: %w", inv.Pass, err)
		}
		ub, ok := d.uniforms[inv.Pass]
		if !ok || ub.GetSize() < uint64(len(data)) {
			if ok {
				ub.Release()
			}
			ub, err = d.dev.CreateBuffer(&wgpu.BufferDescriptor{
				Label: inv.Pass + ".uniforms",
				Size:  uint64(len(data)),
				Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
			})
			if err != nil {
				return nil, fmt.Errorf("pass %s uniforms: %w", inv.Pass, err)
			}
			d.uniforms[inv.Pass] = ub
		}
		d.queue.WriteBuffer(ub, 0, data)
		entries = append(entries, wgpu.BindGroupEntry{Binding: 0, Buffer: ub, Size: uint64(len(data))})
	}
	for _, tb := range p.layout.Textures {
		tex, ok := bound[tb.Binding]
		if !ok {
			return nil, fmt.Errorf("pass %s: %w: %s (binding %d) not bound", inv.Pass, gpu.ErrInvalidInput, tb.Name, tb.Binding)
		}
		if err := checkBinding(tb, tex.format); err != nil {
			return nil, fmt.Errorf("pass %s: %w", inv.Pass, err)
		}
		entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(tb.Binding), TextureView: tex.view})
	}

	bg, err := d.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   inv.Pass,
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("pass %s bind group: %w", inv.Pass, err)
	}
	d.bindGroups = append(d.bindGroups, bg)
	return bg, nil
}

func (d *Device) Execute(inv *gpu.Invocation) error {
	if d.encoder == nil {
		return ErrNoFrame
	}
	p, ok := inv.Program.(*program)
	if !ok {
		return fmt.Errorf("%w: program %T", gpu.ErrUnsupportedResource, inv.Program)
	}
	t, ok := inv.Target.(*target)
	if !ok {
		return fmt.Errorf("%w: target %T", gpu.ErrUnsupportedResource, inv.Target)
	}
	for _, in := range inv.Inputs {
		if tex, ok := in.Texture.(*texture); ok && t.owns(tex) {
			return fmt.Errorf("pass %s: %w: %s is also the render target", inv.Pass, gpu.ErrInvalidInput, tex.label)
		}
	}

	g := inv.Geometry
	var vb, ib *buffer
	var err error
	if g.Count > 0 && g.Kind != gpu.FullScreenQuad {
		if vb, err = asBuffer(g.Vertices); err != nil {
			return err
		}
		if g.Kind == gpu.IndexedTriangles {
			if ib, err = asBuffer(g.Indices); err != nil {
				return err
			}
		}
	}
	dc, err := planDraw(g, vb.byteSize(), ib.byteSize())
	if err != nil {
		return fmt.Errorf("pass %s: %w", inv.Pass, err)
	}

	rp, err := d.pipeline(p, inv, t)
	if err != nil {
		return err
	}
	bg, err := d.bindGroup(p, inv)
	if err != nil {
		return err
	}

	load := loadOp(inv.Load)
	desc := &wgpu.RenderPassDescriptor{}
	if t.color != nil {
		desc.ColorAttachments = []wgpu.RenderPassColorAttachment{{
			View:       t.color.view,
			LoadOp:     load,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: clearColor(inv.Clear),
		}}
	}
	if t.depth != nil {
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            t.depth.view,
			DepthLoadOp:     load,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1,
		}
	}

	pass := d.encoder.BeginRenderPass(desc)
	pass.SetPipeline(rp)
	pass.SetBindGroup(0, bg, nil)
	if vb != nil {
		pass.SetVertexBuffer(0, vb.buf, 0, uint64(vb.size))
	}
	switch {
	case dc.count == 0:
	case dc.indexed:
		pass.SetIndexBuffer(ib.buf, wgpu.IndexFormatUint32, 0, uint64(ib.size))
		pass.DrawIndexed(dc.count, dc.instances, 0, 0, 0)
	default:
		pass.Draw(dc.count, dc.instances, 0, dc.firstInstance)
	}
	if err := pass.End(); err != nil {
		return fmt.Errorf("pass %s: %w", inv.Pass, err)
	}
	return nil
}

func (d *Device) EndFrame() error {
	if d.encoder == nil {
		return ErrNoFrame
	}
	cmd, err := d.encoder.Finish(nil)
	if err != nil {
		d.releaseFrame()
		return fmt.Errorf("finish encoder: %w", err)
	}
	d.queue.Submit(cmd)
	cmd.Release()
	if d.surface != nil {
		d.surface.Present()
	}
	d.releaseFrame()
	return nil
}

// AbortFrame drops the encoder and the acquired surface texture of a frame
// that failed before EndFrame. Nothing is submitted or presented.
func (d *Device) AbortFrame() {
	if d.encoder != nil {
		d.log.Warnf("frame aborted")
	}
	d.releaseFrame()
}

func (d *Device) releaseFrame() {
	for _, bg := range d.bindGroups {
		bg.Release()
	}
	d.bindGroups = d.bindGroups[:0]
	if d.encoder != nil {
		d.encoder.Release()
		d.encoder = nil
	}
	if d.surface != nil {
		if d.screen.color.view != nil {
			d.screen.color.view.Release()
			d.screen.color.view = nil
		}
		if d.frameTex != nil {
			d.frameTex.Release()
			d.frameTex = nil
		}
	}
}

// Release frees every resource the device created. The wgpu device itself
// belongs to the caller.
func (d *Device) Release() {
	d.releaseFrame()
	for _, rp := range d.pipelines {
		rp.Release()
	}
	for _, ub := range d.uniforms {
		ub.Release()
	}
	for _, p := range d.programs {
		p.release()
	}
	for _, t := range d.targets {
		t.release()
	}
	d.screen.release()
	d.pipelines = map[pipelineKey]*wgpu.RenderPipeline{}
	d.uniforms = map[string]*wgpu.Buffer{}
	d.programs = map[gpu.ProgramSource]*program{}
	d.targets = nil
}
