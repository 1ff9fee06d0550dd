package webgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
)

type texture struct {
	label  string
	format gpu.Format
	w, h   int
	tex    *wgpu.Texture
	view   *wgpu.TextureView
	// Off-screen attachments are sampleable; the swapchain image is not.
	sampleable bool
}

func (t *texture) Label() string      { return t.label }
func (t *texture) Format() gpu.Format { return t.format }
func (t *texture) Size() (int, int)   { return t.w, t.h }

func (t *texture) release() {
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
}

type target struct {
	label string
	w, h  int
	color *texture
	depth *texture
	// colorFormat is the pipeline format of the color attachment.
	colorFormat wgpu.TextureFormat
}

func (t *target) Label() string    { return t.label }
func (t *target) Size() (int, int) { return t.w, t.h }

func (t *target) Color() gpu.Texture {
	if t.color == nil {
		return nil
	}
	return t.color
}

func (t *target) Depth() gpu.Texture {
	if t.depth == nil {
		return nil
	}
	return t.depth
}

func (t *target) owns(tex *texture) bool {
	return tex == t.color || tex == t.depth
}

type buffer struct {
	label string
	kind  gpu.BufferKind
	size  int
	buf   *wgpu.Buffer
}

func (b *buffer) Label() string        { return b.label }
func (b *buffer) Kind() gpu.BufferKind { return b.kind }
func (b *buffer) Size() int            { return b.size }

func (b *buffer) byteSize() int {
	if b == nil {
		return 0
	}
	return b.size
}

type program struct {
	src            gpu.ProgramSource
	layout         *Layout
	module         *wgpu.ShaderModule
	bindLayout     *wgpu.BindGroupLayout
	pipelineLayout *wgpu.PipelineLayout
}

func (p *program) Source() gpu.ProgramSource { return p.src }

func (p *program) UniformLocation(name string) int {
	return p.layout.Location(name)
}

func (p *program) release() {
	p.pipelineLayout.Release()
	p.bindLayout.Release()
	p.module.Release()
}

// textureFormat maps an attachment format to the format allocated on the
// GPU. RGBA32F is stored as RGBA16Float so additive blending stays available.
func textureFormat(f gpu.Format) (wgpu.TextureFormat, error) {
	switch f {
	case gpu.FormatRGBA32F, gpu.FormatRGBA16F:
		return wgpu.TextureFormatRGBA16Float, nil
	case gpu.FormatDepth32F:
		return wgpu.TextureFormatDepth32Float, nil
	}
	return wgpu.TextureFormatUndefined, fmt.Errorf("%w: format %v", gpu.ErrUnsupportedResource, f)
}

func asTexture(t gpu.Texture) (*texture, error) {
	tex, ok := t.(*texture)
	if !ok {
		return nil, fmt.Errorf("%w: texture %T", gpu.ErrUnsupportedResource, t)
	}
	if !tex.sampleable || tex.view == nil {
		return nil, fmt.Errorf("%w: texture %q is not sampleable", gpu.ErrInvalidInput, tex.label)
	}
	return tex, nil
}

func asBuffer(b gpu.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf.buf == nil {
		return nil, fmt.Errorf("%w: buffer %T", gpu.ErrUnsupportedResource, b)
	}
	return buf, nil
}
