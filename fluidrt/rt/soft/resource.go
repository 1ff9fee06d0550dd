package soft

import (
	"fmt"

	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// texture stores float32 texels row by row, bottom row first. Depth formats
// keep one channel.
type texture struct {
	label  string
	format gpu.Format
	w, h   int
	ch     int
	pix    []float32
}

func newTexture(label string, format gpu.Format, w, h int) *texture {
	ch := 4
	if format.IsDepth() {
		ch = 1
	}
	return &texture{label: label, format: format, w: w, h: h, ch: ch, pix: make([]float32, w*h*ch)}
}

func (t *texture) Label() string      { return t.label }
func (t *texture) Format() gpu.Format { return t.format }
func (t *texture) Size() (int, int)   { return t.w, t.h }

func (t *texture) clamp(x, y int) (int, int) {
	if x < 0 {
		x = 0
	} else if x >= t.w {
		x = t.w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= t.h {
		y = t.h - 1
	}
	return x, y
}

// at reads a texel with clamp-to-edge addressing. Depth reads return the
// value in x.
func (t *texture) at(x, y int) mgl32.Vec4 {
	x, y = t.clamp(x, y)
	i := (y*t.w + x) * t.ch
	if t.ch == 1 {
		return mgl32.Vec4{t.pix[i], 0, 0, 1}
	}
	return mgl32.Vec4{t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]}
}

func (t *texture) set(x, y int, v mgl32.Vec4) {
	i := (y*t.w + x) * t.ch
	if t.ch == 1 {
		t.pix[i] = v.X()
		return
	}
	t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3] = v.X(), v.Y(), v.Z(), v.W()
}

func (t *texture) fill(v mgl32.Vec4) {
	for y := 0; y < t.h; y++ {
		for x := 0; x < t.w; x++ {
			t.set(x, y, v)
		}
	}
}

type target struct {
	label string
	w, h  int
	color *texture
	depth *texture
}

func newTarget(desc gpu.TargetDesc) *target {
	t := &target{label: desc.Label, w: desc.Width, h: desc.Height}
	for _, a := range desc.Attachments {
		switch a.Kind {
		case gpu.AttachColor:
			t.color = newTexture(desc.Label+".color", a.Format, desc.Width, desc.Height)
		case gpu.AttachDepth:
			t.depth = newTexture(desc.Label+".depth", a.Format, desc.Width, desc.Height)
		}
	}
	return t
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

func (t *target) clear(c mgl32.Vec4) {
	if t.color != nil {
		t.color.fill(c)
	}
	if t.depth != nil {
		t.depth.fill(mgl32.Vec4{1})
	}
}

func (t *target) owns(tex *texture) bool {
	return tex == t.color || tex == t.depth
}

type buffer struct {
	label string
	kind  gpu.BufferKind
	data  []byte
}

func (b *buffer) Label() string        { return b.label }
func (b *buffer) Kind() gpu.BufferKind { return b.kind }
func (b *buffer) Size() int            { return len(b.data) }

func (b *buffer) vec4(i int) mgl32.Vec4 {
	o := i * 4
	return mgl32.Vec4{
		gpu.BytesFloat32(b.data, o),
		gpu.BytesFloat32(b.data, o+1),
		gpu.BytesFloat32(b.data, o+2),
		gpu.BytesFloat32(b.data, o+3),
	}
}

type program struct {
	src    gpu.ProgramSource
	kernel *Kernel
	locs   map[string]int
}

func (p *program) Source() gpu.ProgramSource { return p.src }

func (p *program) UniformLocation(name string) int {
	if loc, ok := p.locs[name]; ok {
		return loc
	}
	return gpu.NotPresent
}

func asTexture(t gpu.Texture) (*texture, error) {
	tex, ok := t.(*texture)
	if !ok {
		return nil, fmt.Errorf("%w: texture %T does not belong to the soft device", gpu.ErrUnsupportedResource, t)
	}
	return tex, nil
}
