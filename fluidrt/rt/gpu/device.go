// Package gpu defines the backend-neutral render contract: targets, passes,
// shared geometry buffers and the pass dependency graph. Concrete devices live
// in the soft and webgpu packages.
package gpu

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrInvalidSize         = errors.New("invalid size")
	ErrInvalidAttachment   = errors.New("invalid attachment layout")
	ErrUnsupportedResource = errors.New("unsupported resource")
	ErrProgramNotFound     = errors.New("shader program not found")
	ErrInvalidGeometry     = errors.New("invalid geometry")
	ErrInvalidInput        = errors.New("invalid pass input")
)

// NotPresent is returned by Program.UniformLocation for names the program
// does not use.
const NotPresent = -1

type Format int

const (
	FormatRGBA32F Format = iota + 1
	FormatRGBA16F
	FormatDepth32F
)

func (f Format) String() string {
	switch f {
	case FormatRGBA32F:
		return "rgba32f"
	case FormatRGBA16F:
		return "rgba16f"
	case FormatDepth32F:
		return "depth32f"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

func (f Format) IsDepth() bool { return f == FormatDepth32F }

type AttachmentKind int

const (
	AttachColor AttachmentKind = iota + 1
	AttachDepth
)

type Attachment struct {
	Kind   AttachmentKind
	Format Format
}

type TargetDesc struct {
	Label       string
	Width       int
	Height      int
	Attachments []Attachment
}

// Validate checks the attachment topology: one or two attachments, at most
// one per kind, depth formats only on the depth attachment point.
func (d TargetDesc) Validate(width, height int) error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: target %q is %dx%d", ErrInvalidSize, d.Label, d.Width, d.Height)
	}
	if d.Width != width || d.Height != height {
		return fmt.Errorf("%w: target %q is %dx%d, screen is %dx%d", ErrInvalidSize, d.Label, d.Width, d.Height, width, height)
	}
	if len(d.Attachments) == 0 {
		return fmt.Errorf("%w: target %q has no attachments", ErrInvalidAttachment, d.Label)
	}
	var color, depth int
	for _, a := range d.Attachments {
		switch a.Kind {
		case AttachColor:
			if a.Format.IsDepth() || a.Format == 0 {
				return fmt.Errorf("%w: target %q color attachment with format %v", ErrInvalidAttachment, d.Label, a.Format)
			}
			color++
		case AttachDepth:
			if !a.Format.IsDepth() {
				return fmt.Errorf("%w: target %q depth attachment with format %v", ErrInvalidAttachment, d.Label, a.Format)
			}
			depth++
		default:
			return fmt.Errorf("%w: target %q attachment kind %d", ErrInvalidAttachment, d.Label, a.Kind)
		}
	}
	if color > 1 || depth > 1 {
		return fmt.Errorf("%w: target %q has %d color and %d depth attachments", ErrInvalidAttachment, d.Label, color, depth)
	}
	return nil
}

// Texture is one attachment of a Target, sampleable by later passes.
type Texture interface {
	Label() string
	Format() Format
	Size() (int, int)
}

// Target is an off-screen image (or the default framebuffer) a pass draws into.
// Color or Depth is nil when the attachment is absent.
type Target interface {
	Label() string
	Size() (int, int)
	Color() Texture
	Depth() Texture
}

type BufferKind int

const (
	BufferVertex BufferKind = iota + 1
	BufferIndex
)

type BufferDesc struct {
	Label string
	Kind  BufferKind
	Size  int
}

type Buffer interface {
	Label() string
	Kind() BufferKind
	Size() int
}

// ProgramSource is a vertex/fragment source path pair.
type ProgramSource struct {
	Vertex   string
	Fragment string
}

func (s ProgramSource) String() string {
	return s.Vertex + "+" + s.Fragment
}

type Program interface {
	Source() ProgramSource
	// UniformLocation returns NotPresent for names the program does not use.
	UniformLocation(name string) int
}

type LoadOp int

const (
	LoadClear LoadOp = iota
	LoadKeep
)

// Uniform is a value already resolved against a program.
type Uniform struct {
	Name     string
	Location int
	Value    any
}

// Invocation is one fully resolved pass submission.
type Invocation struct {
	Pass     string
	Program  Program
	Target   Target
	Load     LoadOp
	Clear    mgl32.Vec4
	State    RasterState
	Inputs   []Input
	Uniforms []Uniform
	Geometry Geometry
}

// Device is the command stream the orchestrator drives. Calls are made from a
// single goroutine; Execute calls between BeginFrame and EndFrame run in order.
// A frame that fails before EndFrame is dropped with AbortFrame so the next
// BeginFrame starts clean.
type Device interface {
	Size() (width, height int)
	CreateTarget(desc TargetDesc) (Target, error)
	DefaultTarget() Target
	CreateBuffer(desc BufferDesc) (Buffer, error)
	WriteBuffer(buf Buffer, offset int, data []byte) error
	ReleaseBuffer(buf Buffer)
	CreateProgram(src ProgramSource) (Program, error)
	BeginFrame() error
	Execute(inv *Invocation) error
	EndFrame() error
	AbortFrame()
}
