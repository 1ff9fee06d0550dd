package webgpu

import (
	"fmt"
	"sort"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// FieldKind is the WGSL type of a uniform struct member.
type FieldKind int

const (
	FieldF32 FieldKind = iota + 1
	FieldI32
	FieldVec2
	FieldVec3
	FieldVec4
	FieldMat4
)

// Field is one member of the uniform struct at the offset naga laid it out at.
type Field struct {
	Name   string
	Kind   FieldKind
	Offset int
	// Active is set when some function reads the member.
	Active bool
}

type TextureKind int

const (
	TextureFloat TextureKind = iota + 1
	TextureDepth
)

type TextureBinding struct {
	Name    string
	Binding int
	Kind    TextureKind
}

// Layout is what a program needs bound at group 0.
type Layout struct {
	Fields   []Field
	Size     int
	Textures []TextureBinding
}

func (l *Layout) HasUniforms() bool { return len(l.Fields) > 0 }

// Location returns the field index of name, or -1 when absent or unused.
func (l *Layout) Location(name string) int {
	for i, f := range l.Fields {
		if f.Name == name {
			if !f.Active {
				return -1
			}
			return i
		}
	}
	return -1
}

// Reflect parses and lowers a WGSL module with naga and derives its group 0
// layout: the uniform buffer at binding 0 and every 2D texture after it. Any
// other resource is rejected.
func Reflect(code string) (*Layout, error) {
	ast, err := naga.Parse(code)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}
	mod, err := naga.LowerWithSource(ast, code)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}
	return moduleLayout(mod)
}

func moduleLayout(mod *ir.Module) (*Layout, error) {
	l := &Layout{}
	uniforms := -1
	seen := make(map[uint32]string)
	for _, gv := range mod.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		if gv.Binding.Group != 0 {
			return nil, fmt.Errorf("reflect: %s is in group %d, only group 0 is bound", gv.Name, gv.Binding.Group)
		}
		b := gv.Binding.Binding
		if prev, ok := seen[b]; ok {
			return nil, fmt.Errorf("reflect: binding %d declared by %s and %s", b, prev, gv.Name)
		}
		seen[b] = gv.Name

		switch gv.Space {
		case ir.SpaceUniform:
			if b != 0 {
				return nil, fmt.Errorf("reflect: uniform %s at binding %d, expected 0", gv.Name, b)
			}
			if err := l.addUniforms(mod, gv.Type); err != nil {
				return nil, fmt.Errorf("reflect: %s: %w", gv.Name, err)
			}
			uniforms = int(gv.Type)
		case ir.SpaceHandle:
			if b == 0 {
				return nil, fmt.Errorf("reflect: texture %s bound at the uniform binding", gv.Name)
			}
			kind, err := textureKind(mod.Types[gv.Type].Inner)
			if err != nil {
				return nil, fmt.Errorf("reflect: %s: %w", gv.Name, err)
			}
			l.Textures = append(l.Textures, TextureBinding{Name: gv.Name, Binding: int(b), Kind: kind})
		default:
			return nil, fmt.Errorf("reflect: %s: unsupported address space %d", gv.Name, gv.Space)
		}
	}
	sort.Slice(l.Textures, func(i, j int) bool { return l.Textures[i].Binding < l.Textures[j].Binding })

	if uniforms >= 0 {
		markActive(mod, l, ir.TypeHandle(uniforms))
	}
	return l, nil
}

func (l *Layout) addUniforms(mod *ir.Module, h ir.TypeHandle) error {
	st, ok := mod.Types[h].Inner.(ir.StructType)
	if !ok {
		return fmt.Errorf("uniform type %T is not a struct", mod.Types[h].Inner)
	}
	for _, m := range st.Members {
		kind, ok := fieldKind(mod.Types[m.Type].Inner)
		if !ok {
			return fmt.Errorf("unsupported uniform type %T for %s", mod.Types[m.Type].Inner, m.Name)
		}
		l.Fields = append(l.Fields, Field{Name: m.Name, Kind: kind, Offset: int(m.Offset)})
	}
	l.Size = alignUp(int(st.Span), 16)
	return nil
}

var f32 = ir.ScalarType{Kind: ir.ScalarFloat, Width: 4}

func fieldKind(t ir.TypeInner) (FieldKind, bool) {
	switch v := t.(type) {
	case ir.ScalarType:
		switch v {
		case f32:
			return FieldF32, true
		case ir.ScalarType{Kind: ir.ScalarSint, Width: 4}:
			return FieldI32, true
		}
	case ir.VectorType:
		if v.Scalar != f32 {
			break
		}
		switch v.Size {
		case ir.Vec2:
			return FieldVec2, true
		case ir.Vec3:
			return FieldVec3, true
		case ir.Vec4:
			return FieldVec4, true
		}
	case ir.MatrixType:
		if v.Scalar == f32 && v.Columns == ir.Vec4 && v.Rows == ir.Vec4 {
			return FieldMat4, true
		}
	}
	return 0, false
}

func textureKind(t ir.TypeInner) (TextureKind, error) {
	img, ok := t.(ir.ImageType)
	if !ok {
		return 0, fmt.Errorf("unsupported handle type %T", t)
	}
	if img.Dim != ir.Dim2D || img.Arrayed || img.Multisampled {
		return 0, fmt.Errorf("only single-sampled 2D textures are bound")
	}
	switch {
	case img.Class == ir.ImageClassDepth:
		return TextureDepth, nil
	case img.Class == ir.ImageClassSampled && img.SampledKind == ir.ScalarFloat:
		return TextureFloat, nil
	}
	return 0, fmt.Errorf("unsupported texture class %d", img.Class)
}

// markActive flags every member some expression reads out of a value or
// pointer of the uniform struct type, wherever that value came from.
func markActive(mod *ir.Module, l *Layout, uniforms ir.TypeHandle) {
	fns := make([]*ir.Function, 0, len(mod.Functions)+len(mod.EntryPoints))
	for i := range mod.Functions {
		fns = append(fns, &mod.Functions[i])
	}
	for i := range mod.EntryPoints {
		fns = append(fns, &mod.EntryPoints[i].Function)
	}
	for _, fn := range fns {
		for _, e := range fn.Expressions {
			ai, ok := e.Kind.(ir.ExprAccessIndex)
			if !ok || int(ai.Index) >= len(l.Fields) {
				continue
			}
			if isUniformStruct(mod, fn, ai.Base, uniforms) {
				l.Fields[ai.Index].Active = true
			}
		}
	}
}

func isUniformStruct(mod *ir.Module, fn *ir.Function, h ir.ExpressionHandle, uniforms ir.TypeHandle) bool {
	var res ir.TypeResolution
	if int(h) < len(fn.ExpressionTypes) {
		res = fn.ExpressionTypes[h]
	} else {
		var err error
		if res, err = ir.ResolveExpressionType(mod, fn, h); err != nil {
			return false
		}
	}
	if res.Handle != nil && *res.Handle == uniforms {
		return true
	}
	ptr, ok := ir.TypeResInner(mod, res).(ir.PointerType)
	return ok && ptr.Base == uniforms
}

func alignUp(v, a int) int {
	return (v + a - 1) / a * a
}
