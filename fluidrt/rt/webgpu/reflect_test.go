package webgpu

import (
	"testing"

	"github.com/gekko3d/fluid/fluidrt/rt/shaders"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const compositeLike = `
struct Uniforms {
    invProjection: mat4x4<f32>,
    color: vec4<f32>,
    lightDir: vec3<f32>,
    absorption: f32,
    invTexScale: vec2<f32>,
    refractionScale: f32,
}
@group(0) @binding(0) var<uniform> u: Uniforms;
@group(0) @binding(2) var thicknessMap: texture_2d<f32>;
@group(0) @binding(1) var depthMap: texture_depth_2d;

fn f() -> f32 { return u.absorption + u.lightDir.x + u.color.x + u.invTexScale.x + u.invProjection[0].x; }
`

func TestReflectLayout(t *testing.T) {
	l, err := Reflect(compositeLike)
	require.NoError(t, err)

	offsets := map[string]int{}
	for _, f := range l.Fields {
		offsets[f.Name] = f.Offset
	}
	assert.Equal(t, map[string]int{
		"invProjection":   0,
		"color":           64,
		"lightDir":        80,
		"absorption":      92,
		"invTexScale":     96,
		"refractionScale": 104,
	}, offsets)
	assert.Equal(t, 112, l.Size)

	assert.GreaterOrEqual(t, l.Location("absorption"), 0)
	assert.Equal(t, -1, l.Location("refractionScale"))
	assert.Equal(t, -1, l.Location("missing"))

	require.Len(t, l.Textures, 2)
	assert.Equal(t, TextureBinding{Name: "depthMap", Binding: 1, Kind: TextureDepth}, l.Textures[0])
	assert.Equal(t, TextureBinding{Name: "thicknessMap", Binding: 2, Kind: TextureFloat}, l.Textures[1])
}

// uniformMembers lowers code and returns the members of the struct bound at
// group 0 binding 0.
func uniformMembers(t *testing.T, code string) ([]ir.StructMember, uint32) {
	t.Helper()
	ast, err := naga.Parse(code)
	require.NoError(t, err)
	mod, err := naga.Lower(ast)
	require.NoError(t, err)
	for _, gv := range mod.GlobalVariables {
		if gv.Space == ir.SpaceUniform {
			st, ok := mod.Types[gv.Type].Inner.(ir.StructType)
			require.True(t, ok)
			return st.Members, st.Span
		}
	}
	return nil, 0
}

func TestReflectOffsetsFollowModule(t *testing.T) {
	for _, src := range shaders.All() {
		code, err := shaders.Load(src)
		require.NoError(t, err)
		l, err := Reflect(code)
		require.NoError(t, err, src.String())

		members, span := uniformMembers(t, code)
		require.Len(t, l.Fields, len(members), src.String())
		for i, m := range members {
			assert.Equal(t, m.Name, l.Fields[i].Name, src.String())
			assert.Equal(t, int(m.Offset), l.Fields[i].Offset, "%s.%s", src, m.Name)
		}
		assert.GreaterOrEqual(t, l.Size, int(span), src.String())
	}
}

func TestReflectActiveThroughCopies(t *testing.T) {
	code := `
struct Uniforms {
    pointRadius: f32,
    pointScale: f32,
    fov: f32,
}
@group(0) @binding(0) var<uniform> u: Uniforms;

fn scaled(p: Uniforms) -> f32 { return p.pointScale; }

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    let s = u;
    return vec4<f32>(s.pointRadius * scaled(u), 0.0, 0.0, 1.0);
}
`
	l, err := Reflect(code)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Location("pointRadius"))
	assert.Equal(t, 1, l.Location("pointScale"))
	assert.Equal(t, -1, l.Location("fov"))
}

func TestReflectErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"syntax", "struct Uniforms { x: f32 "},
		{"unknown member type", `
struct Uniforms { m: mat3x3<f32>, }
@group(0) @binding(0) var<uniform> u: Uniforms;
`},
		{"texture at uniform binding", `
@group(0) @binding(0) var t: texture_2d<f32>;
`},
		{"uniform off binding 0", `
struct Uniforms { x: f32, }
@group(0) @binding(3) var<uniform> u: Uniforms;
`},
		{"second group", `
@group(1) @binding(1) var t: texture_2d<f32>;
`},
		{"sampler", `
@group(0) @binding(1) var s: sampler;
`},
		{"duplicate binding", `
@group(0) @binding(1) var a: texture_2d<f32>;
@group(0) @binding(1) var b: texture_depth_2d;
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reflect(tt.code)
			assert.Error(t, err)
		})
	}
}

func TestReflectAllPrograms(t *testing.T) {
	for _, src := range shaders.All() {
		code, err := shaders.Load(src)
		require.NoError(t, err, src.String())
		l, err := Reflect(code)
		require.NoError(t, err, src.String())
		assert.Zero(t, l.Size%16, src.String())
		for i, tex := range l.Textures {
			assert.Equal(t, i+1, tex.Binding, "%s: texture bindings follow the uniform buffer", src)
		}
	}

	code, err := shaders.Load(shaders.Final)
	require.NoError(t, err)
	l, err := Reflect(code)
	require.NoError(t, err)
	assert.False(t, l.HasUniforms())
	assert.Len(t, l.Textures, 3)
}
