package webgpu

import (
	"fmt"

	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// packUniforms lays resolved uniforms out in the program's Uniforms struct.
// Members the caller did not set stay zero.
func packUniforms(l *Layout, values []gpu.Uniform) ([]byte, error) {
	buf := make([]byte, l.Size)
	for _, u := range values {
		if u.Location < 0 || u.Location >= len(l.Fields) {
			return nil, fmt.Errorf("uniform %s: location %d out of range", u.Name, u.Location)
		}
		f := l.Fields[u.Location]
		if err := putField(buf, f, u.Value); err != nil {
			return nil, fmt.Errorf("uniform %s: %w", u.Name, err)
		}
	}
	return buf, nil
}

func putField(buf []byte, f Field, v any) error {
	switch f.Kind {
	case FieldF32, FieldI32:
		x, ok := scalar(v)
		if !ok {
			break
		}
		if f.Kind == FieldI32 {
			putInt32(buf, f.Offset, int32(x))
			return nil
		}
		gpu.PutFloat32(buf, f.Offset, x)
		return nil
	case FieldVec2:
		if x, ok := v.(mgl32.Vec2); ok {
			gpu.PutVec(buf, f.Offset, x[:])
			return nil
		}
	case FieldVec3:
		if x, ok := v.(mgl32.Vec3); ok {
			gpu.PutVec(buf, f.Offset, x[:])
			return nil
		}
	case FieldVec4:
		if x, ok := v.(mgl32.Vec4); ok {
			gpu.PutVec(buf, f.Offset, x[:])
			return nil
		}
	case FieldMat4:
		if x, ok := v.(mgl32.Mat4); ok {
			gpu.PutMat4(buf, f.Offset, x)
			return nil
		}
	}
	return fmt.Errorf("%w: %T for %s member", gpu.ErrInvalidInput, v, f.Name)
}

func scalar(v any) (float32, bool) {
	switch x := v.(type) {
	case float32:
		return x, true
	case float64:
		return float32(x), true
	case int32:
		return float32(x), true
	case int:
		return float32(x), true
	}
	return 0, false
}

func putInt32(buf []byte, offset int, v int32) {
	copy(buf[offset:], gpu.Uint32Bytes([]uint32{uint32(v)}))
}
