package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCount  = errors.New("invalid particle count")
	ErrTriangleCount = errors.New("triangle index count is not a multiple of 3")
	ErrClothRange    = errors.New("cloth range outside particle buffer")
	ErrCapacity      = errors.New("count exceeds initialized capacity")
)

const (
	PositionStride = 4 * 4 // vec4<f32>
	VelocityStride = 3 * 4 // vec3<f32>
	IndexStride    = 4     // u32
)

// Geometry describes the shared buffers allocated at initialization.
type Geometry struct {
	NumParticles int
	NumDiffuse   int
	Triangles    []uint32
}

func (g Geometry) Validate() error {
	if g.NumParticles < 0 {
		return fmt.Errorf("%w: numParticles=%d", ErrInvalidCount, g.NumParticles)
	}
	if g.NumDiffuse < 0 {
		return fmt.Errorf("%w: numDiffuse=%d", ErrInvalidCount, g.NumDiffuse)
	}
	if len(g.Triangles)%3 != 0 {
		return fmt.Errorf("%w: got %d indices", ErrTriangleCount, len(g.Triangles))
	}
	return nil
}

func (g Geometry) PositionBytes() int { return g.NumParticles * PositionStride }
func (g Geometry) DiffusePositionBytes() int { return g.NumDiffuse * PositionStride }
func (g Geometry) DiffuseVelocityBytes() int { return g.NumDiffuse * VelocityStride }
func (g Geometry) IndexBytes() int { return len(g.Triangles) * IndexStride }

// FrameCounts are the counts the simulation reports for one frame.
type FrameCounts struct {
	NumParticles int
	NumDiffuse   int
	NumCloth     int
	NumIndices   int
}

// Check validates a frame against the capacity fixed by g. The index count is
// only bounded while cloth is drawn.
func (g Geometry) Check(f FrameCounts) error {
	switch {
	case f.NumParticles < 0 || f.NumDiffuse < 0 || f.NumCloth < 0:
		return fmt.Errorf("%w: particles=%d diffuse=%d cloth=%d", ErrInvalidCount, f.NumParticles, f.NumDiffuse, f.NumCloth)
	case f.NumCloth > f.NumParticles:
		return fmt.Errorf("%w: numCloth=%d > numParticles=%d", ErrClothRange, f.NumCloth, f.NumParticles)
	case f.NumIndices%3 != 0:
		return fmt.Errorf("%w: got %d indices", ErrTriangleCount, f.NumIndices)
	case f.NumParticles > g.NumParticles:
		return fmt.Errorf("%w: numParticles=%d > %d", ErrCapacity, f.NumParticles, g.NumParticles)
	case f.NumDiffuse > g.NumDiffuse:
		return fmt.Errorf("%w: numDiffuse=%d > %d", ErrCapacity, f.NumDiffuse, g.NumDiffuse)
	case f.NumCloth > 0 && f.NumIndices > len(g.Triangles):
		return fmt.Errorf("%w: %d indices > %d", ErrCapacity, f.NumIndices, len(g.Triangles))
	}
	return nil
}

// FluidRange is the sub-range of the particle buffer drawn as fluid: the
// cloth prefix is skipped.
func (f FrameCounts) FluidRange() (first, count int) {
	return f.NumCloth, f.NumParticles - f.NumCloth
}

// CheckIndices reports the first triangle index that falls outside the cloth
// prefix of numCloth vertices.
func CheckIndices(indices []uint32, numCloth int) error {
	for i, idx := range indices {
		if int(idx) >= numCloth {
			return fmt.Errorf("%w: index %d at %d, numCloth=%d", ErrClothRange, idx, i, numCloth)
		}
	}
	return nil
}
