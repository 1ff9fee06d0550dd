package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gekko3d/fluid/fluidrt/rt/core"
	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/google/uuid"
)

// Buffers are the geometry sources shared with the simulation. A token is
// uuid.Nil when its buffer is empty and therefore not registered.
type Buffers struct {
	Geometry core.Geometry

	Positions         gpu.Buffer
	DiffusePositions  gpu.Buffer
	DiffuseVelocities gpu.Buffer
	Indices           gpu.Buffer

	PositionsToken         gpu.Token
	DiffusePositionsToken  gpu.Token
	DiffuseVelocitiesToken gpu.Token

	uploaded []uint32
}

// InitGeometry allocates the particle, diffuse and index buffers and
// registers the non-empty ones with the bridge. Calling it again releases
// the previous buffers first.
func (p *Pipeline) InitGeometry(g core.Geometry) (*Buffers, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if p.buffers != nil {
		if err := p.releaseBuffers(); err != nil {
			return nil, err
		}
		p.buffers = nil
	}

	b := &Buffers{Geometry: g}
	var err error
	defer func() {
		if err != nil {
			p.release(b)
		}
	}()

	if b.Positions, b.PositionsToken, err = p.sharedBuffer("positions", g.PositionBytes()); err != nil {
		return nil, err
	}
	if b.DiffusePositions, b.DiffusePositionsToken, err = p.sharedBuffer("diffusePositions", g.DiffusePositionBytes()); err != nil {
		return nil, err
	}
	if b.DiffuseVelocities, b.DiffuseVelocitiesToken, err = p.sharedBuffer("diffuseVelocities", g.DiffuseVelocityBytes()); err != nil {
		return nil, err
	}
	if b.Indices, err = p.dev.CreateBuffer(gpu.BufferDesc{Label: "clothIndices", Kind: gpu.BufferIndex, Size: g.IndexBytes()}); err != nil {
		err = fmt.Errorf("pipeline: index buffer: %w", err)
		return nil, err
	}
	if len(g.Triangles) > 0 {
		if err = p.dev.WriteBuffer(b.Indices, 0, gpu.Uint32Bytes(g.Triangles)); err != nil {
			err = fmt.Errorf("pipeline: index upload: %w", err)
			return nil, err
		}
		b.uploaded = slices.Clone(g.Triangles)
	}

	p.buffers = b
	p.log.Infof("geometry %d particles, %d diffuse, %d triangles", g.NumParticles, g.NumDiffuse, len(g.Triangles)/3)
	return b, nil
}

func (p *Pipeline) sharedBuffer(label string, size int) (gpu.Buffer, gpu.Token, error) {
	buf, err := p.dev.CreateBuffer(gpu.BufferDesc{Label: label, Kind: gpu.BufferVertex, Size: size})
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("pipeline: %s: %w", label, err)
	}
	if size == 0 {
		return buf, uuid.Nil, nil
	}
	tok, err := p.bridge.RegisterShared(buf, size, gpu.UsageWriteOnlyFromCompute)
	if err != nil {
		p.dev.ReleaseBuffer(buf)
		return nil, uuid.Nil, fmt.Errorf("pipeline: %s: %w", label, err)
	}
	return buf, tok, nil
}

// Buffers returns the current geometry sources, or nil before InitGeometry.
func (p *Pipeline) Buffers() *Buffers { return p.buffers }

func (p *Pipeline) releaseBuffers() error {
	return p.release(p.buffers)
}

func (p *Pipeline) release(b *Buffers) error {
	var errs []error
	for _, tok := range []gpu.Token{b.PositionsToken, b.DiffusePositionsToken, b.DiffuseVelocitiesToken} {
		if tok == uuid.Nil {
			continue
		}
		if err := p.bridge.Unregister(tok); err != nil {
			errs = append(errs, err)
		}
	}
	for _, buf := range []gpu.Buffer{b.Positions, b.DiffusePositions, b.DiffuseVelocities, b.Indices} {
		if buf != nil {
			p.dev.ReleaseBuffer(buf)
		}
	}
	return errors.Join(errs...)
}
