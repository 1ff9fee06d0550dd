package gpu

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

var ErrUnknownToken = errors.New("unknown shared buffer token")

type Usage int

const (
	// UsageWriteOnlyFromCompute: the simulation writes, the renderer only reads.
	UsageWriteOnlyFromCompute Usage = iota + 1
)

// Token identifies a registered shared buffer.
type Token = uuid.UUID

type sharedBuffer struct {
	buf        Buffer
	size       int
	usage      Usage
	generation atomic.Uint64
}

// Bridge exposes vertex buffers to the simulation so it can write particle
// data that the renderer then reads without a host round-trip.
//
// The handoff is single-writer-then-single-reader per buffer per frame: the
// simulation writes and calls Publish before the frame's Render call, and does
// not write again until that Render returns. The bridge does not enforce this;
// Generation only makes the handoff observable.
type Bridge struct {
	dev    Device
	log    Logger
	shared map[Token]*sharedBuffer
}

// NewBridge creates an empty registry writing through dev.
func NewBridge(dev Device, log Logger) *Bridge {
	if log == nil {
		log = NewNopLogger()
	}
	return &Bridge{
		dev:    dev,
		log:    log,
		shared: make(map[Token]*sharedBuffer),
	}
}

// RegisterShared exposes the first sizeInBytes of a vertex buffer to the
// simulation. Only write-only usage is supported.
func (b *Bridge) RegisterShared(buf Buffer, sizeInBytes int, usage Usage) (Token, error) {
	if buf == nil {
		return uuid.Nil, fmt.Errorf("%w: nil buffer", ErrUnsupportedResource)
	}
	if sizeInBytes <= 0 {
		return uuid.Nil, fmt.Errorf("%w: shared buffer %q requested %d bytes", ErrInvalidSize, buf.Label(), sizeInBytes)
	}
	if sizeInBytes > buf.Size() {
		return uuid.Nil, fmt.Errorf("%w: shared buffer %q requested %d bytes, has %d", ErrInvalidSize, buf.Label(), sizeInBytes, buf.Size())
	}
	if buf.Kind() != BufferVertex {
		return uuid.Nil, fmt.Errorf("%w: buffer %q kind %d cannot be shared", ErrUnsupportedResource, buf.Label(), buf.Kind())
	}
	if usage != UsageWriteOnlyFromCompute {
		return uuid.Nil, fmt.Errorf("%w: usage %d", ErrUnsupportedResource, usage)
	}

	tok := uuid.New()
	b.shared[tok] = &sharedBuffer{buf: buf, size: sizeInBytes, usage: usage}
	b.log.Debugf("bridge: registered %q (%d bytes) as %s", buf.Label(), sizeInBytes, tok)
	return tok, nil
}

// Unregister forgets a token. The buffer itself stays with its owner.
func (b *Bridge) Unregister(tok Token) error {
	if _, ok := b.shared[tok]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, tok)
	}
	delete(b.shared, tok)
	b.log.Debugf("bridge: unregistered %s", tok)
	return nil
}

// Buffer returns the buffer registered under tok.
func (b *Bridge) Buffer(tok Token) (Buffer, bool) {
	s, ok := b.shared[tok]
	if !ok {
		return nil, false
	}
	return s.buf, true
}

// Write stores float32 records at a byte offset into a shared buffer. It is
// the simulation-side write path.
func (b *Bridge) Write(tok Token, offset int, data []float32) error {
	s, ok := b.shared[tok]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, tok)
	}
	if offset < 0 || offset+len(data)*4 > s.size {
		return fmt.Errorf("%w: write of %d bytes at %d into %q (%d bytes)", ErrInvalidSize, len(data)*4, offset, s.buf.Label(), s.size)
	}
	return b.dev.WriteBuffer(s.buf, offset, Float32Bytes(data))
}

// Publish marks the end of a simulation write and returns the new generation.
func (b *Bridge) Publish(tok Token) (uint64, error) {
	s, ok := b.shared[tok]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownToken, tok)
	}
	return s.generation.Add(1), nil
}

// Generation is the number of Publish calls on tok, 0 for unknown tokens.
func (b *Bridge) Generation(tok Token) uint64 {
	s, ok := b.shared[tok]
	if !ok {
		return 0
	}
	return s.generation.Load()
}

// Len is the number of registered buffers.
func (b *Bridge) Len() int {
	return len(b.shared)
}
