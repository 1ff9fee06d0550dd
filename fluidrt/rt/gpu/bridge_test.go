package gpu

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeRegisterAndWrite(t *testing.T) {
	dev := &fakeDevice{}
	b := NewBridge(dev, nil)

	buf, err := dev.CreateBuffer(BufferDesc{Label: "positions", Kind: BufferVertex, Size: 32})
	require.NoError(t, err)

	tok, err := b.RegisterShared(buf, 32, UsageWriteOnlyFromCompute)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, tok)
	assert.Equal(t, 1, b.Len())

	require.NoError(t, b.Write(tok, 16, []float32{1, 2, 3, 4}))
	data := buf.(*fakeBuffer).data
	assert.Equal(t, float32(3), BytesFloat32(data, 6))

	err = b.Write(tok, 24, []float32{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrInvalidSize)

	got, ok := b.Buffer(tok)
	assert.True(t, ok)
	assert.Same(t, buf, got)

	require.NoError(t, b.Unregister(tok))
	assert.Equal(t, 0, b.Len())
	assert.ErrorIs(t, b.Unregister(tok), ErrUnknownToken)
	assert.ErrorIs(t, b.Write(tok, 0, nil), ErrUnknownToken)
}

func TestBridgeRegistrationErrors(t *testing.T) {
	dev := &fakeDevice{}
	b := NewBridge(dev, nil)
	vbo, _ := dev.CreateBuffer(BufferDesc{Label: "vbo", Kind: BufferVertex, Size: 64})
	ibo, _ := dev.CreateBuffer(BufferDesc{Label: "ibo", Kind: BufferIndex, Size: 64})

	_, err := b.RegisterShared(vbo, 0, UsageWriteOnlyFromCompute)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = b.RegisterShared(vbo, 128, UsageWriteOnlyFromCompute)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = b.RegisterShared(ibo, 64, UsageWriteOnlyFromCompute)
	assert.ErrorIs(t, err, ErrUnsupportedResource)

	_, err = b.RegisterShared(vbo, 64, Usage(42))
	assert.ErrorIs(t, err, ErrUnsupportedResource)

	_, err = b.RegisterShared(nil, 64, UsageWriteOnlyFromCompute)
	assert.ErrorIs(t, err, ErrUnsupportedResource)

	assert.Equal(t, 0, b.Len())
}

func TestBridgeHandoffGeneration(t *testing.T) {
	dev := &fakeDevice{}
	b := NewBridge(dev, nil)
	vbo, _ := dev.CreateBuffer(BufferDesc{Label: "vbo", Kind: BufferVertex, Size: 16})
	tok, err := b.RegisterShared(vbo, 16, UsageWriteOnlyFromCompute)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), b.Generation(tok))
	gen, err := b.Publish(tok)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, uint64(1), b.Generation(tok))

	_, err = b.Publish(uuid.New())
	assert.ErrorIs(t, err, ErrUnknownToken)
}
