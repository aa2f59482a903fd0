package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqFrame(seq uint64) *Frame {
	return &Frame{Seq: seq}
}

func TestBufferPopOrder(t *testing.T) {
	b := newFrameBuffer(3)
	b.push(seqFrame(1))
	b.push(seqFrame(2))
	b.push(seqFrame(3))

	assert.Equal(t, uint64(1), b.pop().Seq)
	assert.Equal(t, uint64(2), b.pop().Seq)
	assert.Equal(t, uint64(3), b.pop().Seq)
	assert.Nil(t, b.pop())
}

func TestBufferDropsOldestWhenFull(t *testing.T) {
	b := newFrameBuffer(3)
	assert.False(t, b.push(seqFrame(1)))
	assert.False(t, b.push(seqFrame(2)))
	assert.False(t, b.push(seqFrame(3)))

	// Fourth push evicts frame 1.
	assert.True(t, b.push(seqFrame(4)))
	require.Equal(t, 3, b.len())

	assert.Equal(t, uint64(2), b.pop().Seq)
	assert.Equal(t, uint64(3), b.pop().Seq)
	assert.Equal(t, uint64(4), b.pop().Seq)
}

func TestBufferDefaultCapacity(t *testing.T) {
	b := newFrameBuffer(0)
	for i := uint64(1); i <= 5; i++ {
		b.push(seqFrame(i))
	}
	assert.Equal(t, DefaultBufferSize, b.len())
	assert.Equal(t, uint64(3), b.pop().Seq)
}

func TestBufferPopEmpty(t *testing.T) {
	b := newFrameBuffer(2)
	assert.Nil(t, b.pop())
	assert.Equal(t, 0, b.len())
}
