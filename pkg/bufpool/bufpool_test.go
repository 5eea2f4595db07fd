package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolReusesReleasedBuffer(t *testing.T) {
	pool := NewPool[byte](false)

	first := pool.NewBuffer(160)
	firstData := first.Bytes()
	firstData[0] = 0x42
	first.Release()

	second := pool.NewBuffer(160)
	require.Same(t, &firstData[0], &second.Bytes()[0], "expected pool to recycle the released backing array")
	require.Equal(t, byte(0), second.Bytes()[0], "recycled buffer must be zeroed before reuse")
}

func TestPoolPoisonsOnRelease(t *testing.T) {
	pool := NewPool[byte](true)

	buf := pool.NewBuffer(8)
	data := buf.Bytes()
	buf.Release()

	for i, b := range data {
		require.Equal(t, byte(poisonByte), b, "byte %d not poisoned after release", i)
	}
}

func TestBufferRefCounting(t *testing.T) {
	pool := NewPool[byte](false)
	buf := pool.NewBuffer(4)

	buf.Ref() // second owner (e.g. a non-owning observer)
	buf.Release()
	require.Equal(t, int32(1), buf.refs, "buffer released once with 2 refs must stay alive")

	buf.Release()
	require.Equal(t, int32(0), buf.refs)
}

func TestDefaultAllocatorRoundTrip(t *testing.T) {
	alloc := DefaultAllocator()
	b := alloc.Alloc(32)
	require.Len(t, b, 32)
	alloc.Free(b)
}
