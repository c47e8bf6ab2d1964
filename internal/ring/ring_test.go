package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingFIFO(t *testing.T) {
	r := New[int](3)
	require.Equal(t, 3, r.Cap())

	assert.True(t, r.Push(1))
	assert.True(t, r.Push(2))
	assert.True(t, r.Push(3))
	assert.False(t, r.Push(4), "push into a full ring must fail")
	assert.Equal(t, 3, r.Len())

	v, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, r.Push(4))
	for _, want := range []int{2, 3, 4} {
		v, ok = r.Pop()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok = r.Pop()
	assert.False(t, ok)
}

func TestRingRemoveIf(t *testing.T) {
	r := New[int](8)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}
	removed := r.RemoveIf(func(v int) bool { return v%2 == 0 })
	assert.Equal(t, 3, removed)
	assert.Equal(t, 3, r.Len())
	for _, want := range []int{1, 3, 5} {
		v, ok := r.Pop()
		require.True(t, ok)
		assert.Equal(t, want, v, "surviving elements keep their order")
	}
}

func TestRingRemoveIfWrapped(t *testing.T) {
	r := New[int](4)
	r.Push(1)
	r.Push(2)
	r.Pop()
	r.Pop()
	// head is now in the middle; these wrap around.
	for i := 10; i < 14; i++ {
		require.True(t, r.Push(i))
	}
	assert.Equal(t, 1, r.RemoveIf(func(v int) bool { return v == 12 }))
	for _, want := range []int{10, 11, 13} {
		v, ok := r.Pop()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
}

func TestRingFlush(t *testing.T) {
	r := New[string](2)
	r.Push("a")
	r.Push("b")
	r.Flush()
	assert.Equal(t, 0, r.Len())
	assert.True(t, r.Push("c"))
}
