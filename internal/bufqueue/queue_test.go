package bufqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocReleaseReuse(t *testing.T) {
	p := NewPool()

	b := p.Alloc()
	b.Append([]byte("hello"))
	assert.Equal(t, "hello", string(b.Bytes()))
	b.Release()

	b2 := p.Alloc()
	assert.Equal(t, 0, b2.Len(), "released buffer must come back empty")
}

func TestQueuePushPopOrder(t *testing.T) {
	q := NewQueue(4)
	p := NewPool()

	for _, s := range []string{"a", "b", "c"} {
		b := p.Alloc()
		b.Append([]byte(s))
		require.True(t, q.Push(b))
	}

	for _, want := range []string{"a", "b", "c"} {
		b, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, string(b.Bytes()))
		b.Release()
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue(2)
	p := NewPool()

	for _, s := range []string{"1", "2", "3"} {
		b := p.Alloc()
		b.Append([]byte(s))
		q.Push(b)
	}

	assert.Equal(t, uint64(1), q.Dropped())

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "2", string(first.Bytes()))
}

func TestQueuePopBlocksUntilClosed(t *testing.T) {
	q := NewQueue(4)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before Close or Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after Close")
	}
}

func TestQueuePushAfterCloseReleasesBuffer(t *testing.T) {
	q := NewQueue(2)
	p := NewPool()
	q.Close()

	b := p.Alloc()
	assert.False(t, q.Push(b))
	assert.Nil(t, b.pool, "a buffer pushed after Close must have been released to its pool")
}
