// Package bufqueue implements the pool of reusable output-line buffers and
// the bounded, drop-oldest queue that hands them from the pty-reader to the
// stdout-pump.
//
// The pool is sync.Pool underneath (pull, use, return with capacity
// preserved); the ring storage is github.com/hedzr/go-ringbuf/v2's generic
// RingBuffer with the drop-oldest eviction and condvar wakeup layered on
// top.
package bufqueue

import "sync"

// Buffer is a growable byte buffer owned by a Pool. A Buffer is held by at
// most one goroutine at a time; Release returns it to its pool with its
// length cleared but its capacity preserved.
type Buffer struct {
	pool *Pool
	buf  []byte
}

// Bytes returns the buffer's current contents.
func (b *Buffer) Bytes() []byte { return b.buf }

// Append appends p to the buffer's contents.
func (b *Buffer) Append(p []byte) { b.buf = append(b.buf, p...) }

// Grow calls f with the buffer's current contents as the append
// destination and keeps whatever f returns — the same shape as
// strftime.AppendFormat or any other append-style formatter, letting the
// formatter package grow a Buffer's backing slice directly instead of
// allocating an intermediate one.
func (b *Buffer) Grow(f func([]byte) []byte) { b.buf = f(b.buf) }

// Len reports the number of bytes currently held.
func (b *Buffer) Len() int { return len(b.buf) }

// Release returns the buffer to its owning pool. A buffer is held by at
// most one goroutine at a time; calling Release more than once, or using b
// after Release, is a programming error.
func (b *Buffer) Release() {
	if b.pool == nil {
		return
	}
	b.buf = b.buf[:0]
	b.pool.put(b)
}

// Pool hands out reusable Buffers. The zero value is not usable; use
// NewPool.
type Pool struct {
	sp sync.Pool
}

// NewPool constructs an empty buffer pool.
func NewPool() *Pool {
	p := &Pool{}
	p.sp.New = func() any {
		return &Buffer{buf: make([]byte, 0, 256)}
	}
	return p
}

// Alloc returns an empty buffer, reusing a returned one when available.
func (p *Pool) Alloc() *Buffer {
	b := p.sp.Get().(*Buffer)
	b.pool = p
	b.buf = b.buf[:0]
	return b
}

func (p *Pool) put(b *Buffer) {
	b.pool = nil
	p.sp.Put(b)
}
