package bufqueue

import (
	"sync"

	ringbuf "github.com/hedzr/go-ringbuf/v2"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// Queue is a bounded, drop-oldest FIFO of *Buffer values shared between the
// pty-reader goroutine (producer) and the stdout-pump goroutine (consumer).
// The producer never blocks: when the ring is full the oldest entry is
// evicted to make room. go-ringbuf's RingBuffer reports full instead of
// evicting, so Push does the evict-then-retry itself.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	rb       mpmc.RingBuffer[*Buffer]
	capacity uint32
	closed   bool

	// dropped counts buffers evicted to make room for a newer one; exposed
	// for diagnostics (debug logging), not part of the blocking contract.
	dropped uint64
}

// NewQueue constructs a queue that holds at most capacity buffers before it
// starts dropping the oldest to make room for new ones.
func NewQueue(capacity int) *Queue {
	// go-ringbuf rounds its backing store up to a power of 2 and reserves
	// one slot internally to distinguish full from empty, so the usable
	// size it reports rarely matches capacity exactly. Over-allocate and
	// enforce the exact logical capacity ourselves in Push.
	q := &Queue{
		rb:       ringbuf.New[*Buffer](uint32(capacity) + 1),
		capacity: uint32(capacity),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues b, evicting the oldest queued buffer first if the queue is
// at capacity. Push on a closed queue releases b back to its pool and
// returns false.
func (q *Queue) Push(b *Buffer) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		b.Release()
		return false
	}

	if err := q.rb.Enqueue(b); err != nil {
		if old, derr := q.rb.Dequeue(); derr == nil {
			old.Release()
			q.dropped++
		}
		_ = q.rb.Enqueue(b)
	}
	for q.rb.Size() > q.capacity {
		old, derr := q.rb.Dequeue()
		if derr != nil {
			break
		}
		old.Release()
		q.dropped++
	}
	q.cond.Signal()
	return true
}

// Pop blocks until a buffer is available or the queue is closed and
// drained: it waits on the condvar while empty-and-open and returns
// (nil, false) once empty-and-closed.
func (q *Queue) Pop() (*Buffer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.rb.IsEmpty() && !q.closed {
		q.cond.Wait()
	}
	if q.rb.IsEmpty() {
		return nil, false
	}
	b, _ := q.rb.Dequeue()
	return b, true
}

// Close marks the queue closed and wakes every blocked Pop. Buffers already
// queued are still returned by Pop until the queue drains; Push after Close
// is a no-op that releases its argument.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Dropped reports how many buffers have been evicted by the drop-oldest
// policy so far.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
