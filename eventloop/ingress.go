package eventloop

const (
	// chunkSize is the number of entries per node in a chunkedQueue.
	chunkSize = 128
)

// chunkedQueue is a chunked linked-list FIFO.
//
// Thread Safety: This struct is NOT thread-safe. The loop-owned queues
// (microtasks, immediates) are only touched from the loop goroutine, and
// the completion queue is guarded by the loop's ingress mutex.
//
// Fixed-size arrays provide cache locality and amortize allocations.
type chunkedQueue[T any] struct { // betteralign:ignore
	head   *chunk[T]
	tail   *chunk[T]
	length int
}

// chunk is a fixed-size node in the chunked linked-list.
// It uses readPos/pos cursors for O(1) push/pop without shifting.
type chunk[T any] struct {
	items   [chunkSize]T
	next    *chunk[T]
	readPos int // First unread slot
	pos     int // First unused slot
}

// Push adds an entry to the back of the queue.
func (q *chunkedQueue[T]) Push(v T) {
	if q.tail == nil {
		q.tail = &chunk[T]{}
		q.head = q.tail
	}

	if q.tail.pos == len(q.tail.items) {
		newTail := &chunk[T]{}
		q.tail.next = newTail
		q.tail = newTail
	}

	q.tail.items[q.tail.pos] = v
	q.tail.pos++
	q.length++
}

// Peek returns the front entry without removing it.
func (q *chunkedQueue[T]) Peek() (v T, ok bool) {
	if q.length == 0 {
		return v, false
	}
	return q.head.items[q.head.readPos], true
}

// Pop removes and returns the front entry.
//
// Returns false if the queue is empty.
func (q *chunkedQueue[T]) Pop() (v T, ok bool) {
	if q.length == 0 {
		return v, false
	}

	var zero T
	v = q.head.items[q.head.readPos]
	// Zero out popped slot for GC safety
	q.head.items[q.head.readPos] = zero
	q.head.readPos++
	q.length--

	// If chunk is now exhausted, free it or reset cursors
	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
		} else {
			q.head = q.head.next
		}
	}

	return v, true
}

// Length returns the queue length.
func (q *chunkedQueue[T]) Length() int {
	return q.length
}
