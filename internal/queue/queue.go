// Package queue provides unbounded FIFO queues used to decouple producers from
// slow consumers.
package queue

// Queue is a FIFO queue of T. Implementations are not safe for concurrent use
// unless noted otherwise.
type Queue[T any] interface {
	// Enqueue adds an item to the tail of the queue.
	Enqueue(T)
	// Dequeue removes and returns the item at the head of the queue.
	// ok is false when the queue is empty.
	Dequeue() (item T, ok bool)
	// Peek returns the item at the head of the queue without removing it.
	Peek() (item T, ok bool)
	// Reset drops all items.
	Reset()
	// IsEmpty reports whether the queue holds no items.
	IsEmpty() bool
	// Length returns the number of items in the queue.
	Length() int
}
