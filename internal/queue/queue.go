// internal/queue/queue.go
package queue

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jason-s-yu/popsauce/internal/protocol"
)

// DefaultCapacity is the size of every lobby inbox and outbox.
const DefaultCapacity = 20

// DefaultPollInterval is how long consumers sleep between empty dequeues.
const DefaultPollInterval = time.Millisecond

// Item is a queued message stamped with its arrival time. Origin is the
// connection it came from, nil for server generated messages.
type Item struct {
	Arrival time.Time
	Origin  io.Writer
	Message *protocol.Message
}

// MessageQueue is a bounded FIFO. Enqueue and Dequeue never block; a full
// queue drops new messages.
type MessageQueue struct {
	mu    sync.Mutex
	items []Item
	head  int
	size  int

	// Clock stamps arrivals. Tests replace it to control scoring time.
	Clock func() time.Time
}

// New returns a queue holding at most capacity items. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *MessageQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageQueue{
		items: make([]Item, capacity),
		Clock: time.Now,
	}
}

// Enqueue appends m and reports whether it was accepted.
func (q *MessageQueue) Enqueue(m *protocol.Message, origin io.Writer) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == len(q.items) {
		return false
	}
	tail := (q.head + q.size) % len(q.items)
	q.items[tail] = Item{Arrival: q.Clock(), Origin: origin, Message: m}
	q.size++
	return true
}

// Dequeue removes the oldest item. ok is false when the queue is empty.
func (q *MessageQueue) Dequeue() (item Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return Item{}, false
	}
	item = q.items[q.head]
	q.items[q.head] = Item{}
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return item, true
}

// Poll waits for the next item, sleeping interval between attempts. It
// returns false once ctx is done.
func (q *MessageQueue) Poll(ctx context.Context, interval time.Duration) (Item, bool) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for {
		if item, ok := q.Dequeue(); ok {
			return item, true
		}
		select {
		case <-ctx.Done():
			return Item{}, false
		case <-time.After(interval):
		}
	}
}

func (q *MessageQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size == 0
}

func (q *MessageQueue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size == len(q.items)
}

func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *MessageQueue) Cap() int {
	return len(q.items)
}
