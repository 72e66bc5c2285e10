package scheduler

import (
	"container/heap"
	"time"

	"bithumb-trader/internal/models"
)

// queuedOrder is one entry awaiting a worker slot.
type queuedOrder struct {
	request  models.OrderRequest
	priority models.OrderPriority
	seq      uint64 // submission order, breaks priority ties FIFO
	enqueued time.Time
}

// orderQueue is a max-heap on priority with FIFO tie-breaking. Not
// goroutine-safe; the scheduler serializes access under its own mutex.
type orderQueue struct {
	items   []*queuedOrder
	nextSeq uint64
}

func newOrderQueue() *orderQueue {
	q := &orderQueue{}
	heap.Init((*orderHeap)(q))
	return q
}

// Push enqueues a request at the given priority.
func (q *orderQueue) Push(req models.OrderRequest, priority models.OrderPriority, now time.Time) {
	item := &queuedOrder{
		request:  req,
		priority: priority,
		seq:      q.nextSeq,
		enqueued: now,
	}
	q.nextSeq++
	heap.Push((*orderHeap)(q), item)
}

// Pop removes the highest-priority entry, or nil when empty.
func (q *orderQueue) Pop() *queuedOrder {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop((*orderHeap)(q)).(*queuedOrder)
}

// Len returns the number of queued entries.
func (q *orderQueue) Len() int { return len(q.items) }

// Remove drops the queued entry with the given client order id, returning
// whether it was found.
func (q *orderQueue) Remove(clientOrderID string) bool {
	for i, item := range q.items {
		if item.request.ClientOrderID == clientOrderID {
			heap.Remove((*orderHeap)(q), i)
			return true
		}
	}
	return false
}

// orderHeap adapts orderQueue to container/heap.
type orderHeap orderQueue

func (h *orderHeap) Len() int { return len(h.items) }

func (h *orderHeap) Less(i, j int) bool {
	if h.items[i].priority != h.items[j].priority {
		return h.items[i].priority > h.items[j].priority
	}
	return h.items[i].seq < h.items[j].seq
}

func (h *orderHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *orderHeap) Push(x interface{}) {
	h.items = append(h.items, x.(*queuedOrder))
}

func (h *orderHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}
