// Package backtest implements a deterministic, single-threaded replay
// simulator with an event-driven execution model.
package backtest

import (
	"container/heap"
	"time"

	"github.com/shopspring/decimal"

	"bithumb-trader/internal/models"
)

// EventKind orders event types at equal timestamps: a candle's close must
// be visible before same-tick signals, orders, and fills.
type EventKind int

const (
	EventMarket EventKind = iota
	EventSignal
	EventOrder
	EventFill
)

// Event is anything the simulator loop processes.
type Event interface {
	Timestamp() time.Time
	Kind() EventKind
}

// MarketEvent carries a new candle for one symbol.
type MarketEvent struct {
	At     time.Time
	Candle models.Candle
}

func (e MarketEvent) Timestamp() time.Time { return e.At }
func (e MarketEvent) Kind() EventKind      { return EventMarket }

// SignalEvent carries a strategy decision to be turned into an order.
type SignalEvent struct {
	At       time.Time
	Symbol   string
	Side     models.OrderSide
	Strength decimal.Decimal
	Reason   string
}

func (e SignalEvent) Timestamp() time.Time { return e.At }
func (e SignalEvent) Kind() EventKind      { return EventSignal }

// OrderEvent carries a sized order headed for the execution handler.
type OrderEvent struct {
	At       time.Time
	Symbol   string
	Type     models.OrderType
	Side     models.OrderSide
	Quantity decimal.Decimal
	Price    *decimal.Decimal // limit price when Type is LIMIT
	OrderID  string
}

func (e OrderEvent) Timestamp() time.Time { return e.At }
func (e OrderEvent) Kind() EventKind      { return EventOrder }

// FillEvent carries an execution to be applied to the ledger.
type FillEvent struct {
	At         time.Time
	Symbol     string
	Side       models.OrderSide
	Quantity   decimal.Decimal
	FillPrice  decimal.Decimal
	Commission decimal.Decimal
	OrderID    string
	FillID     string
}

func (e FillEvent) Timestamp() time.Time { return e.At }
func (e FillEvent) Kind() EventKind      { return EventFill }

type sequencedEvent struct {
	event Event
	seq   uint64
}

// eventQueue pops events in (timestamp, kind, insertion order). The kind
// precedence Market < Signal < Order < Fill keeps same-tick processing
// deterministic; insertion order keeps it stable within a kind.
type eventQueue struct {
	items   []sequencedEvent
	nextSeq uint64
}

func newEventQueue() *eventQueue {
	return &eventQueue{}
}

func (q *eventQueue) PushEvent(e Event) {
	heap.Push((*eventHeap)(q), sequencedEvent{event: e, seq: q.nextSeq})
	q.nextSeq++
}

func (q *eventQueue) PopEvent() Event {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop((*eventHeap)(q)).(sequencedEvent).event
}

func (q *eventQueue) Len() int { return len(q.items) }

type eventHeap eventQueue

func (h *eventHeap) Len() int { return len(h.items) }

func (h *eventHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if !a.event.Timestamp().Equal(b.event.Timestamp()) {
		return a.event.Timestamp().Before(b.event.Timestamp())
	}
	if a.event.Kind() != b.event.Kind() {
		return a.event.Kind() < b.event.Kind()
	}
	return a.seq < b.seq
}

func (h *eventHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *eventHeap) Push(x interface{}) {
	h.items = append(h.items, x.(sequencedEvent))
}

func (h *eventHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
