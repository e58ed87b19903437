package observability

import (
	"sync"
	"sync/atomic"
)

// Metrics tracks process counters exposed by the ops API.
type Metrics struct {
	InboundMessages   atomic.Int64
	QueuedMessages    atomic.Int64
	RejectedMessages  atomic.Int64
	TicketsOpened     atomic.Int64
	DeliveryFailures  atomic.Int64
	CallbacksHandled  atomic.Int64
	HTTPErrors        atomic.Int64
	mu                sync.Mutex
	ticketTransitions map[string]int64
}

func NewMetrics() *Metrics {
	return &Metrics{ticketTransitions: make(map[string]int64)}
}

// RecordTransition increments the counter for a ticket state transition.
func (m *Metrics) RecordTransition(name string) {
	m.mu.Lock()
	m.ticketTransitions[name]++
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	out := map[string]int64{
		"inbound_messages":  m.InboundMessages.Load(),
		"queued_messages":   m.QueuedMessages.Load(),
		"rejected_messages": m.RejectedMessages.Load(),
		"tickets_opened":    m.TicketsOpened.Load(),
		"delivery_failures": m.DeliveryFailures.Load(),
		"callbacks_handled": m.CallbacksHandled.Load(),
		"http_errors":       m.HTTPErrors.Load(),
	}
	m.mu.Lock()
	for name, count := range m.ticketTransitions {
		out["transition_"+name] = count
	}
	m.mu.Unlock()
	return out
}
