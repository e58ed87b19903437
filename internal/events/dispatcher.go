package events

import (
	"sync"

	"go.uber.org/zap"
)

// Handler consumes a published event.
type Handler func(Event)

// Dispatcher fans events out to subscribers in-process.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for the named event.
func (d *Dispatcher) Subscribe(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = append(d.handlers[name], h)
}

// Publish delivers the event to all subscribers. Handler panics are
// contained so one subscriber cannot take down the caller.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.RLock()
	handlers := d.handlers[ev.Name]
	d.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("event handler panic",
						zap.String("event", ev.Name),
						zap.Any("panic", r),
					)
				}
			}()
			h(ev)
		}()
	}
}
