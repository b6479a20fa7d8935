package event

import (
	"sync"

	"go.uber.org/zap"
)

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes the event
	Handle(event DomainEvent) error
	// HandledEvents returns the event names this handler handles, "*" for all
	HandledEvents() []string
}

// EventDispatcher dispatches domain events to registered handlers
type EventDispatcher interface {
	// Dispatch sends an event to all registered handlers
	Dispatch(event DomainEvent)
	// Subscribe registers a handler for events
	Subscribe(handler EventHandler)
	// Unsubscribe removes a handler
	Unsubscribe(handler EventHandler)
}

// HandlerFunc adapts a function to EventHandler
type HandlerFunc struct {
	Events []string
	Fn     func(DomainEvent) error
}

// Handle calls Fn
func (h *HandlerFunc) Handle(event DomainEvent) error {
	return h.Fn(event)
}

// HandledEvents returns Events
func (h *HandlerFunc) HandledEvents() []string {
	return h.Events
}

// InMemoryDispatcher is an in-memory implementation of EventDispatcher.
// Handler errors and panics are logged and never reach the publisher.
type InMemoryDispatcher struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	async    bool
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewInMemoryDispatcher creates a new InMemoryDispatcher
func NewInMemoryDispatcher(async bool, logger *zap.Logger) *InMemoryDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryDispatcher{
		handlers: make(map[string][]EventHandler),
		async:    async,
		logger:   logger,
	}
}

// Dispatch sends an event to all registered handlers
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	d.mu.RLock()
	handlers := d.handlers[event.EventName()]
	// Also get handlers registered for all events
	allHandlers := d.handlers["*"]
	combined := make([]EventHandler, 0, len(handlers)+len(allHandlers))
	combined = append(combined, handlers...)
	combined = append(combined, allHandlers...)
	d.mu.RUnlock()

	for _, handler := range combined {
		if d.async {
			d.wg.Add(1)
			go func(h EventHandler) {
				defer d.wg.Done()
				d.invoke(h, event)
			}(handler)
		} else {
			d.invoke(handler, event)
		}
	}
}

func (d *InMemoryDispatcher) invoke(h EventHandler, event DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Event handler panicked",
				zap.String("event", event.EventName()),
				zap.Any("panic", r))
		}
	}()
	if err := h.Handle(event); err != nil {
		d.logger.Warn("Event handler failed",
			zap.String("event", event.EventName()),
			zap.Error(err))
	}
}

// Wait blocks until all asynchronously dispatched handlers have returned
func (d *InMemoryDispatcher) Wait() {
	d.wg.Wait()
}

// Subscribe registers a handler for events
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		d.handlers[eventName] = append(d.handlers[eventName], handler)
	}
}

// Unsubscribe removes a handler
func (d *InMemoryDispatcher) Unsubscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		handlers := d.handlers[eventName]
		for i, h := range handlers {
			if h == handler {
				kept := make([]EventHandler, 0, len(handlers)-1)
				kept = append(kept, handlers[:i]...)
				d.handlers[eventName] = append(kept, handlers[i+1:]...)
				break
			}
		}
	}
}

// NullDispatcher is a no-op dispatcher for when events are not needed
type NullDispatcher struct{}

// NewNullDispatcher creates a new NullDispatcher
func NewNullDispatcher() *NullDispatcher {
	return &NullDispatcher{}
}

// Dispatch does nothing
func (d *NullDispatcher) Dispatch(event DomainEvent) {}

// Subscribe does nothing
func (d *NullDispatcher) Subscribe(handler EventHandler) {}

// Unsubscribe does nothing
func (d *NullDispatcher) Unsubscribe(handler EventHandler) {}
