package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrHandlerAlreadyRegistered = errors.New("handler already registered")

// Dispatcher fans an event out to every handler registered for its name.
// Handlers run sequentially in registration order; all of them run even when
// one fails, and the failures are joined.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]EventHandler)}
}

func (d *Dispatcher) Register(eventName string, handler EventHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, h := range d.handlers[eventName] {
		if h == handler {
			return fmt.Errorf("%w: %s", ErrHandlerAlreadyRegistered, eventName)
		}
	}
	d.handlers[eventName] = append(d.handlers[eventName], handler)
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler(nil), d.handlers[event.GetName()]...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) Remove(eventName string, handler EventHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hs := d.handlers[eventName]
	for i, h := range hs {
		if h == handler {
			d.handlers[eventName] = append(hs[:i:i], hs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (d *Dispatcher) Has(eventName string, handler EventHandler) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, h := range d.handlers[eventName] {
		if h == handler {
			return true
		}
	}
	return false
}

func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = make(map[string][]EventHandler)
}
