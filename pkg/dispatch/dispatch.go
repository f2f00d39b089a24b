// Package dispatch routes scan events to registered hooks. The engine
// emits events as pages complete; hooks forward them to logs, metrics
// endpoints, and trace collectors. Hook failures never fail the scan.
package dispatch

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sitehawk/sitehawk/pkg/events"
)

// Hook is the interface for event consumers.
type Hook interface {
	// OnEvent is called for each matching event.
	OnEvent(ctx context.Context, event events.Event) error

	// EventTypes returns the event types this hook handles.
	// Return nil or an empty slice to receive all events.
	EventTypes() []events.Type
}

// Dispatcher fans events out to hooks. It is safe for concurrent use.
type Dispatcher struct {
	mu    sync.RWMutex
	hooks []Hook

	async bool
	wg    sync.WaitGroup
}

// Config configures dispatcher behavior.
type Config struct {
	// Async calls hooks in goroutines so slow hooks cannot stall the
	// scheduling loop. Close waits for in-flight calls to finish.
	Async bool
}

// New creates an event dispatcher.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{async: cfg.Async}
}

// RegisterHook adds a hook. Hooks receive events matching their
// EventTypes filter.
func (d *Dispatcher) RegisterHook(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// Dispatch sends an event to every matching hook. Individual hook
// errors are logged and swallowed so all consumers see the event.
func (d *Dispatcher) Dispatch(ctx context.Context, event events.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, h := range d.hooks {
		if !hookWants(h, event.EventType()) {
			continue
		}
		if d.async {
			d.wg.Add(1)
			go func(hook Hook) {
				defer d.wg.Done()
				if err := hook.OnEvent(ctx, event); err != nil {
					logrus.Debugf("Event hook error: %v", err)
				}
			}(h)
		} else if err := h.OnEvent(ctx, event); err != nil {
			logrus.Debugf("Event hook error: %v", err)
		}
	}
}

// Close waits for in-flight async hook calls, then closes every hook
// that holds resources. After Close the dispatcher must not be used.
func (d *Dispatcher) Close() error {
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, h := range d.hooks {
		if c, ok := h.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	d.hooks = nil
	return firstErr
}

func hookWants(h Hook, t events.Type) bool {
	types := h.EventTypes()
	// Empty means the hook receives everything.
	if len(types) == 0 {
		return true
	}
	for _, et := range types {
		if et == t {
			return true
		}
	}
	return false
}
