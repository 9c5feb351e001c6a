package transport

import (
	"context"
	"sort"
	"sync"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/lateralcache/pkg/store"
)

// ListenerRegistry holds at most one running Listener per port for the process.
type ListenerRegistry struct {
	mu        sync.Mutex
	listeners map[int]*Listener
}

// NewListenerRegistry returns an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{listeners: make(map[int]*Listener)}
}

// Ensure returns the listener registered for port, building and starting one when absent.
func (r *ListenerRegistry) Ensure(ctx context.Context, port int, st store.Store, opts ...ListenerOption) (*Listener, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.listeners[port]; ok {
		return l, nil
	}

	l, err := NewListener(st, opts...)
	if err != nil {
		return nil, err
	}

	err = l.Start(ctx)
	if err != nil {
		return nil, ewrap.Wrapf(err, "start listener on port %d", port)
	}

	r.listeners[port] = l

	return l, nil
}

// Get returns the listener registered for port.
func (r *ListenerRegistry) Get(port int) (*Listener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listeners[port]

	return l, ok
}

// Ports returns the registered ports in ascending order.
func (r *ListenerRegistry) Ports() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int, 0, len(r.listeners))
	for p := range r.listeners {
		out = append(out, p)
	}

	sort.Ints(out)

	return out
}

// Shutdown stops and forgets every listener.
func (r *ListenerRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	listeners := r.listeners
	r.listeners = make(map[int]*Listener)
	r.mu.Unlock()

	var firstErr error

	for _, l := range listeners {
		err := l.Shutdown(ctx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
