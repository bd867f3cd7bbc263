package profile

import (
	"context"
	"sync"
)

// Registry owns the coordinators, keyed by session user id. Session code
// reaches its coordinator through here rather than package state, so
// concurrent sessions (tests, multi-tab) never share a handle.
type Registry struct {
	mu      sync.Mutex
	coords  map[string]*Coordinator
	factory func(userID string) *Coordinator
}

func NewRegistry(factory func(userID string) *Coordinator) *Registry {
	return &Registry{
		coords:  make(map[string]*Coordinator),
		factory: factory,
	}
}

// Acquire returns the session's coordinator, starting one on first use.
// A failed start still registers the coordinator: it sits in Fatal with the
// banner raised and the manual Retry affordance live.
func (r *Registry) Acquire(ctx context.Context, userID string) (*Coordinator, error) {
	r.mu.Lock()
	c, ok := r.coords[userID]
	if !ok {
		c = r.factory(userID)
		r.coords[userID] = c
	}
	r.mu.Unlock()

	if !ok {
		if err := c.Start(ctx); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (r *Registry) Peek(userID string) (*Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coords[userID]
	return c, ok
}

// Drop ends the session: subscription torn down, retry timers cancelled.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	c, ok := r.coords[userID]
	delete(r.coords, userID)
	r.mu.Unlock()
	if ok {
		c.Stop()
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	coords := r.coords
	r.coords = make(map[string]*Coordinator)
	r.mu.Unlock()
	for _, c := range coords {
		c.Stop()
	}
}
