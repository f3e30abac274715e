package dispatch

import (
	"context"
	"errors"
	"sync"
)

// ErrDispatchActive is returned by Start when a coordinator already owns the
// ride. Callers must not replace a live run; they stop it first or back off.
var ErrDispatchActive = errors.New("dispatch already active for ride")

type entry struct {
	cancel context.CancelFunc
}

// Registry guarantees at most one live coordinator per ride within this
// process and owns the cancel functions used for cooperative shutdown.
type Registry struct {
	mu     sync.Mutex
	active map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*entry)}
}

// Start claims the ride for a new coordinator run. It returns the run context
// plus a release func the coordinator must defer; release only evicts this
// run's own entry, so a later run registered after a Stop cannot be clobbered
// by a stale cleanup.
func (r *Registry) Start(ctx context.Context, rideID string) (context.Context, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[rideID]; ok {
		return nil, nil, ErrDispatchActive
	}

	runCtx, cancel := context.WithCancel(ctx)
	e := &entry{cancel: cancel}
	r.active[rideID] = e

	release := func() {
		r.mu.Lock()
		if cur, ok := r.active[rideID]; ok && cur == e {
			delete(r.active, rideID)
		}
		r.mu.Unlock()
		cancel()
	}

	return runCtx, release, nil
}

// Stop cancels the ride's live coordinator, if any, and reports whether one
// was running. Used when a driver accepts or the ride otherwise leaves
// requested.
func (r *Registry) Stop(rideID string) bool {
	r.mu.Lock()
	e, ok := r.active[rideID]
	if ok {
		delete(r.active, rideID)
	}
	r.mu.Unlock()

	if ok {
		e.cancel()
	}
	return ok
}

// Active reports whether a coordinator currently owns the ride.
func (r *Registry) Active(rideID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[rideID]
	return ok
}

// Count returns the number of live coordinators.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
