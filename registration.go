package swcache

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
)

// Registration is the host side of the worker lifecycle: it installs and
// activates candidate versions one at a time and routes every request to
// the worker that currently controls the scope.
type Registration struct {
	mu     sync.Mutex // serializes Register
	active atomic.Pointer[Worker]
	log    Logger
}

func NewRegistration(log Logger) *Registration {
	return &Registration{log: coalesce[Logger](log, NopLogger{})}
}

// Register installs w, activates it and makes it the controlling worker.
// An install failure discards w and leaves the previous worker in control.
// Activation errors are returned after w has claimed; the stores it could
// not delete are retried by the next activation.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := w.Install(ctx); err != nil {
		return err
	}
	actErr := w.Activate(ctx)

	prev := r.active.Swap(w)
	if prev != nil && prev != w {
		prev.setState(StateRedundant)
	}
	r.log.Info("worker claimed clients", Fields{"store": w.CacheName()})
	if actErr != nil {
		r.log.Warn("activate incomplete", Fields{"store": w.CacheName(), "err": actErr})
	}
	return actErr
}

// Active returns the controlling worker, or nil before the first
// successful Register.
func (r *Registration) Active() *Worker { return r.active.Load() }

// ServeHTTP hands the request to the controlling worker.
func (r *Registration) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	w := r.active.Load()
	if w == nil {
		http.Error(rw, ErrNoWorker.Error(), http.StatusServiceUnavailable)
		return
	}
	w.ServeHTTP(rw, req)
}
