// Package asynchook moves hook delivery off the fetch path. Events are
// queued to a fixed pool of workers and dropped when the queue is full.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(swcache.MultiHooks(raw, promhooks.New(reg)), 1, 1000)
//	defer hooks.Close()
//
//	storage, _ := swcache.NewStorage(swcache.StorageOptions{
//	    Namespace: "ranksewa",
//	    Provider:  provider,
//	    Hooks:     hooks,
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/ranksewa/swcache"
)

type Hooks struct {
	inner   swcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ swcache.Hooks = (*Hooks)(nil)

func New(inner swcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// send on a queue closed concurrently with the check above
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHealEntry(k, r string) { h.try(func() { h.inner.SelfHealEntry(k, r) }) }
func (h *Hooks) PutSkipped(s, k, r string) { h.try(func() { h.inner.PutSkipped(s, k, r) }) }
func (h *Hooks) StoreDeleted(s string)     { h.try(func() { h.inner.StoreDeleted(s) }) }
func (h *Hooks) PushDropped(r string)      { h.try(func() { h.inner.PushDropped(r) }) }
func (h *Hooks) PutFailed(s, k string, err error) {
	h.try(func() { h.inner.PutFailed(s, k, err) })
}
func (h *Hooks) InstallFailed(s string, err error) {
	h.try(func() { h.inner.InstallFailed(s, err) })
}
func (h *Hooks) NetworkFallback(st swcache.Strategy, p, src string) {
	h.try(func() { h.inner.NetworkFallback(st, p, src) })
}
