package asynchook

import (
	"sync"
	"testing"

	"github.com/ranksewa/swcache"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countHooks struct {
	swcache.NopHooks
	mu    sync.Mutex
	n     int
	block chan struct{}
}

func (c *countHooks) StoreDeleted(string) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func TestDeliversAndCloses(t *testing.T) {
	inner := &countHooks{}
	h := New(inner, 2, 16)
	for i := 0; i < 10; i++ {
		h.StoreDeleted("ranksewa-v1")
	}
	h.Close()
	h.Close() // idempotent

	if inner.n != 10 {
		t.Fatalf("delivered %d of 10", inner.n)
	}
	h.StoreDeleted("late")
	if h.Dropped() != 1 {
		t.Fatalf("event after Close should be dropped, dropped=%d", h.Dropped())
	}
}

func TestDropsWhenFull(t *testing.T) {
	inner := &countHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// one event held by the worker, one queued, the rest dropped
	for i := 0; i < 5; i++ {
		h.StoreDeleted("x")
	}
	close(inner.block)
	h.Close()

	if got := uint64(inner.n) + h.Dropped(); got != 5 {
		t.Fatalf("delivered %d + dropped %d != 5", inner.n, h.Dropped())
	}
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a full queue")
	}
}
