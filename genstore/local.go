package genstore

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type localGen struct {
	gen       uint64
	updatedAt time.Time
}

// LocalGenStore keeps generations in-process on a go-cache table. A counter
// untouched by Bump for longer than the retention expires and reads as 0
// again; that only affects stores deleted that long ago, whose entries
// have aged out of any sane provider.
type LocalGenStore struct {
	mu sync.Mutex // serializes Bump's read-modify-write
	c  *gocache.Cache
}

var _ GenStore = (*LocalGenStore)(nil)

// NewLocalGenStore prunes every cleanupInterval; retention <= 0 keeps
// counters forever.
func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	exp := gocache.NoExpiration
	if retention > 0 {
		exp = retention
	}
	if cleanupInterval < 0 {
		cleanupInterval = 0
	}
	return &LocalGenStore{c: gocache.New(exp, cleanupInterval)}
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	return s.get(k), nil
}

func (s *LocalGenStore) SnapshotMany(_ context.Context, ks []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(ks))
	for _, k := range ks {
		out[k] = s.get(k)
	}
	return out, nil
}

func (s *LocalGenStore) get(k string) uint64 {
	v, ok := s.c.Get(k)
	if !ok {
		return 0
	}
	return v.(localGen).gen
}

// Bump refreshes the counter's retention window.
func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.get(k) + 1
	s.c.SetDefault(k, localGen{gen: g, updatedAt: time.Now()})
	return g, nil
}

// Restore raises the counter for k to gen when it reads lower, and reports
// whether it did. Counters never move backwards.
func (s *LocalGenStore) Restore(_ context.Context, k string, gen uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.get(k) >= gen {
		return false, nil
	}
	s.c.SetDefault(k, localGen{gen: gen, updatedAt: time.Now()})
	return true, nil
}

// Cleanup drops counters last bumped before now-retention, independent of
// the table's own expiry.
func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, it := range s.c.Items() {
		if g, ok := it.Object.(localGen); ok && g.updatedAt.Before(cutoff) {
			s.c.Delete(k)
		}
	}
	s.c.DeleteExpired()
}

// Close drops all counters. The go-cache janitor stops once the store is
// unreachable.
func (s *LocalGenStore) Close(_ context.Context) error {
	s.c.Flush()
	return nil
}
