package swcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	c "github.com/ranksewa/swcache/codec"
	gen "github.com/ranksewa/swcache/genstore"
	"github.com/ranksewa/swcache/internal/wire"
	pr "github.com/ranksewa/swcache/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memProvider struct {
	mu sync.Mutex
	m  map[string]memEntry
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.mu.Lock()
	p.m[key] = memEntry{v: value, exp: exp}
	p.mu.Unlock()
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

// countPrefix counts live provider keys starting with prefix.
func (p *memProvider) countPrefix(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k := range p.m {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

type hookEvent struct {
	kind string
	a, b string
}

// recHooks records every event; safe for concurrent use.
type recHooks struct {
	NopHooks
	mu     sync.Mutex
	events []hookEvent
}

func (h *recHooks) add(kind, a, b string) {
	h.mu.Lock()
	h.events = append(h.events, hookEvent{kind, a, b})
	h.mu.Unlock()
}

func (h *recHooks) SelfHealEntry(k, r string)         { h.add("selfheal", k, r) }
func (h *recHooks) PutFailed(s, k string, err error)  { h.add("putfailed", s, k) }
func (h *recHooks) PutSkipped(s, k, r string)         { h.add("putskipped", k, r) }
func (h *recHooks) StoreDeleted(s string)             { h.add("deleted", s, "") }
func (h *recHooks) InstallFailed(s string, err error) { h.add("installfailed", s, "") }
func (h *recHooks) NetworkFallback(st Strategy, p, src string) {
	h.add("fallback", p, src)
}

func (h *recHooks) count(kind, b string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.kind == kind && (b == "" || e.b == b) {
			n++
		}
	}
	return n
}

func newTestStorage(t *testing.T, mp pr.Provider, optsOpt func(*StorageOptions)) *Storage {
	t.Helper()
	opts := StorageOptions{
		Namespace: "site",
		Provider:  mp,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	s, err := NewStorage(opts)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return s
}

func mustOpen(t *testing.T, s *Storage, name string) *Store {
	t.Helper()
	st, err := s.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open(%q): %v", name, err)
	}
	return st
}

func testEntry(body string) Entry {
	return Entry{
		Status: 200,
		Header: map[string][]string{"Content-Type": {"text/css"}},
		Body:   []byte(body),
	}
}

// ==============================
// Store basics
// ==============================

func TestStorePutMatchDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newMemProvider(), nil)
	defer s.Close(ctx)

	st := mustOpen(t, s, "ranksewa-static-v3")
	k := "GET https://ranksewa.com/static/css/style.css"

	if _, ok, err := st.Match(ctx, k); err != nil || ok {
		t.Fatalf("Match on empty store: ok=%v err=%v", ok, err)
	}
	if err := st.Put(ctx, k, testEntry("body{}")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := st.Match(ctx, k)
	if err != nil || !ok {
		t.Fatalf("Match after Put: ok=%v err=%v", ok, err)
	}
	if got.Key != k || got.Status != 200 || string(got.Body) != "body{}" {
		t.Fatalf("unexpected entry: %+v", got)
	}

	// overwrite is last-write-wins
	if err := st.Put(ctx, k, testEntry("body{color:red}")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if got, _, _ := st.Match(ctx, k); string(got.Body) != "body{color:red}" {
		t.Fatalf("overwrite not visible: %q", got.Body)
	}

	keys, err := st.Keys(ctx)
	if err != nil || len(keys) != 1 || keys[0] != k {
		t.Fatalf("Keys: %v err=%v", keys, err)
	}

	if ok, err := st.Delete(ctx, k); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if ok, err := st.Delete(ctx, k); err != nil || ok {
		t.Fatalf("second Delete should report false: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := st.Match(ctx, k); ok {
		t.Fatalf("entry still matched after Delete")
	}
}

func TestStorageKeysAndLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newMemProvider(), nil)
	defer s.Close(ctx)

	mustOpen(t, s, "b-v1")
	mustOpen(t, s, "a-v1")
	mustOpen(t, s, "a-v1") // idempotent

	names, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if strings.Join(names, ",") != "a-v1,b-v1" {
		t.Fatalf("Keys = %v", names)
	}
	if _, ok, err := s.Lookup(ctx, "c-v1"); err != nil || ok {
		t.Fatalf("Lookup of missing store: ok=%v err=%v", ok, err)
	}
	if has, _ := s.Has(ctx, "c-v1"); has {
		t.Fatalf("Lookup must not create stores")
	}
	if _, err := s.Open(ctx, ""); err == nil {
		t.Fatalf("Open with empty name should fail")
	}
}

// TestCatalogSurvivesRestart reopens a Storage over the same provider and
// expects the stores and their entries to be found again.
func TestCatalogSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	s1 := newTestStorage(t, mp, nil)
	st := mustOpen(t, s1, "ranksewa-v1")
	if err := st.Put(ctx, "GET https://x/", testEntry("home")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	s2 := newTestStorage(t, mp, nil)
	names, err := s2.Keys(ctx)
	if err != nil || len(names) != 1 || names[0] != "ranksewa-v1" {
		t.Fatalf("Keys after restart: %v err=%v", names, err)
	}
	st2, ok, err := s2.Lookup(ctx, "ranksewa-v1")
	if err != nil || !ok {
		t.Fatalf("Lookup after restart: ok=%v err=%v", ok, err)
	}
	keys, _ := st2.Keys(ctx)
	if len(keys) != 1 || keys[0] != "GET https://x/" {
		t.Fatalf("request keys after restart: %v", keys)
	}
	if e, ok, _ := st2.Match(ctx, "GET https://x/"); !ok || string(e.Body) != "home" {
		t.Fatalf("entry after restart: ok=%v body=%q", ok, e.Body)
	}
}

// TestRestartRestoresGenerationFromCatalog: the store was recreated once
// (generation 1) before the restart. The new process starts with fresh
// in-memory counters and must still serve the entries written at 1.
func TestRestartRestoresGenerationFromCatalog(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	s1 := newTestStorage(t, mp, nil)
	mustOpen(t, s1, "ranksewa-v1")
	if _, err := s1.Delete(ctx, "ranksewa-v1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	st := mustOpen(t, s1, "ranksewa-v1")
	if g, _ := st.Generation(ctx); g != 1 {
		t.Fatalf("generation after recreate = %d, want 1", g)
	}
	if err := st.Put(ctx, "GET https://x/", testEntry("home")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	h := &recHooks{}
	s2 := newTestStorage(t, mp, func(o *StorageOptions) { o.Hooks = h })
	st2, ok, err := s2.Lookup(ctx, "ranksewa-v1")
	if err != nil || !ok {
		t.Fatalf("Lookup after restart: ok=%v err=%v", ok, err)
	}
	if g, _ := st2.Generation(ctx); g != 1 {
		t.Fatalf("generation after restart = %d, want 1", g)
	}
	if e, ok, _ := st2.Match(ctx, "GET https://x/"); !ok || string(e.Body) != "home" {
		t.Fatalf("entry after restart: ok=%v body=%q", ok, e.Body)
	}
	if h.count("selfheal", "gen_mismatch") != 0 {
		t.Fatalf("entry self-healed as stale after restart")
	}
}

type snapshotErrGenStore struct {
	gen.GenStore
	err error
}

func (g snapshotErrGenStore) SnapshotMany(context.Context, []string) (map[string]uint64, error) {
	return nil, g.err
}

func TestPersistCatalogReportsGenSnapshotError(t *testing.T) {
	ctx := context.Background()
	down := errors.New("gen store down")
	gs := snapshotErrGenStore{GenStore: gen.NewLocalGenStore(0, 0), err: down}
	s := newTestStorage(t, newMemProvider(), func(o *StorageOptions) { o.GenStore = gs })
	if _, err := s.Open(ctx, "ranksewa-v1"); !errors.Is(err, down) {
		t.Fatalf("Open with failing gen snapshot: err=%v", err)
	}
}

func TestCorruptCatalogStartsEmpty(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	_, _ = mp.Set(ctx, "catalog:site", []byte("garbage"), 1, 0)

	h := &recHooks{}
	s := newTestStorage(t, mp, func(o *StorageOptions) { o.Hooks = h })
	names, err := s.Keys(ctx)
	if err != nil || len(names) != 0 {
		t.Fatalf("Keys over corrupt catalog: %v err=%v", names, err)
	}
	if h.count("selfheal", "corrupt") != 1 {
		t.Fatalf("corrupt catalog not reported")
	}
	if _, ok, _ := mp.Get(ctx, "catalog:site"); ok {
		t.Fatalf("corrupt catalog not removed")
	}
}

// ==============================
// Self-heal tests (corruption/gen mismatch)
// ==============================

func TestSelfHealOnCorruptEntry(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	s := newTestStorage(t, mp, func(o *StorageOptions) { o.Hooks = h })
	st := mustOpen(t, s, "v")

	k := "GET https://x/a"
	storageKey := s.entryKey("v", k)
	if ok, err := mp.Set(ctx, storageKey, []byte("not-wire-format"), 1, time.Minute); err != nil || !ok {
		t.Fatalf("inject corrupt: ok=%v err=%v", ok, err)
	}
	if _, ok, err := st.Match(ctx, k); err != nil || ok {
		t.Fatalf("Match on corrupt should miss, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := mp.Get(ctx, storageKey); ok {
		t.Fatalf("corrupt entry was not deleted by self-heal")
	}

	// valid frame, undecodable payload
	_, _ = mp.Set(ctx, storageKey, wire.EncodeEntry(0, []byte("{")), 1, 0)
	if _, ok, _ := st.Match(ctx, k); ok {
		t.Fatalf("Match on undecodable payload should miss")
	}
	if h.count("selfheal", "corrupt") != 1 || h.count("selfheal", "decode") != 1 {
		t.Fatalf("unexpected hook events: %+v", h.events)
	}
}

func TestSelfHealOnGenMismatch(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	s := newTestStorage(t, mp, nil)
	st := mustOpen(t, s, "v")

	k := "GET https://x/a"
	payload, err := c.JSON[Entry]{}.Encode(Entry{Key: k, Status: 200})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	storageKey := s.entryKey("v", k)
	_, _ = mp.Set(ctx, storageKey, wire.EncodeEntry(0, payload), 1, 0)
	if _, ok, _ := st.Match(ctx, k); !ok {
		t.Fatalf("valid frame at current gen should hit")
	}

	if _, err := s.gen.Bump(ctx, s.genKey("v")); err != nil {
		t.Fatalf("Bump: %v", err)
	}
	if _, ok, _ := st.Match(ctx, k); ok {
		t.Fatalf("stale frame should miss")
	}
	if _, ok, _ := mp.Get(ctx, storageKey); ok {
		t.Fatalf("stale entry was not deleted by self-heal")
	}
}

// ==============================
// Generation guard
// ==============================

// TestPutWithGenAfterDeleteIsDropped models a cache write that was started
// before the store was deleted (version rotation) and lands afterwards.
func TestPutWithGenAfterDeleteIsDropped(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	s := newTestStorage(t, mp, func(o *StorageOptions) { o.Hooks = h })
	st := mustOpen(t, s, "old-v1")

	obs, err := st.Generation(ctx)
	if err != nil {
		t.Fatalf("Generation: %v", err)
	}
	if ok, err := s.Delete(ctx, "old-v1"); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}

	ok, err := st.PutWithGen(ctx, "GET https://x/late", testEntry("late"), obs)
	if ok || err != nil {
		t.Fatalf("late write should be skipped quietly: ok=%v err=%v", ok, err)
	}
	if has, _ := s.Has(ctx, "old-v1"); has {
		t.Fatalf("late write resurrected the deleted store")
	}
	if n := mp.countPrefix("entry:site:old-v1:"); n != 0 {
		t.Fatalf("late write left %d entries behind", n)
	}
	if h.count("putskipped", "gen_mismatch") != 1 {
		t.Fatalf("expected gen_mismatch skip, events=%+v", h.events)
	}
}

type failingGenStore struct{ bumpErr error }

func (s *failingGenStore) Snapshot(context.Context, string) (uint64, error) { return 0, nil }
func (s *failingGenStore) SnapshotMany(context.Context, []string) (map[string]uint64, error) {
	return map[string]uint64{}, nil
}
func (s *failingGenStore) Bump(context.Context, string) (uint64, error) { return 0, s.bumpErr }
func (s *failingGenStore) Cleanup(time.Duration)                        {}
func (s *failingGenStore) Close(context.Context) error                  { return nil }

type delErrProvider struct {
	*memProvider
	err error
}

var _ pr.Provider = (*delErrProvider)(nil)

func (p *delErrProvider) Del(_ context.Context, key string) error { return p.err }

// TestPutAfterDeleteWithoutGenBump covers the catalog check that backs up
// the generation guard when the bump itself failed.
func TestPutAfterDeleteWithoutGenBump(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	s := newTestStorage(t, mp, func(o *StorageOptions) {
		o.GenStore = &failingGenStore{bumpErr: errors.New("bump failed")}
	})
	st := mustOpen(t, s, "v")

	_, err := s.Delete(ctx, "v")
	var de *DeleteError
	if !errors.As(err, &de) || de.BumpErr == nil {
		t.Fatalf("expected DeleteError with BumpErr, got %v", err)
	}
	ok, err := st.PutWithGen(ctx, "GET https://x/", testEntry("x"), 0)
	if ok || !errors.Is(err, ErrStoreDeleted) {
		t.Fatalf("PutWithGen after delete: ok=%v err=%v", ok, err)
	}
	if n := mp.countPrefix("entry:site:v:"); n != 0 {
		t.Fatalf("frame left behind: %d", n)
	}
}

func TestDeleteBothFailReturnsError(t *testing.T) {
	ctx := context.Background()
	sentinelDelErr := errors.New("del failed")
	bumpFail := errors.New("bump failed")
	mp := &delErrProvider{memProvider: newMemProvider(), err: sentinelDelErr}

	s := newTestStorage(t, mp, func(o *StorageOptions) {
		o.GenStore = &failingGenStore{bumpErr: bumpFail}
	})
	st := mustOpen(t, s, "v")
	if err := st.Put(ctx, "GET https://x/", testEntry("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := s.Delete(ctx, "v")
	if !ok || err == nil {
		t.Fatalf("expected ok=true with error, got ok=%v err=%v", ok, err)
	}
	if !errors.Is(err, sentinelDelErr) || !errors.Is(err, bumpFail) {
		t.Fatalf("DeleteError should unwrap to both causes: %v", err)
	}
	if has, _ := s.Has(ctx, "v"); has {
		t.Fatalf("store must leave the catalog even on partial failure")
	}
}

func TestDeleteMissingStore(t *testing.T) {
	s := newTestStorage(t, newMemProvider(), nil)
	if ok, err := s.Delete(context.Background(), "nope"); ok || err != nil {
		t.Fatalf("Delete missing: ok=%v err=%v", ok, err)
	}
}

func TestClosedStorage(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newMemProvider(), nil)
	st := mustOpen(t, s, "v")
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Keys(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Keys after Close: %v", err)
	}
	if _, _, err := st.Match(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Match after Close: %v", err)
	}
}
