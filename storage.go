package swcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	c "github.com/ranksewa/swcache/codec"
	gen "github.com/ranksewa/swcache/genstore"
	"github.com/ranksewa/swcache/internal/util"
	"github.com/ranksewa/swcache/internal/wire"
	pr "github.com/ranksewa/swcache/provider"
)

// ErrStoreDeleted is returned by Store.Put after the store was deleted.
var ErrStoreDeleted = errors.New("swcache: store deleted")

type SetCostFunc func(storageKey string, raw []byte) int64

// StorageOptions configure a Storage. Namespace and Provider are required.
type StorageOptions struct {
	Namespace string // isolates this storage inside a shared provider
	Provider  pr.Provider

	Codec           c.Codec[Entry] // nil => JSON
	GenStore        gen.GenStore   // nil => LocalGenStore
	Logger          Logger         // nil => NopLogger
	Hooks           Hooks          // nil => NopHooks
	EntryTTL        time.Duration  // 0 => no expiry
	CleanupInterval time.Duration  // local gen cleanup; 0 => 1h
	GenRetention    time.Duration  // 0 => 30d
	ComputeSetCost  SetCostFunc    // nil => len(raw)
}

// Storage is the set of named cache stores kept in one provider. It keeps a
// catalog of store names and the request keys each holds, persisted under
// "catalog:<ns>" and mirrored in memory. Entries live under
// "entry:<ns>:<store>:<hash>" framed with the store's generation.
//
// Catalog writes from several processes sharing one provider are
// last-write-wins.
type Storage struct {
	ns       string
	provider pr.Provider
	codec    c.Codec[Entry]
	gen      gen.GenStore
	log      Logger
	hooks    Hooks
	ttl      time.Duration
	cost     SetCostFunc

	mu     sync.Mutex
	loaded bool
	stores map[string]map[string]struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

func NewStorage(opts StorageOptions) (*Storage, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("swcache: provider is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("swcache: namespace is required")
	}
	s := &Storage{
		ns:       opts.Namespace,
		provider: opts.Provider,
		ttl:      opts.EntryTTL,
		stores:   make(map[string]map[string]struct{}),
	}
	s.codec = coalesce[c.Codec[Entry]](opts.Codec, c.JSON[Entry]{})
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.ComputeSetCost != nil {
		s.cost = opts.ComputeSetCost
	} else {
		s.cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	if opts.GenStore != nil {
		s.gen = opts.GenStore
	} else {
		sweep := coalesce[time.Duration](opts.CleanupInterval, defaultSweep)
		retention := coalesce[time.Duration](opts.GenRetention, defaultGenRetention)
		s.gen = gen.NewLocalGenStore(sweep, retention)
	}
	return s, nil
}

// Open returns the named store, creating it when absent.
func (s *Storage) Open(ctx context.Context, name string) (*Store, error) {
	if name == "" {
		return nil, fmt.Errorf("swcache: store name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	if _, ok := s.stores[name]; !ok {
		s.stores[name] = make(map[string]struct{})
		if err := s.persistLocked(ctx); err != nil {
			delete(s.stores, name)
			return nil, err
		}
		s.log.Debug("store created", Fields{"store": name})
	}
	return &Store{s: s, name: name}, nil
}

// Lookup returns the named store without creating it; ok is false when it
// does not exist.
func (s *Storage) Lookup(ctx context.Context, name string) (*Store, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return nil, false, err
	}
	if _, ok := s.stores[name]; !ok {
		return nil, false, nil
	}
	return &Store{s: s, name: name}, true, nil
}

// Has reports whether the named store exists.
func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return false, err
	}
	_, ok := s.stores[name]
	return ok, nil
}

// Keys lists store names in ascending order.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.stores))
	for n := range s.stores {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named store. It reports false when the store did not
// exist. The store leaves the catalog even when the returned error is a
// *DeleteError; leftover entries are stale by generation and self-heal.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	if err := s.loadLocked(ctx); err != nil {
		s.mu.Unlock()
		return false, err
	}
	keys, ok := s.stores[name]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	delete(s.stores, name)
	if err := s.persistLocked(ctx); err != nil {
		s.stores[name] = keys
		s.mu.Unlock()
		return false, err
	}
	s.mu.Unlock()

	var derr DeleteError
	derr.Store = name
	if _, err := s.gen.Bump(ctx, s.genKey(name)); err != nil {
		derr.BumpErr = err
	}
	for k := range keys {
		if err := s.provider.Del(ctx, s.entryKey(name, k)); err != nil && derr.DelErr == nil {
			derr.DelErr = err
		}
	}
	s.hooks.StoreDeleted(name)
	s.log.Info("store deleted", Fields{"store": name, "entries": len(keys)})
	if derr.BumpErr != nil || derr.DelErr != nil {
		return true, &derr
	}
	return true, nil
}

// Close releases the generation store and the provider.
func (s *Storage) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.gen.Close(ctx)
		err = s.provider.Close(ctx)
	})
	return err
}

func (s *Storage) catalogKey() string { return "catalog:" + s.ns }

func (s *Storage) genKey(store string) string { return "store:" + s.ns + ":" + store }

func (s *Storage) entryKey(store, requestKey string) string {
	return util.EntryKey("entry:"+s.ns+":"+store, requestKey)
}

func (s *Storage) loadLocked(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.loaded {
		return nil
	}
	raw, ok, err := s.provider.Get(ctx, s.catalogKey())
	if err != nil {
		return fmt.Errorf("swcache: load catalog: %w", err)
	}
	if ok {
		recs, err := wire.DecodeCatalog(raw)
		if err != nil {
			// start over; entries of forgotten stores self-heal or expire
			s.hooks.SelfHealEntry(s.catalogKey(), "corrupt")
			s.log.Warn("catalog corrupt; starting empty", Fields{"key": s.catalogKey()})
			_ = s.provider.Del(ctx, s.catalogKey())
		} else {
			for _, r := range recs {
				keys, _ := c.Lines{}.Decode(r.Payload)
				set := make(map[string]struct{}, len(keys))
				for _, k := range keys {
					set[k] = struct{}{}
				}
				s.stores[r.Name] = set
			}
			s.restoreGens(ctx, recs)
		}
	}
	s.loaded = true
	return nil
}

// genRestorer is implemented by generation stores that can lose their
// counters (genstore.LocalGenStore on restart).
type genRestorer interface {
	Restore(ctx context.Context, key string, gen uint64) (bool, error)
}

// restoreGens raises counters that read below the generation recorded in
// the catalog, so a process-local counter restarting at 0 still matches
// entries a persistent provider kept.
func (s *Storage) restoreGens(ctx context.Context, recs []wire.Record) {
	gr, ok := s.gen.(genRestorer)
	if !ok {
		return
	}
	for _, r := range recs {
		if r.Gen == 0 {
			continue
		}
		raised, err := gr.Restore(ctx, s.genKey(r.Name), r.Gen)
		if err != nil {
			s.log.Warn("gen restore failed", Fields{"store": r.Name, "err": err})
			continue
		}
		if raised {
			s.log.Info("store generation restored from catalog", Fields{"store": r.Name, "gen": r.Gen})
		}
	}
}

func (s *Storage) persistLocked(ctx context.Context) error {
	names := make([]string, 0, len(s.stores))
	for n := range s.stores {
		names = append(names, n)
	}
	sort.Strings(names)

	gens, err := s.gen.SnapshotMany(ctx, genKeys(s, names))
	if err != nil {
		return fmt.Errorf("swcache: persist catalog: %w", err)
	}
	recs := make([]wire.Record, 0, len(names))
	for _, n := range names {
		keys := make([]string, 0, len(s.stores[n]))
		for k := range s.stores[n] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		payload, _ := c.Lines{}.Encode(keys)
		recs = append(recs, wire.Record{Name: n, Gen: gens[s.genKey(n)], Payload: payload})
	}
	raw, err := wire.EncodeCatalog(recs)
	if err != nil {
		return err
	}
	ok, err := s.provider.Set(ctx, s.catalogKey(), raw, s.cost(s.catalogKey(), raw), 0)
	if err != nil {
		return fmt.Errorf("swcache: persist catalog: %w", err)
	}
	if !ok {
		return fmt.Errorf("swcache: persist catalog: rejected by provider")
	}
	return nil
}

func genKeys(s *Storage, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = s.genKey(n)
	}
	return out
}

// Store is one named cache store. Values are cheap handles; all state lives
// in the owning Storage.
type Store struct {
	s    *Storage
	name string
}

func (st *Store) Name() string { return st.name }

// Generation snapshots the store generation. Pass it to PutWithGen after a
// network round-trip so the write is dropped if the store was deleted
// meanwhile.
func (st *Store) Generation(ctx context.Context) (uint64, error) {
	return st.s.gen.Snapshot(ctx, st.s.genKey(st.name))
}

// Match returns the entry stored for requestKey. Corrupt, stale or
// undecodable entries are deleted and reported as a miss.
func (st *Store) Match(ctx context.Context, requestKey string) (Entry, bool, error) {
	s := st.s
	if s.closed.Load() {
		return Entry{}, false, ErrClosed
	}
	k := s.entryKey(st.name, requestKey)
	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	g, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		st.selfHeal(ctx, k, "corrupt")
		return Entry{}, false, nil
	}
	cur, err := st.Generation(ctx)
	if err != nil {
		s.log.Warn("gen snapshot error", Fields{"store": st.name, "err": err})
		return Entry{}, false, nil
	}
	if g != cur {
		st.selfHeal(ctx, k, "gen_mismatch")
		return Entry{}, false, nil
	}
	e, err := s.codec.Decode(payload)
	if err != nil {
		reason := "decode"
		if errors.Is(err, c.ErrTooLarge) {
			reason = "too_large"
		}
		st.selfHeal(ctx, k, reason)
		return Entry{}, false, nil
	}
	if e.Key != requestKey {
		s.hooks.SelfHealEntry(k, "key_mismatch")
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (st *Store) selfHeal(ctx context.Context, storageKey, reason string) {
	_ = st.s.provider.Del(ctx, storageKey)
	st.s.hooks.SelfHealEntry(storageKey, reason)
	st.s.log.Debug("entry self-healed", Fields{"store": st.name, "key": storageKey, "reason": reason})
}

// Put inserts or overwrites the entry for requestKey at the current
// generation.
func (st *Store) Put(ctx context.Context, requestKey string, e Entry) error {
	g, err := st.Generation(ctx)
	if err != nil {
		return fmt.Errorf("swcache: put %q: %w", requestKey, err)
	}
	ok, err := st.PutWithGen(ctx, requestKey, e, g)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("swcache: put %q: not admitted", requestKey)
	}
	return nil
}

// PutWithGen writes the entry iff the store generation still equals
// observedGen and the store still exists. ok=false with a nil error means
// the write was skipped (generation moved, store deleted, or the provider
// refused it under pressure).
func (st *Store) PutWithGen(ctx context.Context, requestKey string, e Entry, observedGen uint64) (bool, error) {
	s := st.s
	if s.closed.Load() {
		return false, ErrClosed
	}
	cur, err := st.Generation(ctx)
	if err != nil {
		return false, fmt.Errorf("swcache: put %q: %w", requestKey, err)
	}
	if cur != observedGen {
		s.hooks.PutSkipped(st.name, requestKey, "gen_mismatch")
		s.log.Debug("put skipped (gen mismatch)", Fields{"store": st.name, "key": requestKey, "obs": observedGen})
		return false, nil
	}

	e.Key = requestKey
	payload, err := s.codec.Encode(e)
	if err != nil {
		return false, fmt.Errorf("swcache: encode %q: %w", requestKey, err)
	}
	k := s.entryKey(st.name, requestKey)
	raw := wire.EncodeEntry(observedGen, payload)
	ok, err := s.provider.Set(ctx, k, raw, s.cost(k, raw), s.ttl)
	if err != nil {
		return false, fmt.Errorf("swcache: put %q: %w", requestKey, err)
	}
	if !ok {
		s.hooks.PutSkipped(st.name, requestKey, "rejected")
		s.log.Debug("put rejected by provider (pressure)", Fields{"store": st.name, "key": requestKey})
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	keys, exists := s.stores[st.name]
	if !exists {
		// deleted between the generation check and now; the frame is stale
		_ = s.provider.Del(ctx, k)
		return false, ErrStoreDeleted
	}
	if _, known := keys[requestKey]; !known {
		keys[requestKey] = struct{}{}
		if err := s.persistLocked(ctx); err != nil {
			s.log.Warn("catalog persist failed after put", Fields{"store": st.name, "err": err})
		}
	}
	return true, nil
}

// Delete removes one entry; false when it was not present.
func (st *Store) Delete(ctx context.Context, requestKey string) (bool, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return false, err
	}
	keys, ok := s.stores[st.name]
	if !ok {
		return false, nil
	}
	if _, ok := keys[requestKey]; !ok {
		return false, nil
	}
	if err := s.provider.Del(ctx, s.entryKey(st.name, requestKey)); err != nil {
		return false, err
	}
	delete(keys, requestKey)
	return true, s.persistLocked(ctx)
}

// Keys lists the request keys recorded for this store, ascending. Keys of
// entries evicted by the provider may still be listed.
func (st *Store) Keys(ctx context.Context) ([]string, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	set := s.stores[st.name]
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
