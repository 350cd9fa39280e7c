package swcache

import (
	"context"
	"mime"
	"net/http"
	"strings"
)

// bypass forwards req untouched. No cache interaction and no fallback: a
// network error reaches the caller.
func (w *Worker) bypass(req *http.Request) (*http.Response, error) {
	return w.net.Do(outgoing(req))
}

// networkOnly forwards req; a network error is a rejection.
func (w *Worker) networkOnly(req *http.Request) (*http.Response, error) {
	return w.net.Do(outgoing(req))
}

// networkFirst serves the live response and keeps a copy of successful
// static assets and HTML documents. Offline, it falls back to the cached
// entry, then to the offline document for HTML requests, then to 503.
func (w *Worker) networkFirst(ev *ExtendableEvent, req *http.Request) (*http.Response, error) {
	st, obs := w.openStore(ev.Context())
	key := KeyFor(req)

	resp, err := w.net.Do(outgoing(req))
	if err == nil {
		if resp.StatusCode == http.StatusOK && (w.isStatic(req.URL.Path) || isHTML(resp.Header)) {
			w.cacheCopy(ev, st, obs, key, resp)
		}
		return resp, nil
	}
	w.log.Debug("network failed", Fields{"path": req.URL.Path, "strategy": string(StrategyNetworkFirst), "err": err})

	if e, ok := w.match(ev.Context(), st, key); ok {
		w.hooks.NetworkFallback(StrategyNetworkFirst, req.URL.Path, "cache")
		return e.Response(req), nil
	}
	if acceptsHTML(req) {
		if e, ok := w.match(ev.Context(), st, w.offlineKey()); ok {
			w.hooks.NetworkFallback(StrategyNetworkFirst, req.URL.Path, "offline_document")
			return e.Response(req), nil
		}
	}
	w.hooks.NetworkFallback(StrategyNetworkFirst, req.URL.Path, "offline")
	return offlineResponse(req), nil
}

// cacheFirst answers from the store without touching the network; a miss
// is fetched and a 200 copy stored.
func (w *Worker) cacheFirst(ev *ExtendableEvent, req *http.Request) (*http.Response, error) {
	st, obs := w.openStore(ev.Context())
	key := KeyFor(req)

	if e, ok := w.match(ev.Context(), st, key); ok {
		return e.Response(req), nil
	}
	resp, err := w.net.Do(outgoing(req))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		w.cacheCopy(ev, st, obs, key, resp)
	}
	return resp, nil
}

// navigate tries the network for page loads and keeps a copy keyed by the
// navigation URL. Offline it serves that exact entry; the generic offline
// document is used only with Config.NavigateFallback.
func (w *Worker) navigate(ev *ExtendableEvent, req *http.Request) (*http.Response, error) {
	st, obs := w.openStore(ev.Context())
	key := KeyFor(req)

	resp, err := w.net.Do(outgoing(req))
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			w.cacheCopy(ev, st, obs, key, resp)
		}
		return resp, nil
	}
	w.log.Debug("network failed", Fields{"path": req.URL.Path, "strategy": string(StrategyNavigate), "err": err})

	if e, ok := w.match(ev.Context(), st, key); ok {
		w.hooks.NetworkFallback(StrategyNavigate, req.URL.Path, "cache")
		return e.Response(req), nil
	}
	if w.cfg.NavigateFallback {
		if e, ok := w.match(ev.Context(), st, w.offlineKey()); ok {
			w.hooks.NetworkFallback(StrategyNavigate, req.URL.Path, "offline_document")
			return e.Response(req), nil
		}
	}
	return nil, ErrNotCached
}

// observed is a generation snapshot taken before a network round-trip.
type observed struct {
	gen uint64
	ok  bool
}

// openStore returns the current store and its generation. A nil store
// means the cache is unavailable; strategies then behave as network-only.
// Fetches never create stores: a worker whose store was deleted by a newer
// version's activation must not bring it back.
func (w *Worker) openStore(ctx context.Context) (*Store, observed) {
	st, ok, err := w.storage.Lookup(ctx, w.cfg.CacheName())
	if err != nil {
		w.log.Warn("cache store unavailable", Fields{"store": w.cfg.CacheName(), "err": err})
		return nil, observed{}
	}
	if !ok {
		return nil, observed{}
	}
	g, err := st.Generation(ctx)
	if err != nil {
		w.log.Warn("gen snapshot error", Fields{"store": st.Name(), "err": err})
		return st, observed{}
	}
	return st, observed{gen: g, ok: true}
}

func (w *Worker) match(ctx context.Context, st *Store, key string) (Entry, bool) {
	if st == nil {
		return Entry{}, false
	}
	e, ok, err := st.Match(ctx, key)
	if err != nil {
		w.log.Debug("cache read failed", Fields{"store": st.Name(), "key": key, "err": err})
		return Entry{}, false
	}
	return e, ok
}

// cacheCopy duplicates resp and schedules the best-effort write of the copy
// on ev. resp keeps an independent body for the caller.
func (w *Worker) cacheCopy(ev *ExtendableEvent, st *Store, obs observed, key string, resp *http.Response) {
	if st == nil || !obs.ok {
		return
	}
	body, complete, err := duplicate(resp, w.cfg.MaxEntryBytes)
	if err != nil {
		w.log.Debug("response body read failed; not cached", Fields{"key": key, "err": err})
		return
	}
	if !complete {
		w.hooks.PutSkipped(st.Name(), key, "too_large")
		return
	}
	e := entryFrom(key, resp, body)
	ev.WaitUntil(func(ctx context.Context) error {
		w.cachePut(ctx, st, obs, key, e)
		return nil
	})
}

// cachePut never fails the caller: errors are reported and dropped.
func (w *Worker) cachePut(ctx context.Context, st *Store, obs observed, key string, e Entry) {
	if _, err := st.PutWithGen(ctx, key, e, obs.gen); err != nil {
		w.hooks.PutFailed(st.Name(), key, err)
		w.log.Debug("cache write failed", Fields{"store": st.Name(), "key": key, "err": err})
	}
}

func (w *Worker) offlineKey() string {
	u, err := w.resolve(w.cfg.OfflinePath)
	if err != nil {
		u = w.cfg.Origin
	}
	return RequestKey(http.MethodGet, u)
}

func (w *Worker) isStatic(path string) bool {
	for _, p := range w.cfg.StaticPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isHTML(h http.Header) bool {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mt == "text/html"
}

func acceptsHTML(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
