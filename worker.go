package swcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
)

// Fetcher is the network. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config is the immutable policy of one worker version. Build it once at
// startup (ProfileCacheFirst / ProfileNetworkFirst or by hand) and pass it
// to NewWorker; the worker keeps its own copy.
type Config struct {
	// Origin is the controlled scope. Requests for any other scheme/host
	// are bypassed.
	Origin *url.URL

	// Prefix and Version form the store name "<Prefix>-<Version>". Bumping
	// Version is the only way to invalidate everything cached before.
	Prefix  string
	Version string

	// Precache lists absolute paths fetched and stored at install, in order.
	Precache []string

	Routes Routes

	// DefaultStrategy handles same-origin GETs no rule matched:
	// StrategyNetworkFirst or StrategyCacheFirst.
	DefaultStrategy Strategy

	// NavigateFallback makes the navigate strategy serve the cached offline
	// document when both the network and the exact cache entry miss. Off, a
	// miss falls through to the synthesized 503.
	NavigateFallback bool

	// OfflinePath is the document served to HTML requests when offline.
	OfflinePath string

	// StaticPrefixes mark paths network-first may cache regardless of the
	// response content type.
	StaticPrefixes []string

	// MaxEntryBytes caps the body size written to the store. Larger
	// responses are still served in full, just not cached.
	MaxEntryBytes int64

	// InstallConcurrency bounds parallel precache fetches; 0 => 4.
	InstallConcurrency int
}

// CacheName is the name of the store this version owns.
func (c Config) CacheName() string { return c.Prefix + "-" + c.Version }

func (c Config) clone() Config {
	cp := c
	u := *c.Origin
	cp.Origin = &u
	cp.Precache = append([]string(nil), c.Precache...)
	cp.StaticPrefixes = append([]string(nil), c.StaticPrefixes...)
	cp.Routes.AlwaysFresh = append([]Rule(nil), c.Routes.AlwaysFresh...)
	cp.Routes.AlwaysNetwork = append([]Rule(nil), c.Routes.AlwaysNetwork...)
	return cp
}

func (c Config) validate() error {
	if c.Origin == nil || c.Origin.Scheme == "" || c.Origin.Host == "" {
		return fmt.Errorf("swcache: config: origin must be an absolute URL")
	}
	if c.Version == "" {
		return fmt.Errorf("swcache: config: version is required")
	}
	if _, ok := ParseStrategy(string(c.DefaultStrategy)); !ok {
		return fmt.Errorf("swcache: config: invalid default strategy %q", c.DefaultStrategy)
	}
	for _, p := range c.Precache {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("swcache: config: precache path %q must be absolute", p)
		}
	}
	return nil
}

// WorkerOptions carry the collaborators of a worker. Storage and Network
// are required.
type WorkerOptions struct {
	Storage *Storage
	Network Fetcher
	Logger  Logger // nil => NopLogger
	Hooks   Hooks  // nil => NopHooks
}

// Worker is one deployed version of the offline cache manager: it owns the
// store named by its Config, runs the install/activate transitions and
// answers fetches.
type Worker struct {
	cfg     Config
	storage *Storage
	net     Fetcher
	log     Logger
	hooks   Hooks

	state       atomic.Int32
	skipWaiting atomic.Bool
}

func NewWorker(cfg Config, opts WorkerOptions) (*Worker, error) {
	if opts.Storage == nil {
		return nil, fmt.Errorf("swcache: storage is required")
	}
	if opts.Network == nil {
		return nil, fmt.Errorf("swcache: network is required")
	}
	cfg.Prefix = coalesce(cfg.Prefix, defaultPrefix)
	cfg.OfflinePath = coalesce(cfg.OfflinePath, defaultOfflinePath)
	cfg.MaxEntryBytes = coalesce[int64](cfg.MaxEntryBytes, defaultMaxEntryBytes)
	cfg.InstallConcurrency = coalesce(cfg.InstallConcurrency, 4)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	w := &Worker{
		cfg:     cfg.clone(),
		storage: opts.Storage,
		net:     opts.Network,
	}
	w.log = coalesce[Logger](opts.Logger, NopLogger{})
	w.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return w, nil
}

func (w *Worker) Config() Config { return w.cfg.clone() }

func (w *Worker) CacheName() string { return w.cfg.CacheName() }

// Route reports the strategy the interceptor picks for r without doing I/O.
func (w *Worker) Route(r *http.Request) Decision { return route(&w.cfg, r) }

// Fetch answers one request. Best-effort cache writes are registered on ev;
// the caller waits on ev after consuming the response. Only bypassed
// requests return a network error; every other failure is answered with a
// cached or synthesized response.
func (w *Worker) Fetch(ev *ExtendableEvent, req *http.Request) (*http.Response, error) {
	d := w.Route(req)
	w.log.Debug("fetch routed", Fields{"path": req.URL.Path, "strategy": string(d.Strategy), "reason": d.Reason})

	var (
		resp *http.Response
		err  error
	)
	switch d.Strategy {
	case StrategyBypass:
		return w.bypass(req)
	case StrategyNetworkOnly:
		resp, err = w.networkOnly(req)
	case StrategyNetworkFirst:
		resp, err = w.networkFirst(ev, req)
	case StrategyCacheFirst:
		resp, err = w.cacheFirst(ev, req)
	case StrategyNavigate:
		resp, err = w.navigate(ev, req)
	default:
		err = fmt.Errorf("swcache: unknown strategy %q", d.Strategy)
	}
	if err != nil {
		w.log.Debug("strategy rejected; serving offline response", Fields{"path": req.URL.Path, "strategy": string(d.Strategy), "err": err})
		w.hooks.NetworkFallback(d.Strategy, req.URL.Path, "offline")
		return offlineResponse(req), nil
	}
	return resp, nil
}

// ServeHTTP runs the worker as a reverse proxy in front of its network.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ev := NewExtendableEvent(context.WithoutCancel(r.Context()))
	defer func() {
		if err := ev.Wait(); err != nil {
			w.log.Debug("extended work failed", Fields{"path": r.URL.Path, "err": err})
		}
	}()

	resp, err := w.Fetch(ev, clientRequest(r))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.log.Warn("bypassed request failed", Fields{"path": r.URL.Path, "err": err})
		http.Error(rw, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	h := rw.Header()
	for k, vs := range resp.Header {
		if hopHeader(k) {
			continue
		}
		h[k] = append([]string(nil), vs...)
	}
	rw.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(rw, resp.Body); err != nil {
		w.log.Debug("response copy aborted", Fields{"path": r.URL.Path, "err": err})
	}
}

// clientRequest turns an inbound server request into the absolute-URL form
// a browser hands to a service worker.
func clientRequest(r *http.Request) *http.Request {
	out := r.Clone(r.Context())
	out.URL = absoluteURL(r)
	out.RequestURI = ""
	return out
}

// outgoing prepares req for the Fetcher.
func outgoing(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	out.URL = absoluteURL(req)
	out.RequestURI = ""
	out.Host = ""
	for k := range out.Header {
		if hopHeader(k) {
			out.Header.Del(k)
		}
	}
	return out
}

var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func hopHeader(k string) bool { return hopHeaders[http.CanonicalHeaderKey(k)] }
