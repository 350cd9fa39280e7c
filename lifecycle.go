package swcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"
)

// State is the lifecycle position of a worker version.
type State int32

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

// SkipWaiting reports whether install asked to become active without waiting
// for existing clients to go away.
func (w *Worker) SkipWaiting() bool { return w.skipWaiting.Load() }

type precached struct {
	key   string
	entry Entry
}

// Install precaches the manifest into the worker's store. Every manifest
// path must answer 200; all responses are fetched before anything is
// written. A failed write phase removes a store this install created, or
// restores the manifest keys of a store that already existed.
// On success the worker signals skip-waiting.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)
	name := w.cfg.CacheName()

	fetched := make([]precached, len(w.cfg.Precache))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.InstallConcurrency)
	for i, p := range w.cfg.Precache {
		g.Go(func() error {
			pc, err := w.precacheOne(gctx, p)
			if err != nil {
				return err
			}
			fetched[i] = pc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return w.installFailed(err)
	}

	existed, err := w.storage.Has(ctx, name)
	if err != nil {
		return w.installFailed(&InstallError{Store: name, Err: err})
	}
	st, err := w.storage.Open(ctx, name)
	if err != nil {
		return w.installFailed(&InstallError{Store: name, Err: err})
	}
	var undo []prior
	for _, pc := range fetched {
		if existed {
			e, had, err := st.Match(ctx, pc.key)
			if err != nil {
				w.rollback(ctx, st, undo)
				return w.installFailed(&InstallError{Store: name, Err: err})
			}
			undo = append(undo, prior{key: pc.key, entry: e, had: had})
		}
		if err := st.Put(ctx, pc.key, pc.entry); err != nil {
			if existed {
				w.rollback(ctx, st, undo)
			} else if _, derr := w.storage.Delete(ctx, name); derr != nil {
				w.log.Warn("rollback of partial install failed", Fields{"store": name, "err": derr})
			}
			return w.installFailed(&InstallError{Store: name, Err: err})
		}
	}

	w.skipWaiting.Store(true)
	w.setState(StateInstalled)
	w.log.Info("installed", Fields{"store": name, "entries": len(fetched)})
	return nil
}

// prior is what a manifest key held in a pre-existing store before install
// overwrote it.
type prior struct {
	key   string
	entry Entry
	had   bool
}

// rollback puts a pre-existing store back the way install found it, newest
// write first.
func (w *Worker) rollback(ctx context.Context, st *Store, undo []prior) {
	for i := len(undo) - 1; i >= 0; i-- {
		p := undo[i]
		var err error
		if p.had {
			err = st.Put(ctx, p.key, p.entry)
		} else {
			_, err = st.Delete(ctx, p.key)
		}
		if err != nil {
			w.log.Warn("rollback of partial install failed", Fields{"store": st.Name(), "key": p.key, "err": err})
		}
	}
}

func (w *Worker) precacheOne(ctx context.Context, path string) (precached, error) {
	name := w.cfg.CacheName()
	u, err := w.resolve(path)
	if err != nil {
		return precached{}, &InstallError{Store: name, Path: path, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return precached{}, &InstallError{Store: name, Path: path, Err: err}
	}
	resp, err := w.net.Do(req)
	if err != nil {
		return precached{}, &InstallError{Store: name, Path: path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return precached{}, &InstallError{Store: name, Path: path, Status: resp.StatusCode,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return precached{}, &InstallError{Store: name, Path: path, Err: err}
	}
	key := RequestKey(http.MethodGet, u)
	return precached{key: key, entry: entryFrom(key, resp, body)}, nil
}

func (w *Worker) installFailed(err error) error {
	w.setState(StateRedundant)
	w.hooks.InstallFailed(w.cfg.CacheName(), err)
	w.log.Error("install failed", Fields{"store": w.cfg.CacheName(), "err": err})
	return err
}

// Activate deletes every store except the worker's own. Calling it again
// without a new version in between changes nothing. Deletion errors are
// returned joined; the worker is activated regardless, as a browser does.
func (w *Worker) Activate(ctx context.Context) error {
	w.setState(StateActivating)
	current := w.cfg.CacheName()

	names, err := w.storage.Keys(ctx)
	if err != nil {
		w.setState(StateActivated)
		return fmt.Errorf("swcache: activate %q: %w", current, err)
	}
	var errs []error
	for _, n := range names {
		if n == current {
			continue
		}
		if _, err := w.storage.Delete(ctx, n); err != nil {
			errs = append(errs, err)
			continue
		}
		w.log.Info("removed old cache", Fields{"store": n})
	}
	if _, err := w.storage.Open(ctx, current); err != nil {
		errs = append(errs, err)
	}
	w.setState(StateActivated)
	return errors.Join(errs...)
}

func (w *Worker) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	return w.cfg.Origin.ResolveReference(ref), nil
}
