package swcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotCached is returned by strategies that found neither a network
	// response nor a cache entry; the worker answers it with the offline
	// response.
	ErrNotCached = errors.New("swcache: no network response and no cached entry")
	// ErrClosed is returned by Storage after Close.
	ErrClosed = errors.New("swcache: storage closed")
	// ErrNoWorker is returned when a registration has no active worker.
	ErrNoWorker = errors.New("swcache: no active worker")
)

// InstallError fails an install. Path is empty when the failure happened
// while writing entries rather than fetching them.
type InstallError struct {
	Store  string
	Path   string
	Status int // non-200 status when that is what failed the fetch
	Err    error
}

func (e *InstallError) Error() string {
	switch {
	case e.Path != "" && e.Status != 0:
		return fmt.Sprintf("swcache: install %q: precache %s: status %d", e.Store, e.Path, e.Status)
	case e.Path != "":
		return fmt.Sprintf("swcache: install %q: precache %s: %v", e.Store, e.Path, e.Err)
	default:
		return fmt.Sprintf("swcache: install %q: %v", e.Store, e.Err)
	}
}

func (e *InstallError) Unwrap() error { return e.Err }

// DeleteError reports a store deletion where the generation bump, the entry
// cleanup, or both failed. The store is gone from the catalog either way.
type DeleteError struct {
	Store   string
	BumpErr error
	DelErr  error
}

func (e *DeleteError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("swcache: delete store %q: gen bump and delete failed: bump=%v; delete=%v",
			e.Store, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("swcache: delete store %q: gen bump failed: %v", e.Store, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("swcache: delete store %q: entry delete failed: %v", e.Store, e.DelErr)
	default:
		return fmt.Sprintf("swcache: delete store %q: unknown error", e.Store)
	}
}

func (e *DeleteError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
