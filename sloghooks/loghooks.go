// Package sloghooks reports swcache hook events to a *slog.Logger.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/ranksewa/swcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	FallbackEvery uint64
	// Optional key redactor applied to storage and request keys, which
	// carry full URLs. Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	fallbackCtr atomic.Uint64
}

var _ swcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHealEntry(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("swcache.self_heal_entry",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) PutFailed(store, requestKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swcache.put_failed",
		"store", store,
		"key", h.redact(requestKey),
		"err", err)
}

func (h *Hooks) PutSkipped(store, requestKey, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("swcache.put_skipped",
		"store", store,
		"key", h.redact(requestKey),
		"reason", reason)
}

func (h *Hooks) StoreDeleted(store string) {
	if h.l == nil {
		return
	}
	h.l.Info("swcache.store_deleted", "store", store)
}

func (h *Hooks) InstallFailed(store string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("swcache.install_failed",
		"store", store,
		"err", err)
}

func (h *Hooks) NetworkFallback(strategy swcache.Strategy, path, source string) {
	if h.l == nil || !sample(h.opts.FallbackEvery, &h.fallbackCtr) {
		return
	}
	h.l.Info("swcache.network_fallback",
		"strategy", string(strategy),
		"path", path,
		"source", source)
}

func (h *Hooks) PushDropped(reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("swcache.push_dropped", "reason", reason)
}
