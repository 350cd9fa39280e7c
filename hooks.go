package swcache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: the worker calls them on
// the fetch path. Wrap slow sinks with hooks/async.
type Hooks interface {
	// An entry was dropped on read.
	// reason ∈ {"corrupt", "gen_mismatch", "decode", "too_large", "key_mismatch"}
	SelfHealEntry(storageKey, reason string)

	// A best-effort cache write failed; the response was served anyway.
	PutFailed(store, requestKey string, err error)

	// A cache write was not attempted or not admitted.
	// reason ∈ {"gen_mismatch", "too_large", "rejected", "status"}
	PutSkipped(store, requestKey, reason string)

	// A store was removed (activate garbage collection or explicit delete).
	StoreDeleted(store string)

	// Install of a candidate version failed and the candidate was discarded.
	InstallFailed(store string, err error)

	// A strategy could not reach the network and answered from elsewhere.
	// source ∈ {"cache", "offline_document", "offline"}
	NetworkFallback(strategy Strategy, path, source string)

	// A push event was ignored. reason ∈ {"empty", "parse"}
	PushDropped(reason string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) SelfHealEntry(string, string)             {}
func (NopHooks) PutFailed(string, string, error)          {}
func (NopHooks) PutSkipped(string, string, string)        {}
func (NopHooks) StoreDeleted(string)                      {}
func (NopHooks) InstallFailed(string, error)              {}
func (NopHooks) NetworkFallback(Strategy, string, string) {}
func (NopHooks) PushDropped(string)                       {}

// MultiHooks fans every event out to each of hs in order.
func MultiHooks(hs ...Hooks) Hooks {
	out := make(multiHooks, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

type multiHooks []Hooks

func (m multiHooks) SelfHealEntry(k, r string) {
	for _, h := range m {
		h.SelfHealEntry(k, r)
	}
}

func (m multiHooks) PutFailed(s, k string, err error) {
	for _, h := range m {
		h.PutFailed(s, k, err)
	}
}

func (m multiHooks) PutSkipped(s, k, r string) {
	for _, h := range m {
		h.PutSkipped(s, k, r)
	}
}

func (m multiHooks) StoreDeleted(s string) {
	for _, h := range m {
		h.StoreDeleted(s)
	}
}

func (m multiHooks) InstallFailed(s string, err error) {
	for _, h := range m {
		h.InstallFailed(s, err)
	}
}

func (m multiHooks) NetworkFallback(st Strategy, p, src string) {
	for _, h := range m {
		h.NetworkFallback(st, p, src)
	}
}

func (m multiHooks) PushDropped(r string) {
	for _, h := range m {
		h.PushDropped(r)
	}
}
