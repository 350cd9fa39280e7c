// Package swcache is an offline cache manager for a web origin: the server
// side of what a service worker does in the browser.
//
// Components:
//   - Storage / Store: named cache stores kept in a pluggable byte Provider
//     (go-cache, BigCache, Ristretto, Redis). A catalog lists the stores and
//     the request keys each holds.
//   - Worker: one deployed version. Install precaches the manifest into the
//     store "<prefix>-<version>", Activate deletes every other store, and
//     Fetch routes each request to a strategy (bypass, network-only,
//     network-first, cache-first, navigate).
//   - Registration: swaps the controlling worker after a successful install
//     and activate; it is also the http.Handler of the proxy.
//   - ExtendableEvent: carries best-effort work (cache writes, notification
//     display) past the point where the response is handed back.
//
// Keys:
//
//	catalog:<ns>                  - store names and their request keys
//	entry:<ns>:<store>:<hash>     - one captured response
//	store:<ns>:<store>            - generation counter (GenStore)
//
// Generation guard:
//
//	obs := store.Generation(ctx)       // before the network round-trip
//	resp := network.Do(req)
//	store.PutWithGen(ctx, k, e, obs)   // dropped if the store was deleted meanwhile
package swcache
