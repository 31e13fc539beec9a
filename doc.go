// Package flightcache implements a request coordination and caching layer:
// concurrent fetches for the same key share one execution, results are cached
// under a bounded in-memory store with per-entry TTL, and cached/in-flight
// state can be invalidated by key substring. A scope-token mechanism lets
// background recomputation be scheduled safely: work captures the active
// scope at schedule time and its result is discarded if the scope changed
// before it completed.
//
// Components:
//   - Coordinator[V]: the public API (GetOrFetch, invalidation, refresh, stats).
//   - spill.Store: optional byte store (e.g. Ristretto, BigCache) holding
//     entries demoted from the bounded primary store.
//   - codec.Codec[V]: (de)serializes V <-> []byte for the spill tier.
//
// Keys are caller-owned strings, by convention "<operation>:<scope>"
// (e.g. "stories:family=42") so a writer can invalidate every derived read
// for a scope with InvalidatePattern("family=42"). Spill frames live under
// "<ns>:<hash>" where the hash is a short digest of the primary key.
//
// Scope pattern:
//
//	fc.NotifyScopeChanged("family-42") // user navigated
//	fc.RequestRefresh(func(ctx context.Context) (func(), error) {
//	    p, err := recomputeProgress(ctx) // runs unguarded
//	    if err != nil {
//	        return nil, err
//	    }
//	    return func() { view.SetProgress(p) }, nil // applied iff scope unchanged
//	})
package flightcache
