package flightcache

import "sync"

// revTable issues per-key revisions that fence publishes against
// invalidations. Every invalidation bumps the key's counter (single key) or
// the shared base (pattern and full invalidation); a value read or fetched
// under revision r may be written to the store, or trusted in a spill frame,
// only while r is still the key's current revision.
//
// current is the sum of the base and the per-key counter. Both components
// only grow while resident, so two reads of current for a key are equal iff
// no invalidation touched the key in between.
type revTable struct {
	mu    sync.Mutex
	base  uint64
	byKey map[string]uint64
	top   uint64 // highest per-key counter issued since the last bumpAll
}

func newRevTable() *revTable {
	return &revTable{byKey: make(map[string]uint64)}
}

func (r *revTable) current(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.base + r.byKey[key]
}

func (r *revTable) bump(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[key]++
	if r.byKey[key] > r.top {
		r.top = r.byKey[key]
	}
}

// bumpAll stales every key at once by moving the base past every revision
// issued so far, then drops the per-key counters; sums keep growing, so no
// revision issued before the call can equal one issued after it.
func (r *revTable) bumpAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.base += r.top + 1
	r.byKey = make(map[string]uint64)
	r.top = 0
}
