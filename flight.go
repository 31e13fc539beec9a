package flightcache

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// pendingOp tracks one in-flight fetch. Identity matters: a fetch may only
// write its result to the store if its own op is still the tracked one for
// the key when it settles.
type pendingOp struct {
	startedAt time.Time
}

type stalledOp struct {
	key       string
	startedAt time.Time
}

// flightTable owns dedup bookkeeping: the singleflight group collapses
// concurrent executions, the pending map bounds and ages them. At most one
// tracked op per key.
type flightTable struct {
	group singleflight.Group

	mu      sync.Mutex
	max     int
	pending map[string]*pendingOp
}

func newFlightTable(max int) *flightTable {
	return &flightTable{
		max:     max,
		pending: make(map[string]*pendingOp),
	}
}

// admit registers a new op for key, untracking the single oldest op first if
// the table is full. The dropped key's fetch is not cancelled, only
// untracked: its waiters still get its result, but the result is not cached
// and later callers start a fresh flight.
func (t *flightTable) admit(key string, now time.Time) (op *pendingOp, dropped string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.pending[key]; !exists && len(t.pending) >= t.max {
		oldest := ""
		var oldestAt time.Time
		for k, p := range t.pending {
			if oldest == "" || p.startedAt.Before(oldestAt) {
				oldest, oldestAt = k, p.startedAt
			}
		}
		if oldest != "" {
			delete(t.pending, oldest)
			t.group.Forget(oldest)
			dropped = oldest
		}
	}
	op = &pendingOp{startedAt: now}
	t.pending[key] = op
	return op, dropped
}

// settle untracks op if it is still the one registered for key. The report
// decides whether the settled fetch may populate the store.
func (t *flightTable) settle(key string, op *pendingOp) (tracked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[key] == op {
		delete(t.pending, key)
		return true
	}
	return false
}

// drop untracks key and detaches future callers from its flight.
func (t *flightTable) drop(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[key]; !ok {
		return false
	}
	delete(t.pending, key)
	t.group.Forget(key)
	return true
}

// dropContaining untracks every key containing sub.
func (t *flightTable) dropContaining(sub string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := range t.pending {
		if strings.Contains(k, sub) {
			delete(t.pending, k)
			t.group.Forget(k)
			n++
		}
	}
	return n
}

func (t *flightTable) dropAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.pending)
	for k := range t.pending {
		t.group.Forget(k)
	}
	t.pending = make(map[string]*pendingOp)
	return n
}

// dropStalled untracks ops started at or before cutoff. Their fetches still
// settle on their own terms; they are just no longer deduplicated.
func (t *flightTable) dropStalled(cutoff time.Time) []stalledOp {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []stalledOp
	for k, p := range t.pending {
		if !p.startedAt.After(cutoff) {
			out = append(out, stalledOp{key: k, startedAt: p.startedAt})
			delete(t.pending, k)
			t.group.Forget(k)
		}
	}
	return out
}

func (t *flightTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
