package flightcache

import (
	"container/list"
	"sync"
	"time"
)

// entry is owned by entryStore and never handed out by reference;
// values are copied out on get. rev is the key's revision at insert time
// and travels with the entry into spill frames on demotion.
type entry[V any] struct {
	key        string
	value      V
	rev        uint64
	insertedAt time.Time
	expiresAt  time.Time
}

// entryStore is the bounded primary store: a key->entry map plus an
// insertion-ordered list driving eviction. Access does not reorder; only
// set moves a key to the back, so eviction age is insertion age.
type entryStore[V any] struct {
	mu    sync.Mutex
	max   int
	revs  *revTable
	byKey map[string]*list.Element
	order *list.List // oldest at front; Element.Value is *entry[V]
}

func newEntryStore[V any](max int, revs *revTable) *entryStore[V] {
	return &entryStore[V]{
		max:   max,
		revs:  revs,
		byKey: make(map[string]*list.Element),
		order: list.New(),
	}
}

// get returns the live value for key. Expired entries are deleted on sight
// and reported as a miss.
func (s *entryStore[V]) get(key string, now time.Time) (V, bool) {
	var zero V
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.byKey[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if !e.expiresAt.After(now) {
		s.remove(el)
		return zero, false
	}
	return e.value, true
}

// set inserts or overwrites key, refusing the write when the key's revision
// has moved past guard (an invalidation landed after the value was read or
// fetched). The revision check and the insert share s.mu, and invalidations
// bump the revision before touching the store, so a publish either sees the
// bump and refuses or completes before the invalidation's delete runs.
// set reads the revision table while holding s.mu; nothing acquires s.mu
// while holding the table's lock.
//
// Overwrites reset both timestamps and move the key to the back of the
// eviction order. The returned slice holds entries removed by the size
// bound (not by expiry), oldest first, for demotion to the spill tier.
func (s *entryStore[V]) set(key string, v V, ttl time.Duration, now time.Time, guard uint64) (evicted []*entry[V], ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.revs.current(key)
	if cur != guard {
		return nil, false
	}
	if el, exists := s.byKey[key]; exists {
		e := el.Value.(*entry[V])
		e.value = v
		e.rev = cur
		e.insertedAt = now
		e.expiresAt = now.Add(ttl)
		s.order.MoveToBack(el)
		return nil, true
	}
	e := &entry[V]{key: key, value: v, rev: cur, insertedAt: now, expiresAt: now.Add(ttl)}
	s.byKey[key] = s.order.PushBack(e)
	if s.order.Len() <= s.max {
		return nil, true
	}
	return s.evict(), true
}

// evict drops the oldest quarter: down to max - max/4 entries (at minimum
// the overflow itself when max < 4). Caller holds s.mu.
func (s *entryStore[V]) evict() []*entry[V] {
	target := s.max - s.max/4
	var evicted []*entry[V]
	for s.order.Len() > target {
		el := s.order.Front()
		if el == nil {
			break
		}
		evicted = append(evicted, el.Value.(*entry[V]))
		s.remove(el)
	}
	return evicted
}

func (s *entryStore[V]) delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.byKey[key]
	if ok {
		s.remove(el)
	}
	return ok
}

// deleteWhere removes every entry whose key satisfies pred and returns how
// many were removed.
func (s *entryStore[V]) deleteWhere(pred func(key string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		if pred(el.Value.(*entry[V]).key) {
			s.remove(el)
			n++
		}
		el = next
	}
	return n
}

func (s *entryStore[V]) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.order.Len()
	s.byKey = make(map[string]*list.Element)
	s.order.Init()
	return n
}

func (s *entryStore[V]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// dropExpired sweeps every expired entry. Janitor path; the read path
// already deletes expired entries lazily.
func (s *entryStore[V]) dropExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		if !el.Value.(*entry[V]).expiresAt.After(now) {
			s.remove(el)
			n++
		}
		el = next
	}
	return n
}

func (s *entryStore[V]) remove(el *list.Element) {
	delete(s.byKey, el.Value.(*entry[V]).key)
	s.order.Remove(el)
}
