// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/flightcache"
//	"github.com/unkn0wn-root/flightcache/codec"
//	"github.com/unkn0wn-root/flightcache/hooks/async"
//	"github.com/unkn0wn-root/flightcache/hooks/sloghook"
//
// )
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	    EvictEvery:    1,  // log every eviction batch
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	cache, _ := flightcache.New[User](flightcache.Options[User]{
//	    Namespace: "app:prod:user",
//	    Spill:     store,
//	    Codec:     codec.JSON[User]{},
//	    Hooks:     hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/flightcache"
)

type Hooks struct {
	inner flightcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ flightcache.Hooks = (*Hooks)(nil)

func New(inner flightcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) EntriesEvicted(e, s int)       { h.try(func() { h.inner.EntriesEvicted(e, s) }) }
func (h *Hooks) SpillSelfHeal(k, r string)     { h.try(func() { h.inner.SpillSelfHeal(k, r) }) }
func (h *Hooks) SpillSetRejected(k string)     { h.try(func() { h.inner.SpillSetRejected(k) }) }
func (h *Hooks) FetchDiscarded(k string)       { h.try(func() { h.inner.FetchDiscarded(k) }) }
func (h *Hooks) RefreshThrottled(r string)     { h.try(func() { h.inner.RefreshThrottled(r) }) }
func (h *Hooks) RefreshError(err error)        { h.try(func() { h.inner.RefreshError(err) }) }
func (h *Hooks) PendingForcedDrop(d, a string) { h.try(func() { h.inner.PendingForcedDrop(d, a) }) }
func (h *Hooks) PendingStalled(k string, age time.Duration) {
	h.try(func() { h.inner.PendingStalled(k, age) })
}
func (h *Hooks) RefreshDiscarded(scope flightcache.ScopeToken) {
	h.try(func() { h.inner.RefreshDiscarded(scope) })
}
