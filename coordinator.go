package flightcache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	c "github.com/unkn0wn-root/flightcache/codec"
	"github.com/unkn0wn-root/flightcache/internal/util"
	"github.com/unkn0wn-root/flightcache/internal/wire"
	sp "github.com/unkn0wn-root/flightcache/spill"
)

const (
	defaultMaxEntries = 512
	defaultMaxPending = 128
	defaultTTL        = 5 * time.Minute
	defaultSweep      = time.Minute
	defaultStallAfter = 30 * time.Second
	defaultMinRefresh = 10 * time.Second
)

type coordinator[V any] struct {
	ns    string
	log   Logger
	hooks Hooks

	enabled bool
	closed  atomic.Bool

	defaultTTL    time.Duration
	sweepInterval time.Duration
	stallAfter    time.Duration

	store   *entryStore[V]
	flights *flightTable
	refresh *refresher

	// revs fences publishes against invalidations. Single-key invalidation
	// bumps one key, pattern and full invalidation bump everything at once;
	// the store refuses writes whose revision is no longer current, and
	// spill frames carry the revision they were inserted under so stale
	// frames are rejected and deleted on read.
	revs *revTable

	// spill tier (optional)
	spill       sp.Store
	codec       c.Codec[V]
	spillTTLCap time.Duration

	// background cleanup and shutdown. closeWg counts the janitor plus
	// every detached flight and refresh run; Close drains it before the
	// spill store goes away. closeMu orders registrations against the
	// closed flip so no Add can race the drain's Wait.
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeMu   sync.RWMutex
	closeWg   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func newCoordinator[V any](opts Options[V]) (*coordinator[V], error) {
	if opts.Spill != nil {
		if opts.Codec == nil {
			return nil, fmt.Errorf("flightcache: codec is required when a spill store is set")
		}
		if opts.Namespace == "" {
			return nil, fmt.Errorf("flightcache: namespace is required when a spill store is set")
		}
	}

	co := &coordinator[V]{
		ns:          opts.Namespace,
		spill:       opts.Spill,
		codec:       opts.Codec,
		spillTTLCap: opts.SpillTTLCap,
	}

	co.log = coalesce[Logger](opts.Logger, NopLogger{})
	co.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	co.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)
	co.sweepInterval = coalesce[time.Duration](opts.CleanupInterval, defaultSweep)
	co.stallAfter = coalesce[time.Duration](opts.PendingStallAfter, defaultStallAfter)

	co.revs = newRevTable()
	co.store = newEntryStore[V](coalesce[int](opts.MaxEntries, defaultMaxEntries), co.revs)
	co.flights = newFlightTable(coalesce[int](opts.MaxPending, defaultMaxPending))
	co.refresh = newRefresher(coalesce[time.Duration](opts.MinRefreshInterval, defaultMinRefresh))

	co.enabled = !opts.Disabled

	if co.enabled {
		co.ticker = time.NewTicker(co.sweepInterval)
		co.stopCh = make(chan struct{})
		co.closeWg.Add(1)
		go co.cleanupLoop()
	}
	return co, nil
}

func (co *coordinator[V]) Enabled() bool { return co.enabled }

// Close stops the janitor, waits for detached flights and refresh runs to
// finish (bounded by ctx), then closes the spill store. Work refused after
// the closed flag flips never starts, so nothing writes to the spill store
// once Close returns. If ctx expires before the drain completes the spill
// store is closed anyway and ctx's error is returned.
func (co *coordinator[V]) Close(ctx context.Context) error {
	co.closeOnce.Do(func() {
		co.closeMu.Lock()
		co.closed.Store(true)
		co.closeMu.Unlock()
		if co.stopCh != nil {
			close(co.stopCh)
		}
		drained := co.drain(ctx)
		if co.ticker != nil {
			co.ticker.Stop()
		}
		if co.spill != nil {
			co.closeErr = co.spill.Close(ctx)
		}
		if co.closeErr == nil && !drained {
			co.closeErr = ctx.Err()
		}
	})
	return co.closeErr
}

func (co *coordinator[V]) drain(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		co.closeWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		co.log.Warn("close: detached work still running at deadline", Fields{"err": ctx.Err()})
		return false
	}
}

// beginOp registers a unit of detached work with the close barrier. The
// read lock orders the registration before the closed flip: either the Add
// lands before Close sets closed (and the drain waits for endOp), or the
// work sees closed and never starts.
func (co *coordinator[V]) beginOp() bool {
	co.closeMu.RLock()
	defer co.closeMu.RUnlock()
	if co.closed.Load() {
		return false
	}
	co.closeWg.Add(1)
	return true
}

func (co *coordinator[V]) endOp() { co.closeWg.Done() }

// GetOrFetch returns the live cached value for key, or joins the in-flight
// fetch for it, or starts one. The fetch runs detached from the caller's
// cancellation; each waiter honors its own ctx and simply abandons the
// flight on cancellation (the flight continues and may still populate the
// store). A fetch error is propagated unchanged to every waiter and is not
// cached.
func (co *coordinator[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[V]) (V, error) {
	var zero V
	if co.closed.Load() {
		return zero, ErrClosed
	}
	if !co.enabled {
		return fetch(ctx)
	}
	if ttl <= 0 {
		ttl = co.defaultTTL
	}
	if v, ok := co.store.get(key, time.Now()); ok {
		return v, nil
	}

	fctx := context.WithoutCancel(ctx)
	ch := co.flights.group.DoChan(key, func() (any, error) {
		if !co.beginOp() {
			return nil, ErrClosed
		}
		defer co.endOp()
		return co.runFlight(fctx, key, ttl, fetch)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		// comma-ok: a fetcher for an interface V may legally return nil.
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// runFlight is the single executor for a key's flight.
func (co *coordinator[V]) runFlight(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[V]) (any, error) {
	now := time.Now()

	// A previous flight may have settled between the caller's miss and this
	// execution; the spill tier may also still hold a demoted live entry. A
	// spill hit that fails to promote (invalidated mid-decode) must not be
	// served, so it falls through to a fresh fetch.
	if v, ok := co.store.get(key, now); ok {
		return v, nil
	}
	if co.spill != nil {
		if v, remaining, frameRev, ok := co.spillGet(ctx, key); ok {
			if co.promote(ctx, key, v, remaining, frameRev) {
				return v, nil
			}
		}
	}

	op, dropped := co.flights.admit(key, now)
	if dropped != "" {
		co.hooks.PendingForcedDrop(dropped, key)
		co.log.Debug("forced drop of oldest pending (table full)", Fields{"dropped": dropped, "admitted": key})
	}

	// The publish guard is the key's revision at fetch time: if an
	// invalidation bumps it while the fetch is out, the store refuses the
	// write and waiters get an uncached value.
	guard := co.revs.current(key)
	v, err := fetch(ctx)
	tracked := co.flights.settle(key, op)
	if err != nil {
		return nil, err
	}
	if co.closed.Load() {
		return v, nil
	}
	if !tracked {
		// Untracked mid-flight (invalidation, forced drop, or stall sweep):
		// waiters still get the value, the store does not.
		co.hooks.FetchDiscarded(key)
		co.log.Debug("fetch discarded (untracked at settle)", Fields{"key": key})
		return v, nil
	}
	evicted, ok := co.store.set(key, v, ttl, time.Now(), guard)
	if !ok {
		co.hooks.FetchDiscarded(key)
		co.log.Debug("fetch discarded (invalidated in flight)", Fields{"key": key})
		return v, nil
	}
	co.demote(ctx, evicted)
	return v, nil
}

// promote re-inserts a spill hit into the primary store with its remaining
// TTL, guarded by the frame's revision: an invalidation that lands between
// the spill read and this write bumps the key and the store refuses the
// insert, so the caller falls back to a fresh fetch. Promotion can itself
// evict, so the spill write-back runs too.
func (co *coordinator[V]) promote(ctx context.Context, key string, v V, remaining time.Duration, frameRev uint64) bool {
	evicted, ok := co.store.set(key, v, remaining, time.Now(), frameRev)
	if !ok {
		co.selfHeal(ctx, co.spillKey(key), "revision")
		co.log.Debug("spill promote refused (invalidated)", Fields{"key": key})
		return false
	}
	co.demote(ctx, evicted)
	co.log.Debug("spill promote", Fields{"key": key})
	return true
}

// demote writes bound-evicted entries into the spill tier. Expired ones are
// dropped outright; encode or store failures lose the entry (it was already
// evicted) and are logged, never surfaced. Each frame carries the revision
// its entry was inserted under, so a frame whose key was invalidated while
// the write was in flight is rejected on the next read.
func (co *coordinator[V]) demote(ctx context.Context, evicted []*entry[V]) {
	if len(evicted) == 0 || co.closed.Load() {
		return
	}
	spilled := 0
	if co.spill != nil {
		now := time.Now()
		for _, e := range evicted {
			if !e.expiresAt.After(now) {
				continue
			}
			payload, err := co.codec.Encode(e.value)
			if err != nil {
				co.log.Warn("spill encode failed", Fields{"key": e.key, "err": err})
				continue
			}
			frame := wire.Encode(e.rev, e.expiresAt, payload)
			ttl := e.expiresAt.Sub(now)
			if co.spillTTLCap > 0 && ttl > co.spillTTLCap {
				ttl = co.spillTTLCap
			}
			sk := co.spillKey(e.key)
			ok, err := co.spill.Set(ctx, sk, frame, int64(len(frame)), ttl)
			if err != nil {
				co.log.Warn("spill set failed", Fields{"key": e.key, "err": err})
				continue
			}
			if !ok {
				co.hooks.SpillSetRejected(sk)
				co.log.Debug("spill set rejected (pressure)", Fields{"key": e.key})
				continue
			}
			spilled++
		}
	}
	co.hooks.EntriesEvicted(len(evicted), spilled)
}

// spillGet consults the spill tier. Any frame that fails validation —
// corrupt, written under a revision that is no longer the key's current
// one, expired, or undecodable — is deleted on sight (self-heal) and
// reported as a miss. On a hit the frame's revision is returned so the
// promotion can be fenced against invalidations landing after this read.
func (co *coordinator[V]) spillGet(ctx context.Context, key string) (V, time.Duration, uint64, bool) {
	var zero V
	if co.closed.Load() {
		return zero, 0, 0, false
	}
	sk := co.spillKey(key)
	raw, ok, err := co.spill.Get(ctx, sk)
	if err != nil {
		co.log.Warn("spill get failed", Fields{"key": key, "err": err})
		return zero, 0, 0, false
	}
	if !ok {
		return zero, 0, 0, false
	}
	rev, expiresAt, payload, err := wire.Decode(raw)
	if err != nil {
		co.selfHeal(ctx, sk, "corrupt")
		return zero, 0, 0, false
	}
	if rev != co.revs.current(key) {
		co.selfHeal(ctx, sk, "revision")
		return zero, 0, 0, false
	}
	now := time.Now()
	if !expiresAt.After(now) {
		co.selfHeal(ctx, sk, "expired")
		return zero, 0, 0, false
	}
	v, err := co.codec.Decode(payload)
	if err != nil {
		co.selfHeal(ctx, sk, "value_decode")
		return zero, 0, 0, false
	}
	return v, expiresAt.Sub(now), rev, true
}

func (co *coordinator[V]) selfHeal(ctx context.Context, storageKey, reason string) {
	_ = co.spill.Del(ctx, storageKey)
	co.hooks.SpillSelfHeal(storageKey, reason)
}

func (co *coordinator[V]) spillKey(key string) string {
	return util.StorageKey(co.ns, key)
}

// Invalidate removes the entry and untracks any in-flight op for key. The
// op's fetch is not cancelled; its result will not be cached. The revision
// bump comes first: any publish still in flight (fetch result, promotion,
// demoted frame) was issued under the old revision and is refused or
// rejected from here on.
func (co *coordinator[V]) Invalidate(key string) {
	if !co.enabled {
		return
	}
	co.revs.bump(key)
	co.store.delete(key)
	co.flights.drop(key)
	if co.spill != nil {
		_ = co.spill.Del(context.Background(), co.spillKey(key))
	}
	co.log.Debug("invalidated key (store + pending)", Fields{"key": key})
}

// InvalidatePattern removes every cached entry and untracks every in-flight
// op whose key contains sub. The revision table is bumped wholesale instead
// of enumerating matching keys; over-invalidation of unmatched in-flight
// publishes and spill frames is the accepted trade.
func (co *coordinator[V]) InvalidatePattern(sub string) {
	if !co.enabled {
		return
	}
	co.revs.bumpAll()
	ne := co.store.deleteWhere(func(key string) bool { return strings.Contains(key, sub) })
	np := co.flights.dropContaining(sub)
	co.log.Debug("pattern invalidation", Fields{"pattern": sub, "entries": ne, "pending": np})
}

func (co *coordinator[V]) InvalidateAll() {
	if !co.enabled {
		return
	}
	co.revs.bumpAll()
	ne := co.store.clear()
	np := co.flights.dropAll()
	co.log.Debug("invalidated all", Fields{"entries": ne, "pending": np})
}

// NotifyScopeChanged replaces the current scope token. Running refresh work
// is not cancelled; its apply step will see the new token and be skipped.
func (co *coordinator[V]) NotifyScopeChanged(token ScopeToken) {
	co.refresh.setToken(token)
}

// RequestRefresh runs low-priority recomputation on its own goroutine,
// never blocking the caller. Requests are dropped, not queued, while a run
// is in progress or within MinRefreshInterval of the last completion. The
// run's apply closure is invoked only if the scope is unchanged when the
// run completes; errors are logged and swallowed either way.
func (co *coordinator[V]) RequestRefresh(run RefreshFunc) {
	if !co.beginOp() {
		return
	}
	tok, epoch, ok, reason := co.refresh.admit(time.Now())
	if !ok {
		co.hooks.RefreshThrottled(reason)
		co.log.Debug("refresh dropped by throttle", Fields{"reason": reason})
		co.endOp()
		return
	}
	go func() {
		defer co.endOp()
		co.runRefresh(tok, epoch, run)
	}()
}

func (co *coordinator[V]) runRefresh(tok ScopeToken, epoch uint64, run RefreshFunc) {
	apply, err := run(context.Background())
	applied := co.refresh.complete(tok, epoch, apply, err)
	if co.closed.Load() {
		return
	}
	switch {
	case err != nil:
		co.hooks.RefreshError(err)
		co.log.Warn("background refresh failed", Fields{"err": err})
	case !applied:
		co.hooks.RefreshDiscarded(tok)
		co.log.Debug("refresh result discarded (scope changed)", Fields{"scope": tok})
	}
}

func (co *coordinator[V]) Stats() Stats {
	if !co.enabled {
		return Stats{}
	}
	return Stats{
		CacheSize:    co.store.len(),
		PendingCount: co.flights.count(),
	}
}

// Reset is InvalidateAll plus throttle teardown: the epoch bump orphans any
// refresh still running. Full teardown path (logout, environment unload).
func (co *coordinator[V]) Reset() {
	co.InvalidateAll()
	co.refresh.clear()
}

func (co *coordinator[V]) cleanupLoop() {
	defer co.closeWg.Done()
	for {
		select {
		case <-co.ticker.C:
			co.sweep()
		case <-co.stopCh:
			return
		}
	}
}

func (co *coordinator[V]) sweep() {
	now := time.Now()
	expired := co.store.dropExpired(now)
	stalled := co.flights.dropStalled(now.Add(-co.stallAfter))
	for _, s := range stalled {
		co.hooks.PendingStalled(s.key, now.Sub(s.startedAt))
	}
	if expired > 0 || len(stalled) > 0 {
		co.log.Debug("cleanup sweep", Fields{"expired": expired, "stalled": len(stalled)})
	}
}
