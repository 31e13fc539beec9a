package flightcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/flightcache/codec"
	sp "github.com/unkn0wn-root/flightcache/spill"
)

// FetchFunc produces the value for a key. Invoked at most once per flight;
// concurrent GetOrFetch callers for the same key share one invocation.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// RefreshFunc is one background recomputation. The returned apply closure
// commits the result to shared state; the coordinator calls it only if the
// scope token captured at schedule time is still current. apply must be
// cheap and must not call back into the coordinator.
type RefreshFunc func(ctx context.Context) (apply func(), err error)

// ScopeToken identifies "the thing the user currently cares about"
// (e.g. the active group's id). Opaque to this package beyond equality.
type ScopeToken string

// Stats is a point-in-time snapshot. Introspection only, no side effects.
type Stats struct {
	CacheSize    int
	PendingCount int
}

// Cache is a shorter alias for Coordinator.
type Cache[V any] = Coordinator[V]

// Coordinator is the request coordination and caching API.
// V is the caller's value type; values stay in-process and are only
// serialized (via a pluggable Codec[V]) when demoted to the spill tier.
type Coordinator[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Read path
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[V]) (V, error)

	// Invalidation
	Invalidate(key string)
	InvalidatePattern(substring string)
	InvalidateAll()

	// Background refresh
	NotifyScopeChanged(token ScopeToken)
	RequestRefresh(run RefreshFunc)

	Stats() Stats
	Reset()
}

// Options tune the coordinator. Everything has a sensible default; Namespace
// and Codec become required only when a spill store is configured.
type Options[V any] struct {
	MaxEntries int // primary store bound; 0 => 512
	MaxPending int // tracked in-flight bound; 0 => 128

	DefaultTTL         time.Duration // used when a call passes ttl <= 0; 0 => 5m
	CleanupInterval    time.Duration // janitor tick; 0 => 1m
	PendingStallAfter  time.Duration // in-flight ops older than this are untracked; 0 => 30s
	MinRefreshInterval time.Duration // backpressure between background runs; 0 => 10s

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// Spill tier: entries evicted (unexpired) from the primary store are
	// demoted into this byte store and promoted back on a later miss.
	Spill       sp.Store      // nil => no spill tier
	Codec       c.Codec[V]    // required when Spill is set
	Namespace   string        // required when Spill is set; isolates spill keys
	SpillTTLCap time.Duration // caps spill residency; 0 => remaining entry TTL

	Disabled bool // bypass caching and dedup; refresh coordination stays active
}

func New[V any](opts Options[V]) (Coordinator[V], error) {
	return newCoordinator[V](opts)
}
