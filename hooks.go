package flightcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The coordinator calls them on hot paths.
type Hooks interface {
	// The size bound pushed entries out of the primary store.
	// spilled counts how many of them were demoted to the spill tier.
	EntriesEvicted(evicted, spilled int)

	// A spill entry was deleted on read.
	// reason ∈ {"corrupt", "revision", "expired", "value_decode"}
	SpillSelfHeal(storageKey, reason string)

	// Spill store returned ok=false on Set (backpressure/admission).
	SpillSetRejected(storageKey string)

	// The pending table was full; the oldest op was untracked to admit a new one.
	PendingForcedDrop(droppedKey, admittedKey string)

	// The janitor untracked an op stuck beyond the stall threshold.
	// Its fetch still settles on its own terms but is no longer deduplicated.
	PendingStalled(key string, age time.Duration)

	// A settled fetch was not cached because its op was untracked mid-flight
	// (invalidation, forced drop, or stall sweep).
	FetchDiscarded(key string)

	// A refresh request was dropped by the throttle.
	// reason ∈ {"in_progress", "interval"}
	RefreshThrottled(reason string)

	// A refresh completed under a scope that is no longer current; its
	// result was discarded without being applied.
	RefreshDiscarded(scope ScopeToken)

	// A refresh run returned an error (logged and swallowed).
	RefreshError(err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) EntriesEvicted(int, int)              {}
func (NopHooks) SpillSelfHeal(string, string)         {}
func (NopHooks) SpillSetRejected(string)              {}
func (NopHooks) PendingForcedDrop(string, string)     {}
func (NopHooks) PendingStalled(string, time.Duration) {}
func (NopHooks) FetchDiscarded(string)                {}
func (NopHooks) RefreshThrottled(string)              {}
func (NopHooks) RefreshDiscarded(ScopeToken)          {}
func (NopHooks) RefreshError(error)                   {}
