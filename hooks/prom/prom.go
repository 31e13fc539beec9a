// Package promhook exports coordinator events as Prometheus counters.
//
// Counting happens inline on the caller's goroutine; client_golang counters
// are a single atomic add, so wrapping in asynchook is unnecessary.
package promhook

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/flightcache"
)

type Hooks struct {
	entriesEvicted   prometheus.Counter
	entriesSpilled   prometheus.Counter
	spillSelfHeal    *prometheus.CounterVec
	spillSetRejected prometheus.Counter
	pendingForced    prometheus.Counter
	pendingStalled   prometheus.Counter
	fetchDiscarded   prometheus.Counter
	refreshThrottled *prometheus.CounterVec
	refreshDiscarded prometheus.Counter
	refreshErrors    prometheus.Counter
}

var _ flightcache.Hooks = (*Hooks)(nil)

// New registers the counters with reg and returns the adapter.
// A nil reg falls back to prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &Hooks{
		entriesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcache_entries_evicted_total",
			Help: "Entries pushed out of the primary store by the size bound.",
		}),
		entriesSpilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcache_entries_spilled_total",
			Help: "Evicted entries demoted to the spill tier.",
		}),
		spillSelfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightcache_spill_self_heal_total",
			Help: "Spill entries deleted on read, by reason.",
		}, []string{"reason"}),
		spillSetRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcache_spill_set_rejected_total",
			Help: "Spill writes rejected by the store under pressure.",
		}),
		pendingForced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcache_pending_forced_drops_total",
			Help: "Oldest pending ops untracked to admit new ones at the cap.",
		}),
		pendingStalled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcache_pending_stalled_total",
			Help: "Pending ops untracked by the janitor past the stall threshold.",
		}),
		fetchDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcache_fetch_discarded_total",
			Help: "Settled fetches not cached because their op was untracked mid-flight.",
		}),
		refreshThrottled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightcache_refresh_throttled_total",
			Help: "Refresh requests dropped by the throttle, by reason.",
		}, []string{"reason"}),
		refreshDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcache_refresh_discarded_total",
			Help: "Refresh results discarded because their scope was no longer current.",
		}),
		refreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightcache_refresh_errors_total",
			Help: "Refresh runs that returned an error.",
		}),
	}
	reg.MustRegister(
		h.entriesEvicted, h.entriesSpilled, h.spillSelfHeal, h.spillSetRejected,
		h.pendingForced, h.pendingStalled, h.fetchDiscarded,
		h.refreshThrottled, h.refreshDiscarded, h.refreshErrors,
	)
	return h
}

func (h *Hooks) EntriesEvicted(evicted, spilled int) {
	h.entriesEvicted.Add(float64(evicted))
	h.entriesSpilled.Add(float64(spilled))
}

func (h *Hooks) SpillSelfHeal(_, reason string) {
	h.spillSelfHeal.WithLabelValues(reason).Inc()
}

func (h *Hooks) SpillSetRejected(string) { h.spillSetRejected.Inc() }

func (h *Hooks) PendingForcedDrop(_, _ string) { h.pendingForced.Inc() }

func (h *Hooks) PendingStalled(string, time.Duration) { h.pendingStalled.Inc() }

func (h *Hooks) FetchDiscarded(string) { h.fetchDiscarded.Inc() }

func (h *Hooks) RefreshThrottled(reason string) {
	h.refreshThrottled.WithLabelValues(reason).Inc()
}

func (h *Hooks) RefreshDiscarded(flightcache.ScopeToken) { h.refreshDiscarded.Inc() }

func (h *Hooks) RefreshError(error) { h.refreshErrors.Inc() }
