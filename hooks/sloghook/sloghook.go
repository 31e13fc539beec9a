package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/flightcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	EvictEvery    uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	evictCtr    atomic.Uint64
}

var _ flightcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) EntriesEvicted(evicted, spilled int) {
	if h.l == nil || !sample(h.opts.EvictEvery, &h.evictCtr) {
		return
	}
	h.l.Debug("flightcache.entries_evicted",
		"evicted", evicted,
		"spilled", spilled)
}

func (h *Hooks) SpillSelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("flightcache.spill_self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) SpillSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("flightcache.spill_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) PendingForcedDrop(droppedKey, admittedKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("flightcache.pending_forced_drop",
		"dropped", h.redact(droppedKey),
		"admitted", h.redact(admittedKey))
}

func (h *Hooks) PendingStalled(key string, age time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Warn("flightcache.pending_stalled",
		"key", h.redact(key),
		"age", age)
}

func (h *Hooks) FetchDiscarded(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("flightcache.fetch_discarded",
		"key", h.redact(key))
}

func (h *Hooks) RefreshThrottled(reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("flightcache.refresh_throttled",
		"reason", reason)
}

func (h *Hooks) RefreshDiscarded(scope flightcache.ScopeToken) {
	if h.l == nil {
		return
	}
	h.l.Info("flightcache.refresh_discarded",
		"scope", string(scope))
}

func (h *Hooks) RefreshError(err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("flightcache.refresh_error",
		"err", err)
}
