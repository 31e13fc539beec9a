package flightcache

import (
	"sync"
	"time"
)

// refresher serializes background recomputation. One run at a time, at most
// one start per MinRefreshInterval, and a run's apply step is gated on the
// (token, epoch) pair captured when it was admitted: NotifyScopeChanged
// replaces the token, Reset bumps the epoch, and either change orphans every
// run admitted before it.
type refresher struct {
	mu          sync.Mutex
	minInterval time.Duration

	token ScopeToken
	epoch uint64

	inProgress bool
	lastRunAt  time.Time // completion time of the last run, success or not
}

func newRefresher(minInterval time.Duration) *refresher {
	return &refresher{minInterval: minInterval}
}

func (r *refresher) setToken(tok ScopeToken) {
	r.mu.Lock()
	r.token = tok
	r.mu.Unlock()
}

// admit decides whether a new run may start now. On success it marks the
// throttle busy and returns the scope pair the run must revalidate at apply
// time. reason is "in_progress" or "interval" when refused.
func (r *refresher) admit(now time.Time) (tok ScopeToken, epoch uint64, ok bool, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inProgress {
		return "", 0, false, "in_progress"
	}
	if !r.lastRunAt.IsZero() && now.Sub(r.lastRunAt) < r.minInterval {
		return "", 0, false, "interval"
	}
	r.inProgress = true
	return r.token, r.epoch, true, ""
}

// complete releases the throttle and, when the run succeeded and its scope
// pair is still current, calls apply while holding the lock so no scope
// change can interleave between the check and the commit. apply must not
// call back into the refresher.
//
// The epoch check comes before any state change: a run orphaned by Reset no
// longer owns the throttle — clear released it and a post-Reset run may hold
// it now — so the orphan must not release it again or stamp lastRunAt.
func (r *refresher) complete(tok ScopeToken, epoch uint64, apply func(), runErr error) (applied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch {
		return false
	}
	r.inProgress = false
	r.lastRunAt = time.Now()
	if runErr != nil {
		return false
	}
	if r.token != tok {
		return false
	}
	if apply != nil {
		apply()
	}
	return true
}

// clear wipes throttle state and orphans in-flight runs. Reset path.
func (r *refresher) clear() {
	r.mu.Lock()
	r.inProgress = false
	r.lastRunAt = time.Time{}
	r.epoch++
	r.mu.Unlock()
}
