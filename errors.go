package flightcache

import "errors"

// ErrClosed is returned by GetOrFetch after Close. All other methods are
// safe no-ops on a closed coordinator. Fetch failures are never wrapped:
// callers see exactly the error their fetcher returned.
var ErrClosed = errors.New("flightcache: coordinator closed")
