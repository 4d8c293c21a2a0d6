package consensus

import (
	"sync/atomic"
	"time"
)

// leaderCacheStatus is the packed status byte of the Leader State Cache.
type leaderCacheStatus uint8

const (
	cacheStatusNotLeader leaderCacheStatus = iota
	cacheStatusLeaderAndReady
	cacheStatusLeaderButNoLease
)

const (
	cacheStatusBits = 8
	cacheExtraBits  = 64 - cacheStatusBits
	cacheExtraMask  = (uint64(1) << cacheExtraBits) - 1
)

// leaderStateCache is a lock-free read path for "am I an up-to-date
// leader right now", mirroring the packed-atomic-word pattern used for
// store-liveness support state: status and a small extra payload share one
// word so readers take a single atomic load, while the deadline that
// governs when the cached answer goes stale lives in its own atomic so it
// can be refreshed independently of the status/extra pair (spec §4.5,
// reconciling the "single atomic word" and "single 64-bit atomic"
// descriptions in spec §4.5 and §9 Design Notes).
type leaderStateCache struct {
	word       atomic.Uint64 // status (low 8 bits) | extra (high 56 bits)
	validUntil atomic.Int64  // deadline as wall-clock Unix nanoseconds (time.Time.UnixNano)
}

func packCacheWord(status leaderCacheStatus, extra uint64) uint64 {
	return uint64(status) | (extra&cacheExtraMask)<<cacheStatusBits
}

func unpackCacheWord(word uint64) (leaderCacheStatus, uint64) {
	return leaderCacheStatus(word & 0xFF), word >> cacheStatusBits
}

// store publishes a new cached answer, valid until validUntil. The
// deadline is kept as validUntil.UnixNano(), a wall-clock value, not a
// monotonic reading.
func (c *leaderStateCache) store(status leaderCacheStatus, extra uint64, validUntil time.Time) {
	c.word.Store(packCacheWord(status, extra))
	c.validUntil.Store(validUntil.UnixNano())
}

// invalidate clears the cache so the next check falls back to the guarded
// slow path.
func (c *leaderStateCache) invalidate() {
	c.word.Store(packCacheWord(cacheStatusNotLeader, 0))
	c.validUntil.Store(0)
}

// checkoutResult is the outcome of a single lock-free read of the cache.
type checkoutResult int

const (
	checkoutLeaderAndReady checkoutResult = iota
	checkoutNotLeader
	checkoutStale
)

// checkout performs the lock-free acquire/release read described in spec
// §4.5: load the word and the deadline, and only trust the word if now is
// still before the deadline. A stale result means the caller must fall
// back to the guarded path (e.g. LockForRead) to recompute the answer.
func (c *leaderStateCache) checkout(now time.Time) (checkoutResult, uint64) {
	validUntil := c.validUntil.Load()
	if validUntil == 0 || now.UnixNano() >= validUntil {
		return checkoutStale, 0
	}
	word := c.word.Load()
	status, extra := unpackCacheWord(word)
	switch status {
	case cacheStatusLeaderAndReady:
		return checkoutLeaderAndReady, extra
	default:
		return checkoutNotLeader, extra
	}
}
