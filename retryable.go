package consensus

import "time"

// retryableRequestEntry remembers the outcome of a client request long
// enough to answer a retransmission without re-executing it.
type retryableRequestEntry struct {
	opID       OpId
	insertedAt time.Duration // offset from the filter's monotonic anchor
	result     CompletionResult
	known      bool // true once the operation has resolved
}

// retryableRequestsFilter deduplicates client requests by ClientRequestID
// within a bounded time window, aged out using a clock that is re-anchored
// at process start so comparisons never depend on wall-clock time jumping
// (spec §4.6's "restart-safe monotonic clock"). Not concurrent-safe; all
// access is serialized by the coordinator's mutex, matching every other
// component here.
type retryableRequestsFilter struct {
	entries map[string]*retryableRequestEntry
	window  time.Duration
	anchor  time.Time
}

// newRetryableRequestsFilter creates a filter with the given retention
// window, anchored at the provided start time (normally time.Now() taken
// once at coordinator construction).
func newRetryableRequestsFilter(window time.Duration, anchor time.Time) *retryableRequestsFilter {
	return &retryableRequestsFilter{
		entries: make(map[string]*retryableRequestEntry),
		window:  window,
		anchor:  anchor,
	}
}

// elapsed returns the duration since the filter's anchor, the filter's
// notion of "now".
func (f *retryableRequestsFilter) elapsed(now time.Time) time.Duration {
	return now.Sub(f.anchor)
}

// Lookup returns the remembered outcome for clientRequestID, if any entry
// for it is still within the retention window as of now.
func (f *retryableRequestsFilter) Lookup(clientRequestID string, now time.Time) (CompletionResult, bool) {
	e, ok := f.entries[clientRequestID]
	if !ok {
		return CompletionResult{}, false
	}
	if f.elapsed(now)-e.insertedAt > f.window {
		delete(f.entries, clientRequestID)
		return CompletionResult{}, false
	}
	if !e.known {
		return CompletionResult{}, false
	}
	return e.result, true
}

// Track registers clientRequestID as in-flight under opID. Lookup reports
// the entry only once Resolve has recorded its outcome, so a duplicate
// submitted while the request is still in flight is not recognized.
func (f *retryableRequestsFilter) Track(clientRequestID string, opID OpId, now time.Time) {
	if clientRequestID == "" {
		return
	}
	f.entries[clientRequestID] = &retryableRequestEntry{
		opID:       opID,
		insertedAt: f.elapsed(now),
	}
}

// Resolve records the terminal outcome of a tracked request so future
// lookups within the window return it directly.
func (f *retryableRequestsFilter) Resolve(clientRequestID string, result CompletionResult) {
	e, ok := f.entries[clientRequestID]
	if !ok {
		return
	}
	e.result = result
	e.known = true
}

// Evict drops every entry older than the retention window as of now. The
// coordinator does not schedule it itself; it runs only when a caller
// invokes EvictRetryableLocked.
func (f *retryableRequestsFilter) Evict(now time.Time) int {
	cutoff := f.elapsed(now) - f.window
	n := 0
	for id, e := range f.entries {
		if e.insertedAt <= cutoff {
			delete(f.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of entries currently tracked, exposed for the
// PendingOpsDepth-style metrics gauges.
func (f *retryableRequestsFilter) Len() int { return len(f.entries) }

// MinTrackedOpId returns the smallest OpId among currently tracked entries
// and whether any entry is tracked at all. Log-GC must never discard an
// entry at or after this OpId, since a retransmitted client request could
// still need it to answer a duplicate lookup (spec §4.6).
func (f *retryableRequestsFilter) MinTrackedOpId() (OpId, bool) {
	var min OpId
	found := false
	for _, e := range f.entries {
		if !found || e.opID.Less(min) {
			min = e.opID
			found = true
		}
	}
	return min, found
}
