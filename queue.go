package consensus

import "golang.org/x/exp/slices"

// pendingQueue is the ordered buffer of in-flight operations described in
// spec §4.2: push-back, truncate-from-index, pop-while, and lookup-by-index,
// keyed by ascending index. It does not own the Operation payloads — it
// holds the same *Operation pointers the caller that proposed them
// references, so a completion callback fires exactly once regardless of
// which path (commit or abort) resolves it.
// Not concurrent safe; all access is serialized by the coordinator's mutex.
type pendingQueue struct {
	ops []*Operation
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{ops: make([]*Operation, 0)}
}

// len returns the number of operations currently pending.
func (q *pendingQueue) len() int { return len(q.ops) }

// front returns the lowest-index pending operation, if any.
func (q *pendingQueue) front() (*Operation, bool) {
	if len(q.ops) == 0 {
		return nil, false
	}
	return q.ops[0], true
}

// back returns the highest-index pending operation, if any.
func (q *pendingQueue) back() (*Operation, bool) {
	if len(q.ops) == 0 {
		return nil, false
	}
	return q.ops[len(q.ops)-1], true
}

// pushBack appends op to the tail of the queue. The caller is responsible
// for checking index monotonicity (invariant §3.1/§3.2) before calling;
// pushBack itself only maintains the ascending/contiguous invariant by
// construction.
func (q *pendingQueue) pushBack(op *Operation) {
	q.ops = append(q.ops, op)
}

// lookup returns the operation at the given index, if present, using a
// binary search over the ascending-by-index slice.
func (q *pendingQueue) lookup(index int64) (*Operation, bool) {
	i, found := slices.BinarySearchFunc(q.ops, index, func(op *Operation, idx int64) int {
		switch {
		case op.ID.Index < idx:
			return -1
		case op.ID.Index > idx:
			return 1
		default:
			return 0
		}
	})
	if !found {
		return nil, false
	}
	return q.ops[i], true
}

// truncateFrom removes every operation with index strictly greater than
// index and returns the removed operations in descending index order,
// matching the order AbortOpsAfter must fire callbacks in so that
// speculative state unwinds cleanly from the top down.
func (q *pendingQueue) truncateFrom(index int64) []*Operation {
	i, _ := slices.BinarySearchFunc(q.ops, index, func(op *Operation, idx int64) int {
		switch {
		case op.ID.Index <= idx:
			return -1
		default:
			return 1
		}
	})
	removed := make([]*Operation, len(q.ops)-i)
	copy(removed, q.ops[i:])
	q.ops = q.ops[:i]

	// Reverse in place to yield descending order.
	for l, r := 0, len(removed)-1; l < r; l, r = l+1, r-1 {
		removed[l], removed[r] = removed[r], removed[l]
	}
	return removed
}

// popWhile removes operations from the front of the queue while pred
// returns true, and returns the removed operations in ascending index
// order — the order commit callbacks must observe so that apply sees a
// monotone stream of OpIds.
func (q *pendingQueue) popWhile(pred func(*Operation) bool) []*Operation {
	n := 0
	for n < len(q.ops) && pred(q.ops[n]) {
		n++
	}
	removed := make([]*Operation, n)
	copy(removed, q.ops[:n])
	q.ops = q.ops[n:]
	return removed
}

// clear empties the queue and returns every operation that was pending, in
// descending index order, for use during shutdown.
func (q *pendingQueue) clear() []*Operation {
	return q.truncateFrom(MinOpId.Index - 1)
}

// upTo returns every pending operation with index less than or equal to
// index, in ascending order, without removing them. Used to mark a
// transient status (e.g. replicated-to-majority) on operations that have
// not yet committed.
func (q *pendingQueue) upTo(index int64) []*Operation {
	i, _ := slices.BinarySearchFunc(q.ops, index, func(op *Operation, idx int64) int {
		switch {
		case op.ID.Index <= idx:
			return -1
		default:
			return 1
		}
	})
	return q.ops[:i]
}
