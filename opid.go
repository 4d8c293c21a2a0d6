package consensus

import "fmt"

// OpId identifies a log entry by the term in which it was written and its
// position within the log. Ordering is lexicographic: term first, then
// index, matching the total order Raft requires between any two entries.
type OpId struct {
	Term  int64
	Index int64
}

// MinOpId is the sentinel "minimum" OpId: it precedes every real entry and
// is used as the initial value of last-received/last-committed before any
// entry has been seen.
var MinOpId = OpId{Term: 0, Index: 0}

// Compare returns -1, 0, or 1 depending on whether o is less than, equal
// to, or greater than other in the (term, index) lexicographic order.
func (o OpId) Compare(other OpId) int {
	switch {
	case o.Term != other.Term:
		if o.Term < other.Term {
			return -1
		}
		return 1
	case o.Index != other.Index:
		if o.Index < other.Index {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Less reports whether o sorts strictly before other.
func (o OpId) Less(other OpId) bool { return o.Compare(other) < 0 }

// LessEq reports whether o sorts before or equal to other.
func (o OpId) LessEq(other OpId) bool { return o.Compare(other) <= 0 }

// Equal reports whether o and other identify the same log position.
func (o OpId) Equal(other OpId) bool { return o == other }

// IsMin reports whether o is the sentinel minimum value.
func (o OpId) IsMin() bool { return o == MinOpId }

// WithNextIndex returns the OpId at the next index in the same term,
// preserving term and incrementing index by one.
func (o OpId) WithNextIndex() OpId { return OpId{Term: o.Term, Index: o.Index + 1} }

// String renders the OpId in "term.index" form for logging.
func (o OpId) String() string { return fmt.Sprintf("%d.%d", o.Term, o.Index) }

// MaxOpId returns the greater of a and b.
func MaxOpId(a, b OpId) OpId {
	if a.Less(b) {
		return b
	}
	return a
}

// MinOfOpId returns the lesser of a and b.
func MinOfOpId(a, b OpId) OpId {
	if b.Less(a) {
		return b
	}
	return a
}
