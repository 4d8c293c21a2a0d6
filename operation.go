package consensus

import "sync"

// OpKind is a tagged variant over the kinds of payload that can occupy a
// log entry. The coordinator treats every kind uniformly except where the
// spec calls out kind-specific behavior (configuration changes and split
// requests), in place of the visitor-style traversal the teacher's source
// uses for polymorphic log entries.
type OpKind int

const (
	// OpWrite is a regular application write.
	OpWrite OpKind = iota
	// OpNoOp is a no-op entry, typically appended by a new leader.
	OpNoOp
	// OpConfigChange changes the Raft configuration.
	OpConfigChange
	// OpSplitRequest requests partitioning of this Raft group.
	OpSplitRequest
	// OpLeaderChange records a leadership transfer.
	OpLeaderChange
)

// String returns the name of the operation kind.
func (k OpKind) String() string {
	switch k {
	case OpWrite:
		return "write"
	case OpNoOp:
		return "no-op"
	case OpConfigChange:
		return "config-change"
	case OpSplitRequest:
		return "split-request"
	case OpLeaderChange:
		return "leader-change"
	default:
		return "unknown"
	}
}

// ReplicationStatus is the lifecycle of an Operation from the moment it is
// prepared until it is durably resolved one way or the other.
type ReplicationStatus int

const (
	StatusPrepared ReplicationStatus = iota
	StatusAppended
	StatusReplicatedMajority
	StatusCommitted
	StatusAborted
)

// String returns the name of the replication status.
func (s ReplicationStatus) String() string {
	switch s {
	case StatusPrepared:
		return "prepared"
	case StatusAppended:
		return "appended"
	case StatusReplicatedMajority:
		return "replicated-to-majority"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// CompletionResult is delivered to an Operation's completion callback
// exactly once, whether the operation was committed or aborted.
type CompletionResult struct {
	OpID   OpId
	Status ReplicationStatus
	Err    error
}

// CompletionFunc is invoked at most once per Operation. The coordinator
// invokes it synchronously from the transition that resolves the
// operation (commit, abort, cancel), while its own mutex is still held;
// the call is not deferred until the lock is released and is not handed
// to a worker.
type CompletionFunc func(CompletionResult)

// Operation is an application payload together with its OpId, replication
// status, and completion callback. Operations are shared by pointer
// between the caller and the pending queue so both reference the same
// instance for the lifetime of the longest holder, in place of the
// smart-pointer sharing the teacher's source uses for rounds. The
// retryable-requests filter keeps only an operation's OpId and result.
type Operation struct {
	ID     OpId
	Kind   OpKind
	Config *Configuration // set only when Kind == OpConfigChange

	// ClientRequestID, if non-empty, is the idempotency key used by the
	// retryable-requests filter to suppress duplicate client writes.
	ClientRequestID string

	Payload []byte

	mu        sync.Mutex
	status    ReplicationStatus
	completed bool
	onComplete CompletionFunc
}

// NewOperation creates an Operation in the Prepared state.
func NewOperation(kind OpKind, payload []byte, clientRequestID string, onComplete CompletionFunc) *Operation {
	return &Operation{
		Kind:            kind,
		Payload:         payload,
		ClientRequestID: clientRequestID,
		status:          StatusPrepared,
		onComplete:      onComplete,
	}
}

// Status returns the operation's current replication status.
func (op *Operation) Status() ReplicationStatus {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status
}

// setStatus updates the in-memory status without firing the callback.
// Used for transient states (appended, replicated-to-majority) that do
// not resolve the operation.
func (op *Operation) setStatus(status ReplicationStatus) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.status = status
}

// complete resolves the operation with a terminal status and fires its
// completion callback exactly once. Subsequent calls are no-ops, which
// makes it safe for both the commit path and the abort path to race
// against each other during shutdown without double-firing a callback.
func (op *Operation) complete(status ReplicationStatus, err error) {
	op.mu.Lock()
	if op.completed {
		op.mu.Unlock()
		return
	}
	op.completed = true
	op.status = status
	cb := op.onComplete
	id := op.ID
	op.mu.Unlock()

	if cb != nil {
		cb(CompletionResult{OpID: id, Status: status, Err: err})
	}
}
