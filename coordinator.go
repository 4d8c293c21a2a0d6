package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/ngov17/yugabyte-db/internal/logger"
	"github.com/ngov17/yugabyte-db/internal/metrics"
	"github.com/ngov17/yugabyte-db/internal/rafterrors"
)

// lifecycleState tracks the coordinator's own lifecycle (spec §3
// Lifecycle), distinct from Role: a replica moves Initialized -> Running
// once, then Running -> ShuttingDown -> ShutDown exactly once, regardless
// of how many times its Role flips between follower/candidate/leader in
// between.
type lifecycleState int

const (
	lifecycleInitialized lifecycleState = iota
	lifecycleRunning
	lifecycleShuttingDown
	lifecycleShutDown
)

// Coordinator is the replica-local state machine that decides what a
// single raft replica believes about its own term, role, log position,
// leader leases, and in-flight operations. It owns no network transport
// and no application state machine; callers drive it through the guarded
// entry points below and react to the CompletionFunc callbacks Operations
// carry.
//
// Every field access outside of the guarded entry points is a bug: the
// "Locked"/"Unlocked" naming split below (mirroring the teacher's internal
// helpers, which always assume r.mu is already held) exists precisely so
// that reading this file tells you, at a glance, which methods are safe to
// call without first taking the lock.
type Coordinator struct {
	mu   sync.Mutex
	cond *sync.Cond

	replicaUUID string
	role        Role

	currentTerm int64
	votedFor    string

	lastReceivedOpID    OpId
	lastReceivedCurTerm OpId
	committedOpID       OpId
	majorityReplicated  OpId

	pendingConfig   Configuration
	committedConfig Configuration

	oldLeaderLease   CoarseTimeLease
	oldLeaderHTLease PhysicalComponentLease

	majorityReplicatedLeaseExpiration     time.Time
	majorityReplicatedHTLeaseExpiration   int64

	pending    *pendingQueue
	retryable  *retryableRequestsFilter
	leaseCache leaderStateCache

	state lifecycleState

	opts options

	log     logger.Logger
	metrics *metrics.Collector
}

// New constructs a Coordinator for replicaUUID, applying the given
// options over the teacher-style defaults.
func New(replicaUUID string, opts ...Option) (*Coordinator, error) {
	if replicaUUID == "" {
		return nil, rafterrors.New("replica UUID must not be empty")
	}

	o := options{
		retentionWindow:             defaultRetentionWindow,
		coarseLeaseDuration:         defaultCoarseLeaseDuration,
		physicalLeaseDurationMicros: defaultPhysicalLeaseDurationMicros,
		clock:                       SystemClock,
		metadataStore:               NewMemoryMetadataStore(),
		walLog:                      newMemoryLog(),
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, rafterrors.WrapError(err, "failed to construct coordinator")
		}
	}
	if o.log == nil {
		o.log = logger.New("consensus."+replicaUUID, nil)
	}

	c := &Coordinator{
		replicaUUID: replicaUUID,
		role:        RoleFollower,
		pending:     newPendingQueue(),
		retryable:   newRetryableRequestsFilter(o.retentionWindow, o.clock.Now()),
		opts:        o,
		log:         o.log,
	}
	c.cond = sync.NewCond(&c.mu)

	if o.registerer != nil {
		c.metrics = metrics.NewCollector(o.registerer, replicaUUID)
	}

	meta, err := o.metadataStore.Load()
	if err != nil {
		return nil, rafterrors.WrapError(err, "failed to construct coordinator")
	}
	c.currentTerm = meta.CurrentTerm
	c.votedFor = meta.VotedFor
	if meta.HasCommittedConfig {
		c.committedConfig = meta.CommittedConfig
	}

	return c, nil
}

// LockGuard is returned by every guarded entry point and releases the
// coordinator's mutex exactly once, either explicitly via Unlock or via a
// deferred call. It exists so the "Locked" transition methods in
// coordinator_ops.go and coordinator_lease.go can assert, by construction,
// that the lock is already held — callers never lock coordinator.mu
// directly.
type LockGuard struct {
	c        *Coordinator
	released bool
}

// Unlock releases the guard. Calling Unlock more than once is a no-op.
func (g *LockGuard) Unlock() {
	if g.released {
		return
	}
	g.released = true
	g.c.mu.Unlock()
}

func (c *Coordinator) lock() *LockGuard {
	c.mu.Lock()
	return &LockGuard{c: c}
}

// LockForStart acquires the coordinator for initialization: setting the
// initial term/vote/configuration before the replica starts taking part in
// elections or replication. Requires lifecycle state Initialized.
func (c *Coordinator) LockForStart() (*LockGuard, error) {
	g := c.lock()
	if c.state == lifecycleShutDown {
		g.Unlock()
		return nil, errShutdown
	}
	if c.state != lifecycleInitialized {
		g.Unlock()
		return nil, newErr(IllegalState, "LockForStart", "coordinator has already been started")
	}
	return g, nil
}

// LockForReplicate acquires the coordinator for appending newly proposed
// operations to the pending queue. Only a leader proposes new operations,
// so this requires Role == RoleLeader.
func (c *Coordinator) LockForReplicate() (*LockGuard, error) {
	g := c.lock()
	if c.state == lifecycleShutDown {
		g.Unlock()
		return nil, errShutdown
	}
	if c.role != RoleLeader {
		g.Unlock()
		return nil, newErr(IllegalState, "LockForReplicate", "only the leader may propose new operations")
	}
	return g, nil
}

// LockForUpdate acquires the coordinator for processing an incoming
// AppendEntries/heartbeat or term update. Only a follower or learner
// accepts entries appended by a leader, so this requires Role to be one
// of those two.
func (c *Coordinator) LockForUpdate() (*LockGuard, error) {
	g := c.lock()
	if c.state == lifecycleShutDown {
		g.Unlock()
		return nil, errShutdown
	}
	if c.role != RoleFollower && c.role != RoleLearner {
		g.Unlock()
		return nil, newErr(IllegalState, "LockForUpdate", "only a follower or learner processes incoming updates")
	}
	return g, nil
}

// LockForMajorityReplicatedIndexUpdate acquires the coordinator for
// recording a new majority-replicated index, and blocks until either the
// committed OpId reaches at least minAwait or ctx is done. Passing a zero
// minAwait returns immediately after acquiring the lock. Only a leader
// tracks majority-replicated acknowledgements, so this requires
// Role == RoleLeader.
func (c *Coordinator) LockForMajorityReplicatedIndexUpdate(ctx context.Context, minAwait OpId) (*LockGuard, error) {
	g := c.lock()
	if c.state == lifecycleShutDown {
		g.Unlock()
		return nil, errShutdown
	}
	if c.role != RoleLeader {
		g.Unlock()
		return nil, newErr(IllegalState, "LockForMajorityReplicatedIndexUpdate", "only the leader tracks majority-replicated progress")
	}
	if minAwait.IsMin() {
		return g, nil
	}

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	for c.committedOpID.Less(minAwait) && c.state != lifecycleShutDown && ctx.Err() == nil {
		c.cond.Wait()
	}
	if ctx.Err() != nil {
		g.Unlock()
		return nil, ctx.Err()
	}
	if c.state == lifecycleShutDown {
		g.Unlock()
		return nil, errShutdown
	}
	return g, nil
}

// LockForConfigChange acquires the coordinator for beginning or completing
// a configuration change. Requires that no configuration change is
// already outstanding (spec Scenario F): the pending configuration must
// still equal the committed one.
func (c *Coordinator) LockForConfigChange() (*LockGuard, error) {
	g := c.lock()
	if c.state == lifecycleShutDown {
		g.Unlock()
		return nil, errShutdown
	}
	if !c.pendingConfig.OpID.Equal(c.committedConfig.OpID) {
		g.Unlock()
		return nil, newErr(IllegalState, "LockForConfigChange", "a configuration change is already pending")
	}
	return g, nil
}

// LockForShutdown acquires the coordinator for a terminal shutdown. Unlike
// the other Lock* entry points it succeeds even if shutdown has already
// begun, so ShutdownUnlocked can be called idempotently.
func (c *Coordinator) LockForShutdown() *LockGuard {
	return c.lock()
}

// LockForRead acquires the coordinator for a consistent read of state that
// spans more than one field (the lock-free leaderStateCache recheck path
// described in spec §4.5 falls back here on a cache miss).
func (c *Coordinator) LockForRead() *LockGuard {
	return c.lock()
}

// Status returns a point-in-time snapshot of the coordinator's state.
func (c *Coordinator) Status() Status {
	g := c.LockForRead()
	defer g.Unlock()
	return Status{
		ReplicaUUID:       c.replicaUUID,
		Role:              c.role,
		CurrentTerm:       c.currentTerm,
		LastReceivedOpID:  c.lastReceivedOpID,
		LastCommittedOpID: c.committedOpID,
		PendingOperations: c.pending.len(),
		LeaseStatus:       c.leaderLeaseStatusLocked(c.opts.clock.Now()),
		RetryableEntries:  c.retryable.Len(),
	}
}
