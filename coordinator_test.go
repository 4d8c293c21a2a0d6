package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	c, err := New("replica-1")
	require.NoError(t, err)
	g, err := c.LockForStart()
	require.NoError(t, err)
	require.NoError(t, g.StartLocked(0, "", Configuration{}))
	g.Unlock()
	return c
}

// becomeLeader drives c from its initial follower state to leader,
// through the same candidate->leader sequence an election would produce.
func becomeLeader(t *testing.T, c *Coordinator) {
	t.Helper()
	g, err := c.LockForUpdate()
	require.NoError(t, err)
	require.NoError(t, g.BecomeCandidateLocked())
	require.NoError(t, g.BecomeLeaderLocked())
	g.Unlock()
}

func TestCoordinatorStartAndTermAdvance(t *testing.T) {
	c := newTestCoordinator(t)

	g, err := c.LockForUpdate()
	require.NoError(t, err)
	require.NoError(t, g.SetCurrentTermLocked(1))
	g.Unlock()

	require.Equal(t, int64(1), c.Status().CurrentTerm)

	g, err = c.LockForUpdate()
	require.NoError(t, err)
	err = g.SetCurrentTermLocked(0)
	g.Unlock()
	require.True(t, IsKind(err, IllegalState), "term regression must be rejected")
}

func TestCoordinatorVoteDeduplication(t *testing.T) {
	c := newTestCoordinator(t)

	g, _ := c.LockForUpdate()
	require.NoError(t, g.SetVotedForCurrentTermLocked("peer-a"))
	g.Unlock()

	g, _ = c.LockForUpdate()
	err := g.SetVotedForCurrentTermLocked("peer-b")
	g.Unlock()
	require.True(t, IsKind(err, AlreadyPresent))

	g, _ = c.LockForUpdate()
	require.NoError(t, g.SetVotedForCurrentTermLocked("peer-a"), "re-voting the same candidate recovers locally")
	g.Unlock()
}

func TestCoordinatorReplicateAndCommit(t *testing.T) {
	c := newTestCoordinator(t)
	becomeLeader(t, c)

	var result CompletionResult
	done := make(chan struct{})
	op := NewOperation(OpWrite, []byte("hello"), "client-req-1", func(r CompletionResult) {
		result = r
		close(done)
	})

	g, err := c.LockForReplicate()
	require.NoError(t, err)
	opID, err := g.AddPendingOperationLocked(op)
	require.NoError(t, err)
	g.Unlock()

	require.Equal(t, 2, c.Status().PendingOperations, "leader no-op plus the new write")

	g, err = c.LockForMajorityReplicatedIndexUpdate(context.Background(), OpId{})
	require.NoError(t, err)
	require.NoError(t, g.UpdateMajorityReplicatedLocked(opID))
	require.NoError(t, g.AdvanceCommittedOpIdLocked())
	g.Unlock()

	<-done
	require.Equal(t, StatusCommitted, result.Status)
	require.Equal(t, 0, c.Status().PendingOperations)
}

func TestCoordinatorDuplicateClientRequestRecoveredLocally(t *testing.T) {
	c := newTestCoordinator(t)
	becomeLeader(t, c)

	op := NewOperation(OpWrite, nil, "dup-req", func(CompletionResult) {})
	g, err := c.LockForReplicate()
	require.NoError(t, err)
	opID, err := g.AddPendingOperationLocked(op)
	require.NoError(t, err)
	g.Unlock()

	g, err = c.LockForMajorityReplicatedIndexUpdate(context.Background(), OpId{})
	require.NoError(t, err)
	require.NoError(t, g.UpdateMajorityReplicatedLocked(opID))
	require.NoError(t, g.AdvanceCommittedOpIdLocked())
	g.Unlock()

	dup := NewOperation(OpWrite, nil, "dup-req", func(CompletionResult) {})
	g, err = c.LockForReplicate()
	require.NoError(t, err)
	_, err = g.AddPendingOperationLocked(dup)
	g.Unlock()
	require.True(t, IsKind(err, AlreadyPresent))
}

func TestCoordinatorAbortOpsAfter(t *testing.T) {
	c := newTestCoordinator(t)

	var aborted []ReplicationStatus
	for i := 0; i < 3; i++ {
		op := NewOperation(OpWrite, nil, "", func(r CompletionResult) {
			aborted = append(aborted, r.Status)
		})
		g, err := c.LockForUpdate()
		require.NoError(t, err)
		next := OpId{Term: 0, Index: int64(i + 1)}
		_, err = g.AppendReceivedOperationLocked(op, next)
		require.NoError(t, err)
		g.Unlock()
	}
	require.Equal(t, 3, c.Status().PendingOperations)

	g, err := c.LockForUpdate()
	require.NoError(t, err)
	require.NoError(t, g.AbortOpsAfterLocked(1))
	g.Unlock()

	require.Equal(t, 1, c.Status().PendingOperations)
	require.Equal(t, []ReplicationStatus{StatusAborted, StatusAborted}, aborted)
}

// TestCoordinatorAppendReceivedOperationValidatesIndexAndTerm exercises
// Scenario B: a follower accepting an entry must reject an index that
// isn't exactly last-received+1, and must reject a term older than its
// own current term, while still accepting a well-formed entry.
func TestCoordinatorAppendReceivedOperationValidatesIndexAndTerm(t *testing.T) {
	c := newTestCoordinator(t)

	g, err := c.LockForUpdate()
	require.NoError(t, err)
	require.NoError(t, g.SetCurrentTermLocked(3))
	g.Unlock()

	g, err = c.LockForUpdate()
	require.NoError(t, err)
	_, err = g.AppendReceivedOperationLocked(NewOperation(OpWrite, nil, "", nil), OpId{Term: 3, Index: 5})
	g.Unlock()
	require.True(t, IsKind(err, InvalidArgument), "index must equal last-received + 1")

	g, err = c.LockForUpdate()
	require.NoError(t, err)
	_, err = g.AppendReceivedOperationLocked(NewOperation(OpWrite, nil, "", nil), OpId{Term: 2, Index: 1})
	g.Unlock()
	require.True(t, IsKind(err, InvalidArgument), "term must not precede current term")

	g, err = c.LockForUpdate()
	require.NoError(t, err)
	opID, err := g.AppendReceivedOperationLocked(NewOperation(OpWrite, nil, "", nil), OpId{Term: 3, Index: 1})
	g.Unlock()
	require.NoError(t, err)
	require.Equal(t, OpId{Term: 3, Index: 1}, opID)
}

// TestCoordinatorCommitOnlyOwnTerm exercises Scenario C / Testable
// Property 3: a leader must never directly commit an entry from a prior
// term, even once it is majority-replicated. The stale-term entry only
// becomes committed once a later current-term entry commits over it.
func TestCoordinatorCommitOnlyOwnTerm(t *testing.T) {
	c := newTestCoordinator(t)

	// Seed two entries from an earlier term, as if inherited from a prior
	// leader, then bump the term without running a fresh election so the
	// pending entries keep their original (stale) term.
	g, err := c.LockForUpdate()
	require.NoError(t, err)
	_, err = g.AppendReceivedOperationLocked(NewOperation(OpWrite, nil, "", nil), OpId{Term: 4, Index: 1})
	require.NoError(t, err)
	_, err = g.AppendReceivedOperationLocked(NewOperation(OpWrite, nil, "", nil), OpId{Term: 4, Index: 2})
	require.NoError(t, err)
	require.NoError(t, g.SetCurrentTermLocked(5))
	g.Unlock()

	c.role = RoleLeader // test-only: skip the no-op-appending election path

	var thirdCompleted bool
	op := NewOperation(OpWrite, nil, "", func(CompletionResult) { thirdCompleted = true })
	g, err = c.LockForReplicate()
	require.NoError(t, err)
	opID, err := g.AddPendingOperationLocked(op)
	require.NoError(t, err)
	g.Unlock()
	require.Equal(t, OpId{Term: 5, Index: 3}, opID)

	// Majority-replicated only covers the stale-term entries so far:
	// nothing may commit directly.
	g, err = c.LockForMajorityReplicatedIndexUpdate(context.Background(), OpId{})
	require.NoError(t, err)
	require.NoError(t, g.UpdateMajorityReplicatedLocked(OpId{Term: 4, Index: 2}))
	require.NoError(t, g.AdvanceCommittedOpIdLocked())
	g.Unlock()
	require.Equal(t, OpId{}, c.Status().LastCommittedOpID, "stale-term entries must not commit directly")
	require.Equal(t, 3, c.Status().PendingOperations)

	// Majority-replicated now reaches the current-term entry: everything
	// up to and including it commits transitively.
	g, err = c.LockForMajorityReplicatedIndexUpdate(context.Background(), OpId{})
	require.NoError(t, err)
	require.NoError(t, g.UpdateMajorityReplicatedLocked(opID))
	require.NoError(t, g.AdvanceCommittedOpIdLocked())
	g.Unlock()
	require.Equal(t, opID, c.Status().LastCommittedOpID)
	require.True(t, thirdCompleted)
	require.Equal(t, 0, c.Status().PendingOperations)
}

func TestCoordinatorBecomeLeaderThenFollower(t *testing.T) {
	c := newTestCoordinator(t)
	becomeLeader(t, c)

	status := c.Status()
	require.Equal(t, RoleLeader, status.Role)
	require.Equal(t, 1, status.PendingOperations, "becoming leader appends a no-op")

	g, err := c.LockForReplicate()
	require.NoError(t, err)
	require.NoError(t, g.BecomeFollowerLocked(status.CurrentTerm+1))
	g.Unlock()

	status = c.Status()
	require.Equal(t, RoleFollower, status.Role)
	require.Equal(t, 0, status.PendingOperations, "stepping down cancels pending operations")
}

func TestCoordinatorLeaderLeaseStatus(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := &fakeClock{now: now}
	c, err := New("replica-1", WithClock(clock))
	require.NoError(t, err)

	g, err := c.LockForStart()
	require.NoError(t, err)
	require.NoError(t, g.StartLocked(0, "", Configuration{}))
	g.Unlock()

	g, err = c.LockForUpdate()
	require.NoError(t, err)
	require.NoError(t, g.BecomeCandidateLocked())
	require.NoError(t, g.BecomeLeaderLocked())
	status, remaining := g.GetLeaderLeaseStatusLocked(clock.Now())
	require.Equal(t, NoLeader, status, "no lease granted yet")
	require.Zero(t, remaining)
	require.NoError(t, g.SetMajorityReplicatedLeaseExpirationLocked(now.Add(2*time.Second), clock.NowMicros()+2_000_000))
	status, remaining = g.GetLeaderLeaseStatusLocked(clock.Now())
	require.Equal(t, LeaderAndReady, status)
	require.Equal(t, 2*time.Second, remaining)
	g.Unlock()

	require.True(t, c.CheckIsActiveLeaderAndHasLease())

	clock.advance(5 * time.Second)
	require.False(t, c.CheckIsActiveLeaderAndHasLease(), "lease must expire")

	g = c.LockForRead()
	_, remaining = g.GetLeaderLeaseStatusLocked(clock.Now())
	g.Unlock()
	require.Zero(t, remaining, "an expired lease reports no remaining duration")
}

func TestCoordinatorOldLeaderLeaseBlocksReadiness(t *testing.T) {
	now := time.Unix(2000, 0)
	clock := &fakeClock{now: now}
	c, err := New("replica-1", WithClock(clock))
	require.NoError(t, err)

	g, _ := c.LockForStart()
	require.NoError(t, g.StartLocked(0, "", Configuration{}))
	g.Unlock()

	g, _ = c.LockForUpdate()
	require.NoError(t, g.BecomeCandidateLocked())
	require.NoError(t, g.BecomeLeaderLocked())
	g.UpdateOldLeaderLeaseLocked("old-leader", 3*time.Second)
	require.NoError(t, g.SetMajorityReplicatedLeaseExpirationLocked(now.Add(10*time.Second), clock.NowMicros()+10_000_000))
	status, _ := g.GetLeaderLeaseStatusLocked(clock.Now())
	g.Unlock()

	require.Equal(t, LeaderButOldLeaderMayHaveLease, status)
}

func TestCoordinatorMajorityReplicatedHtLeaseExpirationWaitsAndReturns(t *testing.T) {
	clock := &fakeClock{now: time.Unix(3000, 0)}
	c, err := New("replica-1", WithClock(clock))
	require.NoError(t, err)

	g, _ := c.LockForStart()
	require.NoError(t, g.StartLocked(0, "", Configuration{}))
	g.Unlock()

	go func() {
		time.Sleep(10 * time.Millisecond)
		g2, _ := c.LockForUpdate()
		_ = g2.SetMajorityReplicatedLeaseExpirationLocked(clock.Now().Add(time.Second), clock.NowMicros()+5_000_000)
		g2.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := c.MajorityReplicatedHtLeaseExpiration(ctx, clock.NowMicros()+5_000_000)
	require.NoError(t, err)
	require.GreaterOrEqual(t, got, clock.NowMicros()+5_000_000)
}

// TestCoordinatorConfigChangeRejectsSecondPending exercises Scenario F:
// a second configuration change cannot begin while one is still pending,
// whether attempted through LockForConfigChange or through
// SetPendingConfigLocked directly.
func TestCoordinatorConfigChangeRejectsSecondPending(t *testing.T) {
	c := newTestCoordinator(t)
	becomeLeader(t, c)

	first := Configuration{
		OpID:  OpId{Term: 1, Index: 1},
		Peers: []PeerRecord{{UUID: "peer-a", Address: "a:1", Kind: Voter}},
	}
	g, err := c.LockForConfigChange()
	require.NoError(t, err)
	require.NoError(t, g.SetPendingConfigLocked(first))
	g.Unlock()

	_, err = c.LockForConfigChange()
	require.True(t, IsKind(err, IllegalState), "a second config change must not begin while one is pending")

	second := Configuration{
		OpID:  OpId{Term: 1, Index: 2},
		Peers: []PeerRecord{{UUID: "peer-b", Address: "b:1", Kind: Voter}},
	}
	// SetPendingConfigLocked itself must reject a second pending change
	// even if called under some other already-held guard.
	g2 := c.LockForShutdown()
	err = g2.SetPendingConfigLocked(second)
	g2.Unlock()
	require.True(t, IsKind(err, IllegalState))
}

// TestCoordinatorAppendOperationRejectsSecondPendingConfig exercises
// check (iii) of Scenario B: a config-change operation cannot be
// appended while a configuration change is already pending.
func TestCoordinatorAppendOperationRejectsSecondPendingConfig(t *testing.T) {
	c := newTestCoordinator(t)
	becomeLeader(t, c)

	first := &Configuration{
		OpID:  OpId{Term: 1, Index: 1},
		Peers: []PeerRecord{{UUID: "peer-a", Address: "a:1", Kind: Voter}},
	}
	op1 := NewOperation(OpConfigChange, nil, "", nil)
	op1.Config = first
	g, err := c.LockForReplicate()
	require.NoError(t, err)
	_, err = g.AddPendingOperationLocked(op1)
	require.NoError(t, err)
	g.Unlock()

	second := &Configuration{
		OpID:  OpId{Term: 1, Index: 2},
		Peers: []PeerRecord{{UUID: "peer-b", Address: "b:1", Kind: Voter}},
	}
	op2 := NewOperation(OpConfigChange, nil, "", nil)
	op2.Config = second
	g, err = c.LockForReplicate()
	require.NoError(t, err)
	_, err = g.AddPendingOperationLocked(op2)
	g.Unlock()
	require.True(t, IsKind(err, IllegalState))
}

func TestCoordinatorMinTrackedRetryableOpId(t *testing.T) {
	c := newTestCoordinator(t)
	becomeLeader(t, c)

	g, err := c.LockForReplicate()
	require.NoError(t, err)
	_, found := g.MinTrackedRetryableOpIdLocked()
	require.False(t, found, "nothing tracked yet")

	op := NewOperation(OpWrite, nil, "req-1", func(CompletionResult) {})
	opID, err := g.AddPendingOperationLocked(op)
	require.NoError(t, err)
	minID, found := g.MinTrackedRetryableOpIdLocked()
	require.True(t, found)
	require.Equal(t, opID, minID)
	g.Unlock()
}

func TestCoordinatorShutdownCancelsPendingAndRejectsFurtherLocks(t *testing.T) {
	c := newTestCoordinator(t)
	becomeLeader(t, c)

	var status ReplicationStatus
	done := make(chan struct{})
	op := NewOperation(OpWrite, nil, "", func(r CompletionResult) {
		status = r.Status
		close(done)
	})
	g, err := c.LockForReplicate()
	require.NoError(t, err)
	_, err = g.AddPendingOperationLocked(op)
	require.NoError(t, err)
	g.Unlock()

	g = c.LockForShutdown()
	g.ShutdownUnlocked()
	g.Unlock()

	<-done
	require.Equal(t, StatusAborted, status)

	_, err = c.LockForUpdate()
	require.True(t, IsKind(err, IllegalState))
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) NowMicros() int64 {
	return f.now.UnixNano() / int64(time.Microsecond)
}
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }
