package consensus

import "time"

// BecomeCandidateLocked advances to the next term and votes for itself,
// the same term-bump-then-self-vote sequence the teacher's
// becomeCandidate uses, adapted to record the transition through
// SetCurrentTermLocked/SetVotedForCurrentTermLocked rather than touching
// fields directly so metadata durability stays centralized.
func (g *LockGuard) BecomeCandidateLocked() error {
	c := g.c
	if err := g.SetCurrentTermLocked(c.currentTerm + 1); err != nil {
		return err
	}
	if err := g.SetVotedForCurrentTermLocked(c.replicaUUID); err != nil {
		return err
	}
	c.role = RoleCandidate
	c.refreshRoleMetricLocked()
	c.log.Infof("entered candidate state: term = %d", c.currentTerm)
	return nil
}

// BecomeLeaderLocked transitions to leader for the current term, clearing
// this replica's own majority-replicated lease expirations and appending a
// no-op for the new term, mirroring becomeLeader's peer reset but
// expressed over this spec's lease and pending-queue types. Operations
// already pending from earlier terms stay in the queue, and the old-leader
// leases learned as a follower are kept.
func (g *LockGuard) BecomeLeaderLocked() error {
	c := g.c
	c.role = RoleLeader
	// No read lease is held yet: SetMajorityReplicatedLeaseExpirationLocked
	// grants one once a majority has acknowledged this term's no-op.
	c.majorityReplicatedLeaseExpiration = time.Time{}
	c.majorityReplicatedHTLeaseExpiration = 0

	noop := NewOperation(OpNoOp, nil, "", nil)
	if _, err := g.AddPendingOperationLocked(noop); err != nil {
		return err
	}

	c.refreshRoleMetricLocked()
	c.refreshLeaseCacheLocked()
	c.log.Infof("entered leader state: term = %d", c.currentTerm)
	return nil
}

// BecomeFollowerLocked transitions to follower under the given term and
// recognized leader, cancelling any operations this replica had pending as
// a would-be leader and resetting the lock-free lease cache, mirroring
// becomeFollower's term update, vote reset, and operationManager
// cancellation.
func (g *LockGuard) BecomeFollowerLocked(term int64) error {
	c := g.c
	if err := g.SetCurrentTermLocked(term); err != nil {
		return err
	}
	c.role = RoleFollower
	g.CancelPendingOperationsLocked(newErr(IllegalState, "BecomeFollower", "no longer the leader"))
	c.leaseCache.invalidate()
	c.refreshRoleMetricLocked()
	c.log.Infof("entered follower state: term = %d", c.currentTerm)
	return nil
}

func (c *Coordinator) refreshRoleMetricLocked() {
	if c.metrics != nil {
		c.metrics.SetRole(AllRoles, c.role.String())
		c.metrics.Term.Set(float64(c.currentTerm))
	}
}
