package consensus

import (
	"context"
	"time"
)

// UpdateOldLeaderLeaseLocked folds in a remaining-duration report for the
// previous leader's CoarseTimeLease, learned from an incoming
// AppendEntries round. It only ever advances the lease (spec invariant 5)
// and never infers a stronger guarantee than the report itself carries:
// a zero remaining duration resets the lease to none only if the recorded
// lease has already passed, and otherwise leaves it unchanged, matching
// the single allowed "expired -> none" transition called out in spec §9's
// Open Questions.
func (g *LockGuard) UpdateOldLeaderLeaseLocked(issuingPeerUUID string, remaining time.Duration) {
	c := g.c
	now := c.opts.clock.Now()
	if remaining <= 0 {
		if c.oldLeaderLease.HasPassed(now) {
			c.oldLeaderLease = c.oldLeaderLease.reset()
		}
		return
	}
	c.oldLeaderLease = c.oldLeaderLease.advanced(issuingPeerUUID, now.Add(remaining))
}

// UpdateOldLeaderHTLeaseLocked is the PhysicalComponentLease analogue of
// UpdateOldLeaderLeaseLocked, advancing the hybrid-time bound a
// predecessor leader may still hold.
func (g *LockGuard) UpdateOldLeaderHTLeaseLocked(issuingPeerUUID string, remainingMicros int64) {
	c := g.c
	nowMicros := c.opts.clock.NowMicros()
	if remainingMicros <= 0 {
		if c.oldLeaderHTLease.HasPassed(nowMicros) {
			c.oldLeaderHTLease = c.oldLeaderHTLease.reset()
		}
		return
	}
	c.oldLeaderHTLease = c.oldLeaderHTLease.advanced(issuingPeerUUID, nowMicros+remainingMicros)
}

// SetMajorityReplicatedLeaseExpirationLocked records the lease expiration
// this leader has itself been granted once a majority of voters have
// acknowledged it, updating the lock-free Leader State Cache so readers no
// longer need to take the coordinator's lock to observe it (spec §4.5).
func (g *LockGuard) SetMajorityReplicatedLeaseExpirationLocked(coarse time.Time, physicalMicros int64) error {
	c := g.c
	if coarse.Before(c.majorityReplicatedLeaseExpiration) {
		return newErr(InvalidArgument, "SetMajorityReplicatedLeaseExpiration", "coarse expiration must not regress")
	}
	if physicalMicros < c.majorityReplicatedHTLeaseExpiration {
		return newErr(InvalidArgument, "SetMajorityReplicatedLeaseExpiration", "physical expiration must not regress")
	}
	c.majorityReplicatedLeaseExpiration = coarse
	c.majorityReplicatedHTLeaseExpiration = physicalMicros
	c.cond.Broadcast()
	c.refreshLeaseCacheLocked()
	return nil
}

// refreshLeaseCacheLocked republishes the packed leaderStateCache word so
// the lock-free checkout path (spec §4.5) reflects the latest status
// without every reader needing the coordinator's mutex.
func (c *Coordinator) refreshLeaseCacheLocked() {
	now := c.opts.clock.Now()
	status := c.leaderLeaseStatusLocked(now)
	cacheStatus := cacheStatusNotLeader
	if status == LeaderAndReady {
		cacheStatus = cacheStatusLeaderAndReady
	} else if c.role == RoleLeader {
		cacheStatus = cacheStatusLeaderButNoLease
	}
	validUntil := c.majorityReplicatedLeaseExpiration
	if validUntil.IsZero() {
		validUntil = now
	}
	c.leaseCache.store(cacheStatus, uint64(c.currentTerm), validUntil)
	if c.metrics != nil {
		c.metrics.SetLeaseStatus(AllLeaderLeaseStatuses, status.String())
	}
}

// GetLeaderLeaseStatusLocked evaluates whether this replica may currently
// act as an up-to-date leader as of now. It is the guarded slow path
// backing CheckIsActiveLeaderAndHasLease's lock-free fast path. now is
// taken as a parameter rather than read again internally so a caller that
// already has a clock reading for this round doesn't pay for a second
// one; the returned remaining duration is how much longer this replica's
// own majority-replicated lease has to run in the LeaderAndReady case
// (spec §4.4), zero otherwise.
func (g *LockGuard) GetLeaderLeaseStatusLocked(now time.Time) (status LeaderLeaseStatus, remaining time.Duration) {
	c := g.c
	status = c.leaderLeaseStatusLocked(now)
	if status != LeaderAndReady {
		return status, 0
	}
	remaining = c.majorityReplicatedLeaseExpiration.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return status, remaining
}

func (c *Coordinator) leaderLeaseStatusLocked(now time.Time) LeaderLeaseStatus {
	if c.role != RoleLeader {
		return NotLeader
	}
	if c.majorityReplicatedLeaseExpiration.IsZero() && c.majorityReplicatedHTLeaseExpiration == 0 {
		return NoLeader
	}
	nowMicros := now.UnixNano() / int64(time.Microsecond)
	if !c.oldLeaderLease.HasPassed(now) || !c.oldLeaderHTLease.HasPassed(nowMicros) {
		return LeaderButOldLeaderMayHaveLease
	}
	if now.After(c.majorityReplicatedLeaseExpiration) || nowMicros >= c.majorityReplicatedHTLeaseExpiration {
		return LeaderButOldLeaderLeaseNotYetExpired
	}
	return LeaderAndReady
}

// CheckIsActiveLeaderAndHasLease performs the lock-free fast-path read
// described in spec §4.5: it checks out the packed leaderStateCache word
// and only takes the coordinator's lock to recompute the answer when the
// cached value is stale.
func (c *Coordinator) CheckIsActiveLeaderAndHasLease() bool {
	now := c.opts.clock.Now()
	result, _ := c.leaseCache.checkout(now)
	switch result {
	case checkoutLeaderAndReady:
		return true
	case checkoutNotLeader:
		return false
	default:
		g := c.LockForRead()
		defer g.Unlock()
		status := c.leaderLeaseStatusLocked(now)
		c.refreshLeaseCacheLocked()
		return status == LeaderAndReady
	}
}

// MajorityReplicatedHtLeaseExpiration blocks until the
// majority-replicated hybrid-time lease expiration reaches at least
// minExpirationMicros, or ctx is done, whichever happens first. This is
// the second and last condition-variable wait point in the coordinator,
// used by callers computing a safe-time bound for follower reads.
func (c *Coordinator) MajorityReplicatedHtLeaseExpiration(ctx context.Context, minExpirationMicros int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == lifecycleShutDown {
		return 0, errShutdown
	}

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	for c.majorityReplicatedHTLeaseExpiration < minExpirationMicros && c.state != lifecycleShutDown && ctx.Err() == nil {
		c.cond.Wait()
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if c.state == lifecycleShutDown {
		return 0, errShutdown
	}
	return c.majorityReplicatedHTLeaseExpiration, nil
}
