package consensus

import "time"

// The message structs below describe the wire-level shape of the RPCs a
// transport would carry between replicas. Encoding and the transport
// itself are out of scope for this component (spec §1 Non-goals name wire
// protocol front-ends and peer-to-peer transport); these types exist so a
// caller-supplied transport has a concrete contract to marshal.

// VoteRequest is sent by a candidate soliciting votes.
type VoteRequest struct {
	CandidateUUID string
	Term          int64
	LastLogOpID   OpId
}

// VoteResponse is a peer's answer to a VoteRequest.
type VoteResponse struct {
	VoterUUID   string
	Term        int64
	VoteGranted bool
}

// AppendEntriesRequest is sent by a leader to replicate entries (or, when
// Entries is empty, as a heartbeat) and to extend its leases.
type AppendEntriesRequest struct {
	LeaderUUID      string
	Term            int64
	PrevLogOpID     OpId
	Entries         []*Operation
	CommittedOpID   OpId
	LeaseExtension  LeaseExtension
}

// AppendEntriesResponse is a follower's answer to an AppendEntriesRequest.
type AppendEntriesResponse struct {
	FollowerUUID  string
	Term          int64
	Success       bool
	LastLogOpID   OpId
}

// LeaseExtension carries the projected lease durations a leader attaches
// to an AppendEntries round, which the follower folds into its own
// old-leader lease bookkeeping via UpdateOldLeaderLeaseLocked /
// UpdateOldLeaderHTLeaseLocked.
type LeaseExtension struct {
	CoarseTimeRemaining     time.Duration
	PhysicalRemainingMicros int64
}
