package consensus

// MemberKind distinguishes the roles a peer can play within a
// configuration. Only voters count toward majorities.
type MemberKind int

const (
	Voter MemberKind = iota
	NonVoter
	Observer
)

// String returns the name of the member kind.
func (k MemberKind) String() string {
	switch k {
	case Voter:
		return "voter"
	case NonVoter:
		return "non-voter"
	case Observer:
		return "observer"
	default:
		return "unknown"
	}
}

// PeerRecord describes a single member of a Raft configuration.
type PeerRecord struct {
	UUID    string
	Address string
	Kind    MemberKind
}

// Configuration is an ordered set of peer records together with the OpId
// of the configuration-change operation that introduced it.
type Configuration struct {
	OpID  OpId
	Peers []PeerRecord
}

// VoterCount returns the number of voting members in the configuration.
func (c Configuration) VoterCount() int {
	n := 0
	for _, p := range c.Peers {
		if p.Kind == Voter {
			n++
		}
	}
	return n
}

// Majority returns the number of voter acknowledgements required for a
// majority, which is always well-defined per the invariant in spec §3.
func (c Configuration) Majority() int {
	return c.VoterCount()/2 + 1
}

// HasVoter reports whether uuid is a voting member of the configuration.
func (c Configuration) HasVoter(uuid string) bool {
	for _, p := range c.Peers {
		if p.Kind == Voter && p.UUID == uuid {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the configuration has no peers and no opid,
// i.e. it is the zero value used before any configuration is known.
func (c Configuration) IsEmpty() bool {
	return c.OpID.IsMin() && len(c.Peers) == 0
}
