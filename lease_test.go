package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoarseTimeLeaseAdvancesOnly(t *testing.T) {
	base := time.Unix(1000, 0)
	l := CoarseTimeLease{}
	require.True(t, l.IsNone())

	l = l.advanced("peer-1", base.Add(5*time.Second))
	require.False(t, l.IsNone())
	require.Equal(t, base.Add(5*time.Second), l.Expiration)

	// An earlier projection must not regress the lease.
	regressed := l.advanced("peer-2", base.Add(2*time.Second))
	require.Equal(t, l, regressed)

	// A later projection advances it.
	advanced := l.advanced("peer-2", base.Add(10*time.Second))
	require.Equal(t, base.Add(10*time.Second), advanced.Expiration)
	require.Equal(t, "peer-2", advanced.IssuingPeerUUID)
}

func TestCoarseTimeLeaseHasPassed(t *testing.T) {
	base := time.Unix(1000, 0)
	l := CoarseTimeLease{Expiration: base.Add(time.Second)}
	require.False(t, l.HasPassed(base))
	require.True(t, l.HasPassed(base.Add(2*time.Second)))
	require.True(t, (CoarseTimeLease{}).HasPassed(base))
}

func TestPhysicalComponentLeaseAdvancesOnly(t *testing.T) {
	l := PhysicalComponentLease{}
	l = l.advanced("peer-1", 5_000_000)
	require.Equal(t, int64(5_000_000), l.ExpirationMicros)

	regressed := l.advanced("peer-2", 3_000_000)
	require.Equal(t, l, regressed)

	advanced := l.advanced("peer-2", 9_000_000)
	require.Equal(t, int64(9_000_000), advanced.ExpirationMicros)
}

func TestPhysicalComponentLeaseHasPassed(t *testing.T) {
	l := PhysicalComponentLease{ExpirationMicros: 1000}
	require.False(t, l.HasPassed(999))
	require.True(t, l.HasPassed(1000))
	require.True(t, (PhysicalComponentLease{}).HasPassed(0))
}

func TestLeaderLeaseStatusString(t *testing.T) {
	require.Equal(t, "leader-and-ready", LeaderAndReady.String())
	require.Equal(t, "no-leader", NoLeader.String())
}
