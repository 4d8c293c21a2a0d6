package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryMetadataStoreRoundTrip(t *testing.T) {
	store := NewMemoryMetadataStore()

	meta, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, PersistentMetadata{}, meta)

	want := PersistentMetadata{CurrentTerm: 5, VotedFor: "peer-1"}
	require.NoError(t, store.Flush(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFileMetadataStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileMetadataStore(dir).(*fileMetadataStore)
	require.NoError(t, store.Open())
	defer store.Close()

	want := PersistentMetadata{
		CurrentTerm:       3,
		VotedFor:          "peer-2",
		LastCommittedOpID: OpId{Term: 3, Index: 7},
		CommittedConfig: Configuration{
			OpID: OpId{Term: 2, Index: 1},
			Peers: []PeerRecord{
				{UUID: "peer-1", Address: "10.0.0.1:9000", Kind: Voter},
				{UUID: "peer-2", Address: "10.0.0.2:9000", Kind: NonVoter},
			},
		},
		HasCommittedConfig: true,
	}
	require.NoError(t, store.Flush(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, want.CurrentTerm, got.CurrentTerm)
	require.Equal(t, want.VotedFor, got.VotedFor)
	require.Equal(t, want.LastCommittedOpID, got.LastCommittedOpID)
	require.Equal(t, want.HasCommittedConfig, got.HasCommittedConfig)
	require.Equal(t, want.CommittedConfig, got.CommittedConfig)
}

func TestFileMetadataStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	cfg := Configuration{
		OpID:  OpId{Term: 4, Index: 2},
		Peers: []PeerRecord{{UUID: "peer-3", Address: "10.0.0.3:9000", Kind: Voter}},
	}

	store := NewFileMetadataStore(dir).(*fileMetadataStore)
	require.NoError(t, store.Open())
	require.NoError(t, store.Flush(PersistentMetadata{
		CurrentTerm:        9,
		VotedFor:           "peer-3",
		LastCommittedOpID:  OpId{Term: 4, Index: 2},
		CommittedConfig:    cfg,
		HasCommittedConfig: true,
	}))
	require.NoError(t, store.Close())

	reopened := NewFileMetadataStore(dir).(*fileMetadataStore)
	require.NoError(t, reopened.Open())
	defer reopened.Close()

	got, err := reopened.Load()
	require.NoError(t, err)
	require.Equal(t, int64(9), got.CurrentTerm)
	require.Equal(t, "peer-3", got.VotedFor)
	require.Equal(t, OpId{Term: 4, Index: 2}, got.LastCommittedOpID)
	require.True(t, got.HasCommittedConfig)
	require.Equal(t, cfg, got.CommittedConfig)
}
