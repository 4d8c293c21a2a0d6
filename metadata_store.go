package consensus

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ngov17/yugabyte-db/internal/rafterrors"
)

// PersistentMetadata is the durable record the coordinator hands to a
// MetadataStore: current term, the peer voted for in that term, the
// committed configuration, and the last committed OpId. On-disk layout is
// explicitly out of scope (spec §1 Non-goals); MetadataStore only
// contracts the read/write/flush shape the coordinator depends on.
type PersistentMetadata struct {
	CurrentTerm        int64
	VotedFor           string
	CommittedConfig    Configuration
	HasCommittedConfig bool
	LastCommittedOpID  OpId
}

// MetadataStore durably persists term/vote/configuration state. Flush must
// not return until the metadata is safe against a process crash; the
// coordinator calls it while holding its lock, so implementations must not
// block indefinitely.
type MetadataStore interface {
	Load() (PersistentMetadata, error)
	Flush(PersistentMetadata) error
}

// memoryMetadataStore is the minimal default MetadataStore: an in-memory
// holder with no actual durability, suitable for embedding in tests and for
// callers that layer their own write-ahead log underneath the coordinator.
// A real deployment supplies a durable MetadataStore grounded in its own
// storage stack; persistence format is out of scope here per spec §1.
type memoryMetadataStore struct {
	mu   sync.Mutex
	meta PersistentMetadata
}

// NewMemoryMetadataStore returns a MetadataStore that only ever holds
// state in memory.
func NewMemoryMetadataStore() MetadataStore {
	return &memoryMetadataStore{}
}

func (s *memoryMetadataStore) Load() (PersistentMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta, nil
}

func (s *memoryMetadataStore) Flush(meta PersistentMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	return nil
}

var errNilMetadataStore = rafterrors.New("metadata store must not be nil")

var errMetadataStoreNotOpen = rafterrors.New("metadata store is not open")

// fileMetadataStore persists term/vote/committed-configuration/
// last-committed-opid to a single file using the atomic-rename pattern the
// teacher's state storage uses for term/vote durability: writes land in a
// temp file in the same directory, which is fsynced and renamed over the
// live file, so a crash mid-write never leaves a torn record behind.
type fileMetadataStore struct {
	mu   sync.Mutex
	path string
	file *os.File
	meta PersistentMetadata
}

// NewFileMetadataStore creates a MetadataStore backed by a file at path.
// Open must be called before use.
func NewFileMetadataStore(path string) MetadataStore {
	return &fileMetadataStore{path: path}
}

// Open opens (creating if necessary) the backing file and replays any
// previously persisted state into memory.
func (s *fileMetadataStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fileName := filepath.Join(s.path, "metadata.bin")
	file, err := os.OpenFile(fileName, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return rafterrors.WrapError(err, "failed to open metadata store")
	}
	s.file = file

	meta, err := decodeMetadata(file)
	if err != nil && err != io.EOF {
		return rafterrors.WrapError(err, "failed while replaying metadata store")
	}
	s.meta = meta
	return nil
}

func (s *fileMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.file.Close(); err != nil {
		return rafterrors.WrapError(err, "failed to close metadata store")
	}
	s.file = nil
	return nil
}

func (s *fileMetadataStore) Load() (PersistentMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return PersistentMetadata{}, errMetadataStoreNotOpen
	}
	return s.meta, nil
}

func (s *fileMetadataStore) Flush(meta PersistentMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errMetadataStoreNotOpen
	}

	tmpFile, err := os.CreateTemp(s.path, "tmp-")
	if err != nil {
		return rafterrors.WrapError(err, "failed while persisting metadata")
	}
	if err := encodeMetadata(tmpFile, &meta); err != nil {
		return rafterrors.WrapError(err, "failed while persisting metadata")
	}
	if err := tmpFile.Sync(); err != nil {
		return rafterrors.WrapError(err, "failed while persisting metadata")
	}
	if err := tmpFile.Close(); err != nil {
		return rafterrors.WrapError(err, "failed while persisting metadata")
	}
	if err := s.file.Close(); err != nil {
		return rafterrors.WrapError(err, "failed while persisting metadata")
	}
	if err := os.Rename(tmpFile.Name(), s.file.Name()); err != nil {
		return rafterrors.WrapError(err, "failed while persisting metadata")
	}

	fileName := filepath.Join(s.path, "metadata.bin")
	s.file, err = os.OpenFile(fileName, os.O_RDWR, 0o666)
	if err != nil {
		return rafterrors.WrapError(err, "failed while persisting metadata")
	}
	s.meta = meta
	return nil
}

func encodeMetadata(w io.Writer, m *PersistentMetadata) error {
	var hdr [8 + 1 + 8 + 8]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(m.CurrentTerm))
	if m.HasCommittedConfig {
		hdr[8] = 1
	}
	binary.BigEndian.PutUint64(hdr[9:17], uint64(m.LastCommittedOpID.Term))
	binary.BigEndian.PutUint64(hdr[17:25], uint64(m.LastCommittedOpID.Index))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if err := writeLenPrefixed(w, []byte(m.VotedFor)); err != nil {
		return err
	}
	return encodeConfiguration(w, m.CommittedConfig)
}

func decodeMetadata(r io.Reader) (PersistentMetadata, error) {
	var hdr [8 + 1 + 8 + 8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return PersistentMetadata{}, err
	}
	m := PersistentMetadata{
		CurrentTerm:        int64(binary.BigEndian.Uint64(hdr[0:8])),
		HasCommittedConfig: hdr[8] == 1,
		LastCommittedOpID: OpId{
			Term:  int64(binary.BigEndian.Uint64(hdr[9:17])),
			Index: int64(binary.BigEndian.Uint64(hdr[17:25])),
		},
	}
	votedFor, err := readLenPrefixed(r)
	if err != nil {
		return PersistentMetadata{}, err
	}
	m.VotedFor = string(votedFor)
	cfg, err := decodeConfiguration(r)
	if err != nil {
		return PersistentMetadata{}, err
	}
	m.CommittedConfig = cfg
	return m, nil
}

// encodeConfiguration/decodeConfiguration round-trip a Configuration's
// OpId and peer list, used by fileMetadataStore's record format.
func encodeConfiguration(w io.Writer, cfg Configuration) error {
	var buf [8 + 8 + 8]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(cfg.OpID.Term))
	binary.BigEndian.PutUint64(buf[8:16], uint64(cfg.OpID.Index))
	binary.BigEndian.PutUint64(buf[16:24], uint64(len(cfg.Peers)))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	for _, p := range cfg.Peers {
		if err := writeLenPrefixed(w, []byte(p.UUID)); err != nil {
			return err
		}
		if err := writeLenPrefixed(w, []byte(p.Address)); err != nil {
			return err
		}
		var kindBuf [8]byte
		binary.BigEndian.PutUint64(kindBuf[:], uint64(p.Kind))
		if _, err := w.Write(kindBuf[:]); err != nil {
			return err
		}
	}
	return nil
}

func decodeConfiguration(r io.Reader) (Configuration, error) {
	var buf [8 + 8 + 8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Configuration{}, err
	}
	cfg := Configuration{
		OpID: OpId{
			Term:  int64(binary.BigEndian.Uint64(buf[0:8])),
			Index: int64(binary.BigEndian.Uint64(buf[8:16])),
		},
	}
	n := binary.BigEndian.Uint64(buf[16:24])
	if n == 0 {
		return cfg, nil
	}
	cfg.Peers = make([]PeerRecord, n)
	for i := range cfg.Peers {
		uuid, err := readLenPrefixed(r)
		if err != nil {
			return Configuration{}, err
		}
		address, err := readLenPrefixed(r)
		if err != nil {
			return Configuration{}, err
		}
		var kindBuf [8]byte
		if _, err := io.ReadFull(r, kindBuf[:]); err != nil {
			return Configuration{}, err
		}
		cfg.Peers[i] = PeerRecord{
			UUID:    string(uuid),
			Address: string(address),
			Kind:    MemberKind(binary.BigEndian.Uint64(kindBuf[:])),
		}
	}
	return cfg, nil
}
