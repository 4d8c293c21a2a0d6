package consensus

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/ngov17/yugabyte-db/internal/rafterrors"
)

var (
	errIndexDoesNotExist = rafterrors.New("index does not exist")
	errLogNotOpen        = rafterrors.New("log is not open")
)

// Log is the durable write-ahead log the coordinator appends operations to
// and reads back from during recovery. On-disk layout is out of scope
// (spec §1 Non-goals), so fileLog below is one concrete choice among many
// a caller could substitute; the coordinator only depends on this shape.
type Log interface {
	Open() error
	Close() error

	// Entry returns the entry at index, if still retained.
	Entry(index int64) (*Operation, error)

	// AppendEntries durably appends entries, which must arrive in
	// ascending, contiguous index order.
	AppendEntries(entries []*Operation) error

	// TruncateSuffix deletes all entries with index greater than or
	// equal to the provided index.
	TruncateSuffix(index int64) error

	// Compact deletes all entries with index less than or equal to the
	// provided index.
	Compact(index int64) error

	// Contains reports whether the log retains an entry at index.
	Contains(index int64) bool

	// LastIndex returns the largest index in the log. When the log holds
	// only its placeholder entry this is the placeholder's index:
	// MinOpId.Index for a fresh log, the compacted index after Compact.
	LastIndex() int64

	// Size returns the number of entries in the log, including the
	// leading placeholder.
	Size() int
}

// record is the on-disk representation of a single Operation. Wire
// encoding here is a simple length-prefixed frame; persistence format is
// explicitly out of scope for this component, so this is a convenient
// choice rather than a contractual one.
type record struct {
	index           int64
	term            int64
	offset          int64
	kind            OpKind
	clientRequestID string
	payload         []byte
}

func encodeRecord(w io.Writer, r *record) error {
	var hdr [3 * 8]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(r.index))
	binary.BigEndian.PutUint64(hdr[8:16], uint64(r.term))
	binary.BigEndian.PutUint64(hdr[16:24], uint64(r.kind))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if err := writeLenPrefixed(w, []byte(r.clientRequestID)); err != nil {
		return err
	}
	return writeLenPrefixed(w, r.payload)
}

func writeLenPrefixed(w io.Writer, b []byte) error {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func decodeRecord(r io.Reader) (*record, error) {
	var hdr [3 * 8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	rec := &record{
		index: int64(binary.BigEndian.Uint64(hdr[0:8])),
		term:  int64(binary.BigEndian.Uint64(hdr[8:16])),
		kind:  OpKind(binary.BigEndian.Uint64(hdr[16:24])),
	}
	id, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	rec.clientRequestID = string(id)
	payload, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	rec.payload = payload
	return rec, nil
}

// fileLog implements Log with a single append-only file plus an in-memory
// index, following the teacher's persistentLog shape: entries accumulate
// in memory as a fast-path cache, Compact rewrites the file to a temporary
// path and atomically renames it into place, TruncateSuffix truncates the
// file in place at the first removed record's offset, and the first
// entry is always a placeholder used to anchor index arithmetic. Not
// concurrent safe.
type fileLog struct {
	entries []*record
	file    *os.File
	path    string
}

// NewFileLog creates a Log backed by a file at the given directory.
func NewFileLog(path string) Log {
	return &fileLog{path: path}
}

func (l *fileLog) Open() error {
	fileName := filepath.Join(l.path, "log.bin")
	file, err := os.OpenFile(fileName, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return rafterrors.WrapError(err, "failed to open log")
	}
	l.file = file
	l.entries = make([]*record, 0)
	return l.replay()
}

func (l *fileLog) replay() error {
	reader := bufio.NewReader(l.file)
	var offset int64
	for {
		rec, err := decodeRecord(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			return rafterrors.WrapError(err, "failed while replaying log")
		}
		rec.offset = offset
		offset += int64(3*8 + 2*8 + len(rec.clientRequestID) + len(rec.payload))
		l.entries = append(l.entries, rec)
	}

	if len(l.entries) == 0 {
		placeholder := &record{}
		if err := encodeRecord(l.file, placeholder); err != nil {
			return rafterrors.WrapError(err, "failed while replaying log")
		}
		if err := l.file.Sync(); err != nil {
			return rafterrors.WrapError(err, "failed while replaying log")
		}
		l.entries = append(l.entries, placeholder)
	}
	return nil
}

func (l *fileLog) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return rafterrors.WrapError(err, "failed to close log")
	}
	l.entries = nil
	l.file = nil
	return nil
}

func (l *fileLog) logOffset(index int64) int64 {
	return index - l.entries[0].index
}

func (l *fileLog) Entry(index int64) (*Operation, error) {
	if l.file == nil {
		return nil, errLogNotOpen
	}
	off := l.logOffset(index)
	if off <= 0 || off >= int64(len(l.entries)) {
		return nil, errIndexDoesNotExist
	}
	rec := l.entries[off]
	op := NewOperation(rec.kind, rec.payload, rec.clientRequestID, nil)
	op.ID = OpId{Term: rec.term, Index: rec.index}
	return op, nil
}

func (l *fileLog) Contains(index int64) bool {
	off := l.logOffset(index)
	return off > 0 && off < int64(len(l.entries))
}

func (l *fileLog) AppendEntries(entries []*Operation) error {
	if l.file == nil {
		return errLogNotOpen
	}
	for _, op := range entries {
		offset, err := l.file.Seek(0, io.SeekCurrent)
		if err != nil {
			return rafterrors.WrapError(err, "failed while appending entries to log")
		}
		rec := &record{
			index:           op.ID.Index,
			term:            op.ID.Term,
			offset:          offset,
			kind:            op.Kind,
			clientRequestID: op.ClientRequestID,
			payload:         op.Payload,
		}
		if err := encodeRecord(l.file, rec); err != nil {
			return rafterrors.WrapError(err, "failed while appending entries to log")
		}
		l.entries = append(l.entries, rec)
	}
	if err := l.file.Sync(); err != nil {
		return rafterrors.WrapError(err, "failed while appending entries to log")
	}
	return nil
}

func (l *fileLog) TruncateSuffix(index int64) error {
	if l.file == nil {
		return errLogNotOpen
	}
	off := l.logOffset(index)
	if off <= 0 || off >= int64(len(l.entries)) {
		return errIndexDoesNotExist
	}
	size := l.entries[off].offset
	if err := l.file.Truncate(size); err != nil {
		return rafterrors.WrapError(err, "failed to truncate log")
	}
	if err := l.file.Sync(); err != nil {
		return rafterrors.WrapError(err, "failed to truncate log")
	}
	if _, err := l.file.Seek(size, io.SeekStart); err != nil {
		return rafterrors.WrapError(err, "failed to truncate log")
	}
	l.entries = l.entries[:off]
	return nil
}

func (l *fileLog) Compact(index int64) error {
	if l.file == nil {
		return errLogNotOpen
	}
	off := l.logOffset(index)
	if off <= 0 || off >= int64(len(l.entries)) {
		return errIndexDoesNotExist
	}

	kept := make([]*record, len(l.entries)-int(off))
	copy(kept, l.entries[off:])

	tmpFile, err := os.CreateTemp(l.path, "tmp-")
	if err != nil {
		return rafterrors.WrapError(err, "failed to compact log")
	}
	for _, rec := range kept {
		offset, err := tmpFile.Seek(0, io.SeekCurrent)
		if err != nil {
			return rafterrors.WrapError(err, "failed to compact log")
		}
		rec.offset = offset
		if err := encodeRecord(tmpFile, rec); err != nil {
			return rafterrors.WrapError(err, "failed to compact log")
		}
	}
	if err := l.rename(tmpFile); err != nil {
		return rafterrors.WrapError(err, "failed to compact log")
	}
	l.entries = kept
	return nil
}

func (l *fileLog) LastIndex() int64 {
	if len(l.entries) == 0 {
		return MinOpId.Index
	}
	return l.entries[len(l.entries)-1].index
}

func (l *fileLog) Size() int { return len(l.entries) }

// memoryLog is the zero-dependency default Log: entries live only in
// process memory, for embedding the coordinator in tests or behind a
// caller's own durability layer, mirroring memoryMetadataStore's role for
// MetadataStore.
type memoryLog struct {
	entries []*record
}

// newMemoryLog creates a Log that never touches disk.
func newMemoryLog() Log {
	return &memoryLog{entries: []*record{{}}}
}

func (l *memoryLog) Open() error  { return nil }
func (l *memoryLog) Close() error { return nil }

func (l *memoryLog) logOffset(index int64) int64 {
	return index - l.entries[0].index
}

func (l *memoryLog) Entry(index int64) (*Operation, error) {
	off := l.logOffset(index)
	if off <= 0 || off >= int64(len(l.entries)) {
		return nil, errIndexDoesNotExist
	}
	rec := l.entries[off]
	op := NewOperation(rec.kind, rec.payload, rec.clientRequestID, nil)
	op.ID = OpId{Term: rec.term, Index: rec.index}
	return op, nil
}

func (l *memoryLog) Contains(index int64) bool {
	off := l.logOffset(index)
	return off > 0 && off < int64(len(l.entries))
}

func (l *memoryLog) AppendEntries(entries []*Operation) error {
	for _, op := range entries {
		l.entries = append(l.entries, &record{
			index:           op.ID.Index,
			term:            op.ID.Term,
			kind:            op.Kind,
			clientRequestID: op.ClientRequestID,
			payload:         op.Payload,
		})
	}
	return nil
}

func (l *memoryLog) TruncateSuffix(index int64) error {
	off := l.logOffset(index)
	if off <= 0 || off >= int64(len(l.entries)) {
		return errIndexDoesNotExist
	}
	l.entries = l.entries[:off]
	return nil
}

func (l *memoryLog) Compact(index int64) error {
	off := l.logOffset(index)
	if off <= 0 || off >= int64(len(l.entries)) {
		return errIndexDoesNotExist
	}
	kept := make([]*record, len(l.entries)-int(off))
	copy(kept, l.entries[off:])
	l.entries = kept
	return nil
}

func (l *memoryLog) LastIndex() int64 {
	if len(l.entries) == 0 {
		return MinOpId.Index
	}
	return l.entries[len(l.entries)-1].index
}

func (l *memoryLog) Size() int { return len(l.entries) }

func (l *fileLog) rename(tmpFile *os.File) error {
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpFile.Name(), l.file.Name()); err != nil {
		return err
	}
	fileName := filepath.Join(l.path, "log.bin")
	file, err := os.OpenFile(fileName, os.O_RDWR, 0o666)
	if err != nil {
		return err
	}
	l.file = file
	_, err = l.file.Seek(0, io.SeekEnd)
	return err
}
