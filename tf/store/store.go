// Package store provides a content-addressed, on-disk cache of compiled
// bytecode. A host that re-renders the same handful of column scripts
// thousands of times a second calls Get before compiling a script, and
// Put after a cold compile; a miss always falls back to calling
// tf.Compile directly, so the store can only ever change how often
// compile() runs, never what it produces.
package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/slices"

	"github.com/kts-audio/titlefmt/tf"
)

const segmentFileName = "titlefmt-store.segment"

type indexEntry struct {
	offset int64
	length int64
}

// Store guards its in-memory index with a single RWMutex, bracketing the
// whole lookup-or-insert and never held across a compile() call - the
// same locking discipline the engine itself uses around metadata reads.
type Store struct {
	mu    sync.RWMutex
	index map[string]indexEntry
	keys  []string

	seg *os.File
	enc *zstd.Encoder
}

// Open opens (creating if necessary) a Store backed by a single
// append-only segment file under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("titlefmt/store: mkdir: %w", err)
	}
	seg, err := os.OpenFile(filepath.Join(dir, segmentFileName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("titlefmt/store: open segment: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		seg.Close()
		return nil, fmt.Errorf("titlefmt/store: zstd writer: %w", err)
	}
	return &Store{
		index: make(map[string]indexEntry),
		seg:   seg,
		enc:   enc,
	}, nil
}

// Close releases the segment file handle.
func (s *Store) Close() error {
	s.enc.Close()
	return s.seg.Close()
}

func hashKey(script string) string {
	sum := blake2b.Sum256([]byte(script))
	return fmt.Sprintf("%x", sum)
}

// Get returns the cached bytecode for script, if present.
func (s *Store) Get(script string) (*tf.Bytecode, bool) {
	key := hashKey(script)

	s.mu.RLock()
	entry, ok := s.index[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	compressed := make([]byte, entry.length)
	if _, err := s.seg.ReadAt(compressed, entry.offset); err != nil {
		return nil, false
	}
	raw, err := decompress(compressed)
	if err != nil {
		return nil, false
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, false
	}
	bc, err := tf.FromBytes(rec.bytecode)
	if err != nil {
		return nil, false
	}
	return bc, true
}

// Put stores bc under script's content hash, stamping the entry with a
// fresh correlation id and the current time so a later reader can tell
// which process populated a given cache line.
func (s *Store) Put(script string, bc *tf.Bytecode) error {
	key := hashKey(script)
	raw := encodeRecord(record{
		id:       uuid.New(),
		storedAt: time.Now(),
		bytecode: bc.Bytes(),
	})
	compressed := s.enc.EncodeAll(raw, nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	offset, err := s.seg.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("titlefmt/store: seek: %w", err)
	}
	if _, err := s.seg.Write(compressed); err != nil {
		return fmt.Errorf("titlefmt/store: write: %w", err)
	}

	s.index[key] = indexEntry{offset: offset, length: int64(len(compressed))}
	if i, found := slices.BinarySearch(s.keys, key); !found {
		s.keys = slices.Insert(s.keys, i, key)
	}
	return nil
}

// Len reports how many distinct scripts are currently cached.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

func decompress(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(compressed, nil)
}

// record is the on-disk cache line: a correlation id and insertion time
// alongside the compiled bytecode, length-prefixed and concatenated
// before zstd compression.
type record struct {
	id       uuid.UUID
	storedAt time.Time
	bytecode []byte
}

func encodeRecord(r record) []byte {
	idBytes, _ := r.id.MarshalBinary()
	tsBytes, _ := r.storedAt.MarshalBinary()

	buf := make([]byte, 0, len(idBytes)+4+len(tsBytes)+4+len(r.bytecode))
	buf = append(buf, idBytes...)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(tsBytes)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, tsBytes...)

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(r.bytecode)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, r.bytecode...)
	return buf
}

func decodeRecord(buf []byte) (record, error) {
	if len(buf) < 16+4 {
		return record{}, fmt.Errorf("titlefmt/store: truncated record")
	}
	var rec record
	if err := rec.id.UnmarshalBinary(buf[:16]); err != nil {
		return record{}, fmt.Errorf("titlefmt/store: bad id: %w", err)
	}
	pos := 16

	tsLen := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	if pos+tsLen > len(buf) {
		return record{}, fmt.Errorf("titlefmt/store: truncated timestamp")
	}
	if err := rec.storedAt.UnmarshalBinary(buf[pos : pos+tsLen]); err != nil {
		return record{}, fmt.Errorf("titlefmt/store: bad timestamp: %w", err)
	}
	pos += tsLen

	if pos+4 > len(buf) {
		return record{}, fmt.Errorf("titlefmt/store: truncated bytecode length")
	}
	bcLen := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	if pos+bcLen > len(buf) {
		return record{}, fmt.Errorf("titlefmt/store: truncated bytecode")
	}
	rec.bytecode = buf[pos : pos+bcLen]
	return rec, nil
}
