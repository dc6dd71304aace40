// Package nodestore archives a compact snapshot of the ledger's entries at
// each close. Snapshots are CBOR-encoded, lz4 block compressed, and written
// to a pebble database keyed by ledger sequence. The archive is an
// operational aid (debugging, replays); the SQL store remains the source of
// truth.
package nodestore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/pierrec/lz4"
	"github.com/ugorji/go/codec"

	"github.com/openmargin/margind/internal/core/ledger"
)

var cborHandle = &codec.CborHandle{}

// Snapshot is the archived state of one closed ledger.
type Snapshot struct {
	Header  ledger.LedgerHeader
	Entries []ledger.LedgerEntry
}

// Store is a pebble-backed snapshot archive.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the archive at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open node store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the archive.
func (s *Store) Close() error {
	return s.db.Close()
}

func snapshotKey(seq uint32) []byte {
	prefix := "snapshot/"
	key := make([]byte, len(prefix)+4)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], seq)
	return key
}

// encode serialises and compresses a snapshot. The uncompressed length is
// prefixed so decompression can size its buffer.
func encode(snap *Snapshot) ([]byte, error) {
	var raw []byte
	if err := codec.NewEncoderBytes(&raw, cborHandle).Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if n == 0 {
		// Incompressible data is stored raw with a zero marker.
		out := make([]byte, 8+len(raw))
		binary.BigEndian.PutUint32(out[4:8], uint32(len(raw)))
		copy(out[8:], raw)
		return out, nil
	}

	out := make([]byte, 8+n)
	binary.BigEndian.PutUint32(out[0:4], uint32(len(raw)))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(raw)))
	copy(out[8:], compressed[:n])
	return out, nil
}

// decode reverses encode.
func decode(data []byte) (*Snapshot, error) {
	if len(data) < 8 {
		return nil, errors.New("snapshot data too short")
	}
	rawLen := binary.BigEndian.Uint32(data[0:4])
	storedLen := binary.BigEndian.Uint32(data[4:8])
	payload := data[8:]

	var raw []byte
	if rawLen == 0 {
		// Stored raw.
		if uint32(len(payload)) != storedLen {
			return nil, errors.New("snapshot length mismatch")
		}
		raw = payload
	} else {
		raw = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
		}
		raw = raw[:n]
	}

	var snap Snapshot
	if err := codec.NewDecoderBytes(raw, cborHandle).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Put archives the snapshot under its ledger sequence.
func (s *Store) Put(snap *Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	if err := s.db.Set(snapshotKey(snap.Header.LedgerSeq), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write snapshot %d: %w", snap.Header.LedgerSeq, err)
	}
	return nil
}

// Get loads the snapshot for seq, or nil when none is archived.
func (s *Store) Get(seq uint32) (*Snapshot, error) {
	data, closer, err := s.db.Get(snapshotKey(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %d: %w", seq, err)
	}
	defer closer.Close()

	cp := append([]byte(nil), data...)
	return decode(cp)
}
