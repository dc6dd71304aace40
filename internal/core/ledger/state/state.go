// Package state provides the transactional view of the ledger used by
// operation frames. A LedgerState layers a private write-set over a parent
// state (or the Root store), giving nested save-point semantics: a child
// sees its parent's uncommitted writes, a child rollback discards only the
// child's writes, and a commit promotes them into the parent atomically.
package state

import (
	"fmt"

	"github.com/openmargin/margind/internal/core/ledger"
)

// LedgerState is one save-point level. It is single-writer: while a child is
// active the parent refuses all access, and after Commit or Rollback the
// state is dead. Misuse is a programming error and panics.
type LedgerState struct {
	parent *LedgerState
	root   Root

	// writes maps keys touched at this level to their working copies.
	// A nil value marks an erase.
	writes map[ledger.LedgerKey]*ledger.LedgerEntry

	// header is the working copy of the ledger header, nil until loaded.
	header *ledger.LedgerHeader

	child *LedgerState
	done  bool
}

// New creates the outermost state over a Root store.
func New(root Root) *LedgerState {
	return &LedgerState{
		root:   root,
		writes: make(map[ledger.LedgerKey]*ledger.LedgerEntry),
	}
}

// NewChild opens a nested save point on parent. The parent is inaccessible
// until the child commits or rolls back.
func NewChild(parent *LedgerState) *LedgerState {
	parent.checkActive()
	child := &LedgerState{
		parent: parent,
		writes: make(map[ledger.LedgerKey]*ledger.LedgerEntry),
	}
	parent.child = child
	return child
}

func (s *LedgerState) checkActive() {
	if s.done {
		panic("LedgerState used after commit or rollback")
	}
	if s.child != nil {
		panic("LedgerState used while a child is active")
	}
}

// lookup returns the entry visible at this level without recording it:
// local writes first, then the parent chain, then the root. The returned
// pointer is the owning level's working copy and must be cloned before use.
func (s *LedgerState) lookup(key ledger.LedgerKey) *ledger.LedgerEntry {
	for cur := s; cur != nil; cur = cur.parent {
		if le, ok := cur.writes[key]; ok {
			return le
		}
		if cur.parent == nil {
			le, err := cur.root.GetEntry(key)
			if err != nil {
				panic(fmt.Sprintf("ledger root read failed: %v", err))
			}
			return le
		}
	}
	return nil
}

// Load acquires a read-write handle on the entry for key, or nil if the
// entry does not exist. Loading is idempotent per transaction: repeated
// loads return handles on the same working copy.
func (s *LedgerState) Load(key ledger.LedgerKey) *Entry {
	s.checkActive()
	if le, ok := s.writes[key]; ok {
		if le == nil {
			return nil
		}
		return &Entry{ls: s, key: key, le: le}
	}
	le := s.lookup(key)
	if le == nil {
		return nil
	}
	cp := le.Clone()
	s.writes[key] = cp
	return &Entry{ls: s, key: key, le: cp}
}

// LoadWithoutRecord returns a read-only view of the entry for key, or nil.
// The entry does not join the write set.
func (s *LedgerState) LoadWithoutRecord(key ledger.LedgerKey) *ConstEntry {
	s.checkActive()
	le := s.lookup(key)
	if le == nil {
		return nil
	}
	return &ConstEntry{le: le.Clone()}
}

// Create records a new entry. Creating over an existing entry panics.
func (s *LedgerState) Create(le *ledger.LedgerEntry) *Entry {
	s.checkActive()
	key := le.Key()
	if s.lookup(key) != nil {
		panic(fmt.Sprintf("ledger entry already exists: %s", key))
	}
	cp := le.Clone()
	s.writes[key] = cp
	return &Entry{ls: s, key: key, le: cp}
}

// Erase marks the entry for key as deleted. Erasing a missing entry panics,
// as does deleting a trustline that still carries debt or liabilities.
func (s *LedgerState) Erase(key ledger.LedgerKey) {
	s.checkActive()
	le := s.lookup(key)
	if le == nil {
		panic(fmt.Sprintf("cannot erase missing ledger entry: %s", key))
	}
	if le.Data.Type == ledger.EntryTypeTrustLine {
		tl := le.MustTrustLine()
		if tl.Debt != 0 {
			panic(fmt.Sprintf("cannot delete trustline with nonzero debt: %s", key))
		}
		if tl.Liabilities != nil && (tl.Liabilities.Buying != 0 || tl.Liabilities.Selling != 0) {
			panic(fmt.Sprintf("cannot delete trustline with liabilities: %s", key))
		}
	}
	s.writes[key] = nil
}

// currentHeader returns the nearest loaded working header up the chain,
// falling back to the root.
func (s *LedgerState) currentHeader() ledger.LedgerHeader {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.header != nil {
			return *cur.header
		}
		if cur.parent == nil {
			h, err := cur.root.Header()
			if err != nil {
				panic(fmt.Sprintf("ledger root header read failed: %v", err))
			}
			return h
		}
	}
	panic("unreachable")
}

// LoadHeader acquires a mutable handle on the ledger header.
func (s *LedgerState) LoadHeader() *Header {
	s.checkActive()
	if s.header == nil {
		h := s.currentHeader()
		s.header = &h
	}
	return &Header{ls: s, h: s.header}
}

// Commit promotes this state's writes into the parent, or into the Root for
// the outermost state. The state is dead afterwards.
func (s *LedgerState) Commit() {
	s.checkActive()
	if s.parent != nil {
		for k, le := range s.writes {
			s.parent.writes[k] = le
		}
		if s.header != nil {
			h := *s.header
			s.parent.header = &h
		}
		s.parent.child = nil
	} else {
		if err := s.root.Commit(s.header, s.writes); err != nil {
			panic(fmt.Sprintf("ledger root commit failed: %v", err))
		}
	}
	s.done = true
}

// Rollback discards this state's writes. The state is dead afterwards.
func (s *LedgerState) Rollback() {
	if s.done {
		panic("LedgerState used after commit or rollback")
	}
	if s.child != nil {
		// An abandoned child is rolled back with its parent.
		s.child.parent = nil
		s.child.done = true
		s.child = nil
	}
	if s.parent != nil {
		s.parent.child = nil
	}
	s.done = true
}

// Entry is a read-write handle on a working copy in the owning state.
type Entry struct {
	ls  *LedgerState
	key ledger.LedgerKey
	le  *ledger.LedgerEntry
}

// Current returns the working copy for mutation in place.
func (e *Entry) Current() *ledger.LedgerEntry {
	return e.le
}

// Key returns the ledger key of the entry.
func (e *Entry) Key() ledger.LedgerKey {
	return e.key
}

// Erase deletes the entry from the owning state.
func (e *Entry) Erase() {
	e.ls.Erase(e.key)
}

// ConstEntry is a read-only snapshot of an entry.
type ConstEntry struct {
	le *ledger.LedgerEntry
}

// Current returns the snapshot. Mutations do not reach the ledger.
func (e *ConstEntry) Current() *ledger.LedgerEntry {
	return e.le
}

// Header is a mutable handle on the working ledger header.
type Header struct {
	ls *LedgerState
	h  *ledger.LedgerHeader
}

// Current returns the working header for mutation in place.
func (h *Header) Current() *ledger.LedgerHeader {
	return h.h
}
