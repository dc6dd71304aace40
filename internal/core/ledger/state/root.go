package state

import (
	"sort"
	"sync"

	"github.com/openmargin/margind/internal/core/ledger"
)

// Root is the backing store under the outermost LedgerState. Implementations
// must iterate entries in the canonical key order so that replicas agree on
// scan results byte-for-byte.
//
// Errors returned by a Root are structural: the ledger state layer treats
// them as fatal and panics, since continuing would risk divergent state.
type Root interface {
	// GetEntry returns a copy of the entry for key, or nil if absent.
	GetEntry(key ledger.LedgerKey) (*ledger.LedgerEntry, error)

	// ForEach calls fn for every entry in canonical key order. The entry
	// passed to fn is a copy owned by the callback.
	ForEach(fn func(*ledger.LedgerEntry) error) error

	// Header returns the current ledger header.
	Header() (ledger.LedgerHeader, error)

	// Commit atomically applies the header and the entry changes. A nil
	// entry value marks a deletion.
	Commit(header *ledger.LedgerHeader, changes map[ledger.LedgerKey]*ledger.LedgerEntry) error
}

// MemStore is an in-memory Root used by tests and standalone mode.
type MemStore struct {
	mu      sync.RWMutex
	entries map[ledger.LedgerKey]*ledger.LedgerEntry
	header  ledger.LedgerHeader
}

// NewMemStore creates an empty in-memory store with the given header.
func NewMemStore(header ledger.LedgerHeader) *MemStore {
	return &MemStore{
		entries: make(map[ledger.LedgerKey]*ledger.LedgerEntry),
		header:  header,
	}
}

// GetEntry implements Root.
func (m *MemStore) GetEntry(key ledger.LedgerKey) (*ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	le, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return le.Clone(), nil
}

// ForEach implements Root.
func (m *MemStore) ForEach(fn func(*ledger.LedgerEntry) error) error {
	m.mu.RLock()
	keys := make([]ledger.LedgerKey, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, k := range keys {
		m.mu.RLock()
		le, ok := m.entries[k]
		var cp *ledger.LedgerEntry
		if ok {
			cp = le.Clone()
		}
		m.mu.RUnlock()
		if cp == nil {
			continue
		}
		if err := fn(cp); err != nil {
			return err
		}
	}
	return nil
}

// Header implements Root.
func (m *MemStore) Header() (ledger.LedgerHeader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.header, nil
}

// Commit implements Root.
func (m *MemStore) Commit(header *ledger.LedgerHeader, changes map[ledger.LedgerKey]*ledger.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if header != nil {
		m.header = *header
	}
	for k, le := range changes {
		if le == nil {
			delete(m.entries, k)
		} else {
			m.entries[k] = le.Clone()
		}
	}
	return nil
}

// SeedEntry inserts an entry directly, bypassing transaction machinery.
// Test and genesis setup helper.
func (m *MemStore) SeedEntry(le *ledger.LedgerEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[le.Key()] = le.Clone()
}

// SetHeader replaces the header directly. Test and genesis setup helper.
func (m *MemStore) SetHeader(header ledger.LedgerHeader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.header = header
}
