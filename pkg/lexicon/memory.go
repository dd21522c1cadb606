package lexicon

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type memoryKey struct {
	kind   Kind
	from   string
	to     string
	source string
}

// MemoryStore provides an in-memory Store. It mirrors the SQLite store's
// validation and matching rules.
type MemoryStore struct {
	mu      sync.RWMutex
	closed  bool
	entries map[memoryKey]Entry
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{entries: make(map[memoryKey]Entry)}
}

// Close marks the store closed; later calls fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Put inserts or replaces an entry.
func (s *MemoryStore) Put(_ context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("lexicon: put: %w", err)
	}
	e = e.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.entries[memoryKey{e.Kind, e.From, e.To, e.Source}] = e
	return nil
}

// Lookup returns the target for source in the from->to table.
func (s *MemoryStore) Lookup(_ context.Context, kind Kind, from, to, source string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrStoreClosed
	}
	e, ok := s.entries[memoryKey{kind, strings.ToLower(from), strings.ToLower(to), strings.ToLower(strings.TrimSpace(source))}]
	if !ok {
		return "", false, nil
	}
	return e.Target, true, nil
}

// ReverseLookup returns the source mapped to target in the from->to table.
// When several sources share a target the alphabetically first wins.
func (s *MemoryStore) ReverseLookup(_ context.Context, kind Kind, from, to, target string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrStoreClosed
	}
	from, to = strings.ToLower(from), strings.ToLower(to)
	target = strings.TrimSpace(target)

	var found string
	ok := false
	for k, e := range s.entries {
		if k.kind != kind || k.from != from || k.to != to {
			continue
		}
		if !strings.EqualFold(e.Target, target) {
			continue
		}
		if !ok || e.Source < found {
			found = e.Source
			ok = true
		}
	}
	return found, ok, nil
}

// List returns entries ordered by from, to, source.
func (s *MemoryStore) List(_ context.Context, kind Kind, from, to string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	from, to = strings.ToLower(from), strings.ToLower(to)

	out := make([]Entry, 0)
	for k, e := range s.entries {
		if k.kind != kind {
			continue
		}
		if from != "" && k.from != from {
			continue
		}
		if to != "" && k.to != to {
			continue
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// HasPair reports whether any entry of kind exists for from->to.
func (s *MemoryStore) HasPair(_ context.Context, kind Kind, from, to string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrStoreClosed
	}
	from, to = strings.ToLower(from), strings.ToLower(to)
	for k := range s.entries {
		if k.kind == kind && k.from == from && k.to == to {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the total number of entries.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	return len(s.entries), nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Source < b.Source
	})
}

// Compile-time check: *MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
