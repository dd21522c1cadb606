// Package lexicon stores the phrase and word tables used by the lexicon translator.
package lexicon

import (
	"context"
	"errors"
	"strings"
)

// Kind separates whole-phrase entries from single-word substitutions.
type Kind string

const (
	KindPhrase Kind = "phrase"
	KindWord   Kind = "word"
)

var (
	ErrInvalidKind = errors.New("lexicon: kind must be phrase or word")
	ErrMissingPair = errors.New("lexicon: from and to languages are required")
	ErrEmptySource = errors.New("lexicon: source text must not be empty")
	ErrEmptyTarget = errors.New("lexicon: target text must not be empty")
	ErrStoreClosed = errors.New("lexicon: store is closed")
)

// Entry maps Source text in language From to Target text in language To.
type Entry struct {
	Kind   Kind   `json:"kind"`
	From   string `json:"from"`
	To     string `json:"to"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Normalize lower-cases the source and language codes and trims whitespace.
// Targets keep their case.
func (e Entry) Normalize() Entry {
	e.From = strings.ToLower(strings.TrimSpace(e.From))
	e.To = strings.ToLower(strings.TrimSpace(e.To))
	e.Source = strings.ToLower(strings.TrimSpace(e.Source))
	e.Target = strings.TrimSpace(e.Target)
	return e
}

// Validate checks an entry before it is stored.
func (e Entry) Validate() error {
	if e.Kind != KindPhrase && e.Kind != KindWord {
		return ErrInvalidKind
	}
	if strings.TrimSpace(e.From) == "" || strings.TrimSpace(e.To) == "" {
		return ErrMissingPair
	}
	if strings.TrimSpace(e.Source) == "" {
		return ErrEmptySource
	}
	if strings.TrimSpace(e.Target) == "" {
		return ErrEmptyTarget
	}
	return nil
}

// Store defines the persistence interface for lexicon entries.
// Implementations include the SQLite store and an in-memory store.
type Store interface {
	// Close releases the underlying storage.
	Close() error

	// Put inserts or replaces the entry keyed by (kind, from, to, source).
	Put(ctx context.Context, e Entry) error

	// Lookup returns the target for source in the from->to table.
	// Matching is case-insensitive. ok is false when nothing matches.
	Lookup(ctx context.Context, kind Kind, from, to, source string) (target string, ok bool, err error)

	// ReverseLookup returns the source whose target equals target
	// (case-insensitive) in the from->to table.
	ReverseLookup(ctx context.Context, kind Kind, from, to, target string) (source string, ok bool, err error)

	// List returns entries of kind for the pair, ordered by from, to, source.
	// Empty from and to list every pair.
	List(ctx context.Context, kind Kind, from, to string) ([]Entry, error)

	// HasPair reports whether any entry of kind exists for from->to.
	HasPair(ctx context.Context, kind Kind, from, to string) (bool, error)

	// Count returns the total number of entries.
	Count(ctx context.Context) (int, error)
}
