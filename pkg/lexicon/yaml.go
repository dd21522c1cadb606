package lexicon

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// File is the YAML document used to import and export lexicon tables.
type File struct {
	Pairs []PairTables `yaml:"pairs"`
}

// PairTables holds the phrase and word tables for one language direction.
type PairTables struct {
	From    string            `yaml:"from"`
	To      string            `yaml:"to"`
	Phrases map[string]string `yaml:"phrases,omitempty"`
	Words   map[string]string `yaml:"words,omitempty"`
}

// Entries flattens the document into store entries.
func (f File) Entries() []Entry {
	var out []Entry
	for _, p := range f.Pairs {
		for src, dst := range p.Phrases {
			out = append(out, Entry{Kind: KindPhrase, From: p.From, To: p.To, Source: src, Target: dst})
		}
		for src, dst := range p.Words {
			out = append(out, Entry{Kind: KindWord, From: p.From, To: p.To, Source: src, Target: dst})
		}
	}
	return out
}

// ImportYAML reads a lexicon document from r and puts every entry into s.
// Entries are validated before anything is written.
func ImportYAML(ctx context.Context, s Store, r io.Reader) (int, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("lexicon: decode yaml: %w", err)
	}

	entries := f.Entries()
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return 0, fmt.Errorf("lexicon: entry %d (%s->%s %q): %w", i, e.From, e.To, e.Source, err)
		}
	}
	for _, e := range entries {
		if err := s.Put(ctx, e); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// LoadYAMLFile imports the lexicon document at path into s.
func LoadYAMLFile(ctx context.Context, s Store, path string) (int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("lexicon: open %s: %w", path, err)
	}
	defer func() { _ = fh.Close() }()
	return ImportYAML(ctx, s, fh)
}

// ExportYAML writes every entry in s to w, grouped by language pair.
func ExportYAML(ctx context.Context, s Store, w io.Writer) error {
	byPair := make(map[[2]string]*PairTables)
	collect := func(kind Kind) error {
		entries, err := s.List(ctx, kind, "", "")
		if err != nil {
			return err
		}
		for _, e := range entries {
			key := [2]string{e.From, e.To}
			p, ok := byPair[key]
			if !ok {
				p = &PairTables{From: e.From, To: e.To}
				byPair[key] = p
			}
			if kind == KindPhrase {
				if p.Phrases == nil {
					p.Phrases = make(map[string]string)
				}
				p.Phrases[e.Source] = e.Target
			} else {
				if p.Words == nil {
					p.Words = make(map[string]string)
				}
				p.Words[e.Source] = e.Target
			}
		}
		return nil
	}
	if err := collect(KindPhrase); err != nil {
		return fmt.Errorf("lexicon: export: %w", err)
	}
	if err := collect(KindWord); err != nil {
		return fmt.Errorf("lexicon: export: %w", err)
	}

	f := File{Pairs: make([]PairTables, 0, len(byPair))}
	for _, p := range byPair {
		f.Pairs = append(f.Pairs, *p)
	}
	sort.Slice(f.Pairs, func(i, j int) bool {
		if f.Pairs[i].From != f.Pairs[j].From {
			return f.Pairs[i].From < f.Pairs[j].From
		}
		return f.Pairs[i].To < f.Pairs[j].To
	})

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("lexicon: encode yaml: %w", err)
	}
	return enc.Close()
}
