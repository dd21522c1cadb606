package translate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/NicolasHaas/mandichat/pkg/lexicon"
	"github.com/NicolasHaas/mandichat/pkg/model"
)

// LexiconTranslator translates using the phrase and word tables of a lexicon store.
//
// Lookup order:
//
//	same language           -> text unchanged, 1.0
//	phrase from->to         -> 0.9
//	phrase to->from reverse -> 0.8
//	word substitution       -> 0.6
//	otherwise               -> text unchanged, 0.3
type LexiconTranslator struct {
	store lexicon.Store
}

// NewLexicon returns a LexiconTranslator reading from s.
func NewLexicon(s lexicon.Store) *LexiconTranslator {
	return &LexiconTranslator{store: s}
}

// Translate implements Translator.
func (t *LexiconTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	from := model.NormalizeLanguage(req.From)
	to := model.NormalizeLanguage(req.To)
	if from == "" || to == "" {
		return Untranslated(req), ErrEmptyLanguage
	}

	res := Result{OriginalText: req.Text, TranslatedText: req.Text, From: req.From, To: req.To}
	if from == to {
		res.Confidence = ConfidenceSameLanguage
		return res, nil
	}

	key := strings.TrimSpace(req.Text)
	if target, ok, err := t.store.Lookup(ctx, lexicon.KindPhrase, from, to, key); err != nil {
		return Untranslated(req), fmt.Errorf("translate: phrase lookup: %w", err)
	} else if ok {
		res.TranslatedText = target
		res.Confidence = ConfidencePhrase
		return res, nil
	}

	if source, ok, err := t.store.ReverseLookup(ctx, lexicon.KindPhrase, to, from, key); err != nil {
		return Untranslated(req), fmt.Errorf("translate: reverse lookup: %w", err)
	} else if ok {
		res.TranslatedText = source
		res.Confidence = ConfidenceReverse
		return res, nil
	}

	hasWords, err := t.store.HasPair(ctx, lexicon.KindWord, from, to)
	if err != nil {
		return Untranslated(req), fmt.Errorf("translate: word table: %w", err)
	}
	if !hasWords {
		res.Confidence = ConfidenceNone
		return res, nil
	}
	words, err := t.store.List(ctx, lexicon.KindWord, from, to)
	if err != nil {
		return Untranslated(req), fmt.Errorf("translate: word table: %w", err)
	}
	if out, changed := substituteWords(req.Text, words); changed {
		res.TranslatedText = out
		res.Confidence = ConfidenceWords
		return res, nil
	}

	res.Confidence = ConfidenceNone
	return res, nil
}

// substituteWords replaces whole-word occurrences of each source word,
// case-insensitively, longest words first. The result is lower-cased.
func substituteWords(text string, words []lexicon.Entry) (string, bool) {
	if len(words) == 0 {
		return text, false
	}
	sorted := make([]lexicon.Entry, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i].Source) > utf8.RuneCountInString(sorted[j].Source)
	})

	out := strings.ToLower(text)
	changed := false
	for _, w := range sorted {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(w.Source) + `\b`)
		if err != nil {
			continue
		}
		if !re.MatchString(out) {
			continue
		}
		out = re.ReplaceAllLiteralString(out, w.Target)
		changed = true
	}
	return out, changed
}

var _ Translator = (*LexiconTranslator)(nil)
