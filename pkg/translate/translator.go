// Package translate defines the translation collaborator used by the relay.
package translate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Confidence levels reported by the lexicon translator.
const (
	ConfidenceSameLanguage = 1.0
	ConfidencePhrase       = 0.9
	ConfidenceReverse      = 0.8
	ConfidenceWords        = 0.6
	ConfidenceNone         = 0.3
)

var ErrEmptyLanguage = errors.New("translate: from and to languages are required")

// Request asks for Text to be translated from one language to another.
type Request struct {
	Text string
	From string
	To   string
}

// Result is a translation with its confidence in [0, 1].
type Result struct {
	OriginalText   string  `json:"originalText"`
	TranslatedText string  `json:"translatedText"`
	Confidence     float64 `json:"confidence"`
	From           string  `json:"fromLanguage"`
	To             string  `json:"toLanguage"`
}

// Translator translates a single text. Implementations must be safe for
// concurrent use.
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to the Translator interface.
type Func func(ctx context.Context, req Request) (Result, error)

// Translate calls f.
func (f Func) Translate(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Untranslated returns the identity result for req with confidence 0.
func Untranslated(req Request) Result {
	return Result{OriginalText: req.Text, TranslatedText: req.Text, From: req.From, To: req.To}
}

type timeoutTranslator struct {
	next    Translator
	timeout time.Duration
}

// WithTimeout bounds every call to next by d. A non-positive d returns next unchanged.
func WithTimeout(next Translator, d time.Duration) Translator {
	if d <= 0 {
		return next
	}
	return &timeoutTranslator{next: next, timeout: d}
}

func (t *timeoutTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{Untranslated(req), fmt.Errorf("translate: panic: %v", r)}
			}
		}()
		res, err := t.next.Translate(ctx, req)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return Untranslated(req), fmt.Errorf("translate: %s->%s: %w", req.From, req.To, ctx.Err())
	}
}
