package lexicon

import (
	"context"
	"fmt"
)

// defaultPhrases are whole-phrase translations for common negotiation phrases.
var defaultPhrases = map[string]map[string]string{
	"hi": {
		"hello":         "नमस्ते",
		"how much":      "कितना",
		"good price":    "अच्छी कीमत",
		"too expensive": "बहुत महंगा",
		"cheap":         "सस्ता",
		"deal":          "सौदा",
	},
	"ml": {
		"hello":         "നമസ്കാരം",
		"how much":      "എത്ര",
		"good price":    "നല്ല വില",
		"too expensive": "വളരെ ചെലവേറിയത്",
		"cheap":         "വിലകുറഞ്ഞ",
		"deal":          "ഇടപാട്",
	},
	"ta": {
		"hello":         "வணக்கம்",
		"how much":      "எவ்வளவு",
		"good price":    "நல்ல விலை",
		"too expensive": "மிகவும் விலை உயர்ந்தது",
		"cheap":         "மலிவான",
		"deal":          "ஒப்பந்தம்",
	},
}

// defaultWords are market terms substituted word by word.
var defaultWords = map[string]map[string]string{
	"hi": {
		"hello":     "नमस्ते",
		"price":     "कीमत",
		"good":      "अच्छा",
		"bad":       "बुरा",
		"yes":       "हाँ",
		"no":        "नहीं",
		"buy":       "खरीदना",
		"sell":      "बेचना",
		"market":    "बाजार",
		"vegetable": "सब्जी",
		"fruit":     "फल",
		"kg":        "किलो",
		"rupees":    "रुपये",
	},
	"ml": {
		"hello":     "നമസ്കാരം",
		"price":     "വില",
		"good":      "നല്ലത്",
		"bad":       "മോശം",
		"yes":       "അതെ",
		"no":        "ഇല്ല",
		"buy":       "വാങ്ങുക",
		"sell":      "വിൽക്കുക",
		"market":    "മാർക്കറ്റ്",
		"vegetable": "പച്ചക്കറി",
		"fruit":     "പഴം",
		"kg":        "കിലോ",
		"rupees":    "രൂപ",
	},
	"ta": {
		"hello":     "வணக்கம்",
		"price":     "விலை",
		"good":      "நல்லது",
		"bad":       "கெட்டது",
		"yes":       "ஆம்",
		"no":        "இல்லை",
		"buy":       "வாங்க",
		"sell":      "விற்க",
		"market":    "சந்தை",
		"vegetable": "காய்கறி",
		"fruit":     "பழம்",
		"kg":        "கிலோ",
		"rupees":    "ரூபாய்",
	},
}

// DefaultEntries returns the built-in English to Hindi, Malayalam and Tamil tables.
func DefaultEntries() []Entry {
	var out []Entry
	for to, table := range defaultPhrases {
		for src, dst := range table {
			out = append(out, Entry{Kind: KindPhrase, From: "en", To: to, Source: src, Target: dst})
		}
	}
	for to, table := range defaultWords {
		for src, dst := range table {
			out = append(out, Entry{Kind: KindWord, From: "en", To: to, Source: src, Target: dst})
		}
	}
	sortEntries(out)
	return out
}

// Seed writes the default tables into s when it holds no entries.
// It returns the number of entries written.
func Seed(ctx context.Context, s Store) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("lexicon: seed: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	entries := DefaultEntries()
	for _, e := range entries {
		if err := s.Put(ctx, e); err != nil {
			return 0, fmt.Errorf("lexicon: seed: %w", err)
		}
	}
	return len(entries), nil
}
