package model

import (
	"strings"

	"golang.org/x/text/language"
)

// Language describes a language the relay can translate between.
type Language struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"nativeName"`
}

var supportedLanguages = []Language{
	{Code: "en", Name: "English", NativeName: "English"},
	{Code: "hi", Name: "Hindi", NativeName: "हिंदी"},
	{Code: "ml", Name: "Malayalam", NativeName: "മലയാളം"},
	{Code: "ta", Name: "Tamil", NativeName: "தமிழ்"},
}

// SupportedLanguages returns a copy of the languages offered to clients.
func SupportedLanguages() []Language {
	out := make([]Language, len(supportedLanguages))
	copy(out, supportedLanguages)
	return out
}

// IsSupportedLanguage reports whether code (after normalisation) is offered to clients.
func IsSupportedLanguage(code string) bool {
	code = NormalizeLanguage(code)
	for _, l := range supportedLanguages {
		if l.Code == code {
			return true
		}
	}
	return false
}

// NormalizeLanguage reduces a client supplied language code to its BCP 47
// base language, lower case.
//
//	"EN"     -> "en"
//	"hi-IN"  -> "hi"
//	"en-US"  -> "en"
//	" ta "   -> "ta"
//	""       -> ""
//
// Codes that do not parse as BCP 47 are returned trimmed and lower-cased.
func NormalizeLanguage(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return strings.ToLower(code)
	}
	return base.String()
}

// LanguageOrDefault returns the normalised code, or DefaultLanguage when code is empty.
func LanguageOrDefault(code string) string {
	if n := NormalizeLanguage(code); n != "" {
		return n
	}
	return DefaultLanguage
}
