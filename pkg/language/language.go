// Package language holds the fixed set of languages the assistant speaks and
// the policy for coercing arbitrary language tags into that set.
//
// Every user-facing text path (descriptions, canned error phrases, synthesized
// audio) goes through Normalize so that an unexpected tag from a backend can
// never select a prompt or voice that does not exist.
package language

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	xlang "golang.org/x/text/language"
)

// Language is a supported language code.
type Language string

const (
	// English is the baseline language.
	English Language = "en"
	// Hindi is written in Devanagari.
	Hindi Language = "hi"

	// Baseline is used whenever no supported language is known.
	Baseline = English
)

// devanagariThreshold is the share of Devanagari runes above which text is
// considered Hindi.
const devanagariThreshold = 0.3

var supported = map[Language]struct{}{
	English: {},
	Hindi:   {},
}

// backend-specific spellings that x/text cannot parse.
var names = map[string]Language{
	"english": English,
	"hindi":   Hindi,
}

// Supported reports whether l is a member of the supported set.
func Supported(l Language) bool {
	_, ok := supported[l]
	return ok
}

// All returns the supported languages in their preferred detection order.
func All() []Language {
	return []Language{English, Hindi}
}

// String returns the language code.
func (l Language) String() string {
	return string(l)
}

// Normalize returns tag unchanged when it is a supported code, otherwise the
// baseline language. A warning is logged for every coercion of a non-empty tag.
func Normalize(tag string) Language {
	l := Language(tag)
	if Supported(l) {
		return l
	}
	if tag == "" {
		return Baseline
	}
	slog.Warn("unsupported language, falling back to baseline",
		"language", tag,
		"baseline", Baseline,
	)
	return Baseline
}

// FromTag maps a backend language identifier onto the supported set.
// It understands BCP 47 tags ("hi-IN", "en-US") and the lowercase English
// names some speech backends report ("hindi"). ok is false when the tag does
// not denote a supported language.
func FromTag(tag string) (Language, bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", false
	}
	if l, ok := names[strings.ToLower(tag)]; ok {
		return l, true
	}
	parsed, err := xlang.Parse(tag)
	if err != nil {
		return "", false
	}
	base, conf := parsed.Base()
	if conf == xlang.No {
		return "", false
	}
	l := Language(base.String())
	if !Supported(l) {
		return "", false
	}
	return l, true
}

// DetectScript guesses the language of text from its character set: text
// with more than 30% Devanagari runes is Hindi, anything else English.
func DetectScript(text string) Language {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return Baseline
	}
	devanagari := 0
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			devanagari++
		}
	}
	if float64(devanagari) > float64(total)*devanagariThreshold {
		return Hindi
	}
	return English
}
