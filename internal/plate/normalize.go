// Package plate contains the pure plate-text logic: cleaning raw OCR output,
// matching it against the recognized Colombian plate grammars, ranking
// ambiguous candidates, and suppressing duplicate sightings.
package plate

import (
	"regexp"
	"sort"
	"strings"
)

// Format identifies which plate grammar a normalized plate matched.
type Format string

const (
	FormatStandard   Format = "standard"   // ABC123: three letters, three digits
	FormatDiplomatic Format = "diplomatic" // CD1234: literal CD, four digits
)

// PlateLength is the canonical length of every recognized plate format.
const PlateLength = 6

var (
	patternStandard   = regexp.MustCompile(`[A-Z]{3}[0-9]{3}`)
	patternDiplomatic = regexp.MustCompile(`CD[0-9]{4}`)
)

// CharToDigit and DigitToChar map visually confusable characters
// (O↔0, I↔1, etc.). They are retained from the tuning data of the
// recognition model but are deliberately NOT applied by Normalize: correction
// produced more false positives than it fixed, so normalization relies on
// format matching alone. TestNormalizeDoesNotCorrectConfusables pins this.
var CharToDigit = map[byte]byte{
	'O': '0', 'I': '1', 'J': '3', 'A': '4', 'G': '6', 'S': '5',
}

var DigitToChar = map[byte]byte{
	'0': 'O', '1': 'I', '3': 'J', '4': 'A', '6': 'G', '5': 'S',
}

// Clean strips everything but ASCII letters and digits and uppercases the
// remainder.
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			b.WriteByte(c)
		}
	}
	return b.String()
}

// MatchFormat reports which grammar an already-clean 6-character string
// matches, if any.
func MatchFormat(text string) (Format, bool) {
	if len(text) != PlateLength {
		return "", false
	}
	if patternDiplomatic.MatchString(text) && patternDiplomatic.FindString(text) == text {
		return FormatDiplomatic, true
	}
	if patternStandard.FindString(text) == text {
		return FormatStandard, true
	}
	return "", false
}

// IsValidFormat reports whether text is exactly one valid plate in either
// grammar.
func IsValidFormat(text string) bool {
	_, ok := MatchFormat(text)
	return ok
}

// Normalize reduces raw OCR text to a canonical 6-character plate and its
// matched format. ok is false when no recognized format can be extracted.
//
// Inputs longer than six characters are searched for an embedded standard
// plate first, then a diplomatic one, and finally truncated to the first six
// characters as a last resort. A standard match immediately followed by a
// further digit is treated as a misaligned window (the trailing digits belong
// to a longer number, e.g. the CD1234 inside XCD12345) and skipped.
func Normalize(raw string) (text string, format Format, ok bool) {
	clean := Clean(raw)
	if len(clean) < PlateLength {
		return "", "", false
	}

	if len(clean) > PlateLength {
		if m := searchStandard(clean); m != "" {
			clean = m
		} else if m := patternDiplomatic.FindString(clean); m != "" {
			clean = m
		} else {
			clean = clean[:PlateLength]
		}
	}

	format, ok = MatchFormat(clean)
	if !ok {
		return "", "", false
	}
	return clean, format, true
}

// searchStandard returns the first standard-grammar match in clean that is
// not immediately followed by another digit.
func searchStandard(clean string) string {
	for _, loc := range patternStandard.FindAllStringIndex(clean, -1) {
		if loc[1] < len(clean) && clean[loc[1]] >= '0' && clean[loc[1]] <= '9' {
			continue
		}
		return clean[loc[0]:loc[1]]
	}
	return ""
}

// FormatScore ranks a candidate by how plausible its format is: diplomatic
// plates score slightly higher than standard ones because their fixed CD
// prefix makes a coincidental match less likely. Anything else scores zero.
func FormatScore(text string) float64 {
	switch f, ok := MatchFormat(text); {
	case !ok:
		return 0
	case f == FormatDiplomatic:
		return 0.95
	default:
		return 0.9
	}
}

// Candidates extracts every plausible plate embedded in raw OCR text, ranked
// by FormatScore descending. It considers every valid 6-character window plus
// every non-overlapping regex match of each grammar, deduplicated.
func Candidates(raw string) []string {
	clean := Clean(raw)
	if len(clean) < PlateLength {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	for i := 0; i+PlateLength <= len(clean); i++ {
		if window := clean[i : i+PlateLength]; IsValidFormat(window) {
			add(window)
		}
	}
	for _, m := range patternStandard.FindAllString(clean, -1) {
		add(m)
	}
	for _, m := range patternDiplomatic.FindAllString(clean, -1) {
		add(m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return FormatScore(out[i]) > FormatScore(out[j])
	})
	return out
}
