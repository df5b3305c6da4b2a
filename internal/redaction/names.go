package redaction

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NameToInitials converts a full name into dotted initials, dropping honorifics.
// "Dr. Jane Doe" becomes "J.D."; a name made only of honorifics becomes [REDACTED].
func NameToInitials(name string) string {
	var initials []string
	for _, token := range strings.Fields(name) {
		if isHonorific(token) {
			continue
		}
		r, _ := utf8.DecodeRuneInString(token)
		initials = append(initials, string(unicode.ToUpper(r)))
	}

	if len(initials) == 0 {
		return RedactedSentinel
	}
	return strings.Join(initials, ".") + "."
}

func isHonorific(token string) bool {
	return honorifics[strings.ToLower(strings.TrimSuffix(token, "."))]
}

// FindAllNames scans text with the bare and titled name heuristics and
// returns every distinct match with its initials.
//
// Both heuristics are approximate: two-word proper nouns such as section
// titles are picked up, while single-word and hyphenated names are missed.
func FindAllNames(text string) NameMap {
	names := make(NameMap)
	for _, re := range []*regexp.Regexp{fullNamePattern, titledNamePattern} {
		for _, match := range re.FindAllString(text, -1) {
			if _, seen := names[match]; !seen {
				names[match] = NameToInitials(match)
			}
		}
	}
	return names
}

// nameMatcher finds case-insensitive occurrences of a name that are not part
// of a longer word. Word runes are letters, digits and underscore in any
// script, so "Zoë" does not match inside "Zoëlle". Go's \b is ASCII-only,
// hence the manual boundary check.
type nameMatcher struct {
	re         *regexp.Regexp
	checkStart bool
	checkEnd   bool
}

func newNameMatcher(name string) nameMatcher {
	first, _ := utf8.DecodeRuneInString(name)
	last, _ := utf8.DecodeLastRuneInString(name)
	return nameMatcher{
		re:         regexp.MustCompile(`(?i)` + regexp.QuoteMeta(name)),
		checkStart: isWordRune(first),
		checkEnd:   isWordRune(last),
	}
}

// findAll returns the byte ranges of whole-word matches, left to right and
// non-overlapping.
func (m nameMatcher) findAll(text string) [][2]int {
	var matches [][2]int
	pos := 0
	for pos <= len(text) {
		loc := m.re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if m.bounded(text, start, end) {
			matches = append(matches, [2]int{start, end})
			pos = end
			continue
		}
		// Retry one rune further so overlapping candidates are not skipped.
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + max(size, 1)
	}
	return matches
}

func (m nameMatcher) bounded(text string, start, end int) bool {
	if m.checkStart && start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
			return false
		}
	}
	if m.checkEnd && end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

// replaceAll substitutes every whole-word match with repl and reports how
// many were replaced.
func (m nameMatcher) replaceAll(text, repl string) (string, int) {
	matches := m.findAll(text)
	if len(matches) == 0 {
		return text, 0
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, loc := range matches {
		b.WriteString(text[prev:loc[0]])
		b.WriteString(repl)
		prev = loc[1]
	}
	b.WriteString(text[prev:])
	return b.String(), len(matches)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
