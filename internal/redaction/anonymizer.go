package redaction

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// AnonymizeDocument replaces personal names with initials and PII with
// category tokens. It never fails: text without matches is returned as-is
// with a zero summary. Safe for concurrent use.
func AnonymizeDocument(text string, opts Options) Result {
	summary := RedactionSummary{
		PiiRedacted: make(map[Category]int),
		NameMapping: make(map[string]string),
	}

	names := FindAllNames(text)
	for _, custom := range opts.CustomNames {
		custom = strings.TrimSpace(custom)
		if custom == "" {
			continue
		}
		if _, ok := names[custom]; !ok {
			names[custom] = NameToInitials(custom)
		}
	}

	working := text
	for _, name := range longestFirst(names) {
		initials := names[name]
		replaced, count := newNameMatcher(name).replaceAll(working, initials)
		if count == 0 {
			continue
		}
		summary.NamesRedacted += count
		summary.NameMapping[name] = initials
		working = replaced
	}

	for _, p := range piiPatterns {
		if p.Category == CategoryDOB && !opts.RedactDates {
			continue
		}
		count := len(p.Pattern.FindAllStringIndex(working, -1))
		if count == 0 {
			continue
		}
		summary.PiiRedacted[p.Category] = count
		working = p.Pattern.ReplaceAllLiteralString(working, p.Token())
	}

	return Result{
		AnonymizedText:   working,
		RedactionSummary: summary,
	}
}

// longestFirst orders names by descending character length so that a name
// containing a shorter one ("Mary Jane Watson" and "Mary Jane") is replaced
// whole before the shorter pattern can split it. Ties sort lexically.
func longestFirst(names NameMap) []string {
	keys := make([]string, 0, len(names))
	for name := range names {
		keys = append(keys, name)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(keys[i]), utf8.RuneCountInString(keys[j])
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	return keys
}
