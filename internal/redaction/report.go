package redaction

import (
	"fmt"
	"sort"
	"strings"
)

// CreateAnonymizationReport renders a summary as a plain-text audit block.
// Output is deterministic: names are sorted, categories follow table order.
func CreateAnonymizationReport(summary RedactionSummary, originalLength int) string {
	var b strings.Builder

	b.WriteString("Document Anonymization Report\n")
	b.WriteString("=============================\n")
	fmt.Fprintf(&b, "Original document length: %d characters\n", originalLength)
	fmt.Fprintf(&b, "Names redacted: %d\n", summary.NamesRedacted)

	b.WriteString("Name mappings:\n")
	if len(summary.NameMapping) == 0 {
		b.WriteString("  (none)\n")
	} else {
		names := make([]string, 0, len(summary.NameMapping))
		for name := range summary.NameMapping {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  - %s -> %s\n", name, summary.NameMapping[name])
		}
	}

	fmt.Fprintf(&b, "PII items redacted: %d\n", summary.TotalPII())
	wrote := false
	for _, c := range orderedCategories(summary.PiiRedacted) {
		fmt.Fprintf(&b, "  - %s: %d\n", c, summary.PiiRedacted[c])
		wrote = true
	}
	if !wrote {
		b.WriteString("  (none)\n")
	}

	return b.String()
}

// orderedCategories lists the categories present in counts, table order first,
// then any unknown keys sorted.
func orderedCategories(counts map[Category]int) []Category {
	var out []Category
	known := make(map[Category]bool, len(piiPatterns))
	for _, p := range piiPatterns {
		known[p.Category] = true
		if _, ok := counts[p.Category]; ok {
			out = append(out, p.Category)
		}
	}

	var extra []Category
	for c := range counts {
		if !known[c] {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}
