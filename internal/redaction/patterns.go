package redaction

import (
	"regexp"
	"strings"
)

// RedactedSentinel replaces a name that has no tokens left once honorifics are removed.
const RedactedSentinel = "[REDACTED]"

// honorifics are stripped before initials are computed. Matching ignores case
// and a trailing period.
var honorifics = map[string]bool{
	"mr":   true,
	"mrs":  true,
	"ms":   true,
	"miss": true,
	"dr":   true,
	"prof": true,
}

var (
	// fullNamePattern matches two or more capitalized words on one line.
	fullNamePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)+\b`)

	// titledNamePattern matches an honorific followed by one or more capitalized words.
	titledNamePattern = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Dr|Prof)\.?[ \t]+[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)*\b`)
)

// piiPatterns is applied in order. Several rules are deliberately coarse
// (dob matches any short numeric date, bankAccount any 8-digit run).
var piiPatterns = []PiiPattern{
	{CategoryEmail, regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{CategoryPhoneUK, regexp.MustCompile(`(?:\+44[ \t]?(?:\(0\)[ \t]?)?|\b0)\d{2,4}[ \t-]?\d{3,4}[ \t-]?\d{3,4}\b`)},
	{CategoryPostcode, regexp.MustCompile(`\b[A-Z]{1,2}\d[A-Z\d]?[ \t]*\d[A-Z]{2}\b`)},
	{CategoryNHSNumber, regexp.MustCompile(`\b\d{3}[ \t-]?\d{3}[ \t-]?\d{4}\b`)},
	{CategoryNINumber, regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z][A-CEGHJ-NPR-TW-Z][ \t]?\d{2}[ \t]?\d{2}[ \t]?\d{2}[ \t]?[A-D]\b`)},
	{CategoryDOB, regexp.MustCompile(`\b\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}\b`)},
	{CategoryBankAccount, regexp.MustCompile(`\b\d{8}\b`)},
	{CategorySortCode, regexp.MustCompile(`\b\d{2}-\d{2}-\d{2}\b`)},
	{CategoryCreditCard, regexp.MustCompile(`\b(?:\d{4}[ \t-]?){3}\d{4}\b`)},
	{CategoryStreetAddress, regexp.MustCompile(`(?i)\b\d{1,4}[ \t]+(?:[a-z]+[ \t]+){1,3}(?:street|st|road|rd|avenue|ave|lane|ln|drive|close|way|court|crescent|gardens|grove|terrace|place|square)\b`)},
}

// validationAllowList holds capitalized phrases expected to survive redaction
// in care documents. Compared case-insensitively against whole matches.
var validationAllowList = map[string]bool{
	"care plan":                 true,
	"care plans":                true,
	"risk assessment":           true,
	"risk assessments":          true,
	"service user":              true,
	"service users":             true,
	"care home":                 true,
	"care quality commission":   true,
	"quality commission":        true,
	"key line":                  true,
	"mental capacity act":       true,
	"best interests":            true,
	"medication administration": true,
	"support plan":              true,
	"daily notes":               true,
	"incident report":           true,
	"safeguarding policy":       true,
	"registered manager":        true,
}

// Categories returns the fixed PII categories in application order.
func Categories() []Category {
	out := make([]Category, len(piiPatterns))
	for i, p := range piiPatterns {
		out[i] = p.Category
	}
	return out
}

// Patterns returns a copy of the PII rule table.
func Patterns() []PiiPattern {
	out := make([]PiiPattern, len(piiPatterns))
	copy(out, piiPatterns)
	return out
}

// TokenFor returns the bracketed placeholder for a category.
func TokenFor(c Category) string {
	return "[" + strings.ToUpper(string(c)) + "_REDACTED]"
}

// IsCategory reports whether name is one of the fixed categories.
func IsCategory(name string) bool {
	for _, p := range piiPatterns {
		if string(p.Category) == name {
			return true
		}
	}
	return false
}
