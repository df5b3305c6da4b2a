package redaction

import "regexp"

// Category names a class of personally identifying data.
type Category string

const (
	CategoryEmail         Category = "email"
	CategoryPhoneUK       Category = "phoneUK"
	CategoryPostcode      Category = "postcode"
	CategoryNHSNumber     Category = "nhsNumber"
	CategoryNINumber      Category = "niNumber"
	CategoryDOB           Category = "dob"
	CategoryBankAccount   Category = "bankAccount"
	CategorySortCode      Category = "sortCode"
	CategoryCreditCard    Category = "creditCard"
	CategoryStreetAddress Category = "streetAddress"
)

// PiiPattern pairs a category with the rule that detects it.
type PiiPattern struct {
	Category Category
	Pattern  *regexp.Regexp
}

// Token returns the placeholder written in place of a match, e.g. [EMAIL_REDACTED].
func (p PiiPattern) Token() string {
	return TokenFor(p.Category)
}

// NameMap maps a detected full name to its initials form.
type NameMap map[string]string

// Options controls a single anonymization pass.
type Options struct {
	// CustomNames are forced into the name map even when the heuristics miss them.
	CustomNames []string `json:"customNames,omitempty" yaml:"custom_names,omitempty"`
	// RedactDates enables the dob category, which is skipped by default.
	RedactDates bool `json:"redactDates" yaml:"redact_dates"`
}

// RedactionSummary is the ledger of one anonymization pass.
type RedactionSummary struct {
	NamesRedacted int               `json:"namesRedacted" yaml:"names_redacted"`
	PiiRedacted   map[Category]int  `json:"piiRedacted" yaml:"pii_redacted"`
	NameMapping   map[string]string `json:"nameMapping" yaml:"name_mapping"`
}

// TotalPII returns the number of PII items redacted across all categories.
func (s RedactionSummary) TotalPII() int {
	total := 0
	for _, n := range s.PiiRedacted {
		total += n
	}
	return total
}

// Result is what AnonymizeDocument hands back to the caller.
type Result struct {
	AnonymizedText   string           `json:"anonymizedText" yaml:"anonymized_text"`
	RedactionSummary RedactionSummary `json:"redactionSummary" yaml:"redaction_summary"`
}

// Validation reports residual PII found in already-redacted text.
type Validation struct {
	IsClean         bool     `json:"isClean" yaml:"is_clean"`
	PotentialIssues []string `json:"potentialIssues" yaml:"potential_issues"`
}
