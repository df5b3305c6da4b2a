package redaction

import (
	"fmt"
	"strings"
)

// maxNameSamples caps how many residual names are echoed in an issue.
const maxNameSamples = 3

// ValidateAnonymization re-scans redacted text for residual names and PII.
// It is advisory and never modifies the text. Issues name categories and
// counts only; residual names are sampled so reviewers can see what slipped.
// The dob rule always runs here, whatever the redaction policy was.
func ValidateAnonymization(text string) Validation {
	issues := make([]string, 0)

	var samples []string
	seen := make(map[string]bool)
	count := 0
	for _, match := range fullNamePattern.FindAllString(text, -1) {
		if validationAllowList[strings.ToLower(match)] {
			continue
		}
		count++
		if !seen[match] && len(samples) < maxNameSamples {
			seen[match] = true
			samples = append(samples, match)
		}
	}
	if count > 0 {
		issues = append(issues, fmt.Sprintf("Potential names detected: %d (e.g. %s)", count, strings.Join(samples, ", ")))
	}

	for _, p := range piiPatterns {
		if n := len(p.Pattern.FindAllStringIndex(text, -1)); n > 0 {
			issues = append(issues, fmt.Sprintf("Potential %s detected: %d instance(s)", p.Category, n))
		}
	}

	return Validation{
		IsClean:         len(issues) == 0,
		PotentialIssues: issues,
	}
}
