package audit

import (
	"errors"
	"time"

	"github.com/raaihank/care-redactor/internal/redaction"
)

// ErrNotFound is returned when an audit record does not exist
var ErrNotFound = errors.New("audit record not found")

// Record is the persisted audit trail for one redacted document.
// The sanitized text itself is not stored; the report and summary are.
type Record struct {
	ID             string                     `json:"id"`
	DocumentRef    string                     `json:"documentRef,omitempty"`
	OriginalLength int                        `json:"originalLength"`
	NamesRedacted  int                        `json:"namesRedacted"`
	PIIRedacted    int                        `json:"piiRedacted"`
	Clean          bool                       `json:"isClean"`
	Summary        redaction.RedactionSummary `json:"summary"`
	Issues         []string                   `json:"issues"`
	Report         string                     `json:"report"`
	Analysis       string                     `json:"analysis,omitempty"`
	Model          string                     `json:"model,omitempty"`
	CreatedAt      time.Time                  `json:"createdAt"`
}

// row mirrors the redaction_audits table
type row struct {
	ID             string    `db:"id"`
	DocumentRef    string    `db:"document_ref"`
	OriginalLength int       `db:"original_length"`
	NamesRedacted  int       `db:"names_redacted"`
	PIIRedacted    int       `db:"pii_redacted"`
	Clean          bool      `db:"is_clean"`
	Summary        string    `db:"summary"`
	Issues         string    `db:"issues"`
	Report         string    `db:"report"`
	Analysis       string    `db:"analysis"`
	Model          string    `db:"model"`
	CreatedAt      time.Time `db:"created_at"`
}

// ListOptions filters and pages List results
type ListOptions struct {
	DocumentRef string
	Limit       int
	Offset      int
}

// Stats summarises the audit table
type Stats struct {
	TotalRecords  int64 `db:"total" json:"totalRecords"`
	CleanRecords  int64 `db:"clean" json:"cleanRecords"`
	NamesRedacted int64 `db:"names" json:"namesRedacted"`
	PIIRedacted   int64 `db:"pii" json:"piiRedacted"`
}

// NewRecord builds an audit record from a processed document.
func NewRecord(ref string, outcome redaction.Outcome) *Record {
	return &Record{
		DocumentRef:    ref,
		OriginalLength: outcome.OriginalLength,
		NamesRedacted:  outcome.RedactionSummary.NamesRedacted,
		PIIRedacted:    outcome.RedactionSummary.TotalPII(),
		Clean:          outcome.Validation.IsClean,
		Summary:        outcome.RedactionSummary,
		Issues:         outcome.Validation.PotentialIssues,
		Report:         outcome.Report,
	}
}
