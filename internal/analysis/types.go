package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/raaihank/care-redactor/internal/redaction"
)

// ErrBlocked is returned when residual PII stops a document from leaving
// the redaction boundary
var ErrBlocked = errors.New("document blocked: residual PII detected")

// BlockedError carries the validation that caused a block
type BlockedError struct {
	Validation redaction.Validation
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s (%d issue(s))", ErrBlocked, len(e.Validation.PotentialIssues))
}

// Is lets errors.Is match ErrBlocked
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// Request is what an Analyzer receives. Text is always sanitized.
type Request struct {
	DocumentRef  string
	Text         string
	Instructions string
}

// Analysis is the collaborator's answer
type Analysis struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finishReason,omitempty"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
}

// Analyzer reviews sanitized documents
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Analysis, error)
}
