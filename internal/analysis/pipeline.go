package analysis

import (
	"context"

	"go.uber.org/zap"

	"github.com/raaihank/care-redactor/internal/redaction"
)

// Pipeline redacts a document and, when the result passes validation,
// hands the sanitized text to an Analyzer. Original text never reaches
// the analyzer.
type Pipeline struct {
	redactor *redaction.Redactor
	analyzer Analyzer
	logger   *zap.Logger
}

// Result is the outcome of one pipeline run
type Result struct {
	Outcome  redaction.Outcome `json:"outcome"`
	Analysis *Analysis         `json:"analysis,omitempty"`
}

// NewPipeline creates a pipeline
func NewPipeline(redactor *redaction.Redactor, analyzer Analyzer, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		redactor: redactor,
		analyzer: analyzer,
		logger:   logger,
	}
}

// Run processes doc. If validation finds residual issues and the redactor is
// configured to block on them, the outcome is returned with a *BlockedError.
func (p *Pipeline) Run(ctx context.Context, doc redaction.Document, instructions string) (*Result, error) {
	outcome := p.redactor.Process(doc)
	result := &Result{Outcome: outcome}

	if !outcome.Validation.IsClean && p.redactor.Config().BlockOnIssues {
		p.logger.Warn("Analysis blocked",
			zap.String("document_ref", doc.Ref),
			zap.Int("issues", len(outcome.Validation.PotentialIssues)))
		return result, &BlockedError{Validation: outcome.Validation}
	}

	analysis, err := p.analyzer.Analyze(ctx, Request{
		DocumentRef:  doc.Ref,
		Text:         outcome.AnonymizedText,
		Instructions: instructions,
	})
	if err != nil {
		return result, err
	}

	result.Analysis = analysis
	return result, nil
}
