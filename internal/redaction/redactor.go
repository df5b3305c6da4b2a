package redaction

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/raaihank/care-redactor/internal/config"
	"github.com/raaihank/care-redactor/internal/logger"
	"go.uber.org/zap"
)

// Document is a piece of extracted text submitted for redaction.
type Document struct {
	Ref         string   `json:"ref,omitempty"`
	Text        string   `json:"text"`
	CustomNames []string `json:"customNames,omitempty"`
	// RedactDates overrides the configured default when set.
	RedactDates *bool `json:"redactDates,omitempty"`
}

// Outcome bundles everything produced for one document.
type Outcome struct {
	Result         `yaml:",inline"`
	Validation     Validation    `json:"validation" yaml:"validation"`
	Report         string        `json:"report" yaml:"report"`
	OriginalLength int           `json:"originalLength" yaml:"original_length"`
	Duration       time.Duration `json:"-" yaml:"-"`
}

// Redactor applies configured defaults around the pure redaction functions
// and logs what it did. Only counts and category labels are logged.
type Redactor struct {
	mu     sync.RWMutex
	config config.RedactionConfig
	logger *logger.Logger
}

// New creates a redactor
func New(cfg config.RedactionConfig, log *logger.Logger) *Redactor {
	r := &Redactor{
		config: cfg,
		logger: log,
	}

	log.Info("Redactor initialized",
		zap.Int("pii_categories", len(piiPatterns)),
		zap.Bool("redact_dates", cfg.RedactDates),
		zap.Int("configured_names", len(cfg.CustomNames)),
	)

	return r
}

// UpdateConfig swaps the defaults, typically after a config reload.
func (r *Redactor) UpdateConfig(cfg config.RedactionConfig) {
	r.mu.Lock()
	r.config = cfg
	r.mu.Unlock()

	r.logger.Info("Redaction defaults updated", zap.Bool("redact_dates", cfg.RedactDates))
}

// Config returns the current defaults.
func (r *Redactor) Config() config.RedactionConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// OptionsFor resolves the options used for doc: configured names come first,
// then the document's own, and the date policy falls back to the default.
func (r *Redactor) OptionsFor(doc Document) Options {
	cfg := r.Config()

	names := make([]string, 0, len(cfg.CustomNames)+len(doc.CustomNames))
	names = append(names, cfg.CustomNames...)
	names = append(names, doc.CustomNames...)

	redactDates := cfg.RedactDates
	if doc.RedactDates != nil {
		redactDates = *doc.RedactDates
	}

	return Options{CustomNames: names, RedactDates: redactDates}
}

// Anonymize runs AnonymizeDocument with resolved options.
func (r *Redactor) Anonymize(doc Document) Result {
	result := AnonymizeDocument(doc.Text, r.OptionsFor(doc))

	r.logger.WithDocument(doc.Ref).Debug("Document anonymized",
		zap.Int("names_redacted", result.RedactionSummary.NamesRedacted),
		zap.Int("pii_redacted", result.RedactionSummary.TotalPII()),
		zap.Any("pii_by_category", result.RedactionSummary.PiiRedacted),
	)

	return result
}

// Validate runs ValidateAnonymization on already-redacted text.
func (r *Redactor) Validate(text string) Validation {
	return ValidateAnonymization(text)
}

// Process anonymizes doc, validates the output and renders the audit report.
func (r *Redactor) Process(doc Document) Outcome {
	start := time.Now()
	log := r.logger.WithDocument(doc.Ref)

	result := r.Anonymize(doc)
	validation := ValidateAnonymization(result.AnonymizedText)
	length := utf8.RuneCountInString(doc.Text)

	outcome := Outcome{
		Result:         result,
		Validation:     validation,
		Report:         CreateAnonymizationReport(result.RedactionSummary, length),
		OriginalLength: length,
		Duration:       time.Since(start),
	}

	if !validation.IsClean {
		log.Warn("Residual PII after anonymization",
			zap.Int("issues", len(validation.PotentialIssues)),
		)
	}

	log.Info("Document processed",
		zap.Int("original_length", length),
		zap.Int("names_redacted", result.RedactionSummary.NamesRedacted),
		zap.Int("pii_redacted", result.RedactionSummary.TotalPII()),
		zap.Bool("clean", validation.IsClean),
		zap.Duration("duration", outcome.Duration),
	)

	return outcome
}
