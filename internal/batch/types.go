package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// InputRecord is one document in an export
type InputRecord struct {
	Ref  string `parquet:"ref,optional" json:"ref"`
	Text string `parquet:"text" json:"text"`
}

// OutputRecord is the sanitized form written back out. It never contains
// the original text.
type OutputRecord struct {
	Ref            string `parquet:"ref" json:"ref,omitempty"`
	AnonymizedText string `parquet:"anonymized_text" json:"anonymizedText"`
	NamesRedacted  int64  `parquet:"names_redacted" json:"namesRedacted"`
	PIIRedacted    int64  `parquet:"pii_redacted" json:"piiRedacted"`
	Clean          bool   `parquet:"is_clean" json:"isClean"`
	Issues         int64  `parquet:"issues" json:"issues"`
	Summary        string `parquet:"summary" json:"summary"`
	AuditID        string `parquet:"audit_id,optional" json:"auditId,omitempty"`
	Error          string `parquet:"error,optional" json:"error,omitempty"`
}

// ProcessingResult represents the result of processing an export
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records" yaml:"total_records"`
	ProcessedOK     int64         `json:"processed_ok" yaml:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed" yaml:"processed_failed"`
	Unclean         int64         `json:"unclean" yaml:"unclean"`
	NamesRedacted   int64         `json:"names_redacted" yaml:"names_redacted"`
	PIIRedacted     int64         `json:"pii_redacted" yaml:"pii_redacted"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
	AuditTime       time.Duration `json:"audit_time" yaml:"audit_time"`
	Errors          []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Config contains batch pipeline configuration
type Config struct {
	BatchSize      int
	WorkerCount    int
	ProgressReport int
	PersistAudit   bool
}

// DefaultConfig returns the settings used by the CLI
func DefaultConfig() Config {
	return Config{
		BatchSize:      500,
		WorkerCount:    4,
		ProgressReport: 5000,
		PersistAudit:   false,
	}
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSONL   FileFormat = "jsonl"
)

// DetectFileFormat detects file format from extension, defaulting to JSONL
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	default:
		return FormatJSONL
	}
}
