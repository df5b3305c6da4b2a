package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/care-redactor/internal/audit"
	"github.com/raaihank/care-redactor/internal/redaction"
)

// AuditSink receives one audit record per processed document
type AuditSink interface {
	Insert(ctx context.Context, record *audit.Record) error
}

// Pipeline redacts document exports in batches with a worker pool
type Pipeline struct {
	redactor *redaction.Redactor
	audit    AuditSink
	config   Config
	logger   *zap.Logger
}

// NewPipeline creates a new batch pipeline. sink may be nil.
func NewPipeline(redactor *redaction.Redactor, sink AuditSink, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.ProgressReport <= 0 {
		cfg.ProgressReport = DefaultConfig().ProgressReport
	}

	return &Pipeline{
		redactor: redactor,
		audit:    sink,
		config:   cfg,
		logger:   logger,
	}
}

type batchReader func() ([]InputRecord, error)

// ProcessFile redacts every record in inPath and writes results to outPath.
// Formats are chosen by file extension.
func (p *Pipeline) ProcessFile(ctx context.Context, inPath, outPath string) (*ProcessingResult, error) {
	inFormat := DetectFileFormat(inPath)
	outFormat := DetectFileFormat(outPath)
	if outFormat == FormatCSV {
		return nil, fmt.Errorf("csv output is not supported, use .jsonl or .parquet")
	}

	p.logger.Info("Starting batch redaction",
		zap.String("input_format", string(inFormat)),
		zap.String("output_format", string(outFormat)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	in, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	var read batchReader
	switch inFormat {
	case FormatCSV:
		read, err = p.csvReader(in)
	case FormatParquet:
		pr := parquet.NewReader(in)
		defer pr.Close()
		read = p.parquetReader(pr)
	default:
		read = p.jsonlReader(in)
	}
	if err != nil {
		return nil, err
	}

	var sink recordWriter
	if outFormat == FormatParquet {
		sink = newParquetWriter(out)
	} else {
		sink = newJSONLWriter(out)
	}

	result, err := p.Process(ctx, read, sink)
	if closeErr := sink.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to finalize output: %w", closeErr)
	}
	return result, err
}

// Process pulls batches from read until it returns an empty batch
func (p *Pipeline) Process(ctx context.Context, read batchReader, w recordWriter) (*ProcessingResult, error) {
	start := time.Now()
	result := &ProcessingResult{}
	nextReport := int64(p.config.ProgressReport)

	for {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result, ctx.Err()
		default:
		}

		batch, err := read()
		if err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		outputs := p.processBatch(ctx, batch, result)
		for i := range outputs {
			if err := w.Write(&outputs[i]); err != nil {
				result.Duration = time.Since(start)
				return result, fmt.Errorf("failed to write record: %w", err)
			}
		}

		if result.TotalRecords >= nextReport {
			p.reportProgress(result, start)
			nextReport += int64(p.config.ProgressReport)
		}
	}

	result.Duration = time.Since(start)
	p.logger.Info("Batch redaction completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("unclean", result.Unclean),
		zap.Duration("total_duration", result.Duration))

	return result, nil
}

// processBatch fans records out to the worker pool and returns outputs in
// input order
func (p *Pipeline) processBatch(ctx context.Context, batch []InputRecord, result *ProcessingResult) []OutputRecord {
	outputs := make([]OutputRecord, len(batch))
	outcomes := make([]*redaction.Outcome, len(batch))
	maxBytes := p.redactor.Config().MaxDocumentBytes

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.config.WorkerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rec := batch[i]
				if int64(len(rec.Text)) > maxBytes {
					outputs[i] = OutputRecord{Ref: rec.Ref, Error: "document exceeds maximum size"}
					continue
				}
				outcome := p.redactor.Process(redaction.Document{Ref: rec.Ref, Text: rec.Text})
				outcomes[i] = &outcome
				outputs[i] = toOutput(rec.Ref, outcome)
			}
		}()
	}
	for i := range batch {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i := range outputs {
		index := result.TotalRecords
		result.TotalRecords++

		if outcomes[i] == nil {
			result.ProcessedFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %s", index, outputs[i].Error))
			continue
		}

		result.ProcessedOK++
		result.NamesRedacted += outputs[i].NamesRedacted
		result.PIIRedacted += outputs[i].PIIRedacted
		if !outputs[i].Clean {
			result.Unclean++
		}

		if p.config.PersistAudit && p.audit != nil {
			auditStart := time.Now()
			record := audit.NewRecord(batch[i].Ref, *outcomes[i])
			if err := p.audit.Insert(ctx, record); err != nil {
				p.logger.Warn("Failed to store audit record", zap.Int64("record", index), zap.Error(err))
				result.Errors = append(result.Errors, fmt.Sprintf("record %d: audit: %v", index, err))
			} else {
				outputs[i].AuditID = record.ID
			}
			result.AuditTime += time.Since(auditStart)
		}
	}

	return outputs
}

func toOutput(ref string, outcome redaction.Outcome) OutputRecord {
	summary, _ := json.Marshal(outcome.RedactionSummary)
	return OutputRecord{
		Ref:            ref,
		AnonymizedText: outcome.AnonymizedText,
		NamesRedacted:  int64(outcome.RedactionSummary.NamesRedacted),
		PIIRedacted:    int64(outcome.RedactionSummary.TotalPII()),
		Clean:          outcome.Validation.IsClean,
		Issues:         int64(len(outcome.Validation.PotentialIssues)),
		Summary:        string(summary),
	}
}

// csvReader expects a header row with a "text" column and an optional "ref" column
func (p *Pipeline) csvReader(r io.Reader) (batchReader, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	textCol, refCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "text":
			textCol = i
		case "ref":
			refCol = i
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("CSV header has no text column")
	}

	p.logger.Debug("CSV header detected", zap.Strings("columns", header))

	return func() ([]InputRecord, error) {
		var batch []InputRecord
		for len(batch) < p.config.BatchSize {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				var parseErr *csv.ParseError
				if errors.As(err, &parseErr) {
					p.logger.Warn("Skipping malformed CSV row", zap.Int("line", parseErr.Line))
					continue
				}
				return nil, err
			}
			if textCol >= len(row) {
				p.logger.Warn("Skipping short CSV row", zap.Int("fields", len(row)))
				continue
			}

			rec := InputRecord{Text: row[textCol]}
			if refCol >= 0 && refCol < len(row) {
				rec.Ref = strings.TrimSpace(row[refCol])
			}
			batch = append(batch, rec)
		}
		return batch, nil
	}, nil
}

func (p *Pipeline) parquetReader(reader *parquet.Reader) batchReader {
	return func() ([]InputRecord, error) {
		var batch []InputRecord
		for len(batch) < p.config.BatchSize {
			var rec InputRecord
			err := reader.Read(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			batch = append(batch, rec)
		}
		return batch, nil
	}
}

// jsonlReader reads one JSON object per line
func (p *Pipeline) jsonlReader(r io.Reader) batchReader {
	decoder := json.NewDecoder(bufio.NewReader(r))
	return func() ([]InputRecord, error) {
		var batch []InputRecord
		for len(batch) < p.config.BatchSize {
			var rec InputRecord
			err := decoder.Decode(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			batch = append(batch, rec)
		}
		return batch, nil
	}
}

func (p *Pipeline) reportProgress(result *ProcessingResult, start time.Time) {
	elapsed := time.Since(start)
	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Float64("rate_per_sec", float64(result.TotalRecords)/elapsed.Seconds()),
		zap.Duration("elapsed", elapsed))
}
