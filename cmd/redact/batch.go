package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raaihank/care-redactor/internal/audit"
	"github.com/raaihank/care-redactor/internal/batch"
	"github.com/raaihank/care-redactor/internal/redaction"
)

func newBatchCmd(g *globalFlags) *cobra.Command {
	var (
		in      string
		out     string
		persist bool
		bc      = batch.DefaultConfig()
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Redact a CSV, JSONL or Parquet export of documents",
		Long: `batch reads records with a text column (and optional ref column) and writes
one result per record to a .jsonl or .parquet file. Formats follow the file extension.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(g)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var sink batch.AuditSink
			if persist {
				if !cfg.Audit.Enabled {
					return codeError(3, "--audit requires audit.enabled in configuration")
				}
				store, err := audit.NewStore(cfg.Audit, log.Logger)
				if err != nil {
					return codeError(3, "opening audit store: %s", err)
				}
				defer store.Close()
				sink = store
			}
			bc.PersistAudit = persist

			redactor := redaction.New(cfg.Redaction, log)
			pipeline := batch.NewPipeline(redactor, sink, bc, log.Logger)

			result, err := pipeline.ProcessFile(ctx, in, out)
			if result != nil {
				fmt.Fprintf(cmd.OutOrStdout(),
					"records: %d ok: %d failed: %d unclean: %d names: %d identifiers: %d in %s\n",
					result.TotalRecords, result.ProcessedOK, result.ProcessedFailed,
					result.Unclean, result.NamesRedacted, result.PIIRedacted, result.Duration)
			}
			if err != nil {
				if ctx.Err() == context.Canceled {
					return codeError(130, "interrupted")
				}
				return codeError(1, "batch failed: %s", err)
			}
			if result.ProcessedFailed > 0 {
				return codeError(2, "%d record(s) failed", result.ProcessedFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "Input file (.csv, .jsonl or .parquet)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (.jsonl or .parquet)")
	cmd.Flags().IntVar(&bc.WorkerCount, "workers", bc.WorkerCount, "Concurrent redaction workers")
	cmd.Flags().IntVar(&bc.BatchSize, "batch-size", bc.BatchSize, "Records read per batch")
	cmd.Flags().BoolVar(&persist, "audit", false, "Store an audit record per document")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
