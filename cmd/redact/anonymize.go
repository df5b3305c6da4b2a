package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/raaihank/care-redactor/internal/redaction"
)

func newAnonymizeCmd(g *globalFlags) *cobra.Command {
	var (
		format      string
		showDiff    bool
		redactDates bool
		names       []string
		ref         string
		reportOut   string
	)

	cmd := &cobra.Command{
		Use:   "anonymize [file|-]",
		Short: "Redact names and identifiers from a document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format, "json", "yaml", "text"); err != nil {
				return err
			}

			cfg, log, err := setup(g)
			if err != nil {
				return err
			}
			defer log.Sync()

			text, err := readInput(cmd, args, cfg.Redaction.MaxDocumentBytes)
			if err != nil {
				return err
			}

			redactor := redaction.New(cfg.Redaction, log)
			doc := documentFor(ref, text, names, redactDates, cmd.Flags().Changed("redact-dates"))
			outcome := redactor.Process(doc)

			if reportOut != "" {
				if err := os.WriteFile(reportOut, []byte(outcome.Report), 0o600); err != nil {
					return codeError(3, "writing report: %s", err)
				}
			}

			out := cmd.OutOrStdout()
			switch {
			case showDiff:
				writeLineDiff(out, text, outcome.AnonymizedText)
			case format == "text":
				fmt.Fprint(out, outcome.AnonymizedText)
				if !strings.HasSuffix(outcome.AnonymizedText, "\n") {
					fmt.Fprintln(out)
				}
			default:
				if err := encode(out, format, outcome); err != nil {
					return codeError(3, "encoding output: %s", err)
				}
			}

			if !outcome.Validation.IsClean {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d potential issue(s) remain: %s\n",
					len(outcome.Validation.PotentialIssues),
					strings.Join(outcome.Validation.PotentialIssues, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json or yaml")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Print a line diff of the original and anonymized text")
	cmd.Flags().BoolVar(&redactDates, "redact-dates", false, "Replace dates with a token (overrides config)")
	cmd.Flags().StringArrayVarP(&names, "name", "n", nil, "Additional name to redact (repeatable)")
	cmd.Flags().StringVar(&ref, "ref", "", "Opaque document reference for logs")
	cmd.Flags().StringVar(&reportOut, "report-out", "", "Write the anonymization report to this file")
	return cmd
}

// writeLineDiff prints changed lines with -/+ prefixes
func writeLineDiff(w io.Writer, before, after string) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		default:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			fmt.Fprint(w, prefix, line)
			if !strings.HasSuffix(line, "\n") {
				fmt.Fprintln(w)
			}
		}
	}
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Check already anonymized text for residual identifiers",
		Long:  "validate scans text for identifiers that survived redaction. It exits with status 2 when any are found.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format, "json", "yaml", "text"); err != nil {
				return err
			}

			cfg, log, err := setup(g)
			if err != nil {
				return err
			}
			defer log.Sync()

			text, err := readInput(cmd, args, cfg.Redaction.MaxDocumentBytes)
			if err != nil {
				return err
			}

			validation := redaction.ValidateAnonymization(text)
			out := cmd.OutOrStdout()
			if format == "text" {
				if validation.IsClean {
					fmt.Fprintln(out, "clean")
				}
				for _, issue := range validation.PotentialIssues {
					fmt.Fprintln(out, issue)
				}
			} else if err := encode(out, format, validation); err != nil {
				return codeError(3, "encoding output: %s", err)
			}

			if !validation.IsClean {
				return codeError(2, "")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json or yaml")
	return cmd
}

func newReportCmd() *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:   "report [summary.json|-]",
		Short: "Render an anonymization report from a redaction summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if length < 0 {
				return codeError(3, "--length must not be negative")
			}

			raw, err := readInput(cmd, args, 1<<20)
			if err != nil {
				return err
			}

			var summary redaction.RedactionSummary
			if err := json.Unmarshal([]byte(raw), &summary); err != nil {
				return codeError(3, "parsing summary: %s", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), redaction.CreateAnonymizationReport(summary, length))
			return nil
		},
	}

	cmd.Flags().IntVar(&length, "length", 0, "Original document length in characters")
	return cmd
}
