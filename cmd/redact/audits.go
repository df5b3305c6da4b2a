package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/raaihank/care-redactor/internal/audit"
	"github.com/raaihank/care-redactor/internal/config"
	"github.com/raaihank/care-redactor/internal/logger"
)

func newAuditsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audits",
		Short: "Inspect and prune stored audit records",
	}
	cmd.AddCommand(newAuditsListCmd(g), newAuditsGetCmd(g), newAuditsPurgeCmd(g))
	return cmd
}

func openStore(g *globalFlags) (*audit.Store, *config.Config, *logger.Logger, error) {
	cfg, log, err := setup(g)
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.Audit.Enabled {
		return nil, nil, nil, codeError(3, "audit is not enabled in configuration")
	}
	store, err := audit.NewStore(cfg.Audit, log.Logger)
	if err != nil {
		return nil, nil, nil, codeError(3, "opening audit store: %s", err)
	}
	return store, cfg, log, nil
}

func newAuditsListCmd(g *globalFlags) *cobra.Command {
	var (
		opts   audit.ListOptions
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format, "json", "yaml", "text"); err != nil {
				return err
			}
			store, _, _, err := openStore(g)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), opts)
			if err != nil {
				return codeError(1, "listing audits: %s", err)
			}

			out := cmd.OutOrStdout()
			if format != "text" {
				return encode(out, format, records)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tREF\tCREATED\tNAMES\tIDENTIFIERS\tCLEAN")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\n",
					r.ID, r.DocumentRef, r.CreatedAt.Format(time.RFC3339), r.NamesRedacted, r.PIIRedacted, r.Clean)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&opts.DocumentRef, "ref", "", "Only records for this document reference")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Maximum records to show")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Records to skip")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json or yaml")
	return cmd
}

func newAuditsGetCmd(g *globalFlags) *cobra.Command {
	var reportOnly bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one audit record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, _, err := openStore(g)
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, audit.ErrNotFound) {
				return codeError(4, "audit record %s not found", args[0])
			}
			if err != nil {
				return codeError(1, "loading audit: %s", err)
			}

			if reportOnly {
				fmt.Fprint(cmd.OutOrStdout(), record.Report)
				return nil
			}
			return encode(cmd.OutOrStdout(), "json", record)
		},
	}

	cmd.Flags().BoolVar(&reportOnly, "report", false, "Print only the anonymization report")
	return cmd
}

func newAuditsPurgeCmd(g *globalFlags) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete audit records older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, log, err := openStore(g)
			if err != nil {
				return err
			}
			defer store.Close()

			if !cmd.Flags().Changed("days") {
				days = cfg.Audit.RetentionDays
			}
			if days <= 0 {
				return codeError(3, "retention must be a positive number of days")
			}

			retention, err := audit.NewRetention(store, days, cfg.Audit.RetentionSchedule, log.Logger)
			if err != nil {
				return codeError(3, "configuring retention: %s", err)
			}

			removed, err := retention.RunOnce(cmd.Context())
			if err != nil {
				return codeError(1, "purging audits: %s", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d record(s) older than %d day(s)\n", removed, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (defaults to audit.retention_days)")
	return cmd
}
