package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/raaihank/care-redactor/internal/config"
	"github.com/raaihank/care-redactor/internal/logger"
	"github.com/raaihank/care-redactor/internal/redaction"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

type globalFlags struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			if ee.msg != "" {
				fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "redact",
		Short:         "Anonymize care documents before they leave the provider",
		Long:          "redact replaces personal names with initials and UK identifiers with category tokens, validates the result and writes an audit report.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Configuration file (defaults to ./redactor.yaml when present)")
	root.PersistentFlags().BoolVar(&g.verbose, "verbose", false, "Log processing details to stderr")

	root.AddCommand(
		newAnonymizeCmd(&g),
		newValidateCmd(&g),
		newReportCmd(),
		newBatchCmd(&g),
		newAuditsCmd(&g),
		newCacheCmd(&g),
	)
	return root
}

// setup loads configuration and a stderr logger
func setup(g *globalFlags) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, codeError(3, "loading configuration: %s", err)
	}

	if !g.verbose {
		return cfg, logger.NewNop(), nil
	}

	log, err := logger.New(logger.Config{Level: "debug", Format: "console", Stderr: true})
	if err != nil {
		return nil, nil, codeError(3, "initializing logger: %s", err)
	}
	return cfg, log, nil
}

// readInput reads a file argument or stdin when the argument is absent or "-"
func readInput(cmd *cobra.Command, args []string, maxBytes int64) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", codeError(3, "opening input: %s", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return "", codeError(3, "reading input: %s", err)
	}
	if int64(len(data)) > maxBytes {
		return "", codeError(3, "input exceeds maximum document size of %d bytes", maxBytes)
	}
	return string(data), nil
}

// encode writes v as json or yaml
func encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func validateFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return codeError(3, "invalid --format %q", format)
}

// documentFor applies CLI overrides on top of configured defaults
func documentFor(ref, text string, names []string, redactDates, datesSet bool) redaction.Document {
	doc := redaction.Document{Ref: ref, Text: text, CustomNames: names}
	if datesSet {
		doc.RedactDates = &redactDates
	}
	return doc
}
