package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raaihank/care-redactor/internal/cache"
)

func newCacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or empty the Redis result cache",
	}
	cmd.AddCommand(newCacheStatsCmd(g), newCacheClearCmd(g))
	return cmd
}

func openCache(g *globalFlags) (*cache.ResultCache, error) {
	cfg, log, err := setup(g)
	if err != nil {
		return nil, err
	}
	if !cfg.Cache.Enabled {
		return nil, codeError(3, "cache is not enabled in configuration")
	}
	c, err := cache.NewResultCache(cfg.Cache, log.Logger)
	if err != nil {
		return nil, codeError(1, "connecting to cache: %s", err)
	}
	return c, nil
}

func newCacheStatsCmd(g *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show key count and memory usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format, "json", "yaml"); err != nil {
				return err
			}
			c, err := openCache(g)
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.GetStats(cmd.Context())
			if err != nil {
				return codeError(1, "reading cache stats: %s", err)
			}
			return encode(cmd.OutOrStdout(), format, stats)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	return cmd
}

func newCacheClearCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached outcome under the configured key prefix",
		Long:  "clear removes cached outcomes, for example after upgrading detection rules so stale results are not served.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(g)
			if err != nil {
				return err
			}
			defer c.Close()

			deleted, err := c.Clear(cmd.Context())
			if err != nil {
				return codeError(1, "clearing cache: %s", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached outcome(s)\n", deleted)
			return nil
		},
	}
}
