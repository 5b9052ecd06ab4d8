package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hanjadb/hanjadb/internal/bootstrap"
	"github.com/hanjadb/hanjadb/internal/cache"
)

func newCacheCommand() *cobra.Command {
	cacheCommand := &cobra.Command{
		Use:   "cache",
		Short: "Cache commands",
	}

	cacheCommand.AddCommand(&cobra.Command{
		Use:   "clear [pattern]",
		Short: "Remove cached records whose key matches a glob pattern (all when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) > 0 {
				pattern = args[0]
			}
			return runWithPipeline(cmd.Context(), func(ctx context.Context, p *bootstrap.Pipeline) error {
				removed, outcome := p.Service.InvalidateCache(ctx, pattern)
				if outcome == cache.Degraded {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "cache unavailable, nothing to invalidate")
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached records\n", removed)
				return err
			})
		},
	})
	return cacheCommand
}
