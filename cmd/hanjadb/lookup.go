package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hanjadb/hanjadb/internal/bootstrap"
	"github.com/hanjadb/hanjadb/internal/cli"
	"github.com/hanjadb/hanjadb/internal/dictionary"
	"github.com/hanjadb/hanjadb/internal/lookup"
)

func newLookupCommand() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "lookup <hanja or reading>",
		Short: "Look up a key in the cache, the store and the online dictionaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := cli.NewRecordPrinter(cmd.OutOrStdout())
			return runWithPipeline(cmd.Context(), func(ctx context.Context, p *bootstrap.Pipeline) error {
				var options []lookup.LookupOption
				if refresh {
					options = append(options, lookup.WithRefresh())
				}

				result, err := p.Service.Lookup(ctx, dictionary.LookupKey(args[0]), options...)
				var validationErr *lookup.ValidationFailedError
				if errors.As(err, &validationErr) {
					if printErr := printer.PrintValidationFailure(validationErr); printErr != nil {
						return printErr
					}
					return err
				}
				if err != nil {
					return fmt.Errorf("lookup %q: %w", args[0], err)
				}
				return printer.PrintLookup(result)
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Skip the cache and the store and query the dictionaries again")
	return cmd
}

func newSearchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search stored records by character, reading or meaning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := cli.NewRecordPrinter(cmd.OutOrStdout())
			return runWithPipeline(cmd.Context(), func(ctx context.Context, p *bootstrap.Pipeline) error {
				records, err := p.Service.Search(ctx, args[0], limit)
				if err != nil {
					return fmt.Errorf("search %q: %w", args[0], err)
				}
				return printer.PrintRecords(records)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, fmt.Sprintf("Maximum number of records (default %d, at most %d)", dictionary.DefaultSearchLimit, dictionary.MaxSearchLimit))
	return cmd
}
