package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/hanjadb/hanjadb/internal/cli"
	"github.com/hanjadb/hanjadb/internal/config"
	"github.com/hanjadb/hanjadb/internal/database"
	"github.com/hanjadb/hanjadb/internal/datasync"
	"github.com/hanjadb/hanjadb/internal/dictionary"
	"github.com/hanjadb/hanjadb/internal/validate"
)

func newImportCommand() *cobra.Command {
	var dryRun bool
	var updateExisting bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import records from a YAML file into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := datasync.ReadRecords(args[0])
			if err != nil {
				return fmt.Errorf("datasync.ReadRecords() > %w", err)
			}
			validator, err := validate.New()
			if err != nil {
				return fmt.Errorf("validate.New() > %w", err)
			}

			out := cmd.OutOrStdout()
			return runWithStore(cmd.Context(), func(ctx context.Context, _ *config.Config, _ *sqlx.DB, repo *dictionary.DBRepository) error {
				importer := datasync.NewImporter(repo, validator, out)
				result, err := importer.Import(ctx, records, datasync.ImportOptions{
					DryRun:         dryRun,
					UpdateExisting: updateExisting,
				})
				if err != nil {
					return fmt.Errorf("importer.Import() > %w", err)
				}
				return cli.NewRecordPrinter(out).PrintImportResult(result, dryRun)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview changes without modifying the database")
	cmd.Flags().BoolVar(&updateExisting, "update-existing", false, "Overwrite stored records with imported data")
	return cmd
}

func newExportCommand() *cobra.Command {
	format := datasync.FormatYAML
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every stored record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(cmd.Context(), func(ctx context.Context, cfg *config.Config, _ *sqlx.DB, repo *dictionary.DBRepository) error {
				result, err := datasync.NewExporter(repo, cfg.Export).Export(ctx, format, output)
				if err != nil {
					return fmt.Errorf("exporter.Export() > %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", result.Records, result.Path)
				return err
			})
		},
	}

	flags := cmd.Flags()
	flags.Var(&format, "format", fmt.Sprintf("Output format. Possible values are %v", datasync.AllFormats))
	flags.StringVarP(&output, "output", "o", "", "Output file (default is <export.directory>/hanja.<ext>)")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(cmd.Context(), func(ctx context.Context, _ *config.Config, db *sqlx.DB, _ *dictionary.DBRepository) error {
				applied, err := database.Migrate(ctx, db)
				if err != nil {
					return fmt.Errorf("database.Migrate() > %w", err)
				}
				for _, name := range applied {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
