package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	debugMode  bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if _, fprintfErr := fmt.Fprintf(os.Stderr, "failed to execute a command: %+v\n", err); fprintfErr != nil {
			panic(fmt.Errorf("failed to output an error: %w. Reason: %w", err, fprintfErr))
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "hanjadb",
		Short:         "Look up Hanja in Korean online dictionaries and keep a local copy",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(debugMode)
			loadEnvFile(".env")
			return nil
		},
	}

	flags := rootCommand.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default is ./config.yaml or $HOME/.config/hanjadb/config.yaml)")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug mode")

	rootCommand.AddCommand(
		newLookupCommand(),
		newSearchCommand(),
		newCacheCommand(),
		newExportCommand(),
		newImportCommand(),
		newMigrateCommand(),
	)
	return rootCommand
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: debug,
		Level:     level,
	})
	slog.SetDefault(slog.New(handler))
}

// loadEnvFile loads secrets such as DB_PASSWORD from a .env file when present.
func loadEnvFile(filename string) {
	if err := godotenv.Load(filename); err == nil {
		slog.Debug("loaded environment file", "file", filename)
	}
}
