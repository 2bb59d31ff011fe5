package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/offlinefirst/sessiontrace/pkg/config"
	"github.com/offlinefirst/sessiontrace/pkg/logging"
	"github.com/offlinefirst/sessiontrace/pkg/storage"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	// cfg and logger are populated in PersistentPreRunE before any
	// subcommand runs.
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "sessiontrace",
	Short:         "Record synchronized keyboard, mouse, screen, and audio sessions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		if logFormat != "" {
			loaded.Logging.Format = logFormat
		}
		cfg = loaded

		log, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
		if err != nil {
			return err
		}
		logger = log
		logger.Debug("configuration loaded", "source", cfg.Source)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log format (json, console)")
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openStore resolves the configured storage root and opens the session
// store over it.
func openStore() (*storage.Store, error) {
	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	return storage.NewStore(path)
}
