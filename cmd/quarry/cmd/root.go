// Package cmd provides the CLI commands for quarry.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quarrydocs/quarry/internal/config"
	"github.com/quarrydocs/quarry/internal/logging"
	"github.com/quarrydocs/quarry/internal/profiling"
	"github.com/quarrydocs/quarry/pkg/version"
)

var (
	debugMode      bool
	cpuProfile     string
	memProfile     string
	loggingCleanup func()
	profSession    *profiling.Session
)

// NewRootCmd creates the root command for the quarry CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "Semantic search over a folder of documents",
		Long: `Quarry keeps a folder of documents continuously searchable by
meaning. It watches the configured roots, indexes changed files
incrementally, and serves ranked semantic search with manually
captured highlights surfacing first.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("quarry version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&cpuProfile, "cpu-profile", "", "Write a CPU profile to the given file")
	cmd.PersistentFlags().StringVar(&memProfile, "mem-profile", "", "Write a heap profile to the given file on exit")

	cmd.PersistentPreRunE = setupRun
	cmd.PersistentPostRun = teardownRun

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHighlightCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupRun(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.Stderr,
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup

	if debugMode {
		slog.Debug("debug_logging_enabled", slog.String("log_file", cfg.Logging.File))
	}

	if cpuProfile != "" || memProfile != "" {
		profSession, err = profiling.Start(cpuProfile, memProfile)
		if err != nil {
			return fmt.Errorf("failed to start profiling: %w", err)
		}
	}
	return nil
}

func teardownRun(_ *cobra.Command, _ []string) {
	if err := profSession.Stop(); err != nil {
		slog.Error("profiling_stop_failed", slog.Any("error", err))
	}
	profSession = nil

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// loadConfig builds the effective configuration from the working
// directory.
func loadConfig() (*config.Config, error) {
	return config.Load(".")
}
