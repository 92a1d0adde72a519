package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/zonesync/internal/config"
	"github.com/oshokin/zonesync/internal/logger"
	"github.com/oshokin/zonesync/internal/version"
)

var (
	// errConfigRequired is returned when a command needing settings runs without --config-file.
	errConfigRequired = errors.New(`required flag "config-file" not set`)

	// configPath to the configuration YAML file.
	configPath string
	// logLevel is the minimum level of printed log messages.
	logLevel string

	// rootCmd is the base command; the work happens in its subcommands.
	rootCmd = &cobra.Command{
		Use:   "zonesync",
		Short: "Keep DNS zone configuration in sync with upstream releases.",
		Long: `zonesync polls a GitHub repository for new releases of a DNS zone package,
caches each release under its version, verifies it with external checkers such as
named-checkzone and swaps it into the live configuration directory through symbolic links.

A release that fails verification is discarded and never reaches the live directory.`,
		Version:           version.Short(),
		SilenceUsage:      true,
		PersistentPreRunE: prepare,
	}
)

// Execute runs the zonesync CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// prepare applies --log-level and checks that a configuration file was given.
func prepare(_ *cobra.Command, _ []string) error {
	if configPath == "" {
		return errConfigRequired
	}

	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return fmt.Errorf("%w: unknown log level %q", config.ErrInvalidConfig, logLevel)
	}

	logger.SetLevel(level)

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config-file", "c", "", "path to configuration file (required)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(pullCmd, deployCmd, listCmd, listenCmd)
}
