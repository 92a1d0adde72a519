package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/zonesync/internal/service/syncer"
)

// pullCmd runs one sync cycle.
//
//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch, verify and deploy the latest upstream release if it is newer.",
	Long: `Runs one synchronization cycle:

  1. remove half-extracted cache entries left by an interrupted run;
  2. compare the newest cached version with the latest upstream release;
  3. if upstream is newer, download and extract it into the cache;
  4. verify every configuration file with the configured checkers;
  5. swap the live links to the new release and reload the DNS server.

A release that fails verification is deleted from the cache. Exit status is zero
when the live configuration is up to date or was updated.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return syncer.Pull(ctx, &syncer.Options{ConfigPath: configPath})
	},
}
