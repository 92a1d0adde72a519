package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/zonesync/internal/domain/release"
	"github.com/oshokin/zonesync/internal/service/syncer"
)

// releaseVersion selects the cached release for deploy; empty means the newest.
//
//nolint:gochecknoglobals // Cobra flag storage.
var releaseVersion string

// deployCmd redeploys a cached release.
//
//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Verify a cached release and make it live again.",
	Long: `Re-verifies a release that is already in the cache and swaps the live links to it.
Use it to retry after a failed deployment or to roll back to an older release.
Without --release the newest cached release is used. Upstream is not contacted.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		opts := &syncer.Options{ConfigPath: configPath}

		if releaseVersion != "" {
			version, err := release.ParseVersion(releaseVersion)
			if err != nil {
				return err
			}

			opts.Release = version
		}

		ctx, stop := signalContext()
		defer stop()

		return syncer.Redeploy(ctx, opts)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	deployCmd.Flags().StringVarP(&releaseVersion, "release", "r", "", "cached release version to deploy")
}
