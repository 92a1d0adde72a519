package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/zonesync/internal/service/syncer"
)

// listCmd prints the cache contents.
//
//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached releases and which one is live.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return syncer.List(cmd.Context(), &syncer.Options{ConfigPath: configPath}, cmd.OutOrStdout())
	},
}
