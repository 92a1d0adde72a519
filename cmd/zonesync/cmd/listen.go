package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/zonesync/internal/service/listen"
)

// listenCmd runs the health endpoint.
//
//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var listenCmd = &cobra.Command{
	Use:   "listen [listen-address]",
	Short: "Serve the gRPC health endpoint reflecting the deployment state.",
	Long: `Starts a gRPC server exposing only grpc.health.v1.Health. The status is SERVING
once a release has been deployed and NOT_SERVING before that.
Listen address can be provided as argument to override config (e.g., :5380, 0.0.0.0:5380).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		var listenAddress string
		if len(args) > 0 {
			listenAddress = args[0]
		}

		return listen.Run(ctx, &listen.Options{
			ConfigPath:    configPath,
			ListenAddress: listenAddress,
		})
	},
}
