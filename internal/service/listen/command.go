package listen

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"google.golang.org/grpc"

	api "github.com/oshokin/zonesync/internal/api/grpc/deployment"
	"github.com/oshokin/zonesync/internal/config"
	"github.com/oshokin/zonesync/internal/logger"
	"github.com/oshokin/zonesync/internal/repository/cache"
	"github.com/oshokin/zonesync/internal/repository/state"
)

// Options controls the listener process.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides listen.address from the settings.
	ListenAddress string
}

// Run starts the health endpoint and blocks until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "listen")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	listenAddress := settings.Listen.Address
	if opts.ListenAddress != "" {
		listenAddress = opts.ListenAddress
	}

	store, err := cache.NewStore(settings.Cache.Root)
	if err != nil {
		return err
	}

	repo := state.NewFileRepository(filepath.Join(store.Root(), state.DefaultFilename))

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	logger.InfoKV(ctx, "Health endpoint listening", "listen_address", lis.Addr().String())

	return Serve(ctx, lis, repo, settings.Listen.RefreshInterval)
}

// Serve answers health checks on lis, refreshing the status every interval.
// It closes lis and returns nil once ctx is canceled.
func Serve(ctx context.Context, lis net.Listener, repo state.Repository, interval time.Duration) error {
	if interval <= 0 {
		interval = config.DefaultRefreshInterval
	}

	healthServer := api.NewServer(repo)
	healthServer.Refresh(ctx)

	grpcServer := grpc.NewServer()
	healthServer.Register(grpcServer)

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info(ctx, "Shutting down gRPC server")
				healthServer.Shutdown()
				grpcServer.GracefulStop()

				return
			case <-ticker.C:
				healthServer.Refresh(ctx)
			}
		}
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}
