package integration

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/zonesync/internal/api/grpc/deployment"
	"github.com/oshokin/zonesync/internal/config"
	"github.com/oshokin/zonesync/internal/domain/release"
	"github.com/oshokin/zonesync/internal/releasetest"
	"github.com/oshokin/zonesync/internal/service/listen"
	"github.com/oshokin/zonesync/internal/service/syncer"
)

const repository = "acme/dns-zones"

// reservePort returns a loopback address that was free a moment ago.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// writeConfig stores settings that run coreutils true/false as checkers.
func writeConfig(t *testing.T, upstreamURL, forwardChecker, listenAddress string) (string, *config.Config) {
	t.Helper()

	base := t.TempDir()
	cfg := &config.Config{
		Upstream: config.Upstream{Repository: repository, APIURL: upstreamURL},
		Deploy: config.Deploy{
			TargetDirectory: filepath.Join(base, "etc", "bind", "zones.d"),
			ReloadCommand:   "true",
		},
		Cache: config.Cache{Root: filepath.Join(base, "var", "cache", "zonesync")},
		Verify: config.Verify{
			ConfigChecker:  "true",
			ForwardChecker: forwardChecker,
			ReverseChecker: "true",
		},
		Timeout: 30 * time.Second,
		Listen:  config.Listen{Address: listenAddress, RefreshInterval: 25 * time.Millisecond},
	}

	path := filepath.Join(base, config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, cfg))

	return path, cfg
}

func startListener(t *testing.T, configPath string) healthpb.HealthClient {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- listen.Run(ctx, &listen.Options{ConfigPath: configPath})
	}()

	t.Cleanup(func() {
		cancel()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("listener did not stop")
		}
	})

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	conn, err := grpc.NewClient(cfg.Listen.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func servingStatus(client healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN
	}

	return resp.GetStatus()
}

// TestSync_EndToEnd pulls a passing release, then rejects a broken one.
func TestSync_EndToEnd(t *testing.T) {
	t.Parallel()

	good := releasetest.Archive(t, map[string]string{
		"zones-1700000000/zones/db.example.com":    "; forward\n",
		"zones-1700000000/zones/example.com.local": "; config\n",
	}, true)

	upstream := releasetest.NewUpstream(t, repository, "zones.prod.v1.1700000000", good)

	configPath, cfg := writeConfig(t, upstream.URL(), "true", reservePort(t))

	// Release archives carry a top-level directory.
	cfg.Cache.StripComponents = 1
	require.NoError(t, config.Save(configPath, cfg))

	health := startListener(t, configPath)

	require.Eventually(t, func() bool {
		return servingStatus(health) == healthpb.HealthCheckResponse_NOT_SERVING
	}, 5*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, syncer.Pull(ctx, &syncer.Options{ConfigPath: configPath}))

	live := cfg.Deploy.TargetDirectory
	contents, err := os.ReadFile(filepath.Join(live, "db.example.com"))
	require.NoError(t, err)
	require.Equal(t, "; forward\n", string(contents))

	require.Eventually(t, func() bool {
		return servingStatus(health) == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 10*time.Millisecond)

	// A forward zone checker that always fails rejects the next release.
	cfg.Verify.ForwardChecker = "false"
	require.NoError(t, config.Save(configPath, cfg))

	upstream.SetRelease("zones.prod.v1.1700000900", releasetest.Archive(t, map[string]string{
		"zones-1700000900/zones/db.example.com": "; broken\n",
	}, true))

	err = syncer.Pull(ctx, &syncer.Options{ConfigPath: configPath})
	require.True(t, errors.Is(err, release.ErrVerificationFailed), "unexpected error: %v", err)

	require.NoDirExists(t, filepath.Join(cfg.Cache.Root, "1700000900"))
	require.DirExists(t, filepath.Join(cfg.Cache.Root, "1700000000"))

	contents, err = os.ReadFile(filepath.Join(live, "db.example.com"))
	require.NoError(t, err)
	require.Equal(t, "; forward\n", string(contents))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(health))
}

// TestSync_UnreachableUpstream fails without creating cache entries or links.
func TestSync_UnreachableUpstream(t *testing.T) {
	t.Parallel()

	configPath, cfg := writeConfig(t, "http://"+reservePort(t)+"/", "true", reservePort(t))

	err := syncer.Pull(context.Background(), &syncer.Options{ConfigPath: configPath})
	require.ErrorIs(t, err, release.ErrUpstreamUnreachable)

	entries, err := os.ReadDir(cfg.Cache.Root)
	if err == nil {
		for _, entry := range entries {
			require.False(t, release.IsValidVersion(entry.Name()), "unexpected cache entry %s", entry.Name())
		}
	}

	require.NoDirExists(t, cfg.Deploy.TargetDirectory)
}
