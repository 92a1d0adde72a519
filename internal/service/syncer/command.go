package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/oshokin/zonesync/internal/config"
	"github.com/oshokin/zonesync/internal/domain/release"
	"github.com/oshokin/zonesync/internal/logger"
	"github.com/oshokin/zonesync/internal/metrics"
	"github.com/oshokin/zonesync/internal/repository/cache"
	"github.com/oshokin/zonesync/internal/repository/state"
	"github.com/oshokin/zonesync/internal/service/common"
	"github.com/oshokin/zonesync/internal/service/deployer"
	"github.com/oshokin/zonesync/internal/service/fetcher"
	"github.com/oshokin/zonesync/internal/service/verifier"
)

// Options are inputs accepted by the entry points.
type Options struct {
	// ConfigPath is the path to the settings YAML file.
	ConfigPath string
	// Release selects the cached version for Redeploy; zero means the newest.
	Release release.Version
	// HTTPClient overrides the client used for the API and downloads.
	HTTPClient *http.Client
	// Runner overrides how checkers and the reload command are started.
	Runner common.Runner
}

// runner holds the components of a single invocation.
type runner struct {
	cfg          *config.Config
	lock         *common.Lock
	store        *cache.Store
	states       *state.FileRepository
	deployer     *deployer.Deployer
	orchestrator *Orchestrator
	metrics      *metrics.Collector
}

// Pull runs one sync cycle against the configured upstream.
func Pull(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "pull")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	defer r.close(ctx)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	started := time.Now()
	report, err := r.orchestrator.Sync(ctx)

	r.observe(ctx, report, err, time.Since(started))

	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Pull finished", "state", report.State.String(),
		"cached", report.Cached, "upstream", report.Upstream)

	return nil
}

// Redeploy verifies a retained cache entry and makes it live again.
func Redeploy(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "deploy")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	defer r.close(ctx)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	started := time.Now()
	report, err := r.orchestrator.Redeploy(ctx, opts.Release)

	r.observe(ctx, report, err, time.Since(started))

	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Deploy finished", "version", report.Cached)

	return nil
}

// newRunner loads settings, takes the instance lock and wires the components.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	lock, err := common.AcquireLock(ctx, cfg.LockPath())
	if err != nil {
		return nil, err
	}

	r, err := wire(cfg, opts)
	if err != nil {
		_ = lock.Release()

		return nil, err
	}

	r.lock = lock

	return r, nil
}

// wire builds every component from validated settings.
func wire(cfg *config.Config, opts *Options) (*runner, error) {
	store, err := cache.NewStore(cfg.Cache.Root)
	if err != nil {
		return nil, err
	}

	source, err := fetcher.New(store, &fetcher.Options{
		APIURL:          cfg.Upstream.APIURL,
		Token:           cfg.Upstream.Token,
		VersionField:    cfg.Upstream.VersionField,
		StripComponents: cfg.Cache.StripComponents,
		MaxArchiveBytes: cfg.Cache.MaxArchiveBytes,
		HTTPClient:      opts.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	checks, err := verifier.New(&verifier.Options{
		ZoneDirectory:  cfg.Verify.ZoneDirectory,
		ConfigChecker:  cfg.Verify.ConfigChecker,
		ForwardChecker: cfg.Verify.ForwardChecker,
		ReverseChecker: cfg.Verify.ReverseChecker,
		Mode:           cfg.Verify.Mode,
		Runner:         opts.Runner,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	live, err := deployer.New(&deployer.Options{
		CacheRoot:       store.Root(),
		TargetDirectory: cfg.Deploy.TargetDirectory,
		ZoneDirectory:   cfg.Verify.ZoneDirectory,
		ReloadCommand:   cfg.Deploy.ReloadCommand,
		Runner:          opts.Runner,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	states := state.NewFileRepository(filepath.Join(store.Root(), state.DefaultFilename))

	return &runner{
		cfg:      cfg,
		store:    store,
		states:   states,
		deployer: live,
		orchestrator: NewOrchestrator(&Dependencies{
			Cache:      store,
			Source:     source,
			Verifier:   checks,
			Deployer:   live,
			State:      states,
			Repository: cfg.Upstream.Repository,
		}),
		metrics: metrics.New(),
	}, nil
}

// observe writes the metrics textfile when one is configured.
func (r *runner) observe(ctx context.Context, report *Report, runErr error, elapsed time.Duration) {
	if r.cfg.Metrics.Textfile == "" || report == nil {
		return
	}

	run := &metrics.Run{
		Result:     metrics.ResultFailed,
		Upstream:   uint64(report.Upstream),
		Duration:   elapsed,
		FinishedAt: time.Now(),
	}

	switch {
	case runErr != nil:
	case report.State == StateUpToDate:
		run.Result = metrics.ResultUpToDate
	case report.State == StateDone:
		run.Result = metrics.ResultDeployed
	}

	if report.Verification != nil {
		run.FailedChecks = len(report.Verification.Failed())
	}

	if cached, err := r.store.Latest(); err == nil {
		run.Cached = uint64(cached)
	} else if !errors.Is(err, release.ErrNotFound) {
		logger.WarnKV(ctx, "Unable to read cache for metrics", "error", err)
	}

	if deployment, err := r.states.Load(ctx); err == nil {
		run.Deployed = uint64(deployment.Version)
	} else if !errors.Is(err, release.ErrNotFound) {
		logger.WarnKV(ctx, "Unable to read deployment record for metrics", "error", err)
	}

	if err := r.metrics.Restore(r.cfg.Metrics.Textfile); err != nil {
		logger.WarnKV(ctx, "Unable to read previous metrics, counters restart",
			"path", r.cfg.Metrics.Textfile, "error", err)
	}

	r.metrics.Observe(run)

	if err := r.metrics.WriteTextfile(r.cfg.Metrics.Textfile); err != nil {
		logger.WarnKV(ctx, "Unable to write metrics", "path", r.cfg.Metrics.Textfile, "error", err)
	}
}

func (r *runner) close(ctx context.Context) {
	if err := r.lock.Release(); err != nil {
		logger.WarnKV(ctx, "Unable to release lock", "error", err)
	}
}
