package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pborman/uuid"

	"github.com/oshokin/zonesync/internal/domain/release"
	"github.com/oshokin/zonesync/internal/logger"
	"github.com/oshokin/zonesync/internal/repository/state"
	"github.com/oshokin/zonesync/internal/service/common"
	"github.com/oshokin/zonesync/internal/service/deployer"
)

// Cache is the part of the cache store the orchestrator needs.
type Cache interface {
	Latest() (release.Version, error)
	EntryPath(v release.Version) string
	IsComplete(v release.Version) (bool, error)
	MarkVerified(v release.Version) error
	Remove(v release.Version) error
	SweepIncomplete() ([]release.Version, error)
}

// Source finds and downloads upstream releases.
type Source interface {
	LatestUpstream(ctx context.Context, repository string) (release.Descriptor, error)
	FetchAndExtract(ctx context.Context, desc release.Descriptor) (string, error)
}

// Verifier checks an extracted entry.
type Verifier interface {
	Verify(ctx context.Context, entryPath string) (*release.Result, error)
}

// Deployer swaps the live configuration.
type Deployer interface {
	Deploy(ctx context.Context, entryPath string) (*deployer.Outcome, error)
}

// Report describes a finished cycle.
type Report struct {
	// State is the terminal state.
	State State
	// Transitions lists every state visited, starting with IDLE.
	Transitions []State
	// RunID identifies the run in logs and in the deployment record.
	RunID string
	// Cached is the newest cached version before the run, or the redeployed version.
	Cached release.Version
	// Upstream is the latest published version; zero when it was not queried.
	Upstream release.Version
	// Swept lists incomplete entries removed at the start of the run.
	Swept []release.Version
	// Entry is the cache entry that was verified and deployed.
	Entry string
	// Verification is the result of the checks, when they ran.
	Verification *release.Result
	// Outcome is what the deployer changed, when it ran.
	Outcome *deployer.Outcome
	// Deployment is the record saved after a successful swap.
	Deployment *release.Deployment
}

// Dependencies wires an Orchestrator.
type Dependencies struct {
	Cache    Cache
	Source   Source
	Verifier Verifier
	Deployer Deployer
	State    state.Repository
	// Repository is the upstream "owner/name".
	Repository string
}

// Orchestrator runs the sync state machine.
type Orchestrator struct {
	cache      Cache
	source     Source
	verifier   Verifier
	deployer   Deployer
	state      state.Repository
	repository string

	now         func() time.Time
	newRunID    func() string
	detectActor func() (*release.Actor, error)
}

// NewOrchestrator creates an Orchestrator from its dependencies.
func NewOrchestrator(deps *Dependencies) *Orchestrator {
	return &Orchestrator{
		cache:       deps.Cache,
		source:      deps.Source,
		verifier:    deps.Verifier,
		deployer:    deps.Deployer,
		state:       deps.State,
		repository:  deps.Repository,
		now:         time.Now,
		newRunID:    uuid.New,
		detectActor: common.DetectActor,
	}
}

// Sync runs one cycle. It changes the cache and the live directory only when
// upstream publishes a version newer than every cached one, and it never
// deploys a release that failed verification.
func (o *Orchestrator) Sync(ctx context.Context) (*Report, error) {
	report := o.newReport()
	ctx = logger.WithKV(ctx, "run_id", report.RunID)

	o.enter(ctx, report, StateCheckingCache)

	swept, err := o.cache.SweepIncomplete()
	if err != nil {
		return o.fail(ctx, report, fmt.Errorf("sweep incomplete entries: %w", err))
	}

	report.Swept = swept
	if len(swept) > 0 {
		logger.WarnKV(ctx, "Removed incomplete cache entries", "versions", swept)
	}

	cached, err := o.cache.Latest()
	switch {
	case errors.Is(err, release.ErrNotFound):
		cached = release.NoVersion

		logger.Info(ctx, "Cache is empty")
	case err != nil:
		return o.fail(ctx, report, fmt.Errorf("read cache: %w", err))
	}

	report.Cached = cached

	o.enter(ctx, report, StateCheckingUpstream)

	desc, err := o.source.LatestUpstream(ctx, o.repository)
	if err != nil {
		return o.fail(ctx, report, err)
	}

	report.Upstream = desc.Version()

	if !desc.Version().Newer(cached) {
		logger.InfoKV(ctx, "Already up to date", "cached", cached, "upstream", desc.Version())
		o.enter(ctx, report, StateUpToDate)

		return report, nil
	}

	logger.InfoKV(ctx, "New release available",
		"cached", cached, "upstream", desc.Version(), "name", desc.Name())

	o.enter(ctx, report, StateFetching)

	entry, err := o.source.FetchAndExtract(ctx, desc)
	if err != nil {
		return o.fail(ctx, report, err)
	}

	report.Entry = entry

	o.enter(ctx, report, StateVerifying)

	report.Verification, err = o.verifier.Verify(ctx, entry)
	if err != nil {
		o.enter(ctx, report, StateDiscarding)

		if removeErr := o.cache.Remove(desc.Version()); removeErr != nil {
			logger.ErrorKV(ctx, "Failed to discard rejected release", "entry", entry, "error", removeErr)

			err = errors.Join(err, fmt.Errorf("discard %s: %w", entry, removeErr))
		}

		return o.fail(ctx, report, err)
	}

	// Until stamped, the entry is swept on the next run instead of counting as cached.
	if err = o.cache.MarkVerified(desc.Version()); err != nil {
		return o.fail(ctx, report, fmt.Errorf("mark %s verified: %w", entry, err))
	}

	return o.deploy(ctx, report, desc.Version(), entry)
}

// Redeploy re-verifies a cached entry and swaps it live. NoVersion selects
// the newest cached entry. A rejected entry is kept in the cache.
func (o *Orchestrator) Redeploy(ctx context.Context, version release.Version) (*Report, error) {
	report := o.newReport()
	ctx = logger.WithKV(ctx, "run_id", report.RunID)

	o.enter(ctx, report, StateCheckingCache)

	if version == release.NoVersion {
		latest, err := o.cache.Latest()
		if err != nil {
			return o.fail(ctx, report, fmt.Errorf("pick newest cached release: %w", err))
		}

		version = latest
	}

	report.Cached = version

	complete, err := o.cache.IsComplete(version)
	if err != nil {
		return o.fail(ctx, report, fmt.Errorf("inspect cached release %s: %w", version, err))
	}

	if !complete {
		return o.fail(ctx, report, fmt.Errorf("cached release %s: %w", version, release.ErrNotFound))
	}

	entry := o.cache.EntryPath(version)
	report.Entry = entry

	o.enter(ctx, report, StateVerifying)

	report.Verification, err = o.verifier.Verify(ctx, entry)
	if err != nil {
		return o.fail(ctx, report, err)
	}

	return o.deploy(ctx, report, version, entry)
}

func (o *Orchestrator) deploy(
	ctx context.Context,
	report *Report,
	version release.Version,
	entry string,
) (*Report, error) {
	o.enter(ctx, report, StateDeploying)

	outcome, err := o.deployer.Deploy(ctx, entry)
	if err != nil {
		return o.fail(ctx, report, err)
	}

	report.Outcome = outcome
	report.Deployment = o.record(ctx, version, report.RunID)

	o.enter(ctx, report, StateDone)

	logger.InfoKV(ctx, "Release deployed", "version", version, "entry", entry)

	return report, nil
}

// record saves the deployment. The links are already live, so a failure here
// is only logged.
func (o *Orchestrator) record(ctx context.Context, version release.Version, runID string) *release.Deployment {
	deployment := &release.Deployment{
		Version:    version,
		DeployedAt: o.now().UTC(),
		RunID:      runID,
	}

	actor, err := o.detectActor()
	if err != nil {
		logger.WarnKV(ctx, "Unable to detect who deploys", "error", err)
	} else {
		deployment.Actor = actor
	}

	if o.state == nil {
		return deployment
	}

	// The repository gets its own copy; the report keeps the original.
	if err = o.state.Save(ctx, deployment.Clone()); err != nil {
		logger.ErrorKV(ctx, "Failed to save deployment record", "version", version, "error", err)
	}

	return deployment
}

func (o *Orchestrator) newReport() *Report {
	return &Report{
		State:       StateIdle,
		Transitions: []State{StateIdle},
		RunID:       o.newRunID(),
	}
}

func (o *Orchestrator) enter(ctx context.Context, report *Report, next State) {
	logger.DebugKV(ctx, "State change", "from", report.State.String(), "to", next.String())

	report.State = next
	report.Transitions = append(report.Transitions, next)
}

func (o *Orchestrator) fail(ctx context.Context, report *Report, err error) (*Report, error) {
	failedIn := report.State

	o.enter(ctx, report, StateFailed)

	logger.ErrorKV(ctx, "Sync failed", "state", failedIn.String(), "error", err)

	return report, err
}
