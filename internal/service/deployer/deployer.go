package deployer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oshokin/zonesync/internal/config"
	"github.com/oshokin/zonesync/internal/domain/release"
	"github.com/oshokin/zonesync/internal/logger"
	"github.com/oshokin/zonesync/internal/repository/cache"
	"github.com/oshokin/zonesync/internal/service/common"
)

// Options configures a Deployer.
type Options struct {
	// CacheRoot is the release cache; links into it are owned by the deployer.
	CacheRoot string
	// TargetDirectory is the live configuration directory.
	TargetDirectory string
	// ZoneDirectory is the entry subdirectory whose files are linked.
	ZoneDirectory string
	// ReloadCommand is run after a successful swap. Empty disables the reload.
	ReloadCommand string
	// Runner starts the reload command. Defaults to common.ExecRunner.
	Runner common.Runner
}

// Outcome describes what a deployment changed.
type Outcome struct {
	// Linked lists the link names pointing at the new entry, sorted.
	Linked []string
	// Removed lists stale owned links that were deleted, sorted.
	Removed []string
	// Reloaded is true when the reload command ran and succeeded.
	Reloaded bool
	// ReloadErr is the reload failure, if any. It does not fail the deployment.
	ReloadErr error
}

// Deployer swaps the live link set.
type Deployer struct {
	cacheRoots    []string
	target        string
	zoneDirectory string
	reload        []string
	runner        common.Runner
}

const tempLinkPrefix = ".zonesync-"

var (
	// errNameTaken is returned when a new link would replace a foreign entry.
	errNameTaken = errors.New("name is taken by an entry not managed by zonesync")
	// errOutsideCache is returned for entries that do not live in the cache root.
	errOutsideCache = errors.New("entry is outside the cache root")
	// errNothingToDeploy is returned for an entry without configuration files.
	errNothingToDeploy = errors.New("entry has no configuration files")
)

// New builds a Deployer.
func New(opts *Options) (*Deployer, error) {
	cacheRoot, err := filepath.Abs(opts.CacheRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	target, err := filepath.Abs(opts.TargetDirectory)
	if err != nil {
		return nil, fmt.Errorf("resolve target directory: %w", err)
	}

	reload, err := common.ParseCommand(opts.ReloadCommand)
	if err != nil {
		return nil, fmt.Errorf("reload command: %w", err)
	}

	// Link targets may be spelled through a symlinked parent (e.g. /tmp on macOS),
	// so ownership is checked against both spellings of the root.
	roots := []string{cacheRoot}
	if resolved, err := filepath.EvalSymlinks(cacheRoot); err == nil && resolved != cacheRoot {
		roots = append(roots, resolved)
	}

	zoneDirectory := opts.ZoneDirectory
	if zoneDirectory == "" {
		zoneDirectory = config.DefaultZoneDirectory
	}

	runner := opts.Runner
	if runner == nil {
		runner = common.ExecRunner{}
	}

	return &Deployer{
		cacheRoots:    roots,
		target:        target,
		zoneDirectory: zoneDirectory,
		reload:        reload,
		runner:        runner,
	}, nil
}

// Target returns the absolute live directory.
func (d *Deployer) Target() string {
	return d.target
}

// OwnedLinks returns the links in the live directory that point into the cache,
// keyed by name, with absolute targets.
func (d *Deployer) OwnedLinks() (map[string]string, error) {
	owned, _, err := d.scan()
	if err != nil {
		return nil, err
	}

	return owned, nil
}

// Deploy makes the live directory mirror the entry's configuration files.
// Every name is replaced by an atomic rename, so readers never see a missing
// file. Failures before the reload wrap release.ErrDeployFailed and skip the reload.
func (d *Deployer) Deploy(ctx context.Context, entryPath string) (*Outcome, error) {
	outcome, err := d.swap(ctx, entryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", release.ErrDeployFailed, err)
	}

	if len(d.reload) == 0 {
		return outcome, nil
	}

	output, err := d.runner.Run(ctx, d.reload)
	if err != nil {
		outcome.ReloadErr = err

		logger.ErrorKV(ctx, "Reload failed, new configuration is linked but not loaded",
			"command", strings.Join(d.reload, " "), "error", err, "output", strings.TrimSpace(string(output)))

		return outcome, nil
	}

	outcome.Reloaded = true

	logger.InfoKV(ctx, "Service reloaded", "command", strings.Join(d.reload, " "))

	return outcome, nil
}

func (d *Deployer) swap(ctx context.Context, entryPath string) (*Outcome, error) {
	entryPath, err := filepath.Abs(entryPath)
	if err != nil {
		return nil, fmt.Errorf("resolve entry: %w", err)
	}

	if !d.insideCache(entryPath) {
		return nil, fmt.Errorf("%s: %w", entryPath, errOutsideCache)
	}

	files, err := cache.ConfigFiles(entryPath, d.zoneDirectory)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", entryPath, errNothingToDeploy)
	}

	if err = os.MkdirAll(d.target, cache.DirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create target directory: %w", err)
	}

	owned, foreign, err := d.scan()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]string, len(files))

	for _, file := range files {
		name := filepath.Base(file)
		if foreign[name] {
			return nil, fmt.Errorf("%s: %w", filepath.Join(d.target, name), errNameTaken)
		}

		wanted[name] = file
	}

	// Once the first link moves, the swap runs to completion so the target
	// never mixes entries.
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	outcome := &Outcome{}

	for _, file := range files {
		name := filepath.Base(file)
		if err = d.link(name, file, foreign); err != nil {
			return nil, err
		}

		outcome.Linked = append(outcome.Linked, name)

		logger.DebugKV(ctx, "Linked", "name", name, "target", file)
	}

	for name := range owned {
		if _, ok := wanted[name]; ok {
			continue
		}

		if err = os.Remove(filepath.Join(d.target, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale link %s: %w", name, err)
		}

		outcome.Removed = append(outcome.Removed, name)
	}

	sort.Strings(outcome.Removed)

	logger.InfoKV(ctx, "Live configuration swapped",
		"entry", entryPath, "linked", len(outcome.Linked), "removed", len(outcome.Removed))

	return outcome, nil
}

// link points name at file through a temporary link renamed into place.
func (d *Deployer) link(name, file string, foreign map[string]bool) error {
	tempName := tempLinkPrefix + name + ".tmp"
	if foreign[tempName] {
		return fmt.Errorf("%s: %w", filepath.Join(d.target, tempName), errNameTaken)
	}

	tempPath := filepath.Join(d.target, tempName)

	if err := os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove leftover link %s: %w", tempName, err)
	}

	if err := os.Symlink(file, tempPath); err != nil {
		return fmt.Errorf("create link %s: %w", tempName, err)
	}

	if err := os.Rename(tempPath, filepath.Join(d.target, name)); err != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("replace link %s: %w", name, err)
	}

	return nil
}

// scan splits the live directory into owned links (name to absolute target)
// and the names of everything else.
func (d *Deployer) scan() (map[string]string, map[string]bool, error) {
	owned := make(map[string]string)
	foreign := make(map[string]bool)

	entries, err := os.ReadDir(d.target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return owned, foreign, nil
		}

		return nil, nil, fmt.Errorf("list target directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()

		if entry.Type()&os.ModeSymlink == 0 {
			foreign[name] = true

			continue
		}

		destination, err := os.Readlink(filepath.Join(d.target, name))
		if err != nil {
			return nil, nil, fmt.Errorf("read link %s: %w", name, err)
		}

		if !filepath.IsAbs(destination) {
			destination = filepath.Join(d.target, destination)
		}

		destination = filepath.Clean(destination)

		if d.insideCache(destination) {
			owned[name] = destination
		} else {
			foreign[name] = true
		}
	}

	return owned, foreign, nil
}

func (d *Deployer) insideCache(path string) bool {
	for _, root := range d.cacheRoots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || rel == ".." || filepath.IsAbs(rel) {
			continue
		}

		if !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}

	return false
}
