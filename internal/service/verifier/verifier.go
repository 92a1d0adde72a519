package verifier

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/oshokin/zonesync/internal/config"
	"github.com/oshokin/zonesync/internal/domain/release"
	"github.com/oshokin/zonesync/internal/logger"
	"github.com/oshokin/zonesync/internal/repository/cache"
	"github.com/oshokin/zonesync/internal/service/common"
)

// Options configures a Verifier.
type Options struct {
	// ZoneDirectory is the entry subdirectory holding configuration files.
	ZoneDirectory string
	// ConfigChecker is the command line run against *.local files.
	ConfigChecker string
	// ForwardChecker is the command line run against forward zones.
	ForwardChecker string
	// ReverseChecker is the command line run against reverse zones.
	ReverseChecker string
	// Mode is config.ModeFailFast or config.ModeCheckAll.
	Mode string
	// Runner starts checker processes. Defaults to common.ExecRunner.
	Runner common.Runner
}

// Verifier runs the configured checkers against a cache entry.
type Verifier struct {
	zoneDirectory string
	checkers      map[release.FileKind][]string
	checkAll      bool
	runner        common.Runner
}

var (
	// errNoChecker is returned when a checker command is empty.
	errNoChecker = errors.New("checker command is empty")
	// errNothingToVerify is returned when the entry holds no configuration files.
	errNothingToVerify = errors.New("no configuration files")
)

// New builds a Verifier, splitting the checker command lines into argument vectors.
func New(opts *Options) (*Verifier, error) {
	commands := map[release.FileKind]string{
		release.KindConfig:      opts.ConfigChecker,
		release.KindForwardZone: opts.ForwardChecker,
		release.KindReverseZone: opts.ReverseChecker,
	}

	checkers := make(map[release.FileKind][]string, len(commands))

	for kind, line := range commands {
		argv, err := common.ParseCommand(line)
		if err != nil {
			return nil, fmt.Errorf("%s checker: %w", kind, err)
		}

		if len(argv) == 0 {
			return nil, fmt.Errorf("%s checker: %w", kind, errNoChecker)
		}

		checkers[kind] = argv
	}

	runner := opts.Runner
	if runner == nil {
		runner = common.ExecRunner{}
	}

	zoneDirectory := opts.ZoneDirectory
	if zoneDirectory == "" {
		zoneDirectory = config.DefaultZoneDirectory
	}

	return &Verifier{
		zoneDirectory: zoneDirectory,
		checkers:      checkers,
		checkAll:      opts.Mode == config.ModeCheckAll,
		runner:        runner,
	}, nil
}

// Verify checks every configuration file of the entry. The returned Result is
// always populated with the checks that ran; the error wraps
// release.ErrVerificationFailed when any file failed or nothing could be checked.
// The entry is only read.
func (v *Verifier) Verify(ctx context.Context, entryPath string) (*release.Result, error) {
	result := &release.Result{}

	if version, err := release.ParseVersion(filepath.Base(entryPath)); err == nil {
		result.Version = version
	}

	files, err := cache.ConfigFiles(entryPath, v.zoneDirectory)
	if err != nil {
		return result, fmt.Errorf("%w: %w", release.ErrVerificationFailed, err)
	}

	if len(files) == 0 {
		return result, fmt.Errorf("%w: %s: %w", release.ErrVerificationFailed,
			filepath.Join(entryPath, v.zoneDirectory), errNothingToVerify)
	}

	for _, path := range files {
		if err = ctx.Err(); err != nil {
			return result, err
		}

		check := v.check(ctx, path)
		result.Checks = append(result.Checks, check)

		if check.Status == release.CheckFailed && !v.checkAll {
			break
		}
	}

	failed := result.Failed()
	if len(failed) == 0 {
		logger.InfoKV(ctx, "Release verified", "entry", entryPath, "files", len(result.Checks))

		return result, nil
	}

	paths := make([]string, 0, len(failed))
	for _, check := range failed {
		paths = append(paths, check.Path)
	}

	return result, fmt.Errorf("%w: %s: %w", release.ErrVerificationFailed,
		strings.Join(paths, ", "), failed[0].Err)
}

// check runs the checker for one file.
func (v *Verifier) check(ctx context.Context, path string) release.FileCheck {
	kind, domain := Classify(filepath.Base(path))

	check := release.FileCheck{
		Path:   path,
		Kind:   kind,
		Domain: domain,
	}

	argv, ok := v.checkers[kind]
	if !ok {
		logger.InfoKV(ctx, "Skipping file without a checker", "path", path)

		check.Status = release.CheckSkipped

		return check
	}

	if kind == release.KindConfig {
		argv = common.WithArgs(argv, path)
	} else {
		argv = common.WithArgs(argv, domain, path)
	}

	output, err := v.runner.Run(ctx, argv)
	check.Output = strings.TrimSpace(string(output))

	if err != nil {
		check.Status = release.CheckFailed
		check.Err = err

		logger.ErrorKV(ctx, "Check failed", "path", path, "kind", string(kind), "domain", domain,
			"error", err, "output", check.Output)

		return check
	}

	check.Status = release.CheckPassed

	logger.DebugKV(ctx, "Check passed", "path", path, "kind", string(kind), "domain", domain)

	return check
}
