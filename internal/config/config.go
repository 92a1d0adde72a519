package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything a sync cycle needs.
type Config struct {
	// Upstream describes where releases are published.
	Upstream Upstream `yaml:"upstream"`
	// Deploy describes the live configuration directory and the reload action.
	Deploy Deploy `yaml:"deploy"`
	// Cache describes the local release cache.
	Cache Cache `yaml:"cache"`
	// Verify selects the external checkers run against a release.
	Verify Verify `yaml:"verify"`
	// Timeout bounds a whole sync cycle.
	Timeout time.Duration `yaml:"timeout"`
	// LockFile serializes concurrent runs against the same cache and deploy directory.
	LockFile string `yaml:"lock_file"`
	// Metrics configures the optional Prometheus textfile output.
	Metrics Metrics `yaml:"metrics"`
	// Listen configures the listener stub.
	Listen Listen `yaml:"listen"`
}

// Upstream holds release API settings.
type Upstream struct {
	// Repository is the "owner/name" of the GitHub repository publishing releases.
	Repository string `yaml:"repository"`
	// APIURL overrides the GitHub API base URL (GitHub Enterprise, tests).
	APIURL string `yaml:"api_url,omitempty"`
	// Token is an optional API token. Public repositories do not need one.
	Token string `yaml:"token,omitempty"`
	// VersionField is the zero-based dot-separated field of the release name holding the version.
	VersionField int `yaml:"version_field"`
}

// Deploy holds live directory settings.
type Deploy struct {
	// TargetDirectory is the directory the DNS server reads its configuration from.
	TargetDirectory string `yaml:"target_directory"`
	// ReloadCommand is run after the links are swapped. Empty disables the reload.
	ReloadCommand string `yaml:"reload_command"`
}

// Cache holds release cache settings.
type Cache struct {
	// Root is the directory holding one subdirectory per cached release.
	Root string `yaml:"root"`
	// StripComponents drops this many leading path elements from archive members.
	StripComponents int `yaml:"strip_components"`
	// MaxArchiveBytes caps the size of a downloaded archive.
	MaxArchiveBytes int64 `yaml:"max_archive_bytes"`
}

// Verify holds checker settings.
type Verify struct {
	// ZoneDirectory is the release subdirectory holding configuration files.
	ZoneDirectory string `yaml:"zone_directory"`
	// Mode is either "fail-fast" or "check-all".
	Mode string `yaml:"mode"`
	// ConfigChecker is the command run against *.local files.
	ConfigChecker string `yaml:"config_checker"`
	// ForwardChecker is the command run against forward zone files.
	ForwardChecker string `yaml:"forward_checker"`
	// ReverseChecker is the command run against reverse zone files.
	ReverseChecker string `yaml:"reverse_checker"`
}

// Metrics holds metrics output settings.
type Metrics struct {
	// Textfile is where sync metrics are written for the node exporter textfile collector.
	Textfile string `yaml:"textfile,omitempty"`
}

// Listen holds listener stub settings.
type Listen struct {
	// Address is the TCP address the health endpoint binds to.
	Address string `yaml:"address"`
	// RefreshInterval is how often the reported health is recomputed.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "zonesync.yaml"

	// DefaultCacheRoot is the cache directory used when none is configured.
	DefaultCacheRoot = "release-cache"

	// DefaultLockFilename is created inside the cache root when no lock file is configured.
	DefaultLockFilename = ".zonesync.lock"

	// DefaultZoneDirectory is the release subdirectory holding configuration files.
	DefaultZoneDirectory = "zones"

	// DefaultVersionField is the release name field holding the timestamp ("zones.1.2.<ts>").
	DefaultVersionField = 3

	// DefaultTimeout bounds a sync cycle when none is configured.
	DefaultTimeout = 10 * time.Minute

	// DefaultMaxArchiveBytes caps archive downloads at 256 MiB.
	DefaultMaxArchiveBytes int64 = 256 << 20

	// DefaultListenAddress is the listener stub address.
	DefaultListenAddress = "127.0.0.1:5380"

	// DefaultRefreshInterval is how often the listener stub refreshes its health status.
	DefaultRefreshInterval = 30 * time.Second

	// DefaultConfigChecker validates named.conf fragments.
	DefaultConfigChecker = "named-checkconf"

	// DefaultZoneChecker validates forward and reverse zones.
	DefaultZoneChecker = "named-checkzone"

	// ModeFailFast stops verification at the first failing file.
	ModeFailFast = "fail-fast"

	// ModeCheckAll runs every check before reporting.
	ModeCheckAll = "check-all"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// ErrInvalidConfig wraps every configuration problem.
	ErrInvalidConfig = errors.New("invalid configuration")

	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errRepositoryRequired is returned when the upstream repository is missing.
	errRepositoryRequired = errors.New("upstream.repository must be provided")
	// errBadRepository is returned when the repository is not "owner/name".
	errBadRepository = errors.New("upstream.repository must look like owner/name")
	// errTargetRequired is returned when the deploy directory is missing.
	errTargetRequired = errors.New("deploy.target_directory must be provided")
	// errUnknownMode is returned for an unsupported verification mode.
	errUnknownMode = errors.New("unknown verify.mode")
	// errNegativeValue is returned for negative numeric settings.
	errNegativeValue = errors.New("value must not be negative")
	// errTargetInsideCache is returned when the deploy directory lives inside the cache.
	errTargetInsideCache = errors.New("deploy.target_directory must not be inside cache.root")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: read settings: %w", ErrInvalidConfig, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal settings: %w", ErrInvalidConfig, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// The file may carry an API token.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills defaults.
func Validate(settings *Config) error {
	if settings == nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errConfigIsNotSet)
	}

	if err := validateUpstream(&settings.Upstream); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := validatePaths(settings); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := validateVerify(&settings.Verify); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.Listen.Address == "" {
		settings.Listen.Address = DefaultListenAddress
	}

	if _, _, err := net.SplitHostPort(settings.Listen.Address); err != nil {
		return fmt.Errorf("%w: invalid listen address: %w", ErrInvalidConfig, err)
	}

	if settings.Listen.RefreshInterval <= 0 {
		settings.Listen.RefreshInterval = DefaultRefreshInterval
	}

	return nil
}

// LockPath returns the configured lock file or the default one inside the cache root.
func (c *Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}

	return filepath.Join(c.Cache.Root, DefaultLockFilename)
}

func validateUpstream(upstream *Upstream) error {
	upstream.Repository = strings.TrimSpace(upstream.Repository)
	if upstream.Repository == "" {
		return errRepositoryRequired
	}

	owner, name, found := strings.Cut(upstream.Repository, "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", errBadRepository, upstream.Repository)
	}

	if upstream.VersionField < 0 {
		return fmt.Errorf("upstream.version_field: %w", errNegativeValue)
	}

	// A zero field is indistinguishable from "unset" in YAML, and field 0 is the
	// product name in the naming convention, so it always means the default.
	if upstream.VersionField == 0 {
		upstream.VersionField = DefaultVersionField
	}

	if upstream.APIURL == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(upstream.APIURL); err != nil {
		return fmt.Errorf("invalid upstream.api_url: %w", err)
	}

	return nil
}

func validatePaths(settings *Config) error {
	if settings.Deploy.TargetDirectory == "" {
		return errTargetRequired
	}

	if settings.Cache.Root == "" {
		settings.Cache.Root = DefaultCacheRoot
	}

	if settings.Cache.StripComponents < 0 {
		return fmt.Errorf("cache.strip_components: %w", errNegativeValue)
	}

	if settings.Cache.MaxArchiveBytes < 0 {
		return fmt.Errorf("cache.max_archive_bytes: %w", errNegativeValue)
	}

	if settings.Cache.MaxArchiveBytes == 0 {
		settings.Cache.MaxArchiveBytes = DefaultMaxArchiveBytes
	}

	cacheRoot, err := filepath.Abs(settings.Cache.Root)
	if err != nil {
		return fmt.Errorf("resolve cache.root: %w", err)
	}

	target, err := filepath.Abs(settings.Deploy.TargetDirectory)
	if err != nil {
		return fmt.Errorf("resolve deploy.target_directory: %w", err)
	}

	if rel, err := filepath.Rel(cacheRoot, target); err == nil && rel != ".." &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errTargetInsideCache
	}

	return nil
}

func validateVerify(verify *Verify) error {
	if verify.ZoneDirectory == "" {
		verify.ZoneDirectory = DefaultZoneDirectory
	}

	switch verify.Mode {
	case "":
		verify.Mode = ModeFailFast
	case ModeFailFast, ModeCheckAll:
	default:
		return fmt.Errorf("%w: %q", errUnknownMode, verify.Mode)
	}

	if verify.ConfigChecker == "" {
		verify.ConfigChecker = DefaultConfigChecker
	}

	if verify.ForwardChecker == "" {
		verify.ForwardChecker = DefaultZoneChecker
	}

	if verify.ReverseChecker == "" {
		verify.ReverseChecker = DefaultZoneChecker
	}

	return nil
}
