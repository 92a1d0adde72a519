package release

import "errors"

var (
	// ErrNotFound is returned when a requested cache entry or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a cache entry for the version is already present.
	ErrAlreadyExists = errors.New("already exists")
	// ErrUpstreamUnreachable is returned when the release API cannot be queried.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	// ErrMalformedRelease is returned when a release lacks a parseable version or an asset.
	ErrMalformedRelease = errors.New("malformed release")
	// ErrDownloadFailed is returned when the release archive cannot be downloaded.
	ErrDownloadFailed = errors.New("download failed")
	// ErrExtractionFailed is returned when the release archive cannot be unpacked.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrVerificationFailed is returned when at least one configuration file fails its check.
	ErrVerificationFailed = errors.New("verification failed")
	// ErrDeployFailed is returned when the live link set cannot be updated.
	ErrDeployFailed = errors.New("deploy failed")
)
