package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/oshokin/zonesync/internal/domain/release"
	"github.com/oshokin/zonesync/internal/logger"
)

// EntryStore is the part of the cache store the fetcher writes to.
type EntryStore interface {
	Create(v release.Version) (string, error)
	Remove(v release.Version) error
	Seal(desc release.Descriptor) error
}

// Options configures a Fetcher.
type Options struct {
	// APIURL overrides the GitHub API base URL.
	APIURL string
	// Token authenticates API calls when set.
	Token string
	// VersionField is the zero-based dot-separated field of the release name holding the version.
	VersionField int
	// StripComponents drops leading path elements from archive members.
	StripComponents int
	// MaxArchiveBytes caps the archive size.
	MaxArchiveBytes int64
	// HTTPClient is used for API calls and downloads. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Fetcher resolves and stages upstream releases.
type Fetcher struct {
	// gh is the GitHub API client.
	gh *github.Client
	// downloads fetches archives; it never carries the API token.
	downloads *http.Client
	// store receives extracted releases.
	store EntryStore

	versionField    int
	stripComponents int
	maxArchiveBytes int64
}

var (
	// errBadRepository is returned when the repository is not "owner/name".
	errBadRepository = errors.New("repository must look like owner/name")
	// errNoAsset is returned when a release has nothing to download.
	errNoAsset = errors.New("release has no downloadable asset")
	// errNoVersionField is returned when the release name is too short.
	errNoVersionField = errors.New("release name has no version field")
	// errBadHTTPStatus is returned for non-200 archive responses.
	errBadHTTPStatus = errors.New("unexpected http status")
	// errArchiveTooLarge is returned when the archive exceeds MaxArchiveBytes.
	errArchiveTooLarge = errors.New("archive exceeds size limit")
)

// New creates a Fetcher writing into store.
func New(store EntryStore, opts *Options) (*Fetcher, error) {
	base := opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}

	apiClient := base
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		apiClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}

	gh := github.NewClient(apiClient)

	if opts.APIURL != "" {
		apiURL := opts.APIURL
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}

		parsed, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("parse api url: %w", err)
		}

		gh.BaseURL = parsed
	}

	return &Fetcher{
		gh:              gh,
		downloads:       base,
		store:           store,
		versionField:    opts.VersionField,
		stripComponents: opts.StripComponents,
		maxArchiveBytes: opts.MaxArchiveBytes,
	}, nil
}

// LatestUpstream returns the latest published release of repository ("owner/name").
func (f *Fetcher) LatestUpstream(ctx context.Context, repository string) (release.Descriptor, error) {
	owner, name, found := strings.Cut(repository, "/")
	if !found || owner == "" || name == "" {
		return release.Descriptor{}, fmt.Errorf("%w: %q", errBadRepository, repository)
	}

	latest, _, err := f.gh.Repositories.GetLatestRelease(ctx, owner, name)
	if err != nil {
		return release.Descriptor{}, fmt.Errorf("%w: latest release of %s: %w", release.ErrUpstreamUnreachable, repository, err)
	}

	version, err := parseReleaseVersion(latest.GetName(), latest.GetTagName(), f.versionField)
	if err != nil {
		return release.Descriptor{}, fmt.Errorf("%w: %s: %w", release.ErrMalformedRelease, repository, err)
	}

	if len(latest.Assets) == 0 || latest.Assets[0].GetBrowserDownloadURL() == "" {
		return release.Descriptor{}, fmt.Errorf("%w: %s release %q: %w",
			release.ErrMalformedRelease, repository, latest.GetName(), errNoAsset)
	}

	metadata, err := json.Marshal(latest)
	if err != nil {
		return release.Descriptor{}, fmt.Errorf("%w: encode release metadata: %w", release.ErrMalformedRelease, err)
	}

	descriptor := release.NewDescriptor(
		version,
		latest.Assets[0].GetBrowserDownloadURL(),
		latest.GetName(),
		latest.GetTagName(),
		metadata,
	)

	logger.DebugKV(ctx, "Resolved upstream release",
		"repository", repository, "name", descriptor.Name(), "version", version.String())

	return descriptor, nil
}

// FetchAndExtract downloads the release archive and extracts it into a new cache entry.
// It returns the entry path. An existing entry for the version is left alone and
// release.ErrAlreadyExists is returned.
func (f *Fetcher) FetchAndExtract(ctx context.Context, desc release.Descriptor) (string, error) {
	entry, err := f.store.Create(desc.Version())
	if err != nil {
		return "", err
	}

	if err = f.populate(ctx, desc, entry); err != nil {
		if removeErr := f.store.Remove(desc.Version()); removeErr != nil {
			logger.ErrorKV(ctx, "Failed to discard partial cache entry", "path", entry, "error", removeErr)

			return "", errors.Join(err, removeErr)
		}

		return "", err
	}

	return entry, nil
}

// populate fills and seals a freshly created entry.
func (f *Fetcher) populate(ctx context.Context, desc release.Descriptor, entry string) error {
	logger.InfoKV(ctx, "Downloading release archive", "url", desc.DownloadURL())

	archive, err := f.download(ctx, desc.DownloadURL())
	if err != nil {
		return fmt.Errorf("%w: %s: %w", release.ErrDownloadFailed, desc.DownloadURL(), err)
	}

	logger.InfoKV(ctx, "Extracting release archive", "bytes", len(archive), "entry", entry)

	files, err := extract(ctx, bytes.NewReader(archive), entry, f.stripComponents)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", release.ErrExtractionFailed, desc.Version(), err)
	}

	if err = f.store.Seal(desc); err != nil {
		return fmt.Errorf("%w: seal %s: %w", release.ErrExtractionFailed, desc.Version(), err)
	}

	logger.InfoKV(ctx, "Release cached", "version", desc.Version().String(), "files", files)

	return nil
}

// download reads the archive into memory, enforcing the size cap.
func (f *Fetcher) download(ctx context.Context, downloadURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := f.downloads.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %w", response.Status, errBadHTTPStatus)
	}

	body := io.Reader(response.Body)
	if f.maxArchiveBytes > 0 {
		body = io.LimitReader(response.Body, f.maxArchiveBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	if f.maxArchiveBytes > 0 && int64(len(data)) > f.maxArchiveBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", errArchiveTooLarge, f.maxArchiveBytes)
	}

	return data, nil
}

// parseReleaseVersion extracts the version from the dot-separated release name,
// e.g. field 3 of "zones.prod.v2.1700000000". The tag is used when the release is unnamed.
func parseReleaseVersion(name, tag string, field int) (release.Version, error) {
	source := strings.TrimSpace(name)
	if source == "" {
		source = strings.TrimSpace(tag)
	}

	parts := strings.Split(source, ".")
	if field < 0 || field >= len(parts) {
		return release.NoVersion, fmt.Errorf("%w: %d in %q", errNoVersionField, field, source)
	}

	return release.ParseVersion(strings.TrimSpace(parts[field]))
}
