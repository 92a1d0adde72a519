package fetcher

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/zonesync/internal/domain/release"
	"github.com/oshokin/zonesync/internal/releasetest"
	"github.com/oshokin/zonesync/internal/repository/cache"
)

const testRepository = "acme/dns-zones"

func newFetcher(t *testing.T, upstream *releasetest.Upstream, maxBytes int64) (*Fetcher, *cache.Store) {
	t.Helper()

	store, err := cache.NewStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	f, err := New(store, &Options{
		APIURL:          strings.TrimSuffix(upstream.URL(), "/"),
		VersionField:    3,
		MaxArchiveBytes: maxBytes,
	})
	require.NoError(t, err)

	return f, store
}

// TestParseReleaseVersion covers the naming convention and its failure modes.
func TestParseReleaseVersion(t *testing.T) {
	t.Parallel()

	v, err := parseReleaseVersion("zones.prod.v2.1700000000", "", 3)
	require.NoError(t, err)
	require.Equal(t, release.Version(1700000000), v)

	v, err = parseReleaseVersion("", "zones.prod.v2.1700000001", 3)
	require.NoError(t, err)
	require.Equal(t, release.Version(1700000001), v)

	v, err = parseReleaseVersion("zones.prod.v2. 1700000002 ", "", 3)
	require.NoError(t, err)
	require.Equal(t, release.Version(1700000002), v)

	_, err = parseReleaseVersion("zones.prod", "", 3)
	require.Error(t, err)

	_, err = parseReleaseVersion("zones.prod.v2.latest", "", 3)
	require.Error(t, err)
}

// TestLatestUpstream resolves the release document served by a fake API.
func TestLatestUpstream(t *testing.T) {
	t.Parallel()

	upstream := releasetest.NewUpstream(t, testRepository, "zones.prod.v2.1700000000", nil)
	f, _ := newFetcher(t, upstream, 0)

	desc, err := f.LatestUpstream(context.Background(), testRepository)
	require.NoError(t, err)
	require.Equal(t, release.Version(1700000000), desc.Version())
	require.Equal(t, upstream.Server.URL+releasetest.AssetPath, desc.DownloadURL())
	require.Equal(t, "zones.prod.v2.1700000000", desc.Name())
	require.Contains(t, string(desc.RawMetadata()), "browser_download_url")
}

// TestLatestUpstream_Errors maps upstream failures onto the error taxonomy.
func TestLatestUpstream_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()

		upstream := releasetest.NewUpstream(t, testRepository, "zones.prod.v2.1", nil)
		upstream.SetStatus(http.StatusInternalServerError)

		f, _ := newFetcher(t, upstream, 0)

		_, err := f.LatestUpstream(context.Background(), testRepository)
		require.ErrorIs(t, err, release.ErrUpstreamUnreachable)
	})

	t.Run("closed server", func(t *testing.T) {
		t.Parallel()

		upstream := releasetest.NewUpstream(t, testRepository, "zones.prod.v2.1", nil)
		f, _ := newFetcher(t, upstream, 0)
		upstream.Server.Close()

		_, err := f.LatestUpstream(context.Background(), testRepository)
		require.ErrorIs(t, err, release.ErrUpstreamUnreachable)
	})

	t.Run("unparseable name", func(t *testing.T) {
		t.Parallel()

		upstream := releasetest.NewUpstream(t, testRepository, "zones.prod.v2.tuesday", nil)
		f, _ := newFetcher(t, upstream, 0)

		_, err := f.LatestUpstream(context.Background(), testRepository)
		require.ErrorIs(t, err, release.ErrMalformedRelease)
	})

	t.Run("no asset", func(t *testing.T) {
		t.Parallel()

		upstream := releasetest.NewUpstream(t, testRepository, "zones.prod.v2.1700000000", nil)
		upstream.SetAssetless()

		f, _ := newFetcher(t, upstream, 0)

		_, err := f.LatestUpstream(context.Background(), testRepository)
		require.ErrorIs(t, err, release.ErrMalformedRelease)
	})

	t.Run("bad repository", func(t *testing.T) {
		t.Parallel()

		upstream := releasetest.NewUpstream(t, testRepository, "zones.prod.v2.1700000000", nil)
		f, _ := newFetcher(t, upstream, 0)

		_, err := f.LatestUpstream(context.Background(), "no-slash")
		require.Error(t, err)
		require.Zero(t, upstream.ReleaseHits())
	})
}

// TestFetchAndExtract stages an archive into a sealed cache entry and refuses to do it twice.
func TestFetchAndExtract(t *testing.T) {
	t.Parallel()

	archive := releasetest.Archive(t, map[string]string{
		"zones/":                  "",
		"zones/db.example.com":    "$ORIGIN example.com.\n",
		"zones/example.com.local": "zone \"example.com\" {};\n",
		"README.md":               "zones\n",
	}, true)

	upstream := releasetest.NewUpstream(t, testRepository, "zones.prod.v2.1700000000", archive)
	f, store := newFetcher(t, upstream, 0)

	desc, err := f.LatestUpstream(context.Background(), testRepository)
	require.NoError(t, err)

	entry, err := f.FetchAndExtract(context.Background(), desc)
	require.NoError(t, err)
	require.Equal(t, store.EntryPath(1700000000), entry)

	contents, err := os.ReadFile(filepath.Join(entry, "zones", "db.example.com"))
	require.NoError(t, err)
	require.Equal(t, "$ORIGIN example.com.\n", string(contents))

	marker, err := store.Marker(1700000000)
	require.NoError(t, err)
	require.Equal(t, desc.DownloadURL(), marker.DownloadURL)
	require.True(t, marker.VerifiedAt.IsZero())

	// Extracted is not yet cached: it counts only after verification.
	_, err = store.Latest()
	require.ErrorIs(t, err, release.ErrNotFound)

	// Second call must not touch the existing entry.
	_, err = f.FetchAndExtract(context.Background(), desc)
	require.ErrorIs(t, err, release.ErrAlreadyExists)
	require.Equal(t, int64(1), upstream.DownloadHits())

	_, err = os.Stat(filepath.Join(entry, "zones", "db.example.com"))
	require.NoError(t, err)
}

// TestFetchAndExtract_CleansUp verifies failed downloads and extractions leave no entry.
func TestFetchAndExtract_CleansUp(t *testing.T) {
	t.Parallel()

	t.Run("garbage archive", func(t *testing.T) {
		t.Parallel()

		upstream := releasetest.NewUpstream(t, testRepository, "zones.prod.v2.1700000000", []byte("definitely not a tarball"))
		f, store := newFetcher(t, upstream, 0)

		desc, err := f.LatestUpstream(context.Background(), testRepository)
		require.NoError(t, err)

		_, err = f.FetchAndExtract(context.Background(), desc)
		require.ErrorIs(t, err, release.ErrExtractionFailed)

		_, err = os.Stat(store.EntryPath(1700000000))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()

		archive := releasetest.Archive(t, map[string]string{"zones/a.db": strings.Repeat("x", 4096)}, false)
		upstream := releasetest.NewUpstream(t, testRepository, "zones.prod.v2.1700000000", archive)
		f, store := newFetcher(t, upstream, 1024)

		desc, err := f.LatestUpstream(context.Background(), testRepository)
		require.NoError(t, err)

		_, err = f.FetchAndExtract(context.Background(), desc)
		require.ErrorIs(t, err, release.ErrDownloadFailed)

		_, err = os.Stat(store.EntryPath(1700000000))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing asset", func(t *testing.T) {
		t.Parallel()

		upstream := releasetest.NewUpstream(t, testRepository, "zones.prod.v2.1700000000", nil)
		f, store := newFetcher(t, upstream, 0)

		desc := release.NewDescriptor(1700000000, upstream.Server.URL+"/nope", "n", "t", nil)

		_, err := f.FetchAndExtract(context.Background(), desc)
		require.ErrorIs(t, err, release.ErrDownloadFailed)

		_, err = os.Stat(store.EntryPath(1700000000))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}
