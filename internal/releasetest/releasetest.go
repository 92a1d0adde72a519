package releasetest

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

// Archive builds a tar archive from name -> content, gzip-compressed when compress is set.
// Names ending in "/" become directories.
func Archive(t *testing.T, files map[string]string, compress bool) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	sort.Strings(names)

	var buffer bytes.Buffer

	tw := tar.NewWriter(&buffer)

	for _, name := range names {
		header := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(files[name])),
			Typeflag: tar.TypeReg,
		}

		if name[len(name)-1] == '/' {
			header.Typeflag = tar.TypeDir
			header.Mode = 0o755
			header.Size = 0
		}

		require.NoError(t, tw.WriteHeader(header))

		if header.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(files[name]))
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())

	if !compress {
		return buffer.Bytes()
	}

	var compressed bytes.Buffer

	gw := gzip.NewWriter(&compressed)
	_, err := gw.Write(buffer.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	return compressed.Bytes()
}

// Upstream is a fake GitHub API serving one "latest release" and its asset.
type Upstream struct {
	// Server is the underlying test server; its URL is the API base URL.
	Server *httptest.Server

	mu          sync.Mutex
	releaseName string
	archive     []byte
	withAsset   bool
	status      int

	releaseHits  atomic.Int64
	downloadHits atomic.Int64
}

// AssetPath is where the fake serves the release archive.
const AssetPath = "/download/zones.tar.gz"

// NewUpstream starts a fake API for repository ("owner/name").
func NewUpstream(t *testing.T, repository, releaseName string, archive []byte) *Upstream {
	t.Helper()

	u := &Upstream{
		releaseName: releaseName,
		archive:     archive,
		withAsset:   true,
		status:      http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/"+repository+"/releases/latest", u.serveRelease)
	mux.HandleFunc(AssetPath, u.serveAsset)

	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Server.Close)

	return u
}

// URL returns the API base URL.
func (u *Upstream) URL() string {
	return u.Server.URL + "/"
}

// SetRelease replaces the published release.
func (u *Upstream) SetRelease(name string, archive []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.releaseName = name
	u.archive = archive
}

// SetAssetless makes the release document list no assets.
func (u *Upstream) SetAssetless() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.withAsset = false
}

// SetStatus makes the release endpoint answer with status.
func (u *Upstream) SetStatus(status int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.status = status
}

// ReleaseHits returns how many times the release document was requested.
func (u *Upstream) ReleaseHits() int64 {
	return u.releaseHits.Load()
}

// DownloadHits returns how many times the asset was downloaded.
func (u *Upstream) DownloadHits() int64 {
	return u.downloadHits.Load()
}

func (u *Upstream) serveRelease(w http.ResponseWriter, _ *http.Request) {
	u.releaseHits.Add(1)

	u.mu.Lock()
	status, name, withAsset := u.status, u.releaseName, u.withAsset
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))

		return
	}

	document := map[string]any{
		"id":       1,
		"name":     name,
		"tag_name": "release-" + name,
		"assets":   []any{},
	}

	if withAsset {
		document["assets"] = []any{
			map[string]any{
				"id":                   7,
				"name":                 "zones.tar.gz",
				"browser_download_url": u.Server.URL + AssetPath,
			},
		}
	}

	_ = json.NewEncoder(w).Encode(document)
}

func (u *Upstream) serveAsset(w http.ResponseWriter, _ *http.Request) {
	u.downloadHits.Add(1)

	u.mu.Lock()
	archive := u.archive
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(archive)
}
