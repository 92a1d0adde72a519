package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/zonesync/internal/domain/release"
)

// sealed creates an extracted but not yet verified entry for v.
func sealed(t *testing.T, s *Store, v release.Version) string {
	t.Helper()

	path, err := s.Create(v)
	require.NoError(t, err)
	require.NoError(t, s.Seal(release.NewDescriptor(v, "https://example.com/"+v.String(), "zones.1.0."+v.String(), "t", nil)))

	return path
}

// cached creates a complete entry for v.
func cached(t *testing.T, s *Store, v release.Version) string {
	t.Helper()

	path := sealed(t, s, v)
	require.NoError(t, s.MarkVerified(v))

	return path
}

// TestStore_LatestEmpty verifies an empty or missing cache reports ErrNotFound.
func TestStore_LatestEmpty(t *testing.T) {
	t.Parallel()

	s, err := NewStore(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)

	_, err = s.Latest()
	require.ErrorIs(t, err, release.ErrNotFound)

	versions, err := s.Versions()
	require.NoError(t, err)
	require.Empty(t, versions)
}

// TestStore_LatestIgnoresJunk checks that only sealed, version-named directories count.
func TestStore_LatestIgnoresJunk(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s, err := NewStore(root)
	require.NoError(t, err)

	cached(t, s, 1600000000)
	cached(t, s, 1700000000)
	cached(t, s, 900)

	// A file with a larger numeric name.
	require.NoError(t, os.WriteFile(filepath.Join(root, "1800000000"), nil, 0o644))
	// Non-numeric directories.
	require.NoError(t, os.Mkdir(filepath.Join(root, "latest"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "1900000000.bak"), 0o755))
	// Non-canonical number.
	require.NoError(t, os.Mkdir(filepath.Join(root, "01950000000"), 0o755))
	// Unsealed directory from an interrupted run.
	require.NoError(t, os.Mkdir(filepath.Join(root, "2000000000"), 0o755))
	// Sealed but never verified.
	sealed(t, s, 2050000000)
	// Symlink to a sealed entry.
	require.NoError(t, os.Symlink(filepath.Join(root, "1700000000"), filepath.Join(root, "2100000000")))

	latest, err := s.Latest()
	require.NoError(t, err)
	require.Equal(t, release.Version(1700000000), latest)

	versions, err := s.Versions()
	require.NoError(t, err)
	require.Equal(t, []release.Version{900, 1600000000, 1700000000}, versions)
}

// TestStore_CreateTwice verifies a second Create for the same version fails.
func TestStore_CreateTwice(t *testing.T) {
	t.Parallel()

	s, err := NewStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	path, err := s.Create(42)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(s.Root(), "42"), path)
	require.Equal(t, path, s.EntryPath(42))

	_, err = s.Create(42)
	require.ErrorIs(t, err, release.ErrAlreadyExists)
}

// TestStore_RemoveIdempotent verifies removing twice is fine.
func TestStore_RemoveIdempotent(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path := cached(t, s, 5)
	require.NoError(t, os.WriteFile(filepath.Join(path, "payload"), []byte("x"), 0o644))

	require.NoError(t, s.Remove(5))
	require.NoError(t, s.Remove(5))

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestStore_SealAndMarker verifies the marker round-trips and that only a
// verified entry is complete.
func TestStore_SealAndMarker(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	_, err = s.Create(1700000000)
	require.NoError(t, err)

	complete, err := s.IsComplete(1700000000)
	require.NoError(t, err)
	require.False(t, complete)

	_, err = s.Marker(1700000000)
	require.ErrorIs(t, err, release.ErrNotFound)

	desc := release.NewDescriptor(1700000000, "https://example.com/z.tar.gz", "zones.a.b.1700000000", "r1", []byte(`{"id":1}`))
	require.NoError(t, s.Seal(desc))

	complete, err = s.IsComplete(1700000000)
	require.NoError(t, err)
	require.False(t, complete)

	_, err = s.Latest()
	require.ErrorIs(t, err, release.ErrNotFound)

	verified := fixed.Add(time.Minute)
	s.now = func() time.Time { return verified }

	require.NoError(t, s.MarkVerified(1700000000))

	complete, err = s.IsComplete(1700000000)
	require.NoError(t, err)
	require.True(t, complete)

	marker, err := s.Marker(1700000000)
	require.NoError(t, err)
	require.Equal(t, release.Version(1700000000), marker.Version)
	require.Equal(t, "zones.a.b.1700000000", marker.Name)
	require.Equal(t, "https://example.com/z.tar.gz", marker.DownloadURL)
	require.Len(t, marker.MetadataDigest, 64)
	require.True(t, fixed.Equal(marker.SealedAt))
	require.True(t, verified.Equal(marker.VerifiedAt))
}

// TestStore_MarkVerifiedUnsealed refuses to stamp an entry without a marker.
func TestStore_MarkVerifiedUnsealed(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Create(7)
	require.NoError(t, err)

	require.ErrorIs(t, s.MarkVerified(7), release.ErrNotFound)
}

// TestStore_CorruptMarkerIsIncomplete treats an undecodable marker as an
// interrupted run.
func TestStore_CorruptMarkerIsIncomplete(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path, err := s.Create(8)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, MarkerFilename), []byte("version: [oops"), 0o644))

	complete, err := s.IsComplete(8)
	require.NoError(t, err)
	require.False(t, complete)
}

// TestStore_SweepIncomplete verifies unsealed and unverified entries are removed.
func TestStore_SweepIncomplete(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s, err := NewStore(root)
	require.NoError(t, err)

	cached(t, s, 10)

	_, err = s.Create(20)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.EntryPath(20), "half"), []byte("x"), 0o644))

	// Crashed between extraction and verification.
	sealed(t, s, 30)

	require.NoError(t, os.Mkdir(filepath.Join(root, "notes"), 0o755))

	removed, err := s.SweepIncomplete()
	require.NoError(t, err)
	require.Equal(t, []release.Version{20, 30}, removed)

	_, err = os.Stat(s.EntryPath(10))
	require.NoError(t, err)

	_, err = os.Stat(s.EntryPath(20))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(filepath.Join(root, "notes"))
	require.NoError(t, err)
}
