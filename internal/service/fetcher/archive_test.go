package fetcher

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/zonesync/internal/releasetest"
)

// TestMemberPath covers normalization, stripping and traversal rejection.
func TestMemberPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		strip int
		want  string
		bad   bool
	}{
		{name: "zones/db.example.com", want: "zones/db.example.com"},
		{name: "./zones//a.db", want: "zones/a.db"},
		{name: "dns-zones-1/zones/a.db", strip: 1, want: "zones/a.db"},
		{name: "dns-zones-1/", strip: 1, want: ""},
		{name: "../etc/passwd", bad: true},
		{name: "zones/../../x", bad: true},
		{name: "/etc/passwd", bad: true},
		{name: `zones\..\x`, bad: true},
	}

	for _, tc := range cases {
		got, err := memberPath(tc.name, tc.strip)
		if tc.bad {
			require.Error(t, err, tc.name)
			continue
		}

		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, got, tc.name)
	}
}

// TestExtract_PlainAndStripped extracts an uncompressed archive with a wrapping directory.
func TestExtract_PlainAndStripped(t *testing.T) {
	t.Parallel()

	archive := releasetest.Archive(t, map[string]string{
		"dns-zones-1/zones/a.db":  "a",
		"dns-zones-1/zones/b.rev": "b",
	}, false)

	dest := t.TempDir()

	files, err := extract(context.Background(), bytes.NewReader(archive), dest, 1)
	require.NoError(t, err)
	require.Equal(t, 2, files)

	contents, err := os.ReadFile(filepath.Join(dest, "zones", "b.rev"))
	require.NoError(t, err)
	require.Equal(t, "b", string(contents))
}

// TestExtract_SkipsLinksAndRejectsTraversal verifies hostile members never escape the entry.
func TestExtract_SkipsLinksAndRejectsTraversal(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer

	tw := tar.NewWriter(&buffer)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "zones/evil", Typeflag: tar.TypeSymlink, Linkname: "/etc/shadow"}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "zones/ok.db", Typeflag: tar.TypeReg, Mode: 0o600, Size: 2}))
	_, err := tw.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	dest := t.TempDir()

	files, err := extract(context.Background(), bytes.NewReader(buffer.Bytes()), dest, 0)
	require.NoError(t, err)
	require.Equal(t, 1, files)

	_, err = os.Lstat(filepath.Join(dest, "zones", "evil"))
	require.ErrorIs(t, err, os.ErrNotExist)

	info, err := os.Stat(filepath.Join(dest, "zones", "ok.db"))
	require.NoError(t, err)
	require.NotZero(t, info.Mode().Perm()&0o400)

	buffer.Reset()
	tw = tar.NewWriter(&buffer)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape", Typeflag: tar.TypeReg, Mode: 0o644, Size: 1}))
	_, err = tw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	outside := t.TempDir()
	dest = filepath.Join(outside, "entry")
	require.NoError(t, os.Mkdir(dest, 0o755))

	_, err = extract(context.Background(), bytes.NewReader(buffer.Bytes()), dest, 0)
	require.ErrorIs(t, err, errUnsafePath)

	_, err = os.Stat(filepath.Join(outside, "escape"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestExtract_Empty verifies an archive without files is rejected.
func TestExtract_Empty(t *testing.T) {
	t.Parallel()

	archive := releasetest.Archive(t, map[string]string{"zones/": ""}, true)

	_, err := extract(context.Background(), bytes.NewReader(archive), t.TempDir(), 0)
	require.ErrorIs(t, err, errEmptyArchive)
}
