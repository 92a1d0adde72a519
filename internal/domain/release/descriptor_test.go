package release

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDescriptor_CopiesMetadata ensures callers cannot mutate a descriptor through its metadata.
func TestDescriptor_CopiesMetadata(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"name":"zones.1.2.1700000000"}`)
	d := NewDescriptor(1700000000, "https://example.com/a.tar.gz", "zones.1.2.1700000000", "v1", raw)

	raw[0] = 'X'
	require.Equal(t, byte('{'), d.RawMetadata()[0])

	got := d.RawMetadata()
	got[0] = 'X'
	require.Equal(t, byte('{'), d.RawMetadata()[0])

	require.Equal(t, Version(1700000000), d.Version())
	require.Equal(t, "https://example.com/a.tar.gz", d.DownloadURL())
	require.Equal(t, "v1", d.Tag())
}

// TestDescriptor_Digest verifies the digest ignores key order and whitespace.
func TestDescriptor_Digest(t *testing.T) {
	t.Parallel()

	a := NewDescriptor(1, "", "", "", []byte(`{"b":1,"a":"x"}`))
	b := NewDescriptor(1, "", "", "", []byte("{ \"a\": \"x\",\n \"b\": 1 }"))

	digestA, err := a.Digest()
	require.NoError(t, err)
	require.Len(t, digestA, 64)

	digestB, err := b.Digest()
	require.NoError(t, err)
	require.Equal(t, digestA, digestB)

	empty, err := NewDescriptor(1, "", "", "", nil).Digest()
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = NewDescriptor(1, "", "", "", []byte("{")).Digest()
	require.Error(t, err)
}
