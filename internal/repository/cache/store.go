package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/zonesync/internal/domain/release"
)

const (
	// MarkerFilename is written into an entry after its archive was fully
	// extracted and rewritten once the entry passes verification.
	MarkerFilename = ".zonesync-release.yaml"

	// DirectoryPermissions is used for the root and every entry.
	DirectoryPermissions os.FileMode = 0o755

	markerPermissions os.FileMode = 0o644
)

// Marker is the content of an entry's completion marker.
type Marker struct {
	// Version is the cached release.
	Version release.Version `yaml:"version"`
	// Name is the upstream release name.
	Name string `yaml:"name"`
	// Tag is the upstream tag.
	Tag string `yaml:"tag"`
	// DownloadURL is where the archive was fetched from.
	DownloadURL string `yaml:"download_url"`
	// MetadataDigest is the canonical sha256 of the upstream release document.
	MetadataDigest string `yaml:"metadata_digest,omitempty"`
	// SealedAt is when extraction completed.
	SealedAt time.Time `yaml:"sealed_at"`
	// VerifiedAt is when the entry passed verification. Zero until then.
	VerifiedAt time.Time `yaml:"verified_at,omitempty"`
}

// Store manages cache entries under one root directory.
type Store struct {
	// root is the absolute cache directory.
	root string
	// now is replaceable in tests.
	now func() time.Time
}

// NewStore creates a store rooted at root. The directory is created lazily.
func NewStore(root string) (*Store, error) {
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	return &Store{
		root: absolute,
		now:  time.Now,
	}, nil
}

// Root returns the absolute cache root.
func (s *Store) Root() string {
	return s.root
}

// EntryPath returns where the entry for v lives. It does not check existence.
func (s *Store) EntryPath(v release.Version) string {
	return filepath.Join(s.root, v.String())
}

// Versions lists complete entries in ascending order.
// A missing root is an empty cache.
func (s *Store) Versions() ([]release.Version, error) {
	candidates, err := s.scan()
	if err != nil {
		return nil, err
	}

	versions := make([]release.Version, 0, len(candidates))

	for _, v := range candidates {
		complete, err := s.IsComplete(v)
		if err != nil {
			return nil, err
		}

		if complete {
			versions = append(versions, v)
		}
	}

	slices.Sort(versions)

	return versions, nil
}

// Latest returns the highest complete version, or release.ErrNotFound for an empty cache.
func (s *Store) Latest() (release.Version, error) {
	versions, err := s.Versions()
	if err != nil {
		return release.NoVersion, err
	}

	if len(versions) == 0 {
		return release.NoVersion, fmt.Errorf("latest cached release in %s: %w", s.root, release.ErrNotFound)
	}

	return versions[len(versions)-1], nil
}

// Create makes an empty entry directory for v.
func (s *Store) Create(v release.Version) (string, error) {
	if err := os.MkdirAll(s.root, DirectoryPermissions); err != nil {
		return "", fmt.Errorf("create cache root: %w", err)
	}

	path := s.EntryPath(v)

	if err := os.Mkdir(path, DirectoryPermissions); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("cache entry %s: %w", path, release.ErrAlreadyExists)
		}

		return "", fmt.Errorf("create cache entry: %w", err)
	}

	return path, nil
}

// Remove deletes the entry for v recursively. Removing an absent entry is not an error.
func (s *Store) Remove(v release.Version) error {
	if err := os.RemoveAll(s.EntryPath(v)); err != nil {
		return fmt.Errorf("remove cache entry %s: %w", v, err)
	}

	return nil
}

// Seal writes the completion marker for the entry described by desc.
func (s *Store) Seal(desc release.Descriptor) error {
	digest, err := desc.Digest()
	if err != nil {
		return err
	}

	marker := &Marker{
		Version:        desc.Version(),
		Name:           desc.Name(),
		Tag:            desc.Tag(),
		DownloadURL:    desc.DownloadURL(),
		MetadataDigest: digest,
		SealedAt:       s.now().UTC(),
	}

	return s.writeMarker(marker)
}

// MarkVerified records that the sealed entry for v passed verification.
// Only verified entries count as cached.
func (s *Store) MarkVerified(v release.Version) error {
	marker, err := s.Marker(v)
	if err != nil {
		return err
	}

	marker.VerifiedAt = s.now().UTC()

	return s.writeMarker(marker)
}

func (s *Store) writeMarker(marker *Marker) error {
	data, err := yaml.Marshal(marker)
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}

	// Write then rename so a crash never leaves a truncated marker behind.
	path := filepath.Join(s.EntryPath(marker.Version), MarkerFilename)
	temporary := path + ".tmp"

	if err = os.WriteFile(temporary, data, markerPermissions); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	if err = os.Rename(temporary, path); err != nil {
		_ = os.Remove(temporary)

		return fmt.Errorf("install marker: %w", err)
	}

	return nil
}

// Marker reads the completion marker of v.
func (s *Store) Marker(v release.Version) (*Marker, error) {
	contents, err := os.ReadFile(filepath.Join(s.EntryPath(v), MarkerFilename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("marker of %s: %w", v, release.ErrNotFound)
		}

		return nil, fmt.Errorf("read marker: %w", err)
	}

	var marker Marker
	if err = yaml.Unmarshal(contents, &marker); err != nil {
		return nil, fmt.Errorf("decode marker of %s: %w", v, err)
	}

	return &marker, nil
}

// IsComplete reports whether the entry for v carries a marker that records
// a passed verification. Sealed but unverified entries are incomplete, and so
// are entries whose marker cannot be decoded.
func (s *Store) IsComplete(v release.Version) (bool, error) {
	path := filepath.Join(s.EntryPath(v), MarkerFilename)

	info, err := os.Lstat(path)

	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat marker of %s: %w", v, err)
	case !info.Mode().IsRegular():
		return false, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read marker: %w", err)
	}

	var marker Marker
	if err = yaml.Unmarshal(contents, &marker); err != nil {
		return false, nil
	}

	return marker.Version == v && !marker.VerifiedAt.IsZero(), nil
}

// SweepIncomplete removes version-named directories that were never sealed
// or never verified, and returns the versions it removed.
func (s *Store) SweepIncomplete() ([]release.Version, error) {
	candidates, err := s.scan()
	if err != nil {
		return nil, err
	}

	var removed []release.Version

	for _, v := range candidates {
		complete, err := s.IsComplete(v)
		if err != nil {
			return removed, err
		}

		if complete {
			continue
		}

		if err = s.Remove(v); err != nil {
			return removed, err
		}

		removed = append(removed, v)
	}

	return removed, nil
}

// scan returns every directory under the root whose name is a valid version.
// Files, symlinks and other names are ignored.
func (s *Store) scan() ([]release.Version, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list cache root: %w", err)
	}

	versions := make([]release.Version, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		v, err := release.ParseVersion(entry.Name())
		if err != nil {
			continue
		}

		// "0001" parses but would not round-trip to the same directory.
		if v.String() != entry.Name() {
			continue
		}

		versions = append(versions, v)
	}

	return versions, nil
}
