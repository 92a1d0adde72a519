package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/oshokin/zonesync/internal/domain/release"
)

// ConfigFiles returns the absolute paths of the regular files directly inside
// subdirectory of an entry, sorted by name. Nested directories and symlinks are
// not part of a release's configuration set.
func ConfigFiles(entryPath, subdirectory string) ([]string, error) {
	directory, err := filepath.Abs(filepath.Join(entryPath, subdirectory))
	if err != nil {
		return nil, fmt.Errorf("resolve configuration directory: %w", err)
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("configuration directory %s: %w", directory, release.ErrNotFound)
		}

		return nil, fmt.Errorf("list configuration directory: %w", err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		files = append(files, filepath.Join(directory, entry.Name()))
	}

	sort.Strings(files)

	return files, nil
}
