package fetcher

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/oshokin/zonesync/internal/logger"
)

var (
	// errUnsafePath is returned for members that would land outside the entry.
	errUnsafePath = errors.New("unsafe path in archive")
	// errEmptyArchive is returned when nothing was extracted.
	errEmptyArchive = errors.New("archive contains no files")
)

var gzipMagic = []byte{0x1f, 0x8b}

// extract unpacks a tar or gzip-compressed tar stream into dest and returns the
// number of regular files written. Only directories and regular files are
// materialized; links and special files are skipped.
func extract(ctx context.Context, r io.Reader, dest string, strip int) (int, error) {
	buffered := bufio.NewReader(r)

	var stream io.Reader = buffered

	if magic, err := buffered.Peek(len(gzipMagic)); err == nil && string(magic) == string(gzipMagic) {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return 0, fmt.Errorf("open gzip stream: %w", err)
		}

		defer func() {
			_ = gz.Close()
		}()

		stream = gz
	}

	reader := tar.NewReader(stream)
	files := 0

	for {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return files, fmt.Errorf("read archive: %w", err)
		}

		relative, err := memberPath(header.Name, strip)
		if err != nil {
			return files, err
		}

		if relative == "" {
			continue
		}

		target := filepath.Join(dest, filepath.FromSlash(relative))

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, 0o755); err != nil {
				return files, fmt.Errorf("create directory %s: %w", relative, err)
			}
		case tar.TypeReg:
			if err = writeMember(reader, target, header.FileInfo().Mode().Perm()); err != nil {
				return files, fmt.Errorf("write %s: %w", relative, err)
			}

			files++
		default:
			logger.WarnKV(ctx, "Skipping archive member that is not a file or directory",
				"name", header.Name, "type", string(header.Typeflag))
		}
	}

	if files == 0 {
		return 0, errEmptyArchive
	}

	return files, nil
}

// memberPath normalizes an archive member name, drops strip leading elements
// and rejects anything that could escape the destination.
func memberPath(name string, strip int) (string, error) {
	if strings.HasPrefix(name, "/") || strings.Contains(name, `\`) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", errUnsafePath, name)
	}

	var elements []string

	for _, element := range strings.Split(name, "/") {
		switch element {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: %q", errUnsafePath, name)
		}

		elements = append(elements, element)
	}

	if len(elements) <= strip {
		return "", nil
	}

	return path.Join(elements[strip:]...), nil
}

// writeMember copies the current member into target.
func writeMember(r io.Reader, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	// Checkers and the DNS server must be able to read every file.
	perm = (perm & 0o755) | 0o644

	//nolint:gosec // target is built from a sanitized member path under the entry.
	file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}

	if _, err = io.Copy(file, r); err != nil {
		_ = file.Close()

		return err
	}

	return file.Close()
}
