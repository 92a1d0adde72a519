package release

import (
	"errors"
	"fmt"
	"strconv"
)

// Version identifies a release. Upstream encodes it as a Unix timestamp
// inside the release name, so plain integer order is release order.
type Version uint64

// NoVersion is the floor used when nothing has been cached yet.
const NoVersion Version = 0

var errInvalidVersion = errors.New("invalid version")

// ParseVersion parses a decimal version identifier.
// Only ASCII digits are accepted: no sign, no whitespace, no empty string.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return NoVersion, fmt.Errorf("%w: empty string", errInvalidVersion)
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return NoVersion, fmt.Errorf("%w: %q", errInvalidVersion, s)
		}
	}

	value, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return NoVersion, fmt.Errorf("%w: %q: %w", errInvalidVersion, s, err)
	}

	return Version(value), nil
}

// IsValidVersion reports whether s is a syntactically valid version identifier.
func IsValidVersion(s string) bool {
	_, err := ParseVersion(s)

	return err == nil
}

// String renders the version the way cache entries are named on disk.
func (v Version) String() string {
	return strconv.FormatUint(uint64(v), 10)
}

// Newer reports whether v is strictly greater than other.
func (v Version) Newer(other Version) bool {
	return v > other
}
