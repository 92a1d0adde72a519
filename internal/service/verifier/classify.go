package verifier

import (
	"strings"

	"github.com/oshokin/zonesync/internal/domain/release"
)

// Classify picks the checker policy for a file name and derives the zone name
// for zone files. Both suffix (example.com.db) and prefix (db.example.com)
// conventions are recognized; a suffix wins when both apply.
func Classify(name string) (release.FileKind, string) {
	if strings.HasPrefix(name, ".") {
		return release.KindUnknown, ""
	}

	switch {
	case strings.HasSuffix(name, ".local"):
		return release.KindConfig, ""
	case strings.HasSuffix(name, ".db"):
		return zone(release.KindForwardZone, strings.TrimSuffix(name, ".db"))
	case strings.HasSuffix(name, ".rev"):
		return zone(release.KindReverseZone, strings.TrimSuffix(name, ".rev"))
	case strings.HasPrefix(name, "db."):
		return zone(release.KindForwardZone, strings.TrimPrefix(name, "db."))
	case strings.HasPrefix(name, "rev."):
		return zone(release.KindReverseZone, strings.TrimPrefix(name, "rev."))
	default:
		return release.KindUnknown, ""
	}
}

func zone(kind release.FileKind, domain string) (release.FileKind, string) {
	domain = strings.Trim(domain, ".")
	if domain == "" {
		return release.KindUnknown, ""
	}

	return kind, domain
}
