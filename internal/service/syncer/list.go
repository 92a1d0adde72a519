package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/oshokin/zonesync/internal/config"
	"github.com/oshokin/zonesync/internal/domain/release"
	"github.com/oshokin/zonesync/internal/logger"
	"github.com/oshokin/zonesync/internal/repository/cache"
	"github.com/oshokin/zonesync/internal/repository/state"
	"github.com/oshokin/zonesync/internal/service/deployer"
)

// Listing is one cached release as shown by List.
type Listing struct {
	Version  release.Version
	Name     string
	SealedAt time.Time
	// Deployed is true for the version in the deployment record.
	Deployed bool
	// Linked is true when live links point into this entry.
	Linked bool
}

// List prints the cached releases, newest first. It takes no lock: only
// complete entries are read, and those are never modified.
func List(ctx context.Context, opts *Options, w io.Writer) error {
	// The table goes to stdout, so only warnings and errors are logged.
	ctx = logger.WithName(logger.WithMinLevel(ctx, zapcore.WarnLevel), "list")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	store, err := cache.NewStore(cfg.Cache.Root)
	if err != nil {
		return err
	}

	live, err := deployer.New(&deployer.Options{
		CacheRoot:       store.Root(),
		TargetDirectory: cfg.Deploy.TargetDirectory,
		ZoneDirectory:   cfg.Verify.ZoneDirectory,
	})
	if err != nil {
		return err
	}

	listings, err := Listings(ctx, store, live,
		state.NewFileRepository(filepath.Join(store.Root(), state.DefaultFilename)))
	if err != nil {
		return err
	}

	return writeListings(w, listings)
}

// Listings collects the cached releases with their deployment status, newest first.
func Listings(
	ctx context.Context,
	store *cache.Store,
	live *deployer.Deployer,
	states state.Repository,
) ([]Listing, error) {
	versions, err := store.Versions()
	if err != nil {
		return nil, err
	}

	deployed := release.NoVersion

	record, err := states.Load(ctx)
	switch {
	case err == nil:
		deployed = record.Version
	case !errors.Is(err, release.ErrNotFound):
		logger.WarnKV(ctx, "Unable to read deployment record", "error", err)
	}

	linked := make(map[string]bool)

	owned, err := live.OwnedLinks()
	if err != nil {
		logger.WarnKV(ctx, "Unable to inspect live directory", "error", err)
	}

	for _, destination := range owned {
		rel, relErr := filepath.Rel(store.Root(), destination)
		if relErr != nil {
			continue
		}

		entry, _, _ := strings.Cut(rel, string(filepath.Separator))
		linked[entry] = true
	}

	listings := make([]Listing, 0, len(versions))

	for i := len(versions) - 1; i >= 0; i-- {
		version := versions[i]
		listing := Listing{
			Version:  version,
			Deployed: version == deployed,
			Linked:   linked[version.String()],
		}

		marker, err := store.Marker(version)
		if err != nil {
			logger.WarnKV(ctx, "Unable to read release marker", "version", version, "error", err)
		} else {
			listing.Name = marker.Name
			listing.SealedAt = marker.SealedAt
		}

		listings = append(listings, listing)
	}

	return listings, nil
}

func writeListings(w io.Writer, listings []Listing) error {
	table := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(table, "VERSION\tNAME\tCACHED AT\tSTATUS")

	for _, listing := range listings {
		status := "-"

		switch {
		case listing.Deployed && listing.Linked:
			status = "live"
		case listing.Deployed:
			status = "recorded"
		case listing.Linked:
			status = "linked"
		}

		cachedAt := "-"
		if !listing.SealedAt.IsZero() {
			cachedAt = listing.SealedAt.UTC().Format(time.RFC3339)
		}

		name := listing.Name
		if name == "" {
			name = "-"
		}

		fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", listing.Version, name, cachedAt, status)
	}

	if err := table.Flush(); err != nil {
		return fmt.Errorf("write listing: %w", err)
	}

	return nil
}
