package state

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goupdate "github.com/doitdistributed/go-update"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/zonesync/internal/domain/release"

	// Ensure SHA256 is available for the replacement checksum.
	_ "crypto/sha256"
)

// DefaultFilename is created inside the cache root.
const DefaultFilename = ".zonesync-deployment.yaml"

const filePermissions os.FileMode = 0o644

// Repository defines persistence operations for the deployment record.
type Repository interface {
	Load(ctx context.Context) (*release.Deployment, error)
	Save(ctx context.Context, deployment *release.Deployment) error
}

// FileRepository persists the deployment record to a YAML file on disk.
// Writes go through go-update, so readers see either the old or the new file.
type FileRepository struct {
	// path is the filesystem location of the record.
	path string
	// mu protects concurrent access to the file.
	mu sync.Mutex
}

// ErrNotFound is returned when nothing has been deployed yet.
var ErrNotFound = fmt.Errorf("deployment record: %w", release.ErrNotFound)

// record is the on-disk layout.
type record struct {
	Version    release.Version `yaml:"version"`
	DeployedAt time.Time       `yaml:"deployed_at"`
	Hostname   string          `yaml:"hostname,omitempty"`
	Username   string          `yaml:"username,omitempty"`
	RunID      string          `yaml:"run_id,omitempty"`
}

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the record from disk.
func (r *FileRepository) Load(_ context.Context) (*release.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read deployment record: %w", err)
	}

	var stored record
	if err = yaml.Unmarshal(contents, &stored); err != nil {
		return nil, fmt.Errorf("decode deployment record: %w", err)
	}

	// An empty placeholder is left behind if a save was interrupted before its first write.
	if stored.Version == release.NoVersion {
		return nil, ErrNotFound
	}

	return fromRecord(&stored), nil
}

// Save replaces the record on disk.
func (r *FileRepository) Save(_ context.Context, deployment *release.Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(toRecord(deployment))
	if err != nil {
		return fmt.Errorf("encode deployment record: %w", err)
	}

	// go-update swaps an existing file; make sure there is one.
	if _, err = os.Stat(r.path); errors.Is(err, os.ErrNotExist) {
		if err = os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
			return fmt.Errorf("create record directory: %w", err)
		}

		var placeholder *os.File

		if placeholder, err = os.Create(r.path); err != nil {
			return fmt.Errorf("create deployment record: %w", err)
		}

		_ = placeholder.Close()
	}

	hasher := crypto.SHA256.New()
	_, _ = hasher.Write(data)

	options := goupdate.Options{
		TargetPath: r.path,
		TargetMode: filePermissions,
		Checksum:   hasher.Sum(nil),
		Hash:       crypto.SHA256,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("write deployment record: %w", err)
	}

	return nil
}

func fromRecord(stored *record) *release.Deployment {
	var actor *release.Actor
	if stored.Hostname != "" || stored.Username != "" {
		actor = &release.Actor{
			Hostname: stored.Hostname,
			Username: stored.Username,
		}
	}

	return &release.Deployment{
		Version:    stored.Version,
		DeployedAt: stored.DeployedAt,
		Actor:      actor,
		RunID:      stored.RunID,
	}
}

func toRecord(deployment *release.Deployment) *record {
	stored := &record{
		Version:    deployment.Version,
		DeployedAt: deployment.DeployedAt.UTC(),
		RunID:      deployment.RunID,
	}

	if deployment.Actor != nil {
		stored.Hostname = deployment.Actor.Hostname
		stored.Username = deployment.Actor.Username
	}

	return stored
}
