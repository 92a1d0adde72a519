package release

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Descriptor describes one upstream release. It is built once by the fetcher
// and read by the rest of the pipeline; there are no setters.
type Descriptor struct {
	version     Version
	downloadURL string
	name        string
	tag         string
	metadata    []byte
}

// NewDescriptor creates a Descriptor. The raw metadata is copied.
func NewDescriptor(version Version, downloadURL, name, tag string, metadata []byte) Descriptor {
	return Descriptor{
		version:     version,
		downloadURL: downloadURL,
		name:        name,
		tag:         tag,
		metadata:    bytes.Clone(metadata),
	}
}

// Version returns the release version.
func (d Descriptor) Version() Version {
	return d.version
}

// DownloadURL returns the URL of the release's primary asset.
func (d Descriptor) DownloadURL() string {
	return d.downloadURL
}

// Name returns the upstream release name.
func (d Descriptor) Name() string {
	return d.name
}

// Tag returns the upstream tag name.
func (d Descriptor) Tag() string {
	return d.tag
}

// RawMetadata returns a copy of the upstream JSON document for this release.
func (d Descriptor) RawMetadata() []byte {
	return bytes.Clone(d.metadata)
}

// Digest returns the sha256 of the RFC 8785 canonical form of the raw metadata,
// so equal documents hash equally regardless of key order or whitespace.
// It returns an empty string when no metadata is attached.
func (d Descriptor) Digest() (string, error) {
	if len(d.metadata) == 0 {
		return "", nil
	}

	canonical, err := jcs.Transform(d.metadata)
	if err != nil {
		return "", fmt.Errorf("canonicalize release metadata: %w", err)
	}

	sum := sha256.Sum256(canonical)

	return hex.EncodeToString(sum[:]), nil
}
