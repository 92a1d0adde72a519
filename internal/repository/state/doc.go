// Package state persists the record of the release currently deployed.
//
// The FileRepository stores the record as YAML on disk, replacing the file
// atomically, and exposes a Repository interface the sync services depend on.
package state
