// Package config defines the settings of a sync cycle and provides helpers to
// load, validate and save them in YAML format.
//
// The Config type holds the upstream repository, the deploy directory and
// reload command, the cache location, checker commands and a few operational
// knobs. Validate fills defaults for everything optional.
package config
