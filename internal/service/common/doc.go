// Package common holds helpers shared by several services.
//
// It runs external commands from argument vectors, serializes runs with a
// PID lock file, and detects the current system actor (hostname/username)
// recorded with every deployment.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
