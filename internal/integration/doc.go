// Package integration exercises zonesync end to end: a fake GitHub API, the
// real cache, checkers started as processes, the live directory and the
// health endpoint.
package integration
