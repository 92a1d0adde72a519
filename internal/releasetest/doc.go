// Package releasetest provides fixtures for tests that need release archives
// and a fake GitHub releases API.
package releasetest
