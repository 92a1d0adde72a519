// Package fetcher talks to the upstream release API and stages releases in the cache.
//
// It resolves the latest published release of a GitHub repository into a
// release.Descriptor, downloads the release archive into memory and extracts
// it into a fresh cache entry. A failed download or extraction never leaves a
// partial entry behind.
package fetcher
