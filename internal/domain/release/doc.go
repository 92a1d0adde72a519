// Package release contains core domain types for release synchronization.
//
// It defines Version (the numeric timestamp identifying a published release),
// Descriptor (an immutable view of one upstream release), Result (the outcome
// of verifying an extracted release) and Deployment (what is currently live),
// along with the error kinds shared by the sync pipeline.
package release
