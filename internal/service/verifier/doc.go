// Package verifier checks an extracted release with external tools before it
// may be deployed.
//
// Each configuration file is classified by name (.local, .db/db., .rev/rev.)
// and handed to the matching checker command. Checkers are started from
// argument vectors, never through a shell, because file and zone names come
// from release contents.
package verifier
