// Package syncer drives one release synchronization cycle: compare the cached
// and upstream versions, fetch a newer release, verify it and swap it live.
//
// Orchestrator holds the state machine and depends only on small interfaces,
// so it is tested with fakes. Pull, Redeploy and List are the entry points used
// by the CLI; they load the configuration, take the instance lock and wire the
// real components.
package syncer
