// Package cache implements the local store of extracted releases.
//
// Every release lives in a directory named by its version under one root.
// A marker file is written into the directory once extraction succeeds and
// stamped again once the release passes verification. Directories without a
// stamped marker are leftovers of an interrupted run: they are never reported
// as versions and the next sweep removes them.
package cache
