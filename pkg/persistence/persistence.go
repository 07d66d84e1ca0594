// Package persistence implements the shared-cache (SCC) narrow interface
// spec §6 names: a per-romMethod blob store with a sticky "store full"
// condition. Three backends share the Store interface: an in-memory map
// (tests, single-process default), modernc.org/sqlite (the default
// cross-run, single-machine backend), and go-redis (the shared,
// multi-process backend named in SPEC_FULL §11's domain stack table).
package persistence

import "github.com/tieredvm/recompiler/pkg/ctlerrors"

// Store is the narrow shared-cache surface the controller depends on:
// findAttachedData / storeAttachedData from spec §6, renamed to Go
// idiom. Keys are the per-romMethod offset-from-ROM-section spec §4.2/§6
// describe; values are opaque serialized blobs (pkg/iprofiler's BST codec
// output).
type Store interface {
	// Load returns the blob stored at key, or ReasonNoPlan-shaped "not
	// found" via the bool.
	Load(key string) (blob []byte, found bool, reason ctlerrors.ReasonCode)

	// Store writes blob at key, returning ReasonSCCFull if the backend's
	// sticky full condition is set (spec §6: "failure code STORE_FULL
	// sets a sticky SCC full bit").
	Store(key string, blob []byte) ctlerrors.ReasonCode

	// IsFull reports the sticky SCC-full condition.
	IsFull() bool

	// Close releases any resources the backend holds (connections,
	// file handles). Backends with nothing to release no-op.
	Close() error
}
