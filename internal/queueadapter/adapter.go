// Package queueadapter defines the broker's persistent-queue contract
// (§4.4) and the concrete backends that implement it. The broker holds
// an Adapter reference but never interprets its storage semantics.
package queueadapter

import "github.com/bossjones/gearman-server/internal/protocol"

// Record is the opaque tuple an adapter persists per job. Job handles
// are never part of it: handles are regenerated from the broker's
// monotonic counter on replay.
type Record struct {
	Unique   string
	Function string
	Data     []byte
	Priority protocol.Priority
}

// ReplayFunc is the broker-supplied entry point Replay invokes once per
// persisted record. It is equivalent to job_add with the replay flag
// set: the broker must not re-persist what it's being handed back.
type ReplayFunc func(rec Record) error

// Adapter is the four-operation persistent queue contract: add a record
// before the job becomes takeable, optionally flush to commit it,
// remove it on terminal completion, and replay the whole backlog once
// at startup.
type Adapter interface {
	// Add persists rec. Called once per freshly created, non-replay job.
	Add(rec Record) error

	// Flush commits any buffered Add calls. The broker treats Add+Flush
	// as a single commit boundary; adapters with no buffering may treat
	// this as a no-op.
	Flush() error

	// Done removes the persisted record for (unique, function) after a
	// job reaches terminal status, or after a rolled-back creation.
	Done(unique, function string) error

	// Replay iterates every persisted record and invokes fn for each.
	// Called once at startup before the broker accepts connections.
	Replay(fn ReplayFunc) error

	// Close releases any resources the adapter holds (connections,
	// file handles).
	Close() error
}
