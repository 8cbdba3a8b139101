// Package config holds the Configuration struct passed by value into a
// docset.Connection, following the teacher's peer.Configuration idiom of
// injecting transport, tunables, and the local identity as one struct.
package config

import (
	"time"

	"crdtweave/backend/transport"
	"crdtweave/backend/types"
)

// Configuration bundles everything a Connection needs to run the sync
// protocol for a set of documents.
type Configuration struct {
	// ActorId identifies this replica's locally-produced changes.
	ActorId types.ActorId

	// Socket is the transport a Connection sends/receives sync messages
	// over.
	Socket transport.Socket

	// AntiEntropyInterval is the period between sync-message generation
	// attempts to every known peer for every document. Zero disables the
	// loop.
	AntiEntropyInterval time.Duration

	// HeartbeatInterval is the period between liveness pings. Zero disables
	// the loop.
	HeartbeatInterval time.Duration

	// BloomFalsePositiveRate is the target FPR used when sizing a "have"
	// entry's Bloom filter (§4.3 step 2). Defaults to 0.01 when zero.
	BloomFalsePositiveRate float64

	// MaxPendingChanges is carried in the configuration but is not read by
	// Connection or the History DAG: the receive-side parked-changes queue
	// has no cap, whatever its value.
	MaxPendingChanges int

	// RecvTimeout bounds each blocking Socket.Recv call in the listen loop,
	// so it can observe context cancellation promptly.
	RecvTimeout time.Duration
}
