// Package overlay defines the boundary between the trust-record node and the
// distributed key-value network it publishes to, and provides the libp2p
// Kademlia implementation of that boundary.
package overlay

import (
	"context"
	"errors"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/spacedatanetwork/sdn-trust/internal/record"
)

var (
	// ErrSetup wraps transport and listen initialization failures.
	ErrSetup = errors.New("overlay setup failed")

	// ErrPublish wraps a publish the overlay refused to accept.
	ErrPublish = errors.New("overlay rejected publish")

	// ErrClosed is returned by operations on a closed overlay.
	ErrClosed = errors.New("overlay closed")
)

// Quorum is the number of overlay acknowledgements a publish needs.
type Quorum int

const (
	// QuorumOne succeeds once a single peer has stored the record.
	QuorumOne Quorum = iota + 1
	// QuorumMajority requires a majority of the closest peers.
	QuorumMajority
	// QuorumAll requires every closest peer.
	QuorumAll
)

// String returns the quorum name.
func (q Quorum) String() string {
	switch q {
	case QuorumOne:
		return "one"
	case QuorumMajority:
		return "majority"
	case QuorumAll:
		return "all"
	default:
		return "unknown"
	}
}

// Overlay is what the orchestrator needs from the network.
type Overlay interface {
	// Listen begins accepting connections.
	Listen(ctx context.Context) error

	// RegisterPeerAddress adds addr to the routing table entry for id.
	RegisterPeerAddress(id peer.ID, addr multiaddr.Multiaddr)

	// PublishRecord stores key/value locally and starts replication. The
	// outcome of replication arrives later as a QueryCompleted event.
	PublishRecord(ctx context.Context, key, value []byte, q Quorum) error

	// LocalRecords returns a snapshot of the local record store.
	LocalRecords(ctx context.Context) ([]record.Record, error)

	// Events yields network events in arrival order.
	Events() <-chan Event
}

// Querier issues lookups whose results arrive as QueryCompleted events.
type Querier interface {
	GetRecord(ctx context.Context, key []byte)
	FindProviders(ctx context.Context, key []byte)
	StartProviding(ctx context.Context, key []byte)
}
