package overlay

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/spacedatanetwork/sdn-trust/internal/record"
)

// Event is one of ListenAddrBound, PeersDiscovered or QueryCompleted.
type Event interface {
	event()
}

// ListenAddrBound reports a newly bound local address.
type ListenAddrBound struct {
	Addr multiaddr.Multiaddr
}

// PeerAddr is a single discovered (peer, address) pair.
type PeerAddr struct {
	ID   peer.ID
	Addr multiaddr.Multiaddr
}

// PeersDiscovered carries peers found by local-network discovery.
type PeersDiscovered struct {
	Peers []PeerAddr
}

// QueryCompleted carries the outcome of a put, lookup or provide.
type QueryCompleted struct {
	Result QueryResult
}

func (ListenAddrBound) event() {}
func (PeersDiscovered) event() {}
func (QueryCompleted) event()  {}

// QueryResult is one of ProvidersFound, RecordFound, PutAck, ProvideAck or
// QueryFailed. Anything else is treated as diagnostic by consumers.
type QueryResult interface {
	queryResult()
}

// ProvidersFound lists the peers advertising Key.
type ProvidersFound struct {
	Key       []byte
	Providers []peer.ID
}

// RecordFound carries the records returned by a lookup.
type RecordFound struct {
	Records []record.Record
}

// PutAck confirms Key was stored.
type PutAck struct {
	Key []byte
}

// ProvideAck confirms Key is advertised as locally provided.
type ProvideAck struct {
	Key []byte
}

// QueryFailed reports an operation that did not succeed.
type QueryFailed struct {
	Op  string
	Key []byte
	Err error
}

func (ProvidersFound) queryResult() {}
func (RecordFound) queryResult()    {}
func (PutAck) queryResult()         {}
func (ProvideAck) queryResult()     {}
func (QueryFailed) queryResult()    {}

func (f QueryFailed) String() string {
	return fmt.Sprintf("%s %x: %v", f.Op, f.Key, f.Err)
}
